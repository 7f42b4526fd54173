package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// Table names used in generated joins.
const (
	MetadataTable    = "metadata"
	MetastringsTable = "metastrings"
	EntitiesTable    = "entities"
)

// Clauses are the join and where fragments produced for one filter.
type Clauses struct {
	Joins  []string
	Wheres []string
}

// Empty reports whether the clauses constrain nothing.
func (c Clauses) Empty() bool {
	return len(c.Joins) == 0 && len(c.Wheres) == 0
}

// Build translates f into joins against the entity table aliased as table.
//
// Names and values share one metadata join (md); each pair gets its own
// aliases so that several pairs can match different rows of the same entity.
// The names/values predicate and the pairs predicate are ORed together while
// pairs combine with f.PairOperator. Every metadata alias carries its own
// access predicate.
//
// An empty filter yields empty Clauses and no error.
func Build(table string, f model.Filter, access AccessFunc, args *Args) (Clauses, error) {
	var c Clauses
	if f.IsEmpty() {
		return c, nil
	}
	if err := f.Validate(); err != nil {
		return c, err
	}
	if access == nil {
		access = AllowAll
	}
	if args == nil {
		return c, fmt.Errorf("%w: nil args", model.ErrInvalidArgument)
	}

	var groups []string

	if len(f.Names) > 0 || len(f.Values) > 0 {
		c.Joins = append(c.Joins, fmt.Sprintf("JOIN %s md ON %s.guid = md.entity_guid", MetadataTable, table))

		var parts []string
		if len(f.Names) > 0 {
			names := make([]string, len(f.Names))
			for i, n := range f.Names {
				names[i] = model.NormalizeName(n)
			}
			c.Joins = append(c.Joins, fmt.Sprintf("JOIN %s msn ON md.name_id = msn.id", MetastringsTable))
			parts = append(parts, fmt.Sprintf("(msn.string IN (%s))", args.List(names, nil)))
		}
		if len(f.Values) > 0 {
			values := make([]string, len(f.Values))
			for i, v := range f.Values {
				if v == "" {
					v = "0"
				}
				values[i] = v
			}
			c.Joins = append(c.Joins, fmt.Sprintf("JOIN %s msv ON md.value_id = msv.id", MetastringsTable))
			if !f.CaseInsensitive {
				parts = append(parts, fmt.Sprintf("(msv.string IN (%s))", args.List(values, nil)))
			} else {
				parts = append(parts, fmt.Sprintf("(LOWER(msv.string) IN (%s))", args.List(values, lower)))
			}
		}
		parts = append(parts, access("md", args))
		groups = append(groups, "("+strings.Join(parts, " AND ")+")")
	}

	if len(f.Pairs) > 0 {
		op := f.PairOperator
		if op == "" {
			op = model.CombineAnd
		}
		pairWheres := make([]string, 0, len(f.Pairs))
		for i, p := range f.Pairs {
			n := i + 1
			md := fmt.Sprintf("md%d", n)
			msn := fmt.Sprintf("msn%d", n)
			msv := fmt.Sprintf("msv%d", n)
			c.Joins = append(c.Joins,
				fmt.Sprintf("JOIN %s %s ON %s.guid = %s.entity_guid", MetadataTable, md, table, md),
				fmt.Sprintf("JOIN %s %s ON %s.name_id = %s.id", MetastringsTable, msn, md, msn),
				fmt.Sprintf("JOIN %s %s ON %s.value_id = %s.id", MetastringsTable, msv, md, msv),
			)

			caseSensitive := !f.CaseInsensitive
			if p.CaseSensitive != nil {
				caseSensitive = *p.CaseSensitive
			}

			name := args.Add(p.Name)
			cmp := pairComparison(msv, p, caseSensitive, args)
			pairWheres = append(pairWheres,
				fmt.Sprintf("(%s.string = %s AND %s AND %s)", msn, name, cmp, access(md, args)))
		}
		groups = append(groups, "("+strings.Join(pairWheres, " "+string(op)+" ")+")")
	}

	if len(groups) > 0 {
		c.Wheres = append(c.Wheres, "("+strings.Join(groups, " OR ")+")")
	}
	return c, nil
}

// pairComparison renders the value side of a pair. Integers compare
// numerically, list operands expand to a placeholder list, and everything
// else compares as text.
func pairComparison(col string, p model.Pair, caseSensitive bool, args *Args) string {
	op := model.NormalizeOperand(p.Operand)
	sqlOp := strings.ToUpper(op)

	if model.IsListOperand(op) {
		if caseSensitive {
			return fmt.Sprintf("%s.string %s (%s)", col, sqlOp, args.List(p.ListValues(), nil))
		}
		return fmt.Sprintf("LOWER(%s.string) %s (%s)", col, sqlOp, args.List(p.ListValues(), lower))
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(p.Value), 10, 64); err == nil && !isLike(op) {
		return fmt.Sprintf("%s %s %s", numeric(col), sqlOp, args.Add(n))
	}

	if caseSensitive {
		return fmt.Sprintf("%s.string %s %s", col, sqlOp, args.Add(p.Value))
	}
	return fmt.Sprintf("LOWER(%s.string) %s LOWER(%s)", col, sqlOp, args.Add(p.Value))
}

// integerPattern accepts the same strings as strconv.ParseInt after
// strings.TrimSpace, and the same ones bigint input does, so rows written
// before integers were normalized still compare numerically.
const integerPattern = `^\s*[+-]?[0-9]+\s*$`

// numeric casts a metastring column to a number, or NULL when it does not
// hold an integer, so that '15' > '5'.
func numeric(col string) string {
	return fmt.Sprintf("(CASE WHEN %s.string ~ '%s' THEN %s.string::bigint END)", col, integerPattern, col)
}

func isLike(op string) bool {
	return op == "like" || op == "not like"
}

func lower(ph string) string {
	return "LOWER(" + ph + ")"
}
