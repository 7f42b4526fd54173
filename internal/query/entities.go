package query

import (
	"fmt"
	"strings"
)

// EntityQuery is the generic entity listing query. Metadata clauses from
// Build are merged into Joins and Wheres; their placeholders must come from
// Args so that numbering stays consistent.
type EntityQuery struct {
	Types      []string
	Subtypes   []string
	OwnerGUIDs []int64
	SiteGUID   int64

	Joins  []string
	Wheres []string
	Args   *Args

	// Access restricts the entities themselves. Nil means no restriction.
	Access AccessFunc

	OrderBy string
	Limit   int
	Offset  int
	Count   bool
}

// Apply merges metadata clauses into the query.
func (q *EntityQuery) Apply(c Clauses) {
	q.Joins = append(q.Joins, c.Joins...)
	q.Wheres = append(q.Wheres, c.Wheres...)
}

// SQL renders the statement and its arguments. With Count set the statement
// returns a single count column; otherwise it returns entity columns.
// Rendering does not modify q, so the same query can be listed and counted.
func (q *EntityQuery) SQL() (string, []any) {
	args := q.Args.Clone()

	wheres := append([]string(nil), q.Wheres...)
	if len(q.Types) > 0 {
		wheres = append(wheres, fmt.Sprintf("e.type IN (%s)", args.List(q.Types, nil)))
	}
	if len(q.Subtypes) > 0 {
		wheres = append(wheres, fmt.Sprintf("e.subtype IN (%s)", args.List(q.Subtypes, nil)))
	}
	if len(q.OwnerGUIDs) > 0 {
		ph := make([]string, len(q.OwnerGUIDs))
		for i, g := range q.OwnerGUIDs {
			ph[i] = args.Add(g)
		}
		wheres = append(wheres, fmt.Sprintf("e.owner_guid IN (%s)", strings.Join(ph, ", ")))
	}
	if q.SiteGUID != 0 {
		wheres = append(wheres, "e.site_guid = "+args.Add(q.SiteGUID))
	}
	if q.Access != nil {
		wheres = append(wheres, q.Access("e", args))
	}

	var b strings.Builder
	if q.Count {
		b.WriteString("SELECT COUNT(DISTINCT e.guid) FROM " + EntitiesTable + " e")
	} else {
		b.WriteString("SELECT DISTINCT e.guid, e.type, e.subtype, e.owner_guid, e.container_guid, e.site_guid, e.access_id, e.created_at FROM " + EntitiesTable + " e")
	}
	for _, j := range q.Joins {
		b.WriteString(" " + j)
	}
	if len(wheres) > 0 {
		b.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	if q.Count {
		return b.String(), args.Values()
	}

	order := q.OrderBy
	if order == "" {
		order = "e.created_at DESC, e.guid DESC"
	}
	b.WriteString(" ORDER BY " + order)
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + args.Add(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + args.Add(q.Offset))
	}
	return b.String(), args.Values()
}
