package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Combinator joins pair predicates.
type Combinator string

const (
	CombineAnd Combinator = "AND"
	CombineOr  Combinator = "OR"
)

// IsValid checks whether the combinator is AND or OR.
func (c Combinator) IsValid() bool {
	switch c {
	case CombineAnd, CombineOr:
		return true
	}
	return false
}

// Operands accepted in a Pair.
var operands = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"like": true, "not like": true,
	"in": true, "not in": true,
}

// NormalizeOperand lowercases and trims op, defaulting to "=".
func NormalizeOperand(op string) string {
	op = strings.Join(strings.Fields(strings.ToLower(op)), " ")
	if op == "" {
		return "="
	}
	return op
}

// IsListOperand reports whether op takes a list of values.
func IsListOperand(op string) bool {
	op = NormalizeOperand(op)
	return op == "in" || op == "not in"
}

// Pair is a single name/value constraint.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	// Values holds the list for the in / not in operands. When empty, Value is
	// split on commas.
	Values        []string `json:"values,omitempty"`
	Operand       string   `json:"operand,omitempty"`
	CaseSensitive *bool    `json:"case_sensitive,omitempty"`
}

// ListValues returns the values an in / not in operand compares against.
func (p Pair) ListValues() []string {
	if len(p.Values) > 0 {
		return p.Values
	}
	var out []string
	for _, v := range strings.Split(p.Value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `'"`)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Filter selects entities by their metadata. Names and Values are not
// paired with each other; use Pairs for that.
//
// Value matching is case sensitive unless CaseInsensitive is set, so the
// zero Filter and NewFilter agree.
type Filter struct {
	Names           []string   `json:"names,omitempty"`
	Values          []string   `json:"values,omitempty"`
	Pairs           []Pair     `json:"pairs,omitempty"`
	PairOperator    Combinator `json:"pair_operator,omitempty"`
	CaseInsensitive bool       `json:"case_insensitive,omitempty"`
}

// NewFilter returns an empty filter with the default AND combinator.
func NewFilter() Filter {
	return Filter{PairOperator: CombineAnd}
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Names) == 0 && len(f.Values) == 0 && len(f.Pairs) == 0
}

// Validate checks the filter for malformed pairs, operands and combinators.
func (f Filter) Validate() error {
	var ve ValidationError
	if f.PairOperator != "" && !f.PairOperator.IsValid() {
		ve.add("pair_operator", fmt.Sprintf("invalid value %q", f.PairOperator))
	}
	for i, p := range f.Pairs {
		field := fmt.Sprintf("pairs[%d]", i)
		if p.Name == "" {
			ve.add(field+".name", "is required")
		}
		op := NormalizeOperand(p.Operand)
		if !operands[op] {
			ve.add(field+".operand", fmt.Sprintf("unsupported operand %q", p.Operand))
			continue
		}
		if IsListOperand(op) {
			if len(p.ListValues()) == 0 {
				ve.add(field+".values", "is required for "+op)
			}
		} else if p.Value == "" && len(p.Values) == 0 {
			ve.add(field+".value", "is required")
		} else if len(p.Values) > 0 {
			ve.add(field+".values", "only allowed with in / not in")
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// DecodeFilter parses a JSON filter, rejecting unknown fields, and validates it.
// An omitted pair_operator defaults to AND.
func DecodeFilter(data []byte) (Filter, error) {
	f := NewFilter()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Filter{}, fmt.Errorf("%w: decode filter: %v", ErrInvalidArgument, err)
	}
	if f.PairOperator == "" {
		f.PairOperator = CombineAnd
	}
	f.PairOperator = Combinator(strings.ToUpper(string(f.PairOperator)))
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}
