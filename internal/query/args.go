// Package query translates metadata filters into SQL join and where fragments
// that compose with the generic entity listing query.
package query

import (
	"fmt"
	"strings"
)

// Args accumulates positional query arguments. Fragments built against the
// same Args can be concatenated into one statement.
type Args struct {
	values []any
}

// NewArgs returns an empty accumulator.
func NewArgs() *Args {
	return &Args{}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// List appends every value and returns a comma-separated placeholder list.
func (a *Args) List(vs []string, wrap func(string) string) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = a.Add(v)
		if wrap != nil {
			ph[i] = wrap(ph[i])
		}
	}
	return strings.Join(ph, ", ")
}

// Values returns the accumulated arguments in placeholder order.
func (a *Args) Values() []any {
	if a == nil {
		return nil
	}
	return a.values
}

// Clone returns an independent copy. Cloning nil yields an empty Args.
func (a *Args) Clone() *Args {
	if a == nil {
		return NewArgs()
	}
	return &Args{values: append([]any(nil), a.values...)}
}

// Len returns the number of accumulated arguments.
func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// AccessFunc returns a visibility predicate for rows of the table aliased as
// alias. Any arguments it needs are added to args.
type AccessFunc func(alias string, args *Args) string

// AllowAll is an AccessFunc that hides nothing.
func AllowAll(string, *Args) string {
	return "TRUE"
}
