package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

func parseGUID(s string) (int64, error) {
	guid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || guid <= 0 {
		return 0, fmt.Errorf("%w: invalid guid %q", model.ErrInvalidArgument, s)
	}
	return guid, nil
}

// parsePair parses "name=value" with an optional ":op" suffix, for example
// "size=10:>=" or "tag=a,b:in". The operand suffix is recognized only when
// it is a known operand, so values may contain colons.
func parsePair(s string) (model.Pair, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return model.Pair{}, fmt.Errorf("%w: pair %q must look like name=value[:op]", model.ErrInvalidArgument, s)
	}
	p := model.Pair{Name: name, Value: rest}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		op := model.NormalizeOperand(rest[i+1:])
		candidate := model.Filter{Pairs: []model.Pair{{Name: name, Value: "x", Operand: op}}}
		if model.IsListOperand(op) || candidate.Validate() == nil {
			p.Value = rest[:i]
			p.Operand = op
		}
	}
	return p, nil
}

// buildFilter assembles a metadata filter from command flags. A JSON filter
// replaces the other flags entirely.
func buildFilter(filterJSON string, names, values, pairs []string, or, caseInsensitive bool) (model.Filter, error) {
	if filterJSON != "" {
		return model.DecodeFilter([]byte(filterJSON))
	}
	f := model.NewFilter()
	f.Names = names
	f.Values = values
	f.CaseInsensitive = caseInsensitive
	if or {
		f.PairOperator = model.CombineOr
	}
	for _, s := range pairs {
		p, err := parsePair(s)
		if err != nil {
			return model.Filter{}, err
		}
		f.Pairs = append(f.Pairs, p)
	}
	return f, f.Validate()
}
