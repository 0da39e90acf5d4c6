package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/statekeep/internal/ir"
)

// ParseFilter builds a predicate from "field=value" terms. No terms yields
// nil; one term an Equals; several an And of them, in order.
//
// Values of version and context fields that parse as integers become
// IRInt, and true/false become IRBool for context fields. Everything else,
// and any double-quoted value, is a string:
//
//	state=active           Equals{state, "active"}
//	context.count=3        Equals{context.count, 3}
//	context.code="1234"    Equals{context.code, "1234"}
func ParseFilter(terms ...string) (Predicate, error) {
	preds := make([]Predicate, 0, len(terms))
	for _, term := range terms {
		eq, err := parseTerm(term)
		if err != nil {
			return nil, err
		}
		preds = append(preds, eq)
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return And{Predicates: preds}, nil
	}
}

func parseTerm(term string) (Equals, error) {
	field, raw, found := strings.Cut(term, "=")
	field = strings.TrimSpace(field)
	if !found || field == "" {
		return Equals{}, fmt.Errorf("invalid filter %q: want field=value", term)
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return Equals{}, fmt.Errorf("invalid filter %q: %w", term, err)
		}
		return Equals{Field: field, Value: ir.IRString(s)}, nil
	}

	_, isContext := ContextPath(field)
	if field == FieldVersion || isContext {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Equals{Field: field, Value: ir.IRInt(n)}, nil
		}
	}
	if isContext && (raw == "true" || raw == "false") {
		return Equals{Field: field, Value: ir.IRBool(raw == "true")}, nil
	}
	return Equals{Field: field, Value: ir.IRString(raw)}, nil
}
