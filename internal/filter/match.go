package filter

import (
	"fmt"
	"strings"
)

// Match evaluates a filter expression tree against a flat attribute map, the
// in-memory counterpart to ToSQL. Attribute names are matched
// case-insensitively and must appear in the map, which doubles as the
// allow-list. A nil expression matches everything.
func Match(expr *Expr, attrs map[string]string) (bool, error) {
	if expr == nil {
		return true, nil
	}

	switch expr.Op {
	case OpAnd:
		left, err := Match(expr.Left, attrs)
		if err != nil || !left {
			return false, err
		}
		return Match(expr.Right, attrs)

	case OpOr:
		left, err := Match(expr.Left, attrs)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return Match(expr.Right, attrs)

	case OpNot:
		ok, err := Match(expr.Child, attrs)
		return !ok, err
	}

	value, ok := lookup(attrs, expr.Attr)
	if !ok {
		return false, fmt.Errorf("filter attribute not supported: %s", expr.Attr)
	}

	switch expr.Op {
	case OpEqual:
		return strings.EqualFold(value, expr.Value), nil
	case OpNotEqual:
		return !strings.EqualFold(value, expr.Value), nil
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(expr.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(expr.Value)), nil
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(expr.Value)), nil
	case OpPresent:
		return value != "", nil
	case OpGreaterThan:
		return value > expr.Value, nil
	case OpGreaterEq:
		return value >= expr.Value, nil
	case OpLessThan:
		return value < expr.Value, nil
	case OpLessEq:
		return value <= expr.Value, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", expr.Op)
	}
}

func lookup(attrs map[string]string, attr string) (string, bool) {
	for name, v := range attrs {
		if strings.EqualFold(name, attr) {
			return v, true
		}
	}
	return "", false
}
