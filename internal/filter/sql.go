package filter

import (
	"fmt"
	"strings"
)

// SQLFilter is a translated WHERE clause with its bound parameter values.
type SQLFilter struct {
	WhereClause string
	Args        []interface{}
}

// ToSQL converts a filter expression tree into a parameterized SQL WHERE
// clause. fields maps SCIM attribute names (case-insensitive) to column names;
// attributes missing from the map are rejected. argOffset is the index of the
// first placeholder (1 for a standalone query).
func ToSQL(expr *Expr, fields map[string]string, argOffset int) (*SQLFilter, error) {
	if expr == nil {
		return &SQLFilter{}, nil
	}

	b := &sqlBuilder{fields: fields, next: argOffset}
	where, err := b.build(expr)
	if err != nil {
		return nil, err
	}

	return &SQLFilter{WhereClause: where, Args: b.args}, nil
}

type sqlBuilder struct {
	fields map[string]string
	args   []interface{}
	next   int
}

func (b *sqlBuilder) build(expr *Expr) (string, error) {
	switch expr.Op {
	case OpAnd, OpOr:
		left, err := b.build(expr.Left)
		if err != nil {
			return "", err
		}
		right, err := b.build(expr.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, strings.ToUpper(string(expr.Op)), right), nil

	case OpNot:
		child, err := b.build(expr.Child)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", child), nil

	default:
		return b.comparison(expr)
	}
}

func (b *sqlBuilder) comparison(expr *Expr) (string, error) {
	column, ok := b.column(expr.Attr)
	if !ok {
		return "", fmt.Errorf("filter attribute not supported: %s", expr.Attr)
	}

	switch expr.Op {
	case OpEqual:
		// active is a boolean column, so the value must bind as a bool
		if strings.EqualFold(expr.Attr, "active") {
			return fmt.Sprintf("%s = %s", column, b.bind(expr.Value == "true")), nil
		}
		return fmt.Sprintf("%s = %s", column, b.bind(expr.Value)), nil
	case OpNotEqual:
		if strings.EqualFold(expr.Attr, "active") {
			return fmt.Sprintf("%s != %s", column, b.bind(expr.Value == "true")), nil
		}
		return fmt.Sprintf("%s != %s", column, b.bind(expr.Value)), nil
	case OpContains:
		return fmt.Sprintf("%s ILIKE %s", column, b.bind("%"+escapeLike(expr.Value)+"%")), nil
	case OpStartsWith:
		return fmt.Sprintf("%s ILIKE %s", column, b.bind(escapeLike(expr.Value)+"%")), nil
	case OpEndsWith:
		return fmt.Sprintf("%s ILIKE %s", column, b.bind("%"+escapeLike(expr.Value))), nil
	case OpPresent:
		return fmt.Sprintf("(%s IS NOT NULL AND %s::text != '')", column, column), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", column, b.bind(expr.Value)), nil
	case OpGreaterEq:
		return fmt.Sprintf("%s >= %s", column, b.bind(expr.Value)), nil
	case OpLessThan:
		return fmt.Sprintf("%s < %s", column, b.bind(expr.Value)), nil
	case OpLessEq:
		return fmt.Sprintf("%s <= %s", column, b.bind(expr.Value)), nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", expr.Op)
	}
}

// column resolves an attribute name against the allow-list. Lookup is
// case-insensitive because SCIM attribute names are.
func (b *sqlBuilder) column(attr string) (string, bool) {
	for name, col := range b.fields {
		if strings.EqualFold(name, attr) {
			return col, true
		}
	}
	return "", false
}

func (b *sqlBuilder) bind(v interface{}) string {
	b.args = append(b.args, v)
	idx := b.next
	b.next++
	return fmt.Sprintf("$%d", idx)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// UserFields is the allow-list of filterable user attributes and their
// column names.
func UserFields() map[string]string {
	return map[string]string{
		"id":              "id",
		"userName":        "username",
		"emails":          "email",
		"emails.value":    "email",
		"name.givenName":  "given_name",
		"name.familyName": "family_name",
		"active":          "active",
	}
}

// GroupFields is the allow-list of filterable group attributes.
func GroupFields() map[string]string {
	return map[string]string{
		"id":          "id",
		"displayName": "name",
	}
}
