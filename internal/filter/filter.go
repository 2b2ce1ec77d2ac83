// Package filter parses SCIM 2.0 filter expressions (RFC 7644 3.4.2.2) into
// an expression tree and translates the tree into parameterized SQL. Attribute
// names are checked against a per-resource allow-list before any query is
// built; values are always bound parameters.
package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// Operator is a SCIM filter operator.
type Operator string

const (
	OpEqual       Operator = "eq"
	OpNotEqual    Operator = "ne"
	OpContains    Operator = "co"
	OpStartsWith  Operator = "sw"
	OpEndsWith    Operator = "ew"
	OpPresent     Operator = "pr"
	OpGreaterThan Operator = "gt"
	OpGreaterEq   Operator = "ge"
	OpLessThan    Operator = "lt"
	OpLessEq      Operator = "le"
	OpAnd         Operator = "and"
	OpOr          Operator = "or"
	OpNot         Operator = "not"
)

// Expr is a parsed filter expression. Comparison nodes carry Attr/Value;
// and/or nodes carry Left/Right; not nodes carry Child.
type Expr struct {
	Op    Operator
	Attr  string
	Value string
	Left  *Expr
	Right *Expr
	Child *Expr
}

// String renders the expression in SCIM filter syntax.
func (e *Expr) String() string {
	switch e.Op {
	case OpAnd, OpOr:
		return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Op, e.Right.String())
	case OpNot:
		return fmt.Sprintf("not (%s)", e.Child.String())
	case OpPresent:
		return fmt.Sprintf("%s pr", e.Attr)
	default:
		return fmt.Sprintf("%s %s %q", e.Attr, e.Op, e.Value)
	}
}

// Parse parses a SCIM filter expression string. An empty input yields a nil
// expression and no error.
func Parse(input string) (*Expr, error) {
	p := &parser{input: strings.TrimSpace(input)}
	if p.input == "" {
		return nil, nil
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("unexpected character at position %d: %c", p.pos, p.input[p.pos])
	}

	return expr, nil
}

// parser is a recursive descent parser over the filter grammar.
type parser struct {
	input string
	pos   int
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		p.skipSpace()
		if !p.consumeKeyword("or") {
			break
		}

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Op: OpOr, Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for {
		p.skipSpace()
		if !p.consumeKeyword("and") {
			break
		}

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Expr{Op: OpAnd, Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (*Expr, error) {
	p.skipSpace()
	if p.consumeKeyword("not") {
		p.skipSpace()
		if !p.consumeRune('(') {
			return nil, fmt.Errorf("expected '(' after 'not'")
		}

		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if !p.consumeRune(')') {
			return nil, fmt.Errorf("expected ')' after not expression")
		}

		return &Expr{Op: OpNot, Child: expr}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Expr, error) {
	p.skipSpace()

	if p.consumeRune('(') {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if !p.consumeRune(')') {
			return nil, fmt.Errorf("expected ')' to close parenthesized expression")
		}

		return expr, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (*Expr, error) {
	attr, err := p.parseAttrName()
	if err != nil {
		return nil, err
	}

	p.skipSpace()

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	// pr takes no value
	if op == OpPresent {
		return &Expr{Op: op, Attr: attr}, nil
	}

	p.skipSpace()
	value, err := p.parseValue()
	if err != nil {
		return nil, fmt.Errorf("failed to parse value: %w", err)
	}

	return &Expr{Op: op, Attr: attr, Value: value}, nil
}

func (p *parser) parseAttrName() (string, error) {
	p.skipSpace()

	start := p.pos
	for p.pos < len(p.input) {
		c := rune(p.input[p.pos])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-' || c == '.' {
			p.pos++
		} else {
			break
		}
	}

	if p.pos == start {
		return "", fmt.Errorf("expected attribute name at position %d", p.pos)
	}

	return p.input[start:p.pos], nil
}

func (p *parser) parseOperator() (Operator, error) {
	if p.pos+2 > len(p.input) {
		return "", fmt.Errorf("unexpected end of input while parsing operator")
	}

	switch Operator(strings.ToLower(p.input[p.pos : p.pos+2])) {
	case OpEqual, OpNotEqual, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpGreaterEq, OpLessThan, OpLessEq, OpPresent:
		op := Operator(strings.ToLower(p.input[p.pos : p.pos+2]))
		p.pos += 2
		return op, nil
	}

	return "", fmt.Errorf("invalid operator at position %d", p.pos)
}

func (p *parser) parseValue() (string, error) {
	if p.pos >= len(p.input) {
		return "", fmt.Errorf("unexpected end of input while parsing value")
	}

	if p.input[p.pos] == '"' {
		return p.parseQuoted()
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if unicode.IsSpace(rune(c)) || c == ')' {
			break
		}
		p.pos++
	}

	if p.pos == start {
		return "", fmt.Errorf("expected value at position %d", p.pos)
	}

	return p.input[start:p.pos], nil
}

func (p *parser) parseQuoted() (string, error) {
	p.pos++ // opening quote

	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.input):
			sb.WriteByte(p.input[p.pos+1])
			p.pos += 2
		case c == '"':
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}

	return "", fmt.Errorf("unterminated quoted string")
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) consumeKeyword(keyword string) bool {
	end := p.pos + len(keyword)
	if end > len(p.input) {
		return false
	}
	if !strings.EqualFold(p.input[p.pos:end], keyword) {
		return false
	}
	// keyword must end at a word boundary
	if end < len(p.input) {
		c := rune(p.input[end])
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			return false
		}
	}
	p.pos = end
	return true
}

func (p *parser) consumeRune(expected byte) bool {
	if p.pos >= len(p.input) || p.input[p.pos] != expected {
		return false
	}
	p.pos++
	return true
}
