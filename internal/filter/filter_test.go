package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"equals", `userName eq "alice"`, `userName eq "alice"`},
		{"unquoted bool", `active eq true`, `active eq "true"`},
		{"contains", `emails co "example.com"`, `emails co "example.com"`},
		{"starts with", `userName sw "al"`, `userName sw "al"`},
		{"present", `name.givenName pr`, `name.givenName pr`},
		{"uppercase operator", `userName Eq "alice"`, `userName eq "alice"`},
		{"and", `userName eq "alice" and active eq true`, `(userName eq "alice" and active eq "true")`},
		{"or", `userName eq "alice" or userName eq "bob"`, `(userName eq "alice" or userName eq "bob")`},
		{"not", `not (active eq true)`, `not (active eq "true")`},
		{"precedence and over or", `a eq "1" or b eq "2" and c eq "3"`, `(a eq "1" or (b eq "2" and c eq "3"))`},
		{"parentheses", `(a eq "1" or b eq "2") and c eq "3"`, `((a eq "1" or b eq "2") and c eq "3")`},
		{"escaped quote", `userName eq "al\"ice"`, `userName eq "al\"ice"`},
		{"sub attribute", `name.familyName eq "Smith"`, `name.familyName eq "Smith"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.input)
			require.NoError(t, err)
			require.NotNil(t, expr)
			assert.Equal(t, tt.want, expr.String())
		})
	}
}

func TestParseEmpty(t *testing.T) {
	expr, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad operator", `userName zz "alice"`},
		{"missing value", `userName eq`},
		{"unterminated string", `userName eq "alice`},
		{"trailing garbage", `userName eq "alice" bogus`},
		{"unclosed paren", `(userName eq "alice"`},
		{"not without paren", `not userName eq "alice"`},
		{"empty attribute", `eq "alice"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestToSQL(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantWhere string
		wantArgs  []interface{}
	}{
		{
			"equals",
			`userName eq "alice"`,
			`username = $1`,
			[]interface{}{"alice"},
		},
		{
			"active coerced to bool",
			`active eq true`,
			`active = $1`,
			[]interface{}{true},
		},
		{
			"contains escapes like wildcards",
			`emails co "50%_off"`,
			`email ILIKE $1`,
			[]interface{}{`%50\%\_off%`},
		},
		{
			"starts with",
			`userName sw "al"`,
			`username ILIKE $1`,
			[]interface{}{`al%`},
		},
		{
			"present",
			`name.givenName pr`,
			`(given_name IS NOT NULL AND given_name::text != '')`,
			nil,
		},
		{
			"and",
			`userName eq "alice" and active eq false`,
			`(username = $1 AND active = $2)`,
			[]interface{}{"alice", false},
		},
		{
			"not",
			`not (userName eq "alice")`,
			`(NOT username = $1)`,
			[]interface{}{"alice"},
		},
		{
			"case insensitive attribute",
			`USERNAME eq "alice"`,
			`username = $1`,
			[]interface{}{"alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.input)
			require.NoError(t, err)

			got, err := ToSQL(expr, UserFields(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWhere, got.WhereClause)
			assert.Equal(t, tt.wantArgs, got.Args)
		})
	}
}

func TestToSQLNilExpr(t *testing.T) {
	got, err := ToSQL(nil, UserFields(), 1)
	require.NoError(t, err)
	assert.Empty(t, got.WhereClause)
	assert.Empty(t, got.Args)
}

func TestToSQLArgOffset(t *testing.T) {
	expr, err := Parse(`userName eq "alice" and emails co "corp"`)
	require.NoError(t, err)

	got, err := ToSQL(expr, UserFields(), 3)
	require.NoError(t, err)
	assert.Equal(t, `(username = $3 AND email ILIKE $4)`, got.WhereClause)
}

func TestToSQLRejectsUnknownAttribute(t *testing.T) {
	for _, input := range []string{
		`password eq "secret"`,
		`id eq "x" and password eq "secret"`,
		`meta.created gt "2024-01-01"`,
	} {
		expr, err := Parse(input)
		require.NoError(t, err)

		_, err = ToSQL(expr, UserFields(), 1)
		assert.Error(t, err, input)
	}
}

// A value that reads like SQL must end up as a bound parameter, never in the
// clause text.
func TestToSQLValueNeverInClause(t *testing.T) {
	expr, err := Parse(`userName eq "alice'; DROP TABLE users;--"`)
	require.NoError(t, err)

	got, err := ToSQL(expr, UserFields(), 1)
	require.NoError(t, err)
	assert.Equal(t, `username = $1`, got.WhereClause)
	assert.Equal(t, []interface{}{"alice'; DROP TABLE users;--"}, got.Args)
}

func TestMatch(t *testing.T) {
	attrs := map[string]string{
		"userName": "alice",
		"emails":   "alice@example.com",
		"active":   "true",
	}

	tests := []struct {
		input string
		want  bool
	}{
		{`userName eq "alice"`, true},
		{`userName eq "ALICE"`, true},
		{`userName ne "bob"`, true},
		{`emails co "example"`, true},
		{`emails sw "alice@"`, true},
		{`emails ew ".com"`, true},
		{`userName pr`, true},
		{`active eq true`, true},
		{`userName eq "bob"`, false},
		{`not (userName eq "alice")`, false},
		{`userName eq "alice" and active eq false`, false},
		{`userName eq "bob" or active eq true`, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := Parse(tt.input)
			require.NoError(t, err)

			got, err := Match(expr, attrs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchUnknownAttribute(t *testing.T) {
	expr, err := Parse(`password eq "x"`)
	require.NoError(t, err)

	_, err = Match(expr, map[string]string{"userName": "alice"})
	assert.Error(t, err)
}
