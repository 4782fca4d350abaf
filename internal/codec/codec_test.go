package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain tokens",
			line: "I 42 100",
			want: []string{"I", "42", "100"},
		},
		{
			name: "quoted token with spaces",
			line: "P 1 'My Project'",
			want: []string{"P", "1", "My Project"},
		},
		{
			name: "escaped quote inside quotes",
			line: `U 3 'O\'Brien'`,
			want: []string{"U", "3", "O'Brien"},
		},
		{
			name: "escaped newline decodes",
			line: `C 7 'line one\nline two'`,
			want: []string{"C", "7", "line one\nline two"},
		},
		{
			name: "escaped backslash",
			line: `V 1 'C:\\temp'`,
			want: []string{"V", "1", `C:\temp`},
		},
		{
			name: "quoted empty token",
			line: "A 5 ''",
			want: []string{"A", "5", ""},
		},
		{
			name: "consecutive spaces collapse",
			line: "T  1   'Bugs'",
			want: []string{"T", "1", "Bugs"},
		},
		{
			name: "no bogus trailing token",
			line: "T 1 ",
			want: []string{"T", "1"},
		},
		{
			name: "brace group kept verbatim",
			line: `A 2 1 'Severity' 'ENUM items={"low","high"} required=1'`,
			want: []string{"A", "2", "1", "Severity", `ENUM items={"low","high"} required=1`},
		},
		{
			name: "empty line",
			line: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRow(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRow_Malformed(t *testing.T) {
	for _, line := range []string{
		"'unterminated",
		`a\`,
		"{unterminated",
		"a } b",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseRow(line)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseLine_AlternateDelimiters(t *testing.T) {
	got, err := ParseLine(`"low","mid,high","x"`, ',', '"')
	require.NoError(t, err)
	assert.Equal(t, []string{"low", "mid,high", "x"}, got)

	got, err = ParseLine(`max-length="100"`, '=', '"')
	require.NoError(t, err)
	assert.Equal(t, []string{"max-length", "100"}, got)
}

func TestParseFields_QuoteSet(t *testing.T) {
	// Either quote opens a span; only the same rune closes it, the other is
	// literal inside.
	got, err := ParseFields(`TEXT default="not assigned"`, ' ', `'"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"TEXT", "default=not assigned"}, got)

	got, err = ParseFields(`NUMERIC default='1' max-value="10"`, ' ', `'"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"NUMERIC", "default=1", "max-value=10"}, got)

	got, err = ParseFields(`a "it's fine" b`, ' ', `'"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "it's fine", "b"}, got)

	_, err = ParseFields(`x "open`, ' ', `'"`)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseGroup(t *testing.T) {
	got, err := ParseGroup(`{"one","two, three"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two, three"}, got)

	got, err = ParseGroup(`{}`)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseGroup(`no braces`)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEscapeRoundTrip(t *testing.T) {
	tokens := []string{"SET", "VALUE", "42", "7", "text with spaces", "quote ' and \\ back", "multi\nline"}

	var parts []string
	for _, tok := range tokens {
		parts = append(parts, Quote(tok))
	}
	line := strings.Join(parts, " ")

	got, err := ParseRow(line)
	require.NoError(t, err)
	assert.Equal(t, tokens, got)
}

func TestEscape_OrderMatters(t *testing.T) {
	// Backslash must be escaped first; otherwise the quote escape would be
	// double-escaped.
	assert.Equal(t, `\\\'`, Escape(`\'`))
	assert.Equal(t, `\\n`, Escape(`\n`))

	// Double escape double-escapes.
	assert.Equal(t, `\\\\`, Escape(Escape(`\`)))
}
