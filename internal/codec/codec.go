// Package codec implements the line-level syntax of the WebIssues text
// protocol: splitting one response line into tokens, honoring quoting,
// backslash escapes and curly-brace groups, and escaping outbound strings.
//
// Protocol rows use a space delimiter with single-quote quoting. Attribute
// and view definition strings reuse the same scanner with other
// delimiter/quote pairs ("," with '"' for embedded lists, "=" with '"' for
// key=value fields).
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed reports a syntax error in a response line: an unterminated
// quote or brace group, or a dangling escape. Match with errors.Is.
var ErrMalformed = errors.New("malformed response")

const (
	// RowDelimiter and RowQuote are the delimiter/quote pair used by
	// protocol response rows and outbound commands.
	RowDelimiter = ' '
	RowQuote     = '\''
)

// ParseRow tokenizes one protocol response row.
func ParseRow(line string) ([]string, error) {
	return ParseLine(line, RowDelimiter, RowQuote)
}

// ParseLine splits line into tokens on delim, honoring the given quote
// character, backslash escapes (with \n decoding to a newline) and curly-brace
// groups. Brace groups keep their braces and inner text verbatim so the token
// can be re-parsed with ParseGroup. Consecutive delimiters do not produce
// empty tokens; a quoted empty string does.
func ParseLine(line string, delim, quote rune) ([]string, error) {
	return ParseFields(line, delim, string(quote))
}

// ParseFields is ParseLine with a set of interchangeable quote runes: a span
// opened by one quote rune is closed only by that same rune, and the other
// quote runes are literal inside it. Attribute definitions accept both single
// and double quoting at the top level.
func ParseFields(line string, delim rune, quotes string) ([]string, error) {
	var (
		tokens  []string
		token   strings.Builder
		quote   rune
		escaped bool
		group   int
		seen    bool
	)

	for _, r := range line {
		if escaped {
			if r == 'n' {
				token.WriteRune('\n')
			} else {
				token.WriteRune(r)
			}
			escaped = false
			seen = true
			continue
		}

		switch {
		case r == '\\':
			escaped = true

		case quote != 0 && r == quote && group == 0:
			quote = 0
			seen = true

		case quote == 0 && group == 0 && strings.ContainsRune(quotes, r):
			quote = r
			seen = true

		case r == '{' && quote == 0:
			group++
			token.WriteRune(r)
			seen = true

		case r == '}' && quote == 0:
			if group == 0 {
				return nil, fmt.Errorf("%w: unexpected '}'", ErrMalformed)
			}
			group--
			token.WriteRune(r)
			seen = true

		case r == delim && quote == 0 && group == 0:
			if seen {
				tokens = append(tokens, token.String())
				token.Reset()
				seen = false
			}

		default:
			token.WriteRune(r)
			seen = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("%w: incomplete escape sequence", ErrMalformed)
	case quote != 0:
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformed)
	case group > 0:
		return nil, fmt.Errorf("%w: unterminated group", ErrMalformed)
	}

	if seen {
		tokens = append(tokens, token.String())
	}
	return tokens, nil
}

// ParseGroup parses a brace-delimited list token ("{...}") into its
// comma-separated, double-quoted elements.
func ParseGroup(token string) ([]string, error) {
	if len(token) < 2 || token[0] != '{' || token[len(token)-1] != '}' {
		return nil, fmt.Errorf("%w: not a group: %q", ErrMalformed, token)
	}
	return ParseLine(token[1:len(token)-1], ',', '"')
}

// Escape prepares text for embedding in an outbound command: backslash first
// (so already-inserted escapes are not doubled up), then the row quote, then
// newlines.
func Escape(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `'`, `\'`)
	text = strings.ReplaceAll(text, "\n", `\n`)
	return text
}

// Quote escapes text and wraps it in row quotes, ready to be appended to a
// command.
func Quote(text string) string {
	return string(RowQuote) + Escape(text) + string(RowQuote)
}
