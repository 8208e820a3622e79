package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseText lexes the human-readable form used in translation CSVs,
// where directives appear as their ASCII literals inside UTF-8 text.
// The grammar matches Decode; only the character encoding differs.
func ParseText(s string) ([]Token, error) {
	var (
		tokens []Token
		text   strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Text(text.String()))
			text.Reset()
		}
	}

	pos := 0
	for pos < len(s) {
		b := s[pos]

		switch b {
		case '!':
			tok, n, ok, err := lexDirective([]byte(s[pos:]))
			if err != nil {
				return nil, fmt.Errorf("column %d: %w", pos, err)
			}
			if ok {
				flush()
				tokens = append(tokens, tok)
				pos += n
				continue
			}
			text.WriteByte('!')
			pos++

		case '/':
			flush()
			tokens = append(tokens, LineBreak())
			pos++

		default:
			r, size := utf8.DecodeRuneInString(s[pos:])
			if r == utf8.RuneError && size == 1 {
				return nil, fmt.Errorf("column %d: invalid UTF-8", pos)
			}
			text.WriteRune(r)
			pos += size
		}
	}

	flush()
	return tokens, nil
}

// FormatTokens renders a token stream back to the human-readable form.
func FormatTokens(tokens []Token) (string, error) {
	var sb strings.Builder
	for i, t := range tokens {
		if t.Kind == KindText {
			sb.WriteString(t.Text)
			continue
		}
		b, err := encodeToken(t)
		if err != nil {
			return "", fmt.Errorf("token %d %s: %w", i, t, err)
		}
		sb.Write(b)
	}
	return sb.String(), nil
}
