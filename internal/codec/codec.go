// Package codec maps between logical token streams and their byte
// representation in the target code page (CP932). ASCII characters
// encode to one byte, fullwidth characters to two, and a small directive
// grammar is carried through literally: !cXX color codes, !pXXXX!eYY
// portrait/expression pairs, !0 and !1 placeholder slots, and / line
// breaks. decode(encode(tokens)) == tokens holds for canonical streams
// (no empty or adjacent text runs).
package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoded byte lengths of the directive tokens.
const (
	colorByteLen       = 4  // !cXX
	portraitByteLen    = 10 // !pXXXX!eYY
	placeholderByteLen = 2  // !0 or !1
	lineBreakByteLen   = 1  // /
)

// RuneWidth returns the encoded byte width of a single character: 1 for
// ASCII and halfwidth katakana, 2 for fullwidth. Characters outside the
// code page fail with UnencodableCharError.
func RuneWidth(r rune) (int, error) {
	b, err := runeBytes(r)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func runeBytes(r rune) ([]byte, error) {
	b, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(string(r)))
	if err != nil {
		return nil, &UnencodableCharError{Char: r}
	}
	return b, nil
}

// isLeadByte reports whether b starts a two-byte character.
func isLeadByte(b byte) bool {
	return (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC)
}

// Encode serializes a token stream to container bytes.
func Encode(tokens []Token) ([]byte, error) {
	var out []byte
	for i, t := range tokens {
		b, err := encodeToken(t)
		if err != nil {
			return nil, fmt.Errorf("token %d %s: %w", i, t, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodedLen returns the total encoded byte length of a token stream.
func EncodedLen(tokens []Token) (int, error) {
	total := 0
	for i, t := range tokens {
		n, err := TokenLen(t)
		if err != nil {
			return 0, fmt.Errorf("token %d %s: %w", i, t, err)
		}
		total += n
	}
	return total, nil
}

// TokenLen returns the encoded byte length of a single token.
func TokenLen(t Token) (int, error) {
	switch t.Kind {
	case KindText:
		total := 0
		for _, r := range t.Text {
			w, err := RuneWidth(r)
			if err != nil {
				return 0, err
			}
			total += w
		}
		return total, nil
	case KindColor:
		return colorByteLen, nil
	case KindPortrait:
		return portraitByteLen, nil
	case KindPlaceholder:
		return placeholderByteLen, nil
	case KindLineBreak:
		return lineBreakByteLen, nil
	default:
		return 0, fmt.Errorf("unknown token kind %d", t.Kind)
	}
}

func encodeToken(t Token) ([]byte, error) {
	switch t.Kind {
	case KindText:
		return encodeTextRun(t.Text)
	case KindColor:
		if t.Code < 0 || t.Code > 99 {
			return nil, fmt.Errorf("color code %d out of range", t.Code)
		}
		return []byte(fmt.Sprintf("!c%02d", t.Code)), nil
	case KindPortrait:
		if t.Portrait < 0 || t.Portrait > 9999 {
			return nil, fmt.Errorf("portrait id %d out of range", t.Portrait)
		}
		if t.Expression < 0 || t.Expression > 99 {
			return nil, fmt.Errorf("expression %d out of range", t.Expression)
		}
		return []byte(fmt.Sprintf("!p%04d!e%02d", t.Portrait, t.Expression)), nil
	case KindPlaceholder:
		if t.Slot != 0 && t.Slot != 1 {
			return nil, fmt.Errorf("placeholder slot %d out of range", t.Slot)
		}
		return []byte(fmt.Sprintf("!%d", t.Slot)), nil
	case KindLineBreak:
		return []byte{'/'}, nil
	default:
		return nil, fmt.Errorf("unknown token kind %d", t.Kind)
	}
}

func encodeTextRun(text string) ([]byte, error) {
	var out []byte
	runes := []rune(text)
	for i, r := range runes {
		if r == '/' {
			return nil, &UnencodableCharError{Char: r, Reason: "line break lexeme; use fullwidth ／"}
		}
		if r == '!' && i+1 < len(runes) && isASCIIAlnum(runes[i+1]) {
			return nil, &UnencodableCharError{Char: r, Reason: "would be misread as a directive; use fullwidth ！"}
		}
		b, err := runeBytes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Decode parses a raw byte run into a canonical token stream. A '!'
// that begins a known directive must complete it; a '!' before an
// ASCII letter or digit that does not form a directive is an error,
// matching what encodeTextRun accepts, so every decoded stream
// re-encodes. A '!' before anything else is literal text. Truncated
// two-byte characters and incomplete directives are errors.
func Decode(data []byte) ([]Token, error) {
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
	for pos < len(data) {
		b := data[pos]

		switch {
		case b == '!':
			tok, n, ok, err := lexDirective(data[pos:])
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", pos, err)
			}
			if ok {
				flush()
				tokens = append(tokens, tok)
				pos += n
				continue
			}
			// Literal exclamation mark.
			text.WriteByte('!')
			pos++

		case b == '/':
			flush()
			tokens = append(tokens, LineBreak())
			pos++

		case isLeadByte(b):
			if pos+1 >= len(data) {
				return nil, fmt.Errorf("offset %d: truncated two-byte character (lead 0x%02X)", pos, b)
			}
			r, err := decodePair(data[pos], data[pos+1])
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", pos, err)
			}
			text.WriteRune(r)
			pos += 2

		case b >= 0x20 && b <= 0x7E:
			text.WriteByte(b)
			pos++

		case b >= 0xA1 && b <= 0xDF:
			// Halfwidth katakana, single byte.
			r, err := decodeSingle(b)
			if err != nil {
				return nil, fmt.Errorf("offset %d: %w", pos, err)
			}
			text.WriteRune(r)
			pos++

		default:
			return nil, fmt.Errorf("offset %d: unexpected byte 0x%02X", pos, b)
		}
	}

	flush()
	return tokens, nil
}

// lexDirective inspects bytes starting with '!' and returns the
// directive token and its byte length. ok is false when the bytes do
// not begin a directive at all (literal '!'); err is set when a
// directive starts but cannot complete, and when '!' precedes an
// alphanumeric that names no directive, since such a run could never
// be emitted back.
func lexDirective(b []byte) (Token, int, bool, error) {
	if len(b) < 2 {
		return Token{}, 0, false, nil
	}
	switch b[1] {
	case 'c':
		if len(b) < colorByteLen || !isDigit(b[2]) || !isDigit(b[3]) {
			return Token{}, 0, false, fmt.Errorf("incomplete color directive %q", truncate(b, colorByteLen))
		}
		return Color(int(b[2]-'0')*10 + int(b[3]-'0')), colorByteLen, true, nil
	case 'p':
		if len(b) < portraitByteLen ||
			!isDigit(b[2]) || !isDigit(b[3]) || !isDigit(b[4]) || !isDigit(b[5]) ||
			b[6] != '!' || b[7] != 'e' || !isDigit(b[8]) || !isDigit(b[9]) {
			return Token{}, 0, false, fmt.Errorf("incomplete portrait directive %q", truncate(b, portraitByteLen))
		}
		id := int(b[2]-'0')*1000 + int(b[3]-'0')*100 + int(b[4]-'0')*10 + int(b[5]-'0')
		expr := int(b[8]-'0')*10 + int(b[9]-'0')
		return Portrait(id, expr), portraitByteLen, true, nil
	case '0', '1':
		return Placeholder(int(b[1] - '0')), placeholderByteLen, true, nil
	default:
		if isASCIIAlnum(rune(b[1])) {
			return Token{}, 0, false, fmt.Errorf("unknown directive %q", truncate(b, 2))
		}
		return Token{}, 0, false, nil
	}
}

func decodePair(lead, trail byte) (rune, error) {
	s, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), []byte{lead, trail})
	if err != nil {
		return 0, fmt.Errorf("invalid byte pair 0x%02X 0x%02X: %w", lead, trail, err)
	}
	r, _ := utf8.DecodeRune(s)
	if r == utf8.RuneError {
		return 0, fmt.Errorf("invalid byte pair 0x%02X 0x%02X", lead, trail)
	}
	return r, nil
}

func decodeSingle(b byte) (rune, error) {
	s, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), []byte{b})
	if err != nil {
		return 0, fmt.Errorf("invalid byte 0x%02X: %w", b, err)
	}
	r, _ := utf8.DecodeRune(s)
	if r == utf8.RuneError {
		return 0, fmt.Errorf("invalid byte 0x%02X", b)
	}
	return r, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
