package codec

import "fmt"

// TokenKind identifies the variant of a Token.
type TokenKind int

const (
	KindText TokenKind = iota
	KindColor
	KindPortrait
	KindPlaceholder
	KindLineBreak
)

func (k TokenKind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindColor:
		return "Color"
	case KindPortrait:
		return "Portrait"
	case KindPlaceholder:
		return "Placeholder"
	case KindLineBreak:
		return "LineBreak"
	default:
		return "Unknown"
	}
}

// Token is one element of a decoded string: a run of text or a single
// control directive. Color and line-break directives are
// alignment-sensitive: the renderer only interprets them correctly when
// their first byte sits at an even offset.
type Token struct {
	Kind TokenKind

	// Text holds the UTF-8 text of a KindText run.
	Text string

	// Code is the color number for KindColor (0-99).
	Code int

	// Portrait and Expression identify the speaker face for KindPortrait.
	Portrait   int
	Expression int

	// Slot is the substitution slot for KindPlaceholder (0 or 1).
	Slot int
}

func Text(s string) Token            { return Token{Kind: KindText, Text: s} }
func Color(code int) Token           { return Token{Kind: KindColor, Code: code} }
func Portrait(id, expr int) Token    { return Token{Kind: KindPortrait, Portrait: id, Expression: expr} }
func Placeholder(slot int) Token     { return Token{Kind: KindPlaceholder, Slot: slot} }
func LineBreak() Token               { return Token{Kind: KindLineBreak} }

// AlignmentSensitive reports whether the token's first byte must land on
// an even offset.
func (t Token) AlignmentSensitive() bool {
	return t.Kind == KindColor || t.Kind == KindLineBreak
}

func (t Token) String() string {
	switch t.Kind {
	case KindText:
		return fmt.Sprintf("Text(%q)", t.Text)
	case KindColor:
		return fmt.Sprintf("Color(%02d)", t.Code)
	case KindPortrait:
		return fmt.Sprintf("Portrait(%04d,%02d)", t.Portrait, t.Expression)
	case KindPlaceholder:
		return fmt.Sprintf("Placeholder(%d)", t.Slot)
	case KindLineBreak:
		return "LineBreak"
	default:
		return "Unknown"
	}
}

// UnencodableCharError reports a character that has no representation in
// the target code page, or a reserved lexeme that would be misparsed by
// the consuming renderer.
type UnencodableCharError struct {
	Char   rune
	Reason string
}

func (e *UnencodableCharError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unencodable character %q: %s", e.Char, e.Reason)
	}
	return fmt.Sprintf("unencodable character %q: not in output code page", e.Char)
}
