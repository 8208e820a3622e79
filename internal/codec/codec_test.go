package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuneWidth(t *testing.T) {
	tests := []struct {
		name string
		r    rune
		want int
	}{
		{"ascii letter", 'A', 1},
		{"ascii space", ' ', 1},
		{"fullwidth space", '　', 2},
		{"fullwidth plus", '＋', 2},
		{"hiragana", 'あ', 2},
		{"halfwidth katakana", 'ｱ', 1},
		{"fullwidth exclamation", '！', 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RuneWidth(tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuneWidth_Unencodable(t *testing.T) {
	_, err := RuneWidth('😀')
	require.Error(t, err)
	var ue *UnencodableCharError
	assert.ErrorAs(t, err, &ue)
}

func TestDecode_Directives(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []Token
	}{
		{"color", []byte("!c07"), []Token{Color(7)}},
		{"portrait pair", []byte("!p0100!e00"), []Token{Portrait(100, 0)}},
		{"placeholder zero", []byte("!0"), []Token{Placeholder(0)}},
		{"placeholder one", []byte("!1"), []Token{Placeholder(1)}},
		{"line break", []byte("a/b"), []Token{Text("a"), LineBreak(), Text("b")}},
		{"trailing literal bang", []byte("battle!"), []Token{Text("battle!")}},
		{"bang before space", []byte("go! now"), []Token{Text("go! now")}},
		{"text then color", []byte("Wait!c07"), []Token{Text("Wait"), Color(7)}},
		{
			"mixed",
			[]byte("!p0100!e00Hello!c02"),
			[]Token{Portrait(100, 0), Text("Hello"), Color(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_TwoByteCharacters(t *testing.T) {
	// 0x81 0x40 is the fullwidth space; its trail byte 0x40 is '@' in
	// ASCII and must not be treated as a standalone byte.
	got, err := Decode([]byte{0x81, 0x40})
	require.NoError(t, err)
	assert.Equal(t, []Token{Text("　")}, got)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"incomplete color", []byte("!c0")},
		{"color non-digit", []byte("!cxx")},
		{"portrait without expression", []byte("!p0100")},
		{"portrait truncated expression", []byte("!p0100!e0")},
		{"bang before letter", []byte("!a fine run")},
		{"bang before digit", []byte("!2nd try")},
		{"truncated lead byte", []byte{0x41, 0x81}},
		{"control byte", []byte{0x41, 0x05}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestRoundTrip_BytesToTokensToBytes(t *testing.T) {
	inputs := [][]byte{
		[]byte("!p0100!e00Hello world!c07/Next line"),
		[]byte("!c02Pick one: !0 or !1"),
		{0x81, 0x40, 0x81, 0x7B, 0x81, 0x40}, // 　＋
		[]byte("plain ascii only"),
	}

	for _, in := range inputs {
		tokens, err := Decode(in)
		require.NoError(t, err)
		out, err := Encode(tokens)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestRoundTrip_LiteralBang(t *testing.T) {
	// A literal '!' round-trips only when nothing alphanumeric follows
	// it; anything else must fail at Decode rather than produce a text
	// run Encode would reject later.
	tokens, err := Decode([]byte("battle! on"))
	require.NoError(t, err)
	out, err := Encode(tokens)
	require.NoError(t, err)
	assert.Equal(t, []byte("battle! on"), out)

	_, err = Decode([]byte("!a fine run"))
	assert.Error(t, err)
	_, err = Decode([]byte("win!go"))
	assert.Error(t, err)
}

func TestRoundTrip_TokensToBytesToTokens(t *testing.T) {
	streams := [][]Token{
		{Portrait(100, 0), Text("Hi there"), LineBreak(), Text("Bye")},
		{Color(2), Text("1 Human "), Color(7), Text("　＋　"), Color(4)},
		{Placeholder(0), Text(" vs "), Placeholder(1)},
	}

	for _, ts := range streams {
		b, err := Encode(ts)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, ts, got)
	}
}

func TestEncode_ReservedCharacters(t *testing.T) {
	tests := []struct {
		name string
		tok  Token
	}{
		{"slash in text", Text("a/b")},
		{"bang before alnum", Text("no!5way")},
		{"unencodable rune", Text("ok😀")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode([]Token{tt.tok})
			require.Error(t, err)
			var ue *UnencodableCharError
			assert.ErrorAs(t, err, &ue)
		})
	}
}

func TestEncode_DirectiveRanges(t *testing.T) {
	_, err := Encode([]Token{Color(100)})
	assert.Error(t, err)
	_, err = Encode([]Token{Placeholder(2)})
	assert.Error(t, err)
	_, err = Encode([]Token{Portrait(10000, 0)})
	assert.Error(t, err)
}

func TestEncodedLen(t *testing.T) {
	tests := []struct {
		name   string
		tokens []Token
		want   int
	}{
		{"color", []Token{Color(7)}, 4},
		{"portrait", []Token{Portrait(100, 0)}, 10},
		{"placeholder", []Token{Placeholder(1)}, 2},
		{"break", []Token{LineBreak()}, 1},
		{"ascii text", []Token{Text("1 Human ")}, 8},
		{"fullwidth text", []Token{Text("　＋　")}, 6},
		{"mixed", []Token{Color(2), Text("ab"), LineBreak()}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodedLen(tt.tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseText(t *testing.T) {
	tokens, err := ParseText("!c02How will you play?/!c071 Human 　＋　!c041 CPU ")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		Color(2),
		Text("How will you play?"),
		LineBreak(),
		Color(7),
		Text("1 Human 　＋　"),
		Color(4),
		Text("1 CPU "),
	}, tokens)
}

func TestParseText_FormatTokens_Inverse(t *testing.T) {
	inputs := []string{
		"!p0100!e00Welcome back!c07/See you　later",
		"battle! ends here",
		"!0 challenges !1",
	}

	for _, in := range inputs {
		tokens, err := ParseText(in)
		require.NoError(t, err)
		out, err := FormatTokens(tokens)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestParseText_MalformedDirective(t *testing.T) {
	_, err := ParseText("oops !c7 end")
	assert.Error(t, err)
	_, err = ParseText("ready !a go")
	assert.Error(t, err)
}
