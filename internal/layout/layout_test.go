package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

func TestOffsets_WorkedExample(t *testing.T) {
	// !c02 + "1 Human " + !c07 + "　＋　" + !c04 + "1 CPU " + !c07 +
	// "battle!" puts the four color directives at 0, 12, 22, 32.
	tokens, err := codec.ParseText("!c021 Human !c07　＋　!c041 CPU !c07battle!")
	require.NoError(t, err)

	offsets, err := Offsets(tokens)
	require.NoError(t, err)

	var colorOffsets []int
	for i, tok := range tokens {
		if tok.Kind == codec.KindColor {
			colorOffsets = append(colorOffsets, offsets[i])
		}
	}
	assert.Equal(t, []int{0, 12, 22, 32}, colorOffsets)
	for _, off := range colorOffsets {
		assert.Zero(t, off%2)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		budget         int
		wantMisaligned []int
		wantExcess     int
	}{
		{
			name:   "compliant",
			text:   "!c02ab!c07",
			budget: 20,
		},
		{
			name:           "odd color offset",
			text:           "!c02abc!c07",
			budget:         20,
			wantMisaligned: []int{2},
		},
		{
			name:       "over budget",
			text:       "0123456789abcd",
			budget:     10,
			wantExcess: 4,
		},
		{
			name:           "both at once",
			text:           "abc!c07",
			budget:         5,
			wantMisaligned: []int{1},
			wantExcess:     2,
		},
		{
			name:           "odd line break",
			text:           "abc/def",
			budget:         20,
			wantMisaligned: []int{1},
		},
		{
			name:   "portrait not alignment sensitive",
			text:   "abc!p0100!e00",
			budget: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := codec.ParseText(tt.text)
			require.NoError(t, err)

			out, err := Validate(tokens, tt.budget)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMisaligned, out.Misaligned)
			assert.Equal(t, tt.wantExcess, out.Excess)
			assert.Equal(t, tt.wantExcess == 0 && len(tt.wantMisaligned) == 0, out.Compliant())
		})
	}
}

func TestFixAlignment(t *testing.T) {
	tokens, err := codec.ParseText("abc!c07def/x")
	require.NoError(t, err)

	fixed, err := FixAlignment(tokens)
	require.NoError(t, err)

	out, err := Validate(fixed, 0)
	require.NoError(t, err)
	assert.Empty(t, out.Misaligned)

	// Filler lands inside the preceding text run, keeping the stream
	// canonical for the codec round-trip law.
	text, err := codec.FormatTokens(fixed)
	require.NoError(t, err)
	assert.Equal(t, "abc !c07def /x", text)
}

func TestFixAlignment_LeadingDirectiveUntouched(t *testing.T) {
	tokens, err := codec.ParseText("!c02hello")
	require.NoError(t, err)

	fixed, err := FixAlignment(tokens)
	require.NoError(t, err)
	assert.Equal(t, tokens, fixed)
}

func TestFixAlignment_Idempotent(t *testing.T) {
	inputs := []string{
		"abc!c07def/x",
		"!c021 Human!c07",
		"a/b/c",
		"plain text only",
	}

	for _, in := range inputs {
		tokens, err := codec.ParseText(in)
		require.NoError(t, err)

		once, err := FixAlignment(tokens)
		require.NoError(t, err)
		twice, err := FixAlignment(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestFixAlignment_InsertsEvenWhenOverBudget(t *testing.T) {
	tokens, err := codec.ParseText("abc!c07")
	require.NoError(t, err)

	fixed, err := FixAlignment(tokens)
	require.NoError(t, err)

	out, err := Validate(fixed, 7)
	require.NoError(t, err)
	assert.Empty(t, out.Misaligned)
	assert.Equal(t, 1, out.Excess)
}
