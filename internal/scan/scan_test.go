package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// こんにちは in the container encoding.
var hello = []byte{0x82, 0xB1, 0x82, 0xF1, 0x82, 0xC9, 0x82, 0xBF, 0x82, 0xCD}

func TestScan_FindsJapaneseRun(t *testing.T) {
	image := make([]byte, 8)
	image = append(image, hello...)
	image = append(image, make([]byte, 8)...)

	candidates := Scan(image, Options{})
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(8), candidates[0].Offset)
	assert.Equal(t, len(hello), candidates[0].Length)
	assert.Equal(t, "こんにちは", candidates[0].Text)
}

func TestScan_KeepsEmbeddedDirectives(t *testing.T) {
	image := append([]byte("!c02"), hello...)

	candidates := Scan(image, Options{})
	require.Len(t, candidates, 1)
	assert.Equal(t, "!c02こんにちは", candidates[0].Text)
}

func TestScan_SkipsBinaryNoise(t *testing.T) {
	image := []byte{0x01, 0x03, 0xFF, 0xFF, 0x00, 0x02, 0x04, 0xFF}
	assert.Empty(t, Scan(image, Options{}))
}

func TestScan_SkipsPlainASCII(t *testing.T) {
	// ASCII-only runs are usually identifiers or paths, not dialogue.
	image := append([]byte{0x00}, []byte("SYSTEM.DAT")...)
	assert.Empty(t, Scan(image, Options{}))
}

func TestScan_RejectsHalfwidthKatakana(t *testing.T) {
	image := []byte{0x00, 0xB1, 0xB2, 0xB3, 0xB4, 0x00}
	assert.Empty(t, Scan(image, Options{}))
}

func TestScan_Dedupes(t *testing.T) {
	image := append([]byte(nil), hello...)
	image = append(image, 0x00, 0x00)
	image = append(image, hello...)
	image = append(image, 0x00)

	candidates := Scan(image, Options{})
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(0), candidates[0].Offset)
}

func TestScan_RequireJapanese(t *testing.T) {
	image := append(make([]byte, 4), hello...)
	candidates := Scan(image, Options{RequireJapanese: true})
	require.Len(t, candidates, 1)
	assert.Equal(t, "こんにちは", candidates[0].Text)
}

func TestCandidateSpans(t *testing.T) {
	spans := CandidateSpans([]Candidate{{Offset: 16, Length: 10, Text: "こんにちは"}})
	require.Len(t, spans, 1)
	assert.True(t, spans[0].Candidate)
	assert.Equal(t, int64(16), spans[0].Offset)
	assert.Equal(t, "こんにちは", spans[0].Context)
}
