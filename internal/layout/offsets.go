// Package layout checks and repairs the byte-level layout invariants of
// a token stream: directive alignment and the record's byte budget. The
// consuming renderer reads two-byte code units starting at even
// addresses, so an alignment-sensitive directive at an odd offset is
// silently misparsed as half of a double-byte character.
package layout

import (
	"fmt"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// Offsets returns the cumulative encoded byte offset of every token's
// first byte, counted from 0 at the start of the string.
func Offsets(tokens []codec.Token) ([]int, error) {
	offsets := make([]int, len(tokens))
	pos := 0
	for i, t := range tokens {
		offsets[i] = pos
		n, err := codec.TokenLen(t)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		pos += n
	}
	return offsets, nil
}
