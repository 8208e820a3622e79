package layout

import (
	"fmt"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// FixAlignment inserts the minimum filler needed so that every
// alignment-sensitive token starts at an even byte offset: one ASCII
// space (the only one-byte filler, so the only one that flips parity)
// immediately before each offending token. The space is appended to the
// preceding text run when there is one, keeping the stream canonical.
//
// The pass is a single left-to-right sweep and is idempotent: an
// already-aligned stream comes back unchanged. Alignment is a hard
// correctness requirement, so the filler is inserted even when it
// pushes the stream over its byte budget; the overflow is dealt with
// downstream.
func FixAlignment(tokens []codec.Token) ([]codec.Token, error) {
	out := make([]codec.Token, 0, len(tokens))
	pos := 0

	for i, t := range tokens {
		if t.AlignmentSensitive() && pos%2 != 0 {
			if n := len(out); n > 0 && out[n-1].Kind == codec.KindText {
				out[n-1].Text += " "
			} else {
				out = append(out, codec.Text(" "))
			}
			pos++
		}

		n, err := codec.TokenLen(t)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		out = append(out, t)
		pos += n
	}

	return out, nil
}
