package layout

import (
	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// Outcome is the result of validating one record's token stream.
// Both problems can be present at once; alignment is repaired first and
// the budget re-checked afterwards.
type Outcome struct {
	// Misaligned holds the indices of alignment-sensitive tokens whose
	// first byte sits at an odd offset.
	Misaligned []int

	// Excess is the number of bytes over the record's budget, 0 when
	// the stream fits.
	Excess int

	// Total is the encoded byte length of the stream.
	Total int
}

func (o Outcome) Compliant() bool      { return len(o.Misaligned) == 0 && o.Excess == 0 }
func (o Outcome) NeedsAlignment() bool { return len(o.Misaligned) > 0 }
func (o Outcome) OverBudget() bool     { return o.Excess > 0 }

// Validate checks the alignment and budget invariants. It never mutates
// the stream. budget <= 0 disables the budget check.
func Validate(tokens []codec.Token, budget int) (Outcome, error) {
	offsets, err := Offsets(tokens)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for i, t := range tokens {
		if t.AlignmentSensitive() && offsets[i]%2 != 0 {
			out.Misaligned = append(out.Misaligned, i)
		}
	}

	total, err := codec.EncodedLen(tokens)
	if err != nil {
		return Outcome{}, err
	}
	out.Total = total
	if budget > 0 && total > budget {
		out.Excess = total - budget
	}
	return out, nil
}
