// Package overflow finds translations that no longer fit their byte
// budget and drives the shorten-and-resubmit loop that fixes them.
package overflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/layout"
	"github.com/MimeLyc/bintext-repacker/internal/table"
	"github.com/MimeLyc/bintext-repacker/pkg/log"
)

// Report describes one over-budget record.
type Report struct {
	ID          table.ID
	Original    string
	Current     string
	BudgetBytes int
	ActualBytes int
	Overage     int
}

// Oracle produces a shorter candidate translation for an over-budget
// record. Implementations range from a CSV of human rewrites to an
// interactive prompt.
type Oracle interface {
	Resolve(ctx context.Context, r Report) (string, error)
}

// Check scans a table for translations whose encoded length exceeds the
// record's byte budget. Reports come back worst overage first so the
// most damaging strings get attention first.
func Check(t *table.Table) ([]Report, error) {
	var reports []Report
	for _, rec := range t.Records() {
		if len(rec.Tokens) == 0 || rec.SourceLen <= 0 {
			continue
		}
		actual, err := codec.EncodedLen(rec.Tokens)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if actual <= rec.SourceLen {
			continue
		}
		r, err := reportFor(rec, actual)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Overage != reports[j].Overage {
			return reports[i].Overage > reports[j].Overage
		}
		if reports[i].ID.Container != reports[j].ID.Container {
			return reports[i].ID.Container < reports[j].ID.Container
		}
		return reports[i].ID.Index < reports[j].ID.Index
	})
	return reports, nil
}

// Resolve runs the resubmission loop: each report is handed to the
// oracle, the replacement is aligned and re-measured, and records that
// now fit are written back into the table. Records the oracle cannot
// bring under budget within maxRounds are returned unresolved.
func Resolve(ctx context.Context, t *table.Table, reports []Report, oracle Oracle, maxRounds int) ([]Report, error) {
	if maxRounds <= 0 {
		maxRounds = 3
	}

	pending := reports
	for round := 1; round <= maxRounds && len(pending) > 0; round++ {
		log.Info("Overflow round %d: %d record(s) over budget", round, len(pending))

		var next []Report
		for _, r := range pending {
			if err := ctx.Err(); err != nil {
				return pending, err
			}

			replacement, err := oracle.Resolve(ctx, r)
			if err != nil {
				log.Warn("Record %s: oracle failed: %v", r.ID, err)
				next = append(next, r)
				continue
			}

			updated, err := tryReplacement(t, r, replacement)
			if err != nil {
				log.Warn("Record %s: replacement rejected: %v", r.ID, err)
				next = append(next, r)
				continue
			}
			if updated != nil {
				// Still over budget: carry the refreshed measurements
				// into the next round.
				next = append(next, *updated)
			}
		}
		pending = next
	}

	return pending, nil
}

// tryReplacement parses, aligns, and measures a candidate. A fitting
// candidate is committed to the table and nil is returned; an
// over-budget one returns its refreshed report.
func tryReplacement(t *table.Table, r Report, replacement string) (*Report, error) {
	rec, ok := t.Get(r.ID)
	if !ok {
		return nil, fmt.Errorf("record %s no longer in table", r.ID)
	}

	tokens, err := codec.ParseText(replacement)
	if err != nil {
		return nil, err
	}
	tokens, err = layout.FixAlignment(tokens)
	if err != nil {
		return nil, err
	}

	outcome, err := layout.Validate(tokens, rec.SourceLen)
	if err != nil {
		return nil, err
	}
	if outcome.OverBudget() {
		// The table keeps the previous translation; only the report
		// advances so the next round sees the latest attempt.
		return &Report{
			ID:          r.ID,
			Original:    r.Original,
			Current:     replacement,
			BudgetBytes: rec.SourceLen,
			ActualBytes: outcome.Total,
			Overage:     outcome.Excess,
		}, nil
	}

	rec.Tokens = tokens
	return nil, nil
}

func reportFor(rec *table.StringRecord, actual int) (Report, error) {
	original, err := rec.OriginalText()
	if err != nil {
		return Report{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	current, err := rec.TranslationText()
	if err != nil {
		return Report{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return Report{
		ID:          rec.ID,
		Original:    original,
		Current:     current,
		BudgetBytes: rec.SourceLen,
		ActualBytes: actual,
		Overage:     actual - rec.SourceLen,
	}, nil
}
