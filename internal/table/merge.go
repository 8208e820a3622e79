package table

import (
	"bytes"
	"fmt"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// ConflictingOriginError reports that two shards disagree on a record's
// source-language bytes. That means the shards were extracted from
// different container states and cannot be reconciled automatically.
type ConflictingOriginError struct {
	ID ID
}

func (e *ConflictingOriginError) Error() string {
	return fmt.Sprintf("record %s: original text differs between shards; shards come from different container states", e.ID)
}

// Merge unifies independently edited shards into one canonical table.
// Shard order is the merge order: for a record present in several
// shards, the later shard's translation wins, and non-empty context or
// notes override earlier values. The original bytes and the byte budget
// are taken from the first shard that carries them and must agree
// across all shards. The merged table is in container traversal order.
func Merge(shards ...*Table) (*Table, error) {
	merged := NewTable()

	for _, shard := range shards {
		if shard == nil {
			continue
		}
		for _, rec := range shard.Records() {
			existing, ok := merged.Get(rec.ID)
			if !ok {
				merged.Put(rec.Clone())
				continue
			}

			if len(existing.Original) > 0 && len(rec.Original) > 0 &&
				!bytes.Equal(existing.Original, rec.Original) {
				return nil, &ConflictingOriginError{ID: rec.ID}
			}
			if len(existing.Original) == 0 {
				existing.Original = append([]byte(nil), rec.Original...)
			}
			if existing.SourceLen == 0 {
				existing.SourceLen = rec.SourceLen
			}

			// Last writer wins for the translation itself.
			if len(rec.Tokens) > 0 {
				existing.Tokens = append([]codec.Token(nil), rec.Tokens...)
			}
			if rec.Context != "" {
				existing.Context = rec.Context
			}
			if rec.Notes != "" {
				existing.Notes = rec.Notes
			}
		}
	}

	merged.SortCanonical()
	return merged, nil
}
