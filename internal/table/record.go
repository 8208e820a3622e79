// Package table holds the record table that travels between pipeline
// stages: string records extracted from containers, shard merging, and
// the CSV exchange format used for human translation work.
package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
)

// ID identifies a string record by its container and entry index.
type ID struct {
	Container string
	Index     int
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.Container, id.Index)
}

// ParseID parses the "container:index" form used in CSV files.
func ParseID(s string) (ID, error) {
	sep := strings.LastIndex(s, ":")
	if sep <= 0 || sep == len(s)-1 {
		return ID{}, fmt.Errorf("invalid record id %q", s)
	}
	idx, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return ID{}, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return ID{Container: s[:sep], Index: idx}, nil
}

// StringRecord is one extracted string and its translation state.
// Original and SourceLen are fixed at extraction time; SourceLen is the
// byte budget the translated encoding must not exceed.
type StringRecord struct {
	ID        ID
	Original  []byte
	SourceLen int
	Tokens    []codec.Token
	Context   string
	Notes     string
}

// OriginalText renders the source-language bytes in the human-readable
// form used in CSVs.
func (r *StringRecord) OriginalText() (string, error) {
	tokens, err := codec.Decode(r.Original)
	if err != nil {
		return "", err
	}
	return codec.FormatTokens(tokens)
}

// TranslationText renders the current token stream for CSV output.
// An empty stream (not yet translated) renders as "".
func (r *StringRecord) TranslationText() (string, error) {
	if len(r.Tokens) == 0 {
		return "", nil
	}
	return codec.FormatTokens(r.Tokens)
}

// Clone returns a deep copy of the record.
func (r *StringRecord) Clone() *StringRecord {
	tmp := *r
	tmp.Original = append([]byte(nil), r.Original...)
	tmp.Tokens = append([]codec.Token(nil), r.Tokens...)
	return &tmp
}

// Table is an ordered mapping from record id to record. Iteration order
// is insertion order until SortCanonical pins it to container traversal
// order.
type Table struct {
	records map[ID]*StringRecord
	order   []ID
}

func NewTable() *Table {
	return &Table{records: make(map[ID]*StringRecord)}
}

// Put inserts or replaces a record, keeping first-insertion order.
func (t *Table) Put(r *StringRecord) {
	if _, ok := t.records[r.ID]; !ok {
		t.order = append(t.order, r.ID)
	}
	t.records[r.ID] = r
}

func (t *Table) Get(id ID) (*StringRecord, bool) {
	r, ok := t.records[id]
	return r, ok
}

func (t *Table) Len() int {
	return len(t.records)
}

// Records returns the records in table order.
func (t *Table) Records() []*StringRecord {
	ret := make([]*StringRecord, 0, len(t.order))
	for _, id := range t.order {
		ret = append(ret, t.records[id])
	}
	return ret
}

// ByContainer returns the records belonging to one container, in entry
// order.
func (t *Table) ByContainer(container string) []*StringRecord {
	var ret []*StringRecord
	for _, r := range t.Records() {
		if r.ID.Container == container {
			ret = append(ret, r)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID.Index < ret[j].ID.Index })
	return ret
}

// SortCanonical orders the table by (container, entry index), the
// traversal order the reader produced, which downstream repacking
// depends on for determinism.
func (t *Table) SortCanonical() {
	sort.Slice(t.order, func(i, j int) bool {
		a, b := t.order[i], t.order[j]
		if a.Container != b.Container {
			return a.Container < b.Container
		}
		return a.Index < b.Index
	})
}
