package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/jobs"
	"github.com/MimeLyc/bintext-repacker/internal/overflow"
	"github.com/MimeLyc/bintext-repacker/internal/table"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "repacker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	job := &jobs.PipelineJob{
		ID:        "job-1",
		Source:    "cron",
		DedupeKey: "repack:MGDATA/00000062",
		Payload: jobs.JobPayload{
			Kind:      jobs.KindRepack,
			Container: "MGDATA/00000062",
			TablePath: "/work/batches/mgdata_batch_001.csv",
		},
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, jobs.KindRepack, all[0].Payload.Kind)
	assert.Equal(t, job.Payload.Container, all[0].Payload.Container)
	assert.Equal(t, jobs.StatusPending, all[0].Status)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_TableRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tokens, err := codec.ParseText("!c02Go!c07")
	require.NoError(t, err)

	tbl := table.NewTable()
	tbl.Put(&table.StringRecord{
		ID:        table.ID{Container: "bin", Index: 0},
		Original:  []byte{0x82, 0xA0, 0x82, 0xA2},
		SourceLen: 12,
		Tokens:    tokens,
		Context:   "menu",
	})
	tbl.Put(&table.StringRecord{
		ID:        table.ID{Container: "bin", Index: 1},
		Original:  []byte("plain"),
		SourceLen: 5,
	})
	require.NoError(t, store.SaveTable(ctx, tbl))

	loaded, err := store.LoadTable(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	rec, ok := loaded.Get(table.ID{Container: "bin", Index: 0})
	require.True(t, ok)
	assert.Equal(t, []byte{0x82, 0xA0, 0x82, 0xA2}, rec.Original)
	assert.Equal(t, 12, rec.SourceLen)
	assert.Equal(t, "menu", rec.Context)

	text, err := rec.TranslationText()
	require.NoError(t, err)
	assert.Equal(t, "!c02Go!c07", text)

	// A second snapshot replaces, not appends.
	require.NoError(t, store.SaveTable(ctx, loaded))
	again, err := store.LoadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())
}

func TestSQLiteStore_ReportsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	reports := []overflow.Report{
		{ID: table.ID{Container: "bin", Index: 3}, Current: "small", BudgetBytes: 10, ActualBytes: 12, Overage: 2},
		{ID: table.ID{Container: "bin", Index: 1}, Current: "big", BudgetBytes: 10, ActualBytes: 18, Overage: 8},
	}
	require.NoError(t, store.SaveReports(ctx, reports))

	loaded, err := store.LoadReports(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 8, loaded[0].Overage)
	assert.Equal(t, 2, loaded[1].Overage)

	// Resolving everything clears the table.
	require.NoError(t, store.SaveReports(ctx, nil))
	loaded, err = store.LoadReports(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
