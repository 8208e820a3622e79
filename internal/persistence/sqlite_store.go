// Package persistence keeps the canonical record table, outstanding
// overflow reports, and the job queue in a single SQLite database so
// serve mode survives restarts.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/bintext-repacker/internal/codec"
	"github.com/MimeLyc/bintext-repacker/internal/jobs"
	"github.com/MimeLyc/bintext-repacker/internal/overflow"
	"github.com/MimeLyc/bintext-repacker/internal/table"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.PipelineJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, kind, container, table_path, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.PipelineJob, 0)
	for rows.Next() {
		var item jobs.PipelineJob
		var status, kind string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&kind,
			&item.Payload.Container,
			&item.Payload.TablePath,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		item.Payload.Kind = jobs.Kind(kind)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.PipelineJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, kind, container, table_path, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			kind=excluded.kind,
			container=excluded.container,
			table_path=excluded.table_path,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		string(job.Payload.Kind),
		job.Payload.Container,
		job.Payload.TablePath,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

// SaveTable replaces the persisted canonical table with a snapshot.
func (s *SQLiteStore) SaveTable(ctx context.Context, t *table.Table) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, rec := range t.Records() {
		translation, terr := rec.TranslationText()
		if terr != nil {
			return fmt.Errorf("record %s: %w", rec.ID, terr)
		}
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO records (container, idx, original, source_len, translation, context, notes, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID.Container,
			rec.ID.Index,
			rec.Original,
			rec.SourceLen,
			translation,
			rec.Context,
			rec.Notes,
			now,
		); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTable reads the persisted canonical table back.
func (s *SQLiteStore) LoadTable(ctx context.Context) (*table.Table, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT container, idx, original, source_len, translation, context, notes
		 FROM records
		 ORDER BY container ASC, idx ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := table.NewTable()
	for rows.Next() {
		var rec table.StringRecord
		var translation string
		if err := rows.Scan(
			&rec.ID.Container,
			&rec.ID.Index,
			&rec.Original,
			&rec.SourceLen,
			&translation,
			&rec.Context,
			&rec.Notes,
		); err != nil {
			return nil, err
		}
		if translation != "" {
			tokens, err := codec.ParseText(translation)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", rec.ID, err)
			}
			rec.Tokens = tokens
		}
		t.Put(&rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveReports replaces the outstanding overflow reports with the
// latest check results.
func (s *SQLiteStore) SaveReports(ctx context.Context, reports []overflow.Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM overflow_reports`); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, r := range reports {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO overflow_reports (container, idx, original, translation, budget_bytes, actual_bytes, overage, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID.Container,
			r.ID.Index,
			r.Original,
			r.Current,
			r.BudgetBytes,
			r.ActualBytes,
			r.Overage,
			now,
		); err != nil {
			return fmt.Errorf("report %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadReports reads the outstanding overflow reports, worst overage
// first.
func (s *SQLiteStore) LoadReports(ctx context.Context) ([]overflow.Report, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT container, idx, original, translation, budget_bytes, actual_bytes, overage
		 FROM overflow_reports
		 ORDER BY overage DESC, container ASC, idx ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]overflow.Report, 0)
	for rows.Next() {
		var r overflow.Report
		if err := rows.Scan(
			&r.ID.Container,
			&r.ID.Index,
			&r.Original,
			&r.Current,
			&r.BudgetBytes,
			&r.ActualBytes,
			&r.Overage,
		); err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
