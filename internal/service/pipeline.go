// Package service wires the pipeline stages together: extraction,
// translation merging, layout validation, overflow reporting, and
// repacking. Containers are processed in parallel; the merged table is
// the single synchronization point.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/bintext-repacker/internal/config"
	"github.com/MimeLyc/bintext-repacker/internal/jobs"
	"github.com/MimeLyc/bintext-repacker/internal/layout"
	"github.com/MimeLyc/bintext-repacker/internal/overflow"
	"github.com/MimeLyc/bintext-repacker/internal/persistence"
	"github.com/MimeLyc/bintext-repacker/internal/reader"
	"github.com/MimeLyc/bintext-repacker/internal/repack"
	"github.com/MimeLyc/bintext-repacker/internal/scan"
	"github.com/MimeLyc/bintext-repacker/internal/table"
	"github.com/MimeLyc/bintext-repacker/pkg/log"
)

type Pipeline struct {
	cfg      config.Config
	manifest *reader.Manifest
	store    *persistence.SQLiteStore
}

func NewPipeline(cfg config.Config, manifest *reader.Manifest) *Pipeline {
	return &Pipeline{cfg: cfg, manifest: manifest}
}

// WithStore attaches a persistence store; the pipeline then snapshots
// the canonical table and overflow reports after each stage.
func (p *Pipeline) WithStore(store *persistence.SQLiteStore) *Pipeline {
	p.store = store
	return p
}

// RunReport collects the non-fatal failures of one pipeline run.
// Record errors spoil single records; container errors spoil whole
// containers; neither aborts the other containers.
type RunReport struct {
	mu              sync.Mutex
	RecordErrors    []error
	ContainerErrors map[string]error
}

func newRunReport() *RunReport {
	return &RunReport{ContainerErrors: make(map[string]error)}
}

func (r *RunReport) addRecordErrors(errs ...error) {
	r.mu.Lock()
	r.RecordErrors = append(r.RecordErrors, errs...)
	r.mu.Unlock()
}

func (r *RunReport) addContainerError(id string, err error) {
	r.mu.Lock()
	r.ContainerErrors[id] = err
	r.mu.Unlock()
}

func (r *RunReport) Clean() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RecordErrors) == 0 && len(r.ContainerErrors) == 0
}

// Extract reads every manifest container into one base table and shards
// it into batch CSVs under the extracted directory.
func (p *Pipeline) Extract(ctx context.Context) (*table.Table, *RunReport, error) {
	report := newRunReport()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Workers)

	tables := make([]*table.Table, len(p.manifest.Containers))
	for i, m := range p.manifest.Containers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, _, errs := reader.ReadFile(p.cfg.Paths.ContainerDir, m)
			if t == nil {
				report.addContainerError(m.ID, errs[0])
				return nil
			}
			report.addRecordErrors(errs...)
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	shards := make([]*table.Table, 0, len(tables))
	for _, t := range tables {
		if t != nil {
			shards = append(shards, t)
		}
	}
	merged, err := table.Merge(shards...)
	if err != nil {
		// Containers are disjoint by construction.
		return nil, report, WrapError(err, ErrMergeConflict, "extracted containers overlap")
	}

	paths, err := table.WriteBatches(p.cfg.Paths.ExtractedDir, "strings", merged, p.cfg.Pipeline.BatchSize)
	if err != nil {
		return nil, report, WrapError(err, ErrFileWrite, "failed to write batch tables")
	}
	log.Info("Extracted %d record(s) into %d batch file(s)", merged.Len(), len(paths))

	if p.store != nil {
		if err := p.store.SaveTable(ctx, merged); err != nil {
			return nil, report, WrapError(err, ErrFileWrite, "failed to persist extracted table")
		}
	}
	return merged, report, nil
}

// LoadTranslations merges every CSV shard in the translations directory
// over the base table. The base supplies the authoritative originals
// and byte budgets; shards supply translations, later files winning.
func (p *Pipeline) LoadTranslations(base *table.Table) (*table.Table, error) {
	paths, err := filepath.Glob(filepath.Join(p.cfg.Paths.TranslationsDir, "*.csv"))
	if err != nil {
		return nil, WrapError(err, ErrFileRead, "failed to list translation shards")
	}
	sort.Strings(paths)

	shards := []*table.Table{base}
	for _, path := range paths {
		shard, err := table.ReadCSV(path)
		if err != nil {
			return nil, WrapError(err, ErrParse, fmt.Sprintf("failed to read shard %s", path))
		}
		shards = append(shards, shard)
	}

	merged, err := table.Merge(shards...)
	if err != nil {
		return nil, WrapError(err, ErrMergeConflict, "translation shards disagree on original text")
	}
	log.Info("Merged %d translation shard(s) over %d record(s)", len(paths), merged.Len())
	return merged, nil
}

// FixAlignment applies the filler-insertion pass to every translated
// record in place.
func (p *Pipeline) FixAlignment(t *table.Table) error {
	for _, rec := range t.Records() {
		if len(rec.Tokens) == 0 {
			continue
		}
		fixed, err := layout.FixAlignment(rec.Tokens)
		if err != nil {
			return WrapError(err, ErrValidation, fmt.Sprintf("record %s", rec.ID)).
				WithContext("record", rec.ID.String())
		}
		rec.Tokens = fixed
	}
	return nil
}

// Check reports every over-budget translation, writes the report CSV
// for editors, and snapshots the result.
func (p *Pipeline) Check(ctx context.Context, t *table.Table) ([]overflow.Report, error) {
	reports, err := overflow.Check(t)
	if err != nil {
		return nil, WrapError(err, ErrValidation, "budget check failed")
	}

	path := filepath.Join(p.cfg.Paths.ReportsDir, "overflow.csv")
	if err := overflow.WriteReportCSV(path, reports); err != nil {
		return nil, WrapError(err, ErrFileWrite, "failed to write overflow report")
	}
	if len(reports) > 0 {
		log.Warn("%d record(s) over budget; report at %s", len(reports), path)
	}

	if p.store != nil {
		if err := p.store.SaveReports(ctx, reports); err != nil {
			return nil, WrapError(err, ErrFileWrite, "failed to persist overflow reports")
		}
	}
	return reports, nil
}

// Resolve drives the shorten-and-resubmit loop against an oracle and
// returns whatever it could not bring under budget.
func (p *Pipeline) Resolve(ctx context.Context, t *table.Table, reports []overflow.Report, oracle overflow.Oracle) ([]overflow.Report, error) {
	unresolved, err := overflow.Resolve(ctx, t, reports, oracle, p.cfg.Pipeline.OverflowRounds)
	if err != nil {
		return unresolved, WrapError(err, ErrOverflow, "overflow resolution aborted")
	}
	return unresolved, nil
}

// Repack patches every container from the merged table and writes the
// results under the output directory. A failing container is recorded
// and skipped; the rest keep going.
func (p *Pipeline) Repack(ctx context.Context, t *table.Table) (*RunReport, error) {
	report := newRunReport()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Workers)

	for _, m := range p.manifest.Containers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			container, err := repack.LoadFile(p.cfg.Paths.ContainerDir, m)
			if err != nil {
				report.addContainerError(m.ID, err)
				return nil
			}
			if err := container.Patch(t); err != nil {
				report.addContainerError(m.ID, err)
				return nil
			}
			if err := container.WriteFile(p.cfg.Paths.OutputDir); err != nil {
				report.addContainerError(m.ID, err)
				return nil
			}
			log.Info("Repacked container %s", m.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// Scan runs the heuristic text scanner over one container and appends
// the findings to the manifest as unconfirmed candidate entries.
func (p *Pipeline) Scan(containerID string) (int, error) {
	for i := range p.manifest.Containers {
		m := &p.manifest.Containers[i]
		if m.ID != containerID {
			continue
		}

		container, err := repack.LoadFile(p.cfg.Paths.ContainerDir, *m)
		if err != nil {
			return 0, WrapError(err, ErrFileRead, "failed to load container").
				WithContext("container", containerID)
		}

		candidates := scan.Scan(container.Image(), scan.Options{RequireJapanese: true})
		m.Entries = append(m.Entries, scan.CandidateSpans(candidates)...)

		if err := reader.SaveManifest(p.cfg.Paths.ManifestPath, p.manifest); err != nil {
			return 0, WrapError(err, ErrFileWrite, "failed to save manifest")
		}
		log.Info("Scanner found %d candidate(s) in %s", len(candidates), containerID)
		return len(candidates), nil
	}
	return 0, NewError(ErrValidation, "unknown container").WithContext("container", containerID)
}

// Revalidate is the serve-mode unit of work: re-extract, re-merge the
// latest translation shards, fix alignment, and refresh the overflow
// reports.
func (p *Pipeline) Revalidate(ctx context.Context) error {
	base, runReport, err := p.Extract(ctx)
	if err != nil {
		return err
	}
	if !runReport.Clean() {
		log.Warn("Extraction finished with %d record error(s), %d container error(s)",
			len(runReport.RecordErrors), len(runReport.ContainerErrors))
	}

	merged, err := p.LoadTranslations(base)
	if err != nil {
		return err
	}
	if err := p.FixAlignment(merged); err != nil {
		return err
	}
	if _, err := p.Check(ctx, merged); err != nil {
		return err
	}
	if p.store != nil {
		if err := p.store.SaveTable(ctx, merged); err != nil {
			return WrapError(err, ErrFileWrite, "failed to persist merged table")
		}
	}
	return nil
}

// ExecuteJob dispatches a queued job to the matching pipeline stage.
// A panicking stage fails the job instead of killing the worker.
func (p *Pipeline) ExecuteJob(ctx context.Context, job *jobs.PipelineJob) error {
	return SafeExecute(func() error { return p.executeJob(ctx, job) })
}

func (p *Pipeline) executeJob(ctx context.Context, job *jobs.PipelineJob) error {
	switch job.Payload.Kind {
	case jobs.KindRevalidate:
		return p.Revalidate(ctx)
	case jobs.KindRepack:
		base, _, err := p.Extract(ctx)
		if err != nil {
			return err
		}
		merged, err := p.LoadTranslations(base)
		if err != nil {
			return err
		}
		if err := p.FixAlignment(merged); err != nil {
			return err
		}
		report, err := p.Repack(ctx, merged)
		if err != nil {
			return err
		}
		if !report.Clean() {
			return NewError(ErrValidation, fmt.Sprintf("%d container(s) failed to repack", len(report.ContainerErrors)))
		}
		return nil
	default:
		return NewError(ErrValidation, "unknown job kind").WithContext("kind", string(job.Payload.Kind))
	}
}
