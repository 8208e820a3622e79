package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/bintext-repacker/internal/config"
	"github.com/MimeLyc/bintext-repacker/internal/jobs"
	"github.com/MimeLyc/bintext-repacker/internal/overflow"
	"github.com/MimeLyc/bintext-repacker/internal/persistence"
	"github.com/MimeLyc/bintext-repacker/internal/reader"
	"github.com/MimeLyc/bintext-repacker/internal/service"
	"github.com/MimeLyc/bintext-repacker/internal/table"
	"github.com/MimeLyc/bintext-repacker/pkg/log"
)

const usage = `usage: bintext-repacker <command>

commands:
  extract   read containers into batch CSV tables
  scan      find candidate text runs in a container (args: <container-id>)
  check     report translations that exceed their byte budget
  fix       insert alignment fillers into translated records
  merge     merge translation shards into the canonical table
  repack    patch containers with finalized translations
  serve     run the cron revalidation loop
`

func main() {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.NewFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log.InitLogger(log.ParseLevel(cfg.Pipeline.LogLevel))

	manifest, err := reader.LoadManifest(cfg.Paths.ManifestPath)
	if err != nil {
		log.Fatal("Failed to load manifest: %v", err)
	}
	pipeline := service.NewPipeline(*cfg, manifest)

	ctx := context.Background()
	handler := service.NewDefaultErrorHandler()

	if err := run(ctx, command, cfg, pipeline); err != nil {
		handler.Handle(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, pipeline *service.Pipeline) error {
	switch command {
	case "extract":
		_, report, err := pipeline.Extract(ctx)
		if err != nil {
			return err
		}
		logRunReport(report)
		return nil

	case "scan":
		if len(os.Args) < 3 {
			return fmt.Errorf("scan needs a container id")
		}
		found, err := pipeline.Scan(os.Args[2])
		if err != nil {
			return err
		}
		log.Info("%d candidate(s) appended to %s", found, cfg.Paths.ManifestPath)
		return nil

	case "check":
		merged, err := mergedTable(ctx, pipeline)
		if err != nil {
			return err
		}
		reports, err := pipeline.Check(ctx, merged)
		if err != nil {
			return err
		}
		log.Info("%d record(s) over budget", len(reports))
		return nil

	case "fix":
		merged, err := mergedTable(ctx, pipeline)
		if err != nil {
			return err
		}
		if err := pipeline.FixAlignment(merged); err != nil {
			return err
		}
		// Resolve outstanding overflow reports from an edited report
		// file when one exists.
		reports, err := pipeline.Check(ctx, merged)
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			oracle, oerr := overflow.LoadCSVOracle(filepath.Join(cfg.Paths.ReportsDir, "overflow.csv"))
			if oerr == nil {
				if unresolved, rerr := pipeline.Resolve(ctx, merged, reports, oracle); rerr == nil {
					log.Info("%d overflow record(s) still unresolved", len(unresolved))
				}
			}
		}
		return nil

	case "merge":
		merged, err := mergedTable(ctx, pipeline)
		if err != nil {
			return err
		}
		log.Info("Canonical table holds %d record(s)", merged.Len())
		return nil

	case "repack":
		merged, err := mergedTable(ctx, pipeline)
		if err != nil {
			return err
		}
		if err := pipeline.FixAlignment(merged); err != nil {
			return err
		}
		report, err := pipeline.Repack(ctx, merged)
		if err != nil {
			return err
		}
		logRunReport(report)
		return nil

	case "serve":
		return serve(ctx, cfg, pipeline)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func mergedTable(ctx context.Context, pipeline *service.Pipeline) (*table.Table, error) {
	base, report, err := pipeline.Extract(ctx)
	if err != nil {
		return nil, err
	}
	logRunReport(report)
	return pipeline.LoadTranslations(base)
}

func serve(ctx context.Context, cfg *config.Config, pipeline *service.Pipeline) error {
	store, err := persistence.NewSQLiteStore(cfg.Paths.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	pipeline.WithStore(store)

	queue := jobs.NewQueue(cfg.Pipeline.Workers, store)
	queue.Start(pipeline.ExecuteJob)
	defer queue.Stop()

	c := cron.New()
	svc := service.NewRunnableRepackService(*cfg, queue, c)
	if err := svc.Schedule(ctx); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	log.Info("Serving on schedule %q; press Ctrl-C to stop", cfg.Pipeline.CronExpr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}

func logRunReport(report *service.RunReport) {
	if report == nil || report.Clean() {
		return
	}
	for _, err := range report.RecordErrors {
		log.Warn("Record error: %v", err)
	}
	for id, err := range report.ContainerErrors {
		log.Error("Container %s failed: %v", id, err)
	}
}
