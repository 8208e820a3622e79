package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/bintext-repacker/internal/config"
	"github.com/MimeLyc/bintext-repacker/internal/jobs"
	"github.com/MimeLyc/bintext-repacker/pkg/file"
	"github.com/MimeLyc/bintext-repacker/pkg/icron"
	"github.com/MimeLyc/bintext-repacker/pkg/log"
)

// repackService is the serve-mode loop: on each cron trigger it looks
// for translation shards edited since the last run and queues
// revalidation work for them.
type repackService struct {
	cfg             config.Config
	queue           *jobs.Queue
	lastTriggerTime time.Time
	cronExpr        string
	cron            *cron.Cron
}

func NewRunnableRepackService(
	cfg config.Config,
	queue *jobs.Queue,
	cron *cron.Cron,
) repackService {
	return repackService{
		cfg:      cfg,
		queue:    queue,
		cronExpr: cfg.Pipeline.CronExpr,
		cron:     cron,
	}
}

var singleflightGroup singleflight.Group

func (s repackService) Schedule(
	ctx context.Context,
) error {
	log.Info("Run RepackService")

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("run", func() (any, error) {
			if err := s.run(ctx); err != nil {
				log.Error("Scheduled revalidation failed: %v", err)
			}
			return nil, nil
		})
	}
	_, err := s.cron.AddFunc(s.cronExpr, runFunc)
	return err
}

func (s repackService) run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	startTime, err := s.startTime()
	if err != nil {
		return err
	}
	log.Info("Searching for translation shards modified after %v", startTime)

	recent, err := file.FindWithExtAfter(s.cfg.Paths.TranslationsDir, ".csv", startTime)
	if err != nil {
		return WrapError(err, ErrFileRead, "failed to scan translations directory")
	}
	if len(recent) == 0 {
		log.Debug("No new translation shards")
		return nil
	}

	for _, path := range recent {
		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    "cron",
			DedupeKey: "revalidate:" + path,
			Payload: jobs.JobPayload{
				Kind:      jobs.KindRevalidate,
				TablePath: path,
			},
		})
		if created {
			log.Info("Queued %s for shard %s", job.ID, path)
		} else {
			log.Debug("Shard %s already queued as %s", path, job.ID)
		}
	}
	return nil
}

// startTime picks the window for "recently modified": the previous cron
// fire when known, clamped to a week on first run.
func (s repackService) startTime() (time.Time, error) {
	if s.lastTriggerTime.IsZero() {
		cronSchedule, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to get cron schedule: %w", err)
		}

		if time.Now().Add(-24 * time.Hour).Before(cronSchedule.Last) {
			return time.Now().Add(-24 * 7 * time.Hour), nil
		}
		return cronSchedule.Last, nil
	}

	return s.lastTriggerTime, nil
}
