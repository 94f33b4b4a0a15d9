// Package retention runs the daily purge cycle: soft-deleted documents past
// their grace period are permanently erased (container wiped, replica
// dropped, rows deleted), and documents past the retention period are
// soft-deleted so a later cycle can purge them.
//
// Eligibility is always re-derived from persisted rows at cycle time, never
// from in-memory timers, so a crashed process picks up exactly where the
// data says it should.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"docvault/model"
	"docvault/repository"
	"docvault/status"
	"docvault/storage"
)

// TaskName is the key the scheduler reports under in the status registry.
const TaskName = "retention-purge"

var (
	purgeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_purge_runs_total",
		Help: "Total number of purge cycle runs.",
	})

	purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_purged_documents_total",
		Help: "Total number of documents permanently erased.",
	})

	purgeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_purge_item_errors_total",
		Help: "Total number of per-document purge failures.",
	})

	purgeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docvault_purge_duration_seconds",
		Help:    "Duration of purge cycle runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// Result is the aggregate outcome of one purge cycle.
type Result struct {
	// Purged is the number of documents fully erased.
	Purged int
	// SoftDeleted is the number of active documents moved to the deleted
	// state by the retention sweep.
	SoftDeleted int
	// Errors is the number of per-document failures; the cycle continues
	// past each one.
	Errors int
	// Duration is how long the cycle took.
	Duration time.Duration
}

// Wiper is the part of the encryption engine the scheduler needs.
type Wiper interface {
	SecureDelete(storagePath string) (bool, error)
}

// Config controls the purge schedule and the retention sweep.
type Config struct {
	// PurgeCron is a standard 5-field cron expression for the daily run,
	// e.g. "0 2 * * *" for 02:00.
	PurgeCron string

	// GraceDays is the grace period applied when the retention sweep
	// soft-deletes an expired document.
	GraceDays int

	// RetentionMonths bounds how long active documents are kept; zero
	// disables the sweep so the cycle only ever purges already-deleted rows.
	RetentionMonths int
}

// Scheduler owns the single background purge loop of the process.
type Scheduler struct {
	repo     repository.DocumentRepository
	wiper    Wiper
	replica  storage.Replicator // optional
	registry *status.Registry
	schedule cron.Schedule
	cfg      Config
	logger   *slog.Logger

	now func() time.Time

	// runMu serializes cycles; a fire that arrives while a cycle is still
	// running is skipped, not queued.
	runMu  sync.Mutex
	cancel context.CancelFunc
}

// New parses the cron expression and builds a scheduler. replica and
// registry may be nil.
func New(cfg Config, repo repository.DocumentRepository, wiper Wiper, replica storage.Replicator, registry *status.Registry, logger *slog.Logger) (*Scheduler, error) {
	if cfg.PurgeCron == "" {
		cfg.PurgeCron = "0 2 * * *"
	}
	if cfg.GraceDays <= 0 {
		cfg.GraceDays = 30
	}
	schedule, err := cron.ParseStandard(cfg.PurgeCron)
	if err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", cfg.PurgeCron, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = status.NewRegistry()
	}
	return &Scheduler{
		repo:     repo,
		wiper:    wiper,
		replica:  replica,
		registry: registry,
		schedule: schedule,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "retention")),
		now:      time.Now,
	}, nil
}

// Registry exposes the status registry for operational tooling.
func (s *Scheduler) Registry() *status.Registry {
	return s.registry
}

// Start launches the background loop. Call it once per process.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(loopCtx)
}

// Stop cancels the loop. An in-flight document purge finishes first;
// cancellation takes effect at the next item boundary.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		next := s.schedule.Next(s.now())
		s.registry.ReportScheduled(TaskName, next)
		s.logger.Info("purge cycle scheduled", slog.Time("next_run", next))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("purge loop stopped")
			return
		case <-timer.C:
		}

		result := s.RunOnce(ctx)
		if result == nil {
			// Another cycle was already running; nothing to report.
			continue
		}
	}
}

// RunOnce executes one purge cycle and reports the outcome. It returns nil
// when a cycle is already in flight. The scheduler itself never terminates
// on a cycle failure; the loop always computes the next run regardless.
func (s *Scheduler) RunOnce(ctx context.Context) *Result {
	if !s.runMu.TryLock() {
		s.logger.Warn("purge cycle still running, skipping this fire")
		return nil
	}
	defer s.runMu.Unlock()

	start := s.now()
	s.registry.ReportStart(TaskName)
	purgeRunsTotal.Inc()

	result := &Result{}
	cycleErr := s.cycle(ctx, start, result)
	result.Duration = s.now().Sub(start)

	purgedTotal.Add(float64(result.Purged))
	purgeErrorsTotal.Add(float64(result.Errors))
	purgeDurationSeconds.Observe(result.Duration.Seconds())

	next := s.schedule.Next(s.now())
	if cycleErr != nil {
		s.registry.ReportFailure(TaskName, next, cycleErr.Error())
		s.logger.Error("purge cycle failed",
			slog.String("error", cycleErr.Error()),
			slog.Time("next_run", next),
		)
		return result
	}

	msg := fmt.Sprintf("purged %d, soft-deleted %d, %d errors", result.Purged, result.SoftDeleted, result.Errors)
	s.registry.ReportSuccess(TaskName, next, msg)
	s.logger.Info("purge cycle finished",
		slog.Int("purged", result.Purged),
		slog.Int("soft_deleted", result.SoftDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// cycle runs the retention sweep and then the purge pass. Only a failure of
// the bulk queries counts as a cycle failure; per-document problems are
// tallied into result.Errors and processing continues.
func (s *Scheduler) cycle(ctx context.Context, now time.Time, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.cfg.RetentionMonths > 0 {
		if err := s.sweepRetention(ctx, now, result); err != nil {
			return err
		}
	}

	expired, err := s.repo.FindExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("query expired documents: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	// Sequential on purpose: each document is an independent unit of work
	// and the shared metadata store sees bounded contention.
	for i := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := &expired[i]
		if err := s.purgeOne(ctx, doc); err != nil {
			result.Errors++
			s.logger.Error("document purge failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Purged++
		s.logger.Info("document purged",
			slog.String("document_id", doc.ID),
			slog.String("original_file_name", doc.OriginalFileName),
		)
	}
	return nil
}

// sweepRetention soft-deletes active documents older than the retention
// period; they become purge-eligible after the grace period like any other
// soft delete.
func (s *Scheduler) sweepRetention(ctx context.Context, now time.Time, result *Result) error {
	cutoff := now.AddDate(0, -s.cfg.RetentionMonths, 0)
	docs, err := s.repo.FindRetentionExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query retention-expired documents: %w", err)
	}

	grace := time.Duration(s.cfg.GraceDays) * 24 * time.Hour
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := &docs[i]
		if err := s.repo.MarkDeleted(ctx, doc.ID, "retention-policy", now, now.Add(grace)); err != nil {
			result.Errors++
			s.logger.Error("retention soft-delete failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.SoftDeleted++
	}
	return nil
}

// purgeOne erases a single document: container wipe, replica delete, then
// the row cascade. A missing container counts as an item failure and leaves
// the rows for a later cycle.
func (s *Scheduler) purgeOne(ctx context.Context, doc *model.Document) error {
	wiped, err := s.wiper.SecureDelete(doc.EncryptedPath)
	if err != nil {
		return fmt.Errorf("secure delete %s: %w", doc.EncryptedPath, err)
	}
	if !wiped {
		return fmt.Errorf("container already missing at %s", doc.EncryptedPath)
	}

	if s.replica != nil {
		if err := s.replica.Delete(ctx, ReplicaKey(doc.EncryptedPath)); err != nil {
			// The local copy is gone; a stale ciphertext replica is not worth
			// failing the item over.
			s.logger.Warn("replica delete failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.repo.Purge(ctx, doc.ID); err != nil {
		return fmt.Errorf("purge rows: %w", err)
	}
	return nil
}

// ReplicaKey maps a container path to its object key in the replica bucket.
func ReplicaKey(encryptedPath string) string {
	return "containers/" + filepath.Base(encryptedPath)
}
