// Package scheduler runs the CRM's periodic maintenance jobs on cron
// expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults for the dedup retention job.
const (
	DefaultDedupPruneSchedule = "0 3 * * *"
	DefaultDedupRetention     = 72 * time.Hour
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard
// five-field syntax. Panicking jobs are recovered.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task on expr.
func (s *Scheduler) AddJob(expr string, task func()) error {
	if _, err := s.cron.AddFunc(expr, task); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// DedupPruner is the part of the store the retention job needs.
type DedupPruner interface {
	PruneDedup(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneDedupJob returns a job that deletes dedup records older than retention.
func PruneDedupJob(p DedupPruner, retention time.Duration, timeout time.Duration, now func() time.Time) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		cutoff := now().Add(-retention)
		n, err := p.PruneDedup(ctx, cutoff)
		if err != nil {
			slog.Error("Scheduler.PruneDedupJob: prune failed", "cutoff", cutoff, "error", err)
			return
		}
		slog.Info("Scheduler.PruneDedupJob: dedup records pruned", "removed", n, "cutoff", cutoff)
	}
}
