/*
scheduler.go - Periodic consistency audit

PURPOSE:
  Runs Engine.Audit on a fixed interval so a broken invariant shows up in
  the logs and in the arena_audit_violations gauge without anyone asking.
  The most recent report is kept for GET /api/admin/audit?cached=true.

DESIGN:
  - gocron scheduler with one DurationJob
  - Singleton mode: a slow audit delays the next run instead of overlapping
  - Interval <= 0 disables the schedule; RunOnce still works

USAGE:
  auditor, err := NewAuditor(engine, logger, 5*time.Minute)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - ledger/audit.go: the checks themselves
  - handlers.go: RunAudit endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/warp/arena-ledger/ledger"
)

// Auditor runs the ledger consistency audit on a schedule.
type Auditor struct {
	engine   *ledger.Engine
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time

	sched gocron.Scheduler

	mu      sync.Mutex
	last    *ledger.AuditReport
	lastRun time.Time
}

// NewAuditor creates the scheduler. Nothing runs until Start.
func NewAuditor(engine *ledger.Engine, logger *log.Logger, interval time.Duration) (*Auditor, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Auditor{
		engine:   engine,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		sched:    sched,
	}, nil
}

// Start schedules the audit, running it once immediately.
func (a *Auditor) Start() error {
	if a.interval <= 0 {
		a.logger.Info("audit scheduler disabled")
		return nil
	}

	_, err := a.sched.NewJob(
		gocron.DurationJob(a.interval),
		gocron.NewTask(func() {
			if _, err := a.RunOnce(context.Background()); err != nil {
				a.logger.Error("scheduled audit failed", "err", err)
			}
		}),
		gocron.WithName("ledger-audit"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	a.sched.Start()
	a.logger.Info("audit scheduler started", "interval", a.interval)
	return nil
}

// Stop waits for a running audit to finish and shuts the scheduler down.
func (a *Auditor) Stop() error {
	err := a.sched.Shutdown()
	a.logger.Info("audit scheduler stopped")
	return err
}

// RunOnce audits now and remembers the report.
func (a *Auditor) RunOnce(ctx context.Context) (ledger.AuditReport, error) {
	report, err := a.engine.Audit(ctx)
	if err != nil {
		return ledger.AuditReport{}, err
	}

	ranAt := a.now()
	a.mu.Lock()
	a.last = &report
	a.lastRun = ranAt
	a.mu.Unlock()

	if report.OK() {
		a.logger.Debug("audit clean", "players", report.Players, "matches", report.Matches)
	} else {
		a.logger.Warn("audit found violations", "count", len(report.Violations))
	}
	return report, nil
}

// Last returns the most recent report, if any audit has completed.
func (a *Auditor) Last() (ledger.AuditReport, time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return ledger.AuditReport{}, time.Time{}, false
	}
	return *a.last, a.lastRun, true
}
