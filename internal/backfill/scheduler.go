package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Off disables the schedule when used as the cron expression.
const Off = "off"

// Runner is the work a Scheduler triggers.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler runs a Runner whenever its cron expression is due, checking once
// per minute.
type Scheduler struct {
	expr   string
	runner Runner
	gron   *gronx.Gronx
	log    *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewScheduler validates expr and returns a Scheduler. It returns nil and no
// error when expr is "off" or empty.
func NewScheduler(expr string, runner Runner, log *slog.Logger) (*Scheduler, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, Off) {
		return nil, nil
	}
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return nil, fmt.Errorf("backfill: invalid cron expression %q", expr)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{expr: expr, runner: runner, gron: gron, log: log}, nil
}

// Next returns the next time the schedule fires after ref.
func (s *Scheduler) Next(ref time.Time) (time.Time, error) {
	t, err := gronx.NextTickAfter(s.expr, ref, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("backfill: next tick: %w", err)
	}
	return t, nil
}

// Start checks the schedule at every minute boundary until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if next, err := s.Next(time.Now()); err == nil {
		s.log.Info("backfill: schedule active", slog.String("cron", s.expr), slog.Time("next", next))
	}

	nextMinute := time.Now().Truncate(time.Minute).Add(time.Minute)
	align := time.NewTimer(time.Until(nextMinute))
	defer align.Stop()
	select {
	case <-ctx.Done():
		return
	case <-align.C:
		s.check(ctx, time.Now())
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.check(ctx, t)
		}
	}
}

// check runs the job when the schedule is due at now, at most once per
// minute window.
func (s *Scheduler) check(ctx context.Context, now time.Time) bool {
	minute := now.Truncate(time.Minute)
	due, err := s.gron.IsDue(s.expr, minute)
	if err != nil {
		s.log.Error("backfill: cron evaluation failed", slog.String("cron", s.expr), slog.String("error", err.Error()))
		return false
	}
	if !due {
		return false
	}

	s.mu.Lock()
	if s.lastRun.Equal(minute) {
		s.mu.Unlock()
		return false
	}
	s.lastRun = minute
	s.mu.Unlock()

	rep, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Error("backfill: scheduled run failed", slog.String("error", err.Error()))
		return true
	}
	s.log.Info("backfill: scheduled run complete",
		slog.Int("exported", rep.Exported),
		slog.String("location", rep.Location),
	)
	return true
}
