// Package dispatcher drives the periodic evaluation paths: schedule-kind
// rule ticks per group and schedule progress recomputation, both on cron
// cadences.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Hakopstar/VcelJAK/pkg/engine"
	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// GroupLister enumerates groups for the periodic rule tick.
type GroupLister interface {
	ListGroupIDs(ctx context.Context) ([]string, error)
}

// ProgressTracker recomputes schedule progress. *schedule.Tracker
// satisfies it.
type ProgressTracker interface {
	RecomputeAll(ctx context.Context)
}

// Config holds the two cron cadences.
type Config struct {
	// RuleCheckSchedule ticks schedule-kind rule evaluation per group,
	// e.g. "* * * * *".
	RuleCheckSchedule string

	// ProgressSchedule recomputes schedule progress, e.g. "*/5 * * * *".
	ProgressSchedule string
}

// Dispatcher fans periodic ticks out to the orchestrator and the
// progress tracker.
type Dispatcher struct {
	cfg          Config
	groups       GroupLister
	orchestrator *engine.Orchestrator
	tracker      ProgressTracker
	cron         *cron.Cron
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a dispatcher. Either cadence may be empty to disable it.
func New(cfg Config, groups GroupLister, orchestrator *engine.Orchestrator, tracker ProgressTracker, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:          cfg,
		groups:       groups,
		orchestrator: orchestrator,
		tracker:      tracker,
		cron:         cron.New(),
		logger:       logger.With("component", "dispatcher"),
	}
}

// Start registers the cron entries and begins ticking. The dispatcher
// stops itself when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.RuleCheckSchedule != "" {
		if _, err := cron.ParseStandard(d.cfg.RuleCheckSchedule); err != nil {
			return fmt.Errorf("invalid rule check schedule %q: %w", d.cfg.RuleCheckSchedule, err)
		}
		if _, err := d.cron.AddFunc(d.cfg.RuleCheckSchedule, func() { d.tickRules(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule rule checks: %w", err)
		}
	} else {
		d.logger.Info("rule check cadence not configured, skipping")
	}

	if d.cfg.ProgressSchedule != "" {
		if _, err := cron.ParseStandard(d.cfg.ProgressSchedule); err != nil {
			return fmt.Errorf("invalid progress schedule %q: %w", d.cfg.ProgressSchedule, err)
		}
		if _, err := d.cron.AddFunc(d.cfg.ProgressSchedule, func() { d.tracker.RecomputeAll(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule progress recompute: %w", err)
		}
	} else {
		d.logger.Info("progress cadence not configured, skipping")
	}

	d.cron.Start()
	d.running = true
	d.logger.Info("dispatcher started",
		"rule_check_schedule", d.cfg.RuleCheckSchedule,
		"progress_schedule", d.cfg.ProgressSchedule)

	go func() {
		<-ctx.Done()
		d.Stop()
	}()
	return nil
}

// tickRules runs one schedule-kind evaluation pass across all groups.
func (d *Dispatcher) tickRules(ctx context.Context) {
	ids, err := d.groups.ListGroupIDs(ctx)
	if err != nil {
		d.logger.Error("failed to list groups", "error", err)
		return
	}
	now := time.Now()
	for _, groupID := range ids {
		if _, err := d.orchestrator.CheckAndTrigger(ctx, model.TriggerEvent{
			GroupID:   groupID,
			Kind:      model.EventSchedule,
			Timestamp: now,
		}); err != nil {
			d.logger.Error("scheduled rule check failed", "group_id", groupID, "error", err)
		}
	}
}

// Stop halts the cron loop and waits for running jobs to finish. Safe to
// call multiple times.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		<-d.cron.Stop().Done()
		d.running = false
		d.logger.Info("dispatcher stopped")
	}
}

// NextRuleCheck returns the next scheduled tick, if any.
func (d *Dispatcher) NextRuleCheck() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
