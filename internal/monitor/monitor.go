// Package monitor runs the escalation monitor: a periodic scan that raises
// escalations for delegations that timed out and work items stuck in
// blocked.
package monitor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"crewline/internal/engine"
)

const actorID = "monitor"

// Escalation reasons. The engine dedups on (work item, reason), so these
// strings double as dedup keys.
const (
	ReasonDelegationTimeout = "delegation timed out"
	ReasonBlockedTooLong    = "work item blocked too long"
)

// Service is the background escalation monitor. Start and Stop are
// idempotent; Stop returns immediately without waiting for an in-flight
// scan.
type Service struct {
	Engine            engine.Engine
	Interval          time.Duration
	DelegationTimeout time.Duration
	BlockedTimeout    time.Duration
	Logger            *log.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	scanning atomic.Bool
}

// New builds a Service from the engine's configuration.
func New(eng engine.Engine) *Service {
	cfg := eng.Config
	return &Service{
		Engine:            eng,
		Interval:          cfg.MonitorInterval(),
		DelegationTimeout: cfg.DelegationTimeout(),
		BlockedTimeout:    cfg.BlockedTimeout(),
	}
}

func (s *Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Start launches the periodic scan loop. Calling Start while running is a
// no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	go s.loop(ctx, interval)
}

// Stop cancels the loop. Safe to call multiple times and before Start.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Service) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Skip the tick when the previous scan is still running.
			if !s.scanning.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer s.scanning.Store(false)
				if err := s.Scan(ctx); err != nil {
					s.logger().Printf("monitor: scan failed: %v", err)
				}
			}()
		}
	}
}

// Scan runs one pass over stale delegations and long-blocked items.
// Exported so a scan can be triggered on demand. Per-entity failures are
// logged and do not abort the rest of the pass.
func (s *Service) Scan(ctx context.Context) error {
	now := s.Engine.Now().UTC()

	staleCutoff := now.Add(-s.DelegationTimeout).Format(time.RFC3339)
	stale, err := s.Engine.Repo.ListStaleActiveDelegations(ctx, staleCutoff)
	if err != nil {
		return err
	}
	for _, d := range stale {
		if err := s.raise(ctx, d.WorkItemID, ReasonDelegationTimeout); err != nil {
			s.logger().Printf("monitor: escalate delegation for item %s: %v", d.WorkItemID, err)
		}
	}

	blockedCutoff := now.Add(-s.BlockedTimeout).Format(time.RFC3339)
	blocked, err := s.Engine.Repo.ListBlockedItemsSince(ctx, blockedCutoff)
	if err != nil {
		return err
	}
	for _, w := range blocked {
		if err := s.raise(ctx, w.ID, ReasonBlockedTooLong); err != nil {
			s.logger().Printf("monitor: escalate blocked item %s: %v", w.ID, err)
		}
	}
	return nil
}

func (s *Service) raise(ctx context.Context, workItemID, reason string) error {
	w, err := s.Engine.Repo.GetWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}
	sprint, err := s.Engine.Repo.GetSprint(ctx, w.SprintID)
	if err != nil {
		return err
	}
	_, err = s.Engine.RaiseEscalation(ctx, engine.EscalationOptions{
		TeamID:     sprint.TeamID,
		SprintID:   sprint.ID,
		WorkItemID: workItemID,
		Reason:     reason,
		ActorID:    actorID,
	})
	return err
}
