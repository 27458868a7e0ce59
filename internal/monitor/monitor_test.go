package monitor_test

import (
	"context"
	"testing"
	"time"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/monitor"
)

type testEnv struct {
	Engine engine.Engine
	Svc    *monitor.Service
	Ctx    context.Context
	Sprint domain.Sprint
	Clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()

	org, err := eng.CreateOrganization(ctx, "acme", "tester")
	if err != nil {
		t.Fatal(err)
	}
	team, err := eng.CreateTeam(ctx, engine.TeamCreateOptions{
		OrgID:   org.ID,
		Name:    "core",
		Members: []domain.TeamMember{{AgentID: "dev-1", Role: "developer"}},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	sprint, err := eng.CreateSprint(ctx, engine.SprintCreateOptions{TeamID: team.ID, Name: "sprint-1", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	svc := monitor.New(eng)
	svc.DelegationTimeout = 30 * time.Minute
	svc.BlockedTimeout = 2 * time.Hour
	return &testEnv{Engine: eng, Svc: svc, Ctx: ctx, Sprint: sprint, Clock: &clock}
}

func (env *testEnv) advance(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func TestScanEscalatesStaleDelegation(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		SprintID: env.Sprint.ID, Title: "slow work", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Delegate(env.Ctx, engine.DelegateOptions{
		WorkItemID: w.ID, FromAgentID: "lead-1", ToAgentID: "dev-1", SessionKey: "sess-1",
	}); err != nil {
		t.Fatal(err)
	}

	// fresh delegation, nothing to escalate
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	open, _ := env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 0 {
		t.Fatalf("expected no escalations yet, got %d", len(open))
	}

	env.advance(45 * time.Minute)
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	open, _ = env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 1 || open[0].Reason != monitor.ReasonDelegationTimeout {
		t.Fatalf("expected delegation timeout escalation, got %+v", open)
	}

	// repeated scans do not duplicate
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatal(err)
	}
	open, _ = env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 1 {
		t.Fatalf("expected dedup, got %d escalations", len(open))
	}

	// completing the delegation stops further escalations after resolve
	if err := env.Engine.CompleteDelegation(env.Ctx, w.ID, "sess-1", "completed", "finally done"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveEscalation(env.Ctx, open[0].ID, "delegate finished", "lead-1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatal(err)
	}
	open, _ = env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 0 {
		t.Fatalf("expected no open escalations, got %+v", open)
	}
}

func TestScanEscalatesLongBlockedItem(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWorkItem(env.Ctx, engine.WorkItemCreateOptions{
		SprintID: env.Sprint.ID, Title: "stuck work", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateItemState(env.Ctx, w.ID, "in_progress", "dev-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ReportBlocked(env.Ctx, w.ID, "dev-1"); err != nil {
		t.Fatal(err)
	}

	env.advance(time.Hour)
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatal(err)
	}
	open, _ := env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 0 {
		t.Fatalf("blocked under threshold, expected none, got %d", len(open))
	}

	env.advance(90 * time.Minute)
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatal(err)
	}
	open, _ = env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 1 || open[0].Reason != monitor.ReasonBlockedTooLong {
		t.Fatalf("expected blocked escalation, got %+v", open)
	}

	// unblocking resets the clock
	if _, err := env.Engine.UpdateItemState(env.Ctx, w.ID, "in_progress", "dev-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveEscalation(env.Ctx, open[0].ID, "unblocked", "lead-1"); err != nil {
		t.Fatal(err)
	}
	if err := env.Svc.Scan(env.Ctx); err != nil {
		t.Fatal(err)
	}
	open, _ = env.Engine.ListOpenEscalations(env.Ctx, "", "")
	if len(open) != 0 {
		t.Fatalf("expected none after unblock, got %+v", open)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.Svc.Interval = 10 * time.Millisecond

	ctx := context.Background()
	env.Svc.Start(ctx)
	env.Svc.Start(ctx) // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	env.Svc.Stop()
	env.Svc.Stop() // second stop is a no-op
	// a stopped service can be started again
	env.Svc.Start(ctx)
	env.Svc.Stop()
}
