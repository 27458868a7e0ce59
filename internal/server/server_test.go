package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/api/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// seedSprint creates an org, team and sprint, returning the sprint id.
func seedSprint(t *testing.T, srv *testServer) string {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/orgs", map[string]any{"name": "acme"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create org: %d %s", res.StatusCode, string(data))
	}
	var org domain.Organization
	_ = json.Unmarshal(data, &org)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/teams", map[string]any{
		"org_id": org.ID,
		"name":   "core",
		"members": []map[string]any{
			{"agent_id": "lead-1", "role": "lead"},
			{"agent_id": "dev-1", "role": "developer"},
		},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create team: %d %s", res.StatusCode, string(data))
	}
	var team domain.Team
	_ = json.Unmarshal(data, &team)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/sprints", map[string]any{
		"team_id": team.ID,
		"name":    "sprint-1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint: %d %s", res.StatusCode, string(data))
	}
	var sprint domain.Sprint
	_ = json.Unmarshal(data, &sprint)
	return sprint.ID
}

func createItem(t *testing.T, srv *testServer, sprintID, title string) domain.WorkItem {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/items", map[string]any{
		"sprint_id": sprintID,
		"title":     title,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item: %d %s", res.StatusCode, string(data))
	}
	var w domain.WorkItem
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	return w
}

func TestDelegationLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sprintID := seedSprint(t, srv)
	item := createItem(t, srv, sprintID, "Ship feature")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items/"+item.ID+"/delegate", map[string]any{
		"to_agent_id": "dev-1",
		"session_key": "sess-1",
		"isolated":    true,
	}, map[string]string{"X-Actor-Id": "lead-1"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("delegate: %d %s", res.StatusCode, string(data))
	}
	var d domain.Delegation
	_ = json.Unmarshal(data, &d)
	if d.FromAgentID != "lead-1" || d.Status != "active" {
		t.Fatalf("unexpected delegation: %+v", d)
	}

	// duplicate session key conflicts
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items/"+item.ID+"/delegate", map[string]any{
		"to_agent_id": "dev-2",
		"session_key": "sess-1",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "conflict" {
		t.Fatalf("expected conflict code, got %s", string(data))
	}

	// session ends via the hook
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/hooks/subagent-ended", map[string]any{
		"target_session_key": "sess-1",
		"outcome":            "ok",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("hook: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/items/"+item.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get item: %d %s", res.StatusCode, string(data))
	}
	var fetched domain.WorkItem
	_ = json.Unmarshal(data, &fetched)
	if len(fetched.Delegations) != 1 || fetched.Delegations[0].Status != "completed" {
		t.Fatalf("unexpected delegations: %+v", fetched.Delegations)
	}

	// unknown session is accepted as a no-op
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/hooks/subagent-ended", map[string]any{
		"target_session_key": "ghost",
		"outcome":            "error",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("no-op hook: %d %s", res.StatusCode, string(data))
	}
}

func TestSprintIllegalTransitionOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	sprintID := seedSprint(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/sprints/"+sprintID+"/transition", map[string]any{
		"state": "closed",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %s", string(data))
	}
}

func TestReviewFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sprintID := seedSprint(t, srv)
	item := createItem(t, srv, sprintID, "Review me")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items/"+item.ID+"/review", map[string]any{
		"reviewer_agent_id": "lead-1",
	}, map[string]string{"X-Actor-Id": "dev-1"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request review: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items/"+item.ID+"/verdict", map[string]any{
		"reviewer_agent_id": "lead-1",
		"verdict":           "changes_requested",
		"feedback":          "needs error handling",
		"concerns": []map[string]any{
			{"file": "auth.go", "severity": "must_fix", "description": "nil deref"},
		},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verdict: %d %s", res.StatusCode, string(data))
	}
	var rv domain.Review
	_ = json.Unmarshal(data, &rv)
	if rv.Status != "resolved" || rv.Verdict == nil || *rv.Verdict != "changes_requested" {
		t.Fatalf("unexpected review: %+v", rv)
	}

	// no pending review left
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items/"+item.ID+"/verdict", map[string]any{
		"reviewer_agent_id": "lead-1",
		"verdict":           "approved",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestPRMergedHook(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sprintID := seedSprint(t, srv)
	ref := "https://github.com/acme/app/pull/7"

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/items", map[string]any{
		"sprint_id":     sprintID,
		"title":         "PR-tracked",
		"external_refs": []string{ref},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/hooks/pr-merged", map[string]any{
		"url": ref,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pr-merged: %d %s", res.StatusCode, string(data))
	}
	var w domain.WorkItem
	_ = json.Unmarshal(data, &w)
	if w.State != "done" {
		t.Fatalf("expected done, got %s", w.State)
	}

	// unknown ref is 404
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/hooks/pr-merged", map[string]any{
		"url": "https://github.com/acme/app/pull/999",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestA2AValidateEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/a2a/validate", map[string]any{
		"protocol":  "a2a/1",
		"messageId": "m-1",
		"timestamp": "2024-01-01T00:00:00Z",
		"from":      map[string]any{"agentId": "dev-1", "role": "developer"},
		"to":        map[string]any{"agentId": "lead-1", "role": "lead"},
		"type":      "status_update",
		"priority":  "normal",
		"payload":   map[string]any{"status": "started", "progress": "kicked off"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, string(data))
	}
	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Path string `json:"path"`
			Rule string `json:"rule"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid message: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/a2a/validate", map[string]any{
		"protocol": "a2a/0",
		"type":     "broadcast",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate invalid: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Valid || len(result.Errors) < 2 {
		t.Fatalf("expected multiple errors, got %s", string(data))
	}
}

func TestHealthAndEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}

	sprintID := seedSprint(t, srv)
	createItem(t, srv, sprintID, "Eventful")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events?type=item.created", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var evts []domain.Event
	_ = json.Unmarshal(data, &evts)
	if len(evts) != 1 || evts[0].Type != "item.created" {
		t.Fatalf("expected one item.created event, got %s", string(data))
	}

	// unfiltered listing crosses org-scoped rows with no team id
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/events", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unfiltered events: %d %s", res.StatusCode, string(data))
	}
	evts = nil
	_ = json.Unmarshal(data, &evts)
	var sawOrg bool
	for _, ev := range evts {
		if ev.Type == "org.created" {
			sawOrg = true
		}
	}
	if !sawOrg {
		t.Fatalf("org.created missing from unfiltered listing: %s", string(data))
	}
}

type codedErr struct {
	code int
}

func (e codedErr) Error() string { return "disk I/O error" }
func (e codedErr) Code() int     { return e.code }

func TestHandleErrorStorageFaults(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"conn done", sql.ErrConnDone, "unavailable"},
		{"tx done", sql.ErrTxDone, "unavailable"},
		{"sqlite ioerr", codedErr{code: 10}, "unavailable"},
		{"sqlite ioerr extended", codedErr{code: 10 | (1 << 8)}, "unavailable"},
		{"sqlite cantopen", codedErr{code: 14}, "unavailable"},
		{"sqlite generic error", codedErr{code: 1}, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ae, ok := handleError(tc.err).(*apiError)
			if !ok {
				t.Fatalf("unexpected error type %T", handleError(tc.err))
			}
			if ae.Body.Code != tc.code {
				t.Fatalf("got code %s, want %s", ae.Body.Code, tc.code)
			}
			if tc.code == "unavailable" && ae.GetStatus() != http.StatusServiceUnavailable {
				t.Fatalf("got status %d", ae.GetStatus())
			}
		})
	}
}
