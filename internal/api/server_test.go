package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"remsim/internal/playbook"
	"remsim/internal/simulation"
)

// testEnvelope mirrors the response envelope for decoding in assertions.
type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Errors  []string        `json:"errors"`
}

type fakePlaybookStore struct {
	mu        sync.Mutex
	playbooks map[string]*playbook.Playbook
	createErr error
	updateErr error
}

func newFakePlaybookStore() *fakePlaybookStore {
	return &fakePlaybookStore{playbooks: make(map[string]*playbook.Playbook)}
}

func pbKey(tenantID, id string) string { return tenantID + "/" + id }

func (f *fakePlaybookStore) CreatePlaybook(_ context.Context, pb *playbook.Playbook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.playbooks {
		if existing.TenantID == pb.TenantID && existing.Name == pb.Name {
			return fmt.Errorf("%w: %q", playbook.ErrDuplicateName, pb.Name)
		}
	}
	pb.CreatedAt = time.Now().UTC()
	pb.UpdatedAt = pb.CreatedAt
	clone := *pb
	f.playbooks[pbKey(pb.TenantID, pb.ID)] = &clone
	return nil
}

func (f *fakePlaybookStore) GetPlaybook(_ context.Context, tenantID, id string) (*playbook.Playbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pb, ok := f.playbooks[pbKey(tenantID, id)]
	if !ok {
		return nil, playbook.ErrNotFound
	}
	clone := *pb
	return &clone, nil
}

func (f *fakePlaybookStore) ListPlaybooks(_ context.Context, tenantID string) ([]*playbook.Playbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*playbook.Playbook
	for _, pb := range f.playbooks {
		if pb.TenantID == tenantID {
			clone := *pb
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakePlaybookStore) UpdatePlaybook(_ context.Context, pb *playbook.Playbook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.playbooks[pbKey(pb.TenantID, pb.ID)]; !ok {
		return playbook.ErrNotFound
	}
	clone := *pb
	f.playbooks[pbKey(pb.TenantID, pb.ID)] = &clone
	return nil
}

func (f *fakePlaybookStore) DeletePlaybook(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playbooks[pbKey(tenantID, id)]; !ok {
		return playbook.ErrNotFound
	}
	delete(f.playbooks, pbKey(tenantID, id))
	return nil
}

type fakeRunStore struct {
	mu         sync.Mutex
	runs       map[string]*simulation.Run
	lastLimit  int
	lastOffset int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]*simulation.Run)}
}

func (f *fakeRunStore) GetRun(_ context.Context, tenantID, id string) (*simulation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[pbKey(tenantID, id)]
	if !ok {
		return nil, simulation.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRunStore) ListRuns(_ context.Context, tenantID string, limit, offset int) ([]*simulation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit, f.lastOffset = limit, offset
	var out []*simulation.Run
	for _, run := range f.runs {
		if run.TenantID == tenantID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeRunStore) ListRunsByPlaybook(_ context.Context, tenantID, playbookID string, limit, offset int) ([]*simulation.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit, f.lastOffset = limit, offset
	var out []*simulation.Run
	for _, run := range f.runs {
		if run.TenantID == tenantID && run.PlaybookID == playbookID {
			out = append(out, run)
		}
	}
	return out, nil
}

type fakeRunner struct {
	run func(ctx context.Context, tenantID, playbookID string, windowDays int) (*simulation.Run, error)
}

func (f *fakeRunner) Run(ctx context.Context, tenantID, playbookID string, windowDays int) (*simulation.Run, error) {
	return f.run(ctx, tenantID, playbookID, windowDays)
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testHarness struct {
	playbooks *fakePlaybookStore
	runs      *fakeRunStore
	runner    *fakeRunner
	storePing *fakePinger
	handler   http.Handler
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		playbooks: newFakePlaybookStore(),
		runs:      newFakeRunStore(),
		runner: &fakeRunner{run: func(context.Context, string, string, int) (*simulation.Run, error) {
			return &simulation.Run{Status: simulation.StatusCompleted}, nil
		}},
		storePing: &fakePinger{},
	}
	logger := slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := NewServer(h.playbooks, h.runs, h.runner, h.storePing, nil, logger)
	h.handler = srv.Routes(RateLimitConfig{Enabled: false})
	t.Cleanup(srv.Close)
	return h
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (h *testHarness) do(t *testing.T, method, path, tenant, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return rec, env
}

const validPlaybookBody = `{
	"name": "quiet hours",
	"description": "mute noisy rules overnight",
	"config": {
		"actions": [
			{"type": "disable_rule", "ruleId": "r-noisy-1"},
			{"type": "suppress_notification_channel", "channel": "email", "durationMinutes": 60}
		]
	}
}`

// TestRoutes_TenantRequired verifies every /v1 route rejects requests
// without the tenant header, while /health stays open.
func TestRoutes_TenantRequired(t *testing.T) {
	h := newTestHarness(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/playbooks"},
		{http.MethodPost, "/v1/playbooks"},
		{http.MethodGet, "/v1/playbooks/abc"},
		{http.MethodGet, "/v1/runs"},
		{http.MethodPost, "/v1/runs"},
	}
	for _, p := range paths {
		rec, env := h.do(t, p.method, p.path, "", "{}")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without tenant = %d, want 401", p.method, p.path, rec.Code)
		}
		if env.Success || env.Error != "missing X-Tenant-ID header" {
			t.Errorf("%s %s envelope = %+v", p.method, p.path, env)
		}
	}

	rec, env := h.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("health without tenant = %d success=%v", rec.Code, env.Success)
	}
}

// TestRoutes_Health verifies the health payload reflects backend
// reachability without dropping the 200.
func TestRoutes_Health(t *testing.T) {
	h := newTestHarness(t)

	rec, env := h.do(t, http.MethodGet, "/health", "", "")
	var health map[string]string
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("bad health payload: %v", err)
	}
	if rec.Code != http.StatusOK || health["status"] != "ok" || health["store"] != "ok" {
		t.Errorf("healthy response = %d %v", rec.Code, health)
	}
	if health["metrics"] != "disabled" {
		t.Errorf("metrics = %q, want disabled when no monitoring store is wired", health["metrics"])
	}

	h.storePing.err = errors.New("connection refused")
	rec, env = h.do(t, http.MethodGet, "/health", "", "")
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("bad health payload: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("degraded status code = %d, want 200", rec.Code)
	}
	if health["status"] != "degraded" || health["store"] != "unreachable" {
		t.Errorf("degraded response = %v", health)
	}
}

// TestServer_CreatePlaybook covers the create happy path and defaults.
func TestServer_CreatePlaybook(t *testing.T) {
	h := newTestHarness(t)

	rec, env := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create = %d success=%v error=%q", rec.Code, env.Success, env.Error)
	}

	var pb playbook.Playbook
	if err := json.Unmarshal(env.Data, &pb); err != nil {
		t.Fatalf("bad playbook payload: %v", err)
	}
	if pb.ID == "" || pb.TenantID != "acme" || pb.Name != "quiet hours" {
		t.Errorf("created playbook = %+v", pb)
	}
	if !pb.IsActive {
		t.Error("isActive should default to true")
	}
	if len(pb.Config.Actions) != 2 {
		t.Errorf("actions = %d, want 2", len(pb.Config.Actions))
	}
}

// TestServer_CreatePlaybook_Validation verifies itemized 400s for request
// and config failures together.
func TestServer_CreatePlaybook_Validation(t *testing.T) {
	h := newTestHarness(t)

	rec, env := h.do(t, http.MethodPost, "/v1/playbooks", "acme", `{"config":{"actions":[]}}`)
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("create = %d success=%v", rec.Code, env.Success)
	}
	if env.Error != "validation failed" {
		t.Errorf("error = %q", env.Error)
	}
	want := []string{"name is required", "actions must contain 1-20 entries"}
	for _, msg := range want {
		if !containsString(env.Errors, msg) {
			t.Errorf("errors %v missing %q", env.Errors, msg)
		}
	}
}

// TestServer_CreatePlaybook_MalformedBody verifies a non-JSON body and an
// unknown action type are both plain 400s.
func TestServer_CreatePlaybook_MalformedBody(t *testing.T) {
	h := newTestHarness(t)

	rec, env := h.do(t, http.MethodPost, "/v1/playbooks", "acme", "not json")
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Errorf("malformed body = %d success=%v", rec.Code, env.Success)
	}

	body := `{"name":"x","config":{"actions":[{"type":"reboot_world"}]}}`
	rec, env = h.do(t, http.MethodPost, "/v1/playbooks", "acme", body)
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Errorf("unknown action = %d success=%v", rec.Code, env.Success)
	}
	if !strings.Contains(env.Error, "invalid request body") {
		t.Errorf("error = %q", env.Error)
	}
}

// TestServer_CreatePlaybook_DuplicateName verifies the 409 mapping.
func TestServer_CreatePlaybook_DuplicateName(t *testing.T) {
	h := newTestHarness(t)

	if rec, _ := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody); rec.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rec.Code)
	}
	rec, env := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	if rec.Code != http.StatusConflict || env.Success {
		t.Errorf("duplicate create = %d success=%v", rec.Code, env.Success)
	}
	if !strings.Contains(env.Error, "already in use") {
		t.Errorf("error = %q", env.Error)
	}

	// Another tenant can reuse the name.
	if rec, _ := h.do(t, http.MethodPost, "/v1/playbooks", "rival", validPlaybookBody); rec.Code != http.StatusCreated {
		t.Errorf("cross-tenant create = %d, want 201", rec.Code)
	}
}

// TestServer_GetPlaybook covers the fetch path and tenant scoping.
func TestServer_GetPlaybook(t *testing.T) {
	h := newTestHarness(t)

	_, created := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	var pb playbook.Playbook
	if err := json.Unmarshal(created.Data, &pb); err != nil {
		t.Fatalf("bad create payload: %v", err)
	}

	rec, env := h.do(t, http.MethodGet, "/v1/playbooks/"+pb.ID, "acme", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("get = %d success=%v", rec.Code, env.Success)
	}

	rec, env = h.do(t, http.MethodGet, "/v1/playbooks/"+pb.ID, "rival", "")
	if rec.Code != http.StatusNotFound || env.Error != "playbook not found" {
		t.Errorf("cross-tenant get = %d %q", rec.Code, env.Error)
	}

	rec, _ = h.do(t, http.MethodGet, "/v1/playbooks/nope", "acme", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown get = %d, want 404", rec.Code)
	}
}

// TestServer_UpdatePlaybook verifies partial patches keep unspecified
// fields and a supplied config is revalidated.
func TestServer_UpdatePlaybook(t *testing.T) {
	h := newTestHarness(t)

	_, created := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	var pb playbook.Playbook
	if err := json.Unmarshal(created.Data, &pb); err != nil {
		t.Fatalf("bad create payload: %v", err)
	}

	rec, env := h.do(t, http.MethodPatch, "/v1/playbooks/"+pb.ID, "acme", `{"isActive": false}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("patch = %d success=%v error=%q", rec.Code, env.Success, env.Error)
	}
	var patched playbook.Playbook
	if err := json.Unmarshal(env.Data, &patched); err != nil {
		t.Fatalf("bad patch payload: %v", err)
	}
	if patched.IsActive {
		t.Error("isActive not updated")
	}
	if patched.Name != "quiet hours" || len(patched.Config.Actions) != 2 {
		t.Errorf("unrelated fields changed: %+v", patched)
	}

	rec, env = h.do(t, http.MethodPatch, "/v1/playbooks/"+pb.ID, "acme", `{"name": ""}`)
	if rec.Code != http.StatusBadRequest || !containsString(env.Errors, "name must not be empty") {
		t.Errorf("empty name patch = %d %v", rec.Code, env.Errors)
	}

	rec, env = h.do(t, http.MethodPatch, "/v1/playbooks/"+pb.ID, "acme", `{"config":{"actions":[]}}`)
	if rec.Code != http.StatusBadRequest || !containsString(env.Errors, "actions must contain 1-20 entries") {
		t.Errorf("empty config patch = %d %v", rec.Code, env.Errors)
	}

	rec, _ = h.do(t, http.MethodPatch, "/v1/playbooks/nope", "acme", `{"isActive": true}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown patch = %d, want 404", rec.Code)
	}
}

// TestServer_DeletePlaybook covers delete and its 404.
func TestServer_DeletePlaybook(t *testing.T) {
	h := newTestHarness(t)

	_, created := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	var pb playbook.Playbook
	if err := json.Unmarshal(created.Data, &pb); err != nil {
		t.Fatalf("bad create payload: %v", err)
	}

	rec, env := h.do(t, http.MethodDelete, "/v1/playbooks/"+pb.ID, "acme", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("delete = %d success=%v", rec.Code, env.Success)
	}

	rec, _ = h.do(t, http.MethodDelete, "/v1/playbooks/"+pb.ID, "acme", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

// TestServer_ListPlaybooks verifies the list payload shape.
func TestServer_ListPlaybooks(t *testing.T) {
	h := newTestHarness(t)

	h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)

	rec, env := h.do(t, http.MethodGet, "/v1/playbooks", "acme", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("list = %d success=%v", rec.Code, env.Success)
	}
	var page struct {
		Playbooks []playbook.Playbook `json:"playbooks"`
		Total     int                 `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("bad list payload: %v", err)
	}
	if page.Total != 1 || len(page.Playbooks) != 1 {
		t.Errorf("page = %+v", page)
	}
}

// TestServer_CreateRun verifies the synchronous run endpoint maps runner
// outcomes onto statuses: terminal runs are 200 even when failed.
func TestServer_CreateRun(t *testing.T) {
	h := newTestHarness(t)

	h.runner.run = func(_ context.Context, tenantID, playbookID string, windowDays int) (*simulation.Run, error) {
		if tenantID != "acme" || playbookID != "pb1" || windowDays != 14 {
			t.Errorf("runner called with %s/%s/%d", tenantID, playbookID, windowDays)
		}
		return &simulation.Run{
			ID:         "run1",
			TenantID:   tenantID,
			PlaybookID: playbookID,
			Status:     simulation.StatusCompleted,
			Effect:     simulation.EffectPositive,
		}, nil
	}

	rec, env := h.do(t, http.MethodPost, "/v1/runs", "acme", `{"playbookId":"pb1","windowDays":14}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("create run = %d success=%v error=%q", rec.Code, env.Success, env.Error)
	}
	var run simulation.Run
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("bad run payload: %v", err)
	}
	if run.ID != "run1" || run.Status != simulation.StatusCompleted {
		t.Errorf("run = %+v", run)
	}
}

// TestServer_CreateRun_FailedRunIs200 verifies a baseline outage yields a
// failed run record, not an HTTP error.
func TestServer_CreateRun_FailedRunIs200(t *testing.T) {
	h := newTestHarness(t)

	h.runner.run = func(_ context.Context, tenantID, playbookID string, _ int) (*simulation.Run, error) {
		return &simulation.Run{
			TenantID:     tenantID,
			PlaybookID:   playbookID,
			Status:       simulation.StatusFailed,
			ErrorMessage: "baseline data unavailable for the requested window",
		}, nil
	}

	rec, env := h.do(t, http.MethodPost, "/v1/runs", "acme", `{"playbookId":"pb1"}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("failed run = %d success=%v", rec.Code, env.Success)
	}
	var run simulation.Run
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("bad run payload: %v", err)
	}
	if run.Status != simulation.StatusFailed || run.ErrorMessage == "" {
		t.Errorf("run = %+v", run)
	}
}

// TestServer_CreateRun_ErrorMapping covers the runner error translations.
func TestServer_CreateRun_ErrorMapping(t *testing.T) {
	h := newTestHarness(t)

	tests := []struct {
		name       string
		runnerErr  error
		wantStatus int
		wantError  string
	}{
		{
			"unknown playbook",
			fmt.Errorf("lookup: %w", playbook.ErrNotFound),
			http.StatusNotFound,
			"playbook not found",
		},
		{
			"invalid window",
			&playbook.ValidationError{Errors: []string{"windowDays must be between 1 and 365"}},
			http.StatusBadRequest,
			"validation failed",
		},
		{
			"storage outage",
			errors.New("sqlite: disk I/O error"),
			http.StatusInternalServerError,
			"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h.runner.run = func(context.Context, string, string, int) (*simulation.Run, error) {
				return nil, tc.runnerErr
			}
			rec, env := h.do(t, http.MethodPost, "/v1/runs", "acme", `{"playbookId":"pb1"}`)
			if rec.Code != tc.wantStatus || env.Success {
				t.Errorf("status = %d success=%v, want %d", rec.Code, env.Success, tc.wantStatus)
			}
			if tc.wantError != "" && env.Error != tc.wantError {
				t.Errorf("error = %q, want %q", env.Error, tc.wantError)
			}
		})
	}
}

// TestServer_CreateRun_MissingPlaybookID verifies the request-level check.
func TestServer_CreateRun_MissingPlaybookID(t *testing.T) {
	h := newTestHarness(t)

	rec, env := h.do(t, http.MethodPost, "/v1/runs", "acme", `{"windowDays":30}`)
	if rec.Code != http.StatusBadRequest || !containsString(env.Errors, "playbookId is required") {
		t.Errorf("missing playbookId = %d %v", rec.Code, env.Errors)
	}
}

// TestServer_GetRun covers the run fetch 404.
func TestServer_GetRun(t *testing.T) {
	h := newTestHarness(t)

	h.runs.runs[pbKey("acme", "run1")] = &simulation.Run{ID: "run1", TenantID: "acme", Status: simulation.StatusCompleted}

	rec, env := h.do(t, http.MethodGet, "/v1/runs/run1", "acme", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("get run = %d success=%v", rec.Code, env.Success)
	}

	rec, env = h.do(t, http.MethodGet, "/v1/runs/run1", "rival", "")
	if rec.Code != http.StatusNotFound || env.Error != "run not found" {
		t.Errorf("cross-tenant get run = %d %q", rec.Code, env.Error)
	}
}

// TestServer_ListRuns_Pagination verifies query parsing, rejection of bad
// values and the clamp on oversized limits.
func TestServer_ListRuns_Pagination(t *testing.T) {
	h := newTestHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/v1/runs", "acme", "")
	if rec.Code != http.StatusOK {
		t.Errorf("default list = %d", rec.Code)
	}
	if h.runs.lastLimit != 50 || h.runs.lastOffset != 0 {
		t.Errorf("defaults = limit %d offset %d, want 50/0", h.runs.lastLimit, h.runs.lastOffset)
	}

	h.do(t, http.MethodGet, "/v1/runs?limit=5000&offset=10", "acme", "")
	if h.runs.lastLimit != 200 || h.runs.lastOffset != 10 {
		t.Errorf("clamped = limit %d offset %d, want 200/10", h.runs.lastLimit, h.runs.lastOffset)
	}

	for _, q := range []string{"limit=0", "limit=-1", "limit=abc", "offset=-1", "offset=abc"} {
		rec, env := h.do(t, http.MethodGet, "/v1/runs?"+q, "acme", "")
		if rec.Code != http.StatusBadRequest || env.Success {
			t.Errorf("query %q = %d success=%v, want 400", q, rec.Code, env.Success)
		}
	}
}

// TestServer_ListPlaybookRuns verifies the playbook-scoped listing and its
// 404 for an unknown playbook.
func TestServer_ListPlaybookRuns(t *testing.T) {
	h := newTestHarness(t)

	_, created := h.do(t, http.MethodPost, "/v1/playbooks", "acme", validPlaybookBody)
	var pb playbook.Playbook
	if err := json.Unmarshal(created.Data, &pb); err != nil {
		t.Fatalf("bad create payload: %v", err)
	}
	h.runs.runs[pbKey("acme", "run1")] = &simulation.Run{ID: "run1", TenantID: "acme", PlaybookID: pb.ID}

	rec, env := h.do(t, http.MethodGet, "/v1/playbooks/"+pb.ID+"/runs", "acme", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("list = %d success=%v", rec.Code, env.Success)
	}
	var page struct {
		Runs  []simulation.Run `json:"runs"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("bad page payload: %v", err)
	}
	if page.Count != 1 || len(page.Runs) != 1 {
		t.Errorf("page = %+v", page)
	}

	rec, env = h.do(t, http.MethodGet, "/v1/playbooks/nope/runs", "acme", "")
	if rec.Code != http.StatusNotFound || env.Error != "playbook not found" {
		t.Errorf("unknown playbook runs = %d %q", rec.Code, env.Error)
	}
}

// TestRateLimitMiddleware verifies the window budget, headers and the 429
// envelope, plus the exempt path carve-out.
func TestRateLimitMiddleware(t *testing.T) {
	cfg := RateLimitConfig{
		Enabled:       true,
		RequestsPerIP: 2,
		WindowSize:    time.Minute,
		CleanupPeriod: time.Minute,
		ExemptPaths:   []string{"/health"},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limit, stop := RateLimitMiddleware(cfg, slog.New(slog.NewTextHandler(discardWriter{}, nil)))
	defer stop()
	handler := limit(next)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("rate limit headers = %v", rec.Header())
	}
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("429 body is not an envelope: %v", err)
	}
	if env.Success || env.Error != "too many requests" {
		t.Errorf("429 envelope = %+v", env)
	}

	// Exempt paths never consume budget.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("exempt path = %d, want 200", rec.Code)
	}
}

// TestRateLimitMiddleware_Stop verifies every construction path yields a
// working stop function so rebuilt handlers do not leak the cleanup loop.
func TestRateLimitMiddleware_Stop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))

	// Disabled configs get an identity middleware and a no-op stop.
	limit, stop := RateLimitMiddleware(RateLimitConfig{Enabled: false}, logger)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	limit(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("disabled limiter = %d, want 200", rec.Code)
	}
	stop()
	stop()

	// Enabled limiters stop cleanly, repeatedly.
	_, stop = RateLimitMiddleware(DefaultRateLimitConfig(), logger)
	stop()
	stop()

	// Routes wires the stop into Server.Close, which is idempotent too.
	srv := NewServer(newFakePlaybookStore(), newFakeRunStore(), &fakeRunner{}, &fakePinger{}, nil, logger)
	srv.Routes(DefaultRateLimitConfig())
	srv.Close()
	srv.Close()
}

// TestSecurityHeadersMiddleware verifies the fixed header set.
func TestSecurityHeadersMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/playbooks", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
