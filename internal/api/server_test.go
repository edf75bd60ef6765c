package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/crib-agent/internal/infrastructure/config"
	"github.com/nerrad567/crib-agent/internal/infrastructure/logging"
	"github.com/nerrad567/crib-agent/internal/state"
	"github.com/nerrad567/crib-agent/internal/supervisor"
)

type staticDrivers []string

func (d staticDrivers) Names() []string { return d }

type failingStore struct{ state.Store }

func (failingStore) List(context.Context) ([]state.Attribute, error) {
	return nil, state.ErrStoreUnavailable
}

func (failingStore) Get(context.Context, string) (state.Attribute, error) {
	return state.Attribute{}, state.ErrStoreUnavailable
}

// testServer creates a Server over an in-memory store holding two attributes.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *state.MemoryStore) {
	t.Helper()

	store := state.NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, "lights", float64(50)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "legacy", "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:  logging.Discard(),
		Thing:   "thing-1",
		Version: "test",
		Store:   store,
		Drivers: staticDrivers{"lights", "red_led"},
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, store
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Store: state.NewMemoryStore()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without store should fail")
	}
}

func TestHealth_OK(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Health = map[string]HealthChecker{
			"database": HealthFunc(func(context.Context) error { return nil }),
		}
	})

	rec := do(t, srv, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Thing != "thing-1" || resp.Version != "test" {
		t.Errorf("thing/version = %q/%q", resp.Thing, resp.Version)
	}
	if resp.Components["database"] != "ok" {
		t.Errorf("database component = %q, want ok", resp.Components["database"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Health = map[string]HealthChecker{
			"database": HealthFunc(func(context.Context) error { return nil }),
			"mqtt":     HealthFunc(func(context.Context) error { return errors.New("not connected") }),
		}
	})

	rec := do(t, srv, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["mqtt"] != "not connected" {
		t.Errorf("mqtt component = %q", resp.Components["mqtt"])
	}
}

func TestListAttributes(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/attributes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Attributes []AttributeResponse `json:"attributes"`
		Count      int                 `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 2 || len(resp.Attributes) != 2 {
		t.Fatalf("count = %d, attributes = %d, want 2", resp.Count, len(resp.Attributes))
	}
	if resp.Attributes[0].Name != "legacy" || resp.Attributes[0].Supported {
		t.Errorf("first attribute = %+v, want unsupported legacy", resp.Attributes[0])
	}
	if resp.Attributes[1].Name != "lights" || !resp.Attributes[1].Supported {
		t.Errorf("second attribute = %+v, want supported lights", resp.Attributes[1])
	}
	if resp.Attributes[1].Value != float64(50) {
		t.Errorf("lights value = %v, want 50", resp.Attributes[1].Value)
	}
}

func TestListAttributes_StoreError(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Store = failingStore{} })

	rec := do(t, srv, http.MethodGet, "/api/v1/attributes")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp Error
	decode(t, rec, &resp)
	if resp.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeInternal)
	}
}

func TestGetAttribute(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/attributes/lights")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp AttributeResponse
	decode(t, rec, &resp)
	if resp.Name != "lights" || resp.Value != float64(50) || !resp.Supported {
		t.Errorf("attribute = %+v", resp)
	}
	if resp.UpdatedAt.IsZero() {
		t.Error("updated_at should be set")
	}
}

func TestGetAttribute_NotFound(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/attributes/red_led")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var resp Error
	decode(t, rec, &resp)
	if resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

func TestGetAttribute_StoreError(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Store = failingStore{} })

	rec := do(t, srv, http.MethodGet, "/api/v1/attributes/lights")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestListTasks(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Tasks = func() []supervisor.Stats {
			return []supervisor.Stats{
				{Name: "shadow", Status: supervisor.StatusRunning, RestartCount: 2},
				{Name: "buttons", Status: supervisor.StatusFailed, LastError: "boom"},
			}
		}
	})

	rec := do(t, srv, http.MethodGet, "/api/v1/tasks")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Tasks []supervisor.Stats `json:"tasks"`
		Count int                `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if resp.Tasks[0].Name != "buttons" || resp.Tasks[0].LastError != "boom" {
		t.Errorf("first task = %+v", resp.Tasks[0])
	}
	if resp.Tasks[1].Name != "shadow" || resp.Tasks[1].RestartCount != 2 {
		t.Errorf("second task = %+v", resp.Tasks[1])
	}
}

func TestListTasks_NoSupervisor(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/tasks")
	var resp struct {
		Tasks []supervisor.Stats `json:"tasks"`
		Count int                `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 0 || resp.Tasks == nil {
		t.Errorf("tasks = %v, count = %d, want empty list", resp.Tasks, resp.Count)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("crib_up 1\n"))
		})
	})

	rec := do(t, srv, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "crib_up 1\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRouting_Errors(t *testing.T) {
	srv, _ := testServer(t, nil)

	if rec := do(t, srv, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/attributes/lights"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST attribute = %d, want 405", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated X-Request-ID header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, nil)

	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close before Start: %v", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
