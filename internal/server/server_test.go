package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/server"
	"github.com/hazz-dev/healthgate/internal/storage"
	"github.com/hazz-dev/healthgate/internal/task"
)

type testEnv struct {
	srv   *httptest.Server
	hc    *healthcheck.HealthCheck
	calls *atomic.Int32
}

func newTestEnv(t *testing.T, store server.HistoryStore, fail bool) *testEnv {
	t.Helper()

	var calls atomic.Int32
	registry := task.NewRegistry(nil)
	defs := []task.Definition{
		{Name: "task:1", Run: func(ctx context.Context) (any, error) {
			calls.Add(1)
			return "ok", nil
		}},
		{Name: "task:2", Critical: true, Run: func(ctx context.Context) (any, error) {
			calls.Add(1)
			if fail {
				return nil, errors.New("task:2 down")
			}
			return "ok", nil
		}},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			t.Fatal(err)
		}
	}

	hc := healthcheck.New(registry, healthcheck.Options{MaxRetries: 1})
	t.Cleanup(hc.Stop)

	cfg := &config.Config{
		HealthCheck: config.HealthCheck{
			Enabled:          true,
			ChecksEnabled:    config.StringList{".*"},
			ScheduleInterval: config.Duration{Duration: 15 * time.Minute},
			RetriesDelay:     config.Duration{Duration: 2500 * time.Millisecond},
			MaxRetries:       5,
		},
	}

	s := server.New(hc, cfg, store, nil)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hc: hc, calls: &calls}
}

type tasksResponse struct {
	Message string      `json:"message"`
	Tasks   []task.Info `json:"tasks"`
}

func decodeTasks(t *testing.T, resp *http.Response) tasksResponse {
	t.Helper()
	defer resp.Body.Close()
	var body tasksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body
}

func decodeMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body["message"]
}

func TestGetInternal_DoesNotExecute(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/internal")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeTasks(t, resp)
	if body.Message != "All healthcheck tasks are returned." {
		t.Errorf("unexpected message: %q", body.Message)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body.Tasks))
	}
	if body.Tasks[0].Status != task.StatusNotStarted {
		t.Errorf("expected not_started, got %q", body.Tasks[0].Status)
	}
	if env.calls.Load() != 0 {
		t.Errorf("GET must not execute tasks, ran %d", env.calls.Load())
	}
}

func TestGetInternal_UnknownName(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/internal?name=nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, resp); msg != "Invalid tasks: nope" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestRunInternal_All(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Post(env.srv.URL+"/api/healthcheck/internal", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeTasks(t, resp)
	if len(body.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body.Tasks))
	}
	for _, info := range body.Tasks {
		if info.Result != task.ResultSuccess {
			t.Errorf("task %q: expected success, got %q", info.Name, info.Result)
		}
	}
	if env.calls.Load() != 2 {
		t.Errorf("expected 2 executions, got %d", env.calls.Load())
	}
}

func TestRunInternal_Subset(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Post(env.srv.URL+"/api/healthcheck/internal?name=task:1", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeTasks(t, resp)
	if len(body.Tasks) != 1 || body.Tasks[0].Name != "task:1" {
		t.Fatalf("expected only task:1, got %+v", body.Tasks)
	}
	if env.calls.Load() != 1 {
		t.Errorf("expected 1 execution, got %d", env.calls.Load())
	}
}

func TestRunInternal_CriticalFailure(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp, err := http.Post(env.srv.URL+"/api/healthcheck/internal", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	msg := decodeMessage(t, resp)
	if !strings.HasPrefix(msg, "Error running the internal healthcheck tasks:") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestRunInternal_UnknownName(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Post(env.srv.URL+"/api/healthcheck/internal?name=nope", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, resp); msg != "Invalid tasks: nope" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/config")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var body struct {
		Enabled          bool     `json:"enabled"`
		ChecksEnabled    []string `json:"checks_enabled"`
		ScheduleInterval string   `json:"schedule_interval"`
		RetriesDelay     string   `json:"retries_delay"`
		MaxRetries       int      `json:"max_retries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Enabled {
		t.Error("expected enabled")
	}
	if body.ScheduleInterval != "15m0s" {
		t.Errorf("unexpected schedule_interval: %q", body.ScheduleInterval)
	}
	if body.RetriesDelay != "2.5s" {
		t.Errorf("unexpected retries_delay: %q", body.RetriesDelay)
	}
	if body.MaxRetries != 5 {
		t.Errorf("unexpected max_retries: %d", body.MaxRetries)
	}
}

type fakeStore struct {
	runs      []storage.Run
	err       error
	lastLimit int
}

func (f *fakeStore) RecentRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func TestGetHistory(t *testing.T) {
	store := &fakeStore{runs: []storage.Run{{ID: 1, Status: "green"}}}
	env := newTestEnv(t, store, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/history")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	var body struct {
		Runs []storage.Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 1 || body.Runs[0].Status != "green" {
		t.Errorf("unexpected runs: %+v", body.Runs)
	}
	if store.lastLimit != 20 {
		t.Errorf("expected default limit 20, got %d", store.lastLimit)
	}
}

func TestGetHistory_LimitClamped(t *testing.T) {
	store := &fakeStore{}
	env := newTestEnv(t, store, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/history?limit=500")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if store.lastLimit != 100 {
		t.Errorf("expected limit clamped to 100, got %d", store.lastLimit)
	}

	resp, err = http.Get(env.srv.URL + "/api/healthcheck/history?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestGetHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp, err := http.Get(env.srv.URL + "/api/healthcheck/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
