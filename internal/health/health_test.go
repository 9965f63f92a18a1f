package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognify-ai/cognify/internal/resilience"
)

func serve(t *testing.T, h http.HandlerFunc, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func ok(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})
	code, body := serve(t, h.Healthz, nil)
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "uploads", Check: ok}, {Name: "breaker:llm", Check: ok}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"uploads": "ok", "breaker:llm": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "uploads", Check: ok},
				{Name: "breaker:document", Check: func(context.Context) error { return errors.New("open") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"uploads": "ok", "breaker:document": "fail: open"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, New(tt.checkers...).Readyz, nil)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("check %q = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_RunsChecksConcurrently(t *testing.T) {
	slow := func(context.Context) error { time.Sleep(200 * time.Millisecond); return nil }
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow}, Checker{Name: "c", Check: slow})

	start := time.Now()
	code, _ := serve(t, h.Readyz, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("readyz took %v, checks should overlap", elapsed)
	}
}

func TestReadyz_Draining(t *testing.T) {
	h := New()
	h.SetDraining(true)
	code, body := serve(t, h.Readyz, nil)
	if code != http.StatusServiceUnavailable || body.Checks["server"] != "fail: draining" {
		t.Errorf("draining readyz = %d %v", code, body.Checks)
	}
	h.SetDraining(false)
	if code, _ := serve(t, h.Readyz, nil); code != http.StatusOK {
		t.Errorf("status after drain cleared = %d", code)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code, _ := serve(t, h.Readyz, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestBreakerCheck(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})
	c := BreakerCheck(cb)
	if c.Name != "breaker:llm" {
		t.Errorf("name = %q", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker: %v", err)
	}
	_ = cb.Execute(func() error { return errors.New("upstream 500") })
	if err := c.Check(context.Background()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("open breaker: err = %v", err)
	}
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	if err := DirCheck("uploads", dir).Check(context.Background()); err != nil {
		t.Errorf("writable dir: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".readyz-*"))
	if len(matches) != 0 {
		t.Errorf("probe file left behind: %v", matches)
	}
	if err := DirCheck("uploads", filepath.Join(dir, "missing")).Check(context.Background()); err == nil {
		t.Error("missing dir should fail")
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
