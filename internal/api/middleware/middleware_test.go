package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notifyhub/notification-engine/internal/api/middleware"
)

func runCorrelation(req *http.Request) (*httptest.ResponseRecorder, string) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func TestCorrelationID_EchoesInbound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")

	rr, seen := runCorrelation(req)
	if seen != "corr-42" {
		t.Fatalf("expected context id corr-42, got %q", seen)
	}
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-42" {
		t.Fatalf("expected echoed header, got %q", got)
	}
}

func TestCorrelationID_AcceptsRequestIDAlias(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Request-ID", "req-7")

	rr, seen := runCorrelation(req)
	if seen != "req-7" {
		t.Fatalf("expected alias header honored, got %q", seen)
	}
	if got := rr.Header().Get("X-Correlation-ID"); got != "req-7" {
		t.Fatalf("expected alias echoed as correlation header, got %q", got)
	}
}

func TestCorrelationID_GeneratesWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	rr, seen := runCorrelation(req)
	if seen == "" {
		t.Fatal("expected a generated id on the context")
	}
	if rr.Header().Get("X-Correlation-ID") != seen {
		t.Fatal("expected generated id echoed in the response header")
	}
}

func TestRequestLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	h := middleware.CorrelationID(middleware.RequestLogger(logger)(mux))

	for _, path := range []string{"/health", "/api/v1/stats", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Correlation-ID", "corr-"+path)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(entries))
	}

	byPath := make(map[string]observer.LoggedEntry, len(entries))
	for _, e := range entries {
		byPath[e.ContextMap()["path"].(string)] = e
	}

	if byPath["/health"].Level != zapcore.DebugLevel {
		t.Fatal("liveness probe must log at debug")
	}
	if byPath["/boom"].Level != zapcore.WarnLevel {
		t.Fatal("server error must log at warn")
	}

	stats := byPath["/api/v1/stats"]
	if stats.Level != zapcore.InfoLevel {
		t.Fatal("api request must log at info")
	}
	fields := stats.ContextMap()
	if fields["status"].(int64) != http.StatusOK {
		t.Fatalf("expected status 200, got %v", fields["status"])
	}
	if fields["bytes"].(int64) == 0 {
		t.Fatal("expected response size recorded")
	}
	if fields["correlation_id"].(string) != "corr-/api/v1/stats" {
		t.Fatalf("expected correlation id in log, got %v", fields["correlation_id"])
	}
}
