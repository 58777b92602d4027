package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/payalloc/internal/invoicing"
	invoicinghttp "github.com/odyssey-erp/payalloc/internal/invoicing/http"
	"github.com/odyssey-erp/payalloc/internal/observability"
	"github.com/odyssey-erp/payalloc/internal/shared"
	"github.com/odyssey-erp/payalloc/jobs"
)

type actorRecordingService struct {
	actor string
}

func (s *actorRecordingService) Get(ctx context.Context, id uuid.UUID) (invoicing.Run, error) {
	s.actor = shared.ActorFromContext(ctx)
	return invoicing.Run{}, shared.ErrRunNotFound
}

func (s *actorRecordingService) List(ctx context.Context, filter invoicing.RunFilter) (invoicing.RunPage, error) {
	s.actor = shared.ActorFromContext(ctx)
	return invoicing.RunPage{Runs: []invoicing.RunSummary{}}, nil
}

func newTestRouter(t *testing.T, hash string) (http.Handler, *actorRecordingService, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &actorRecordingService{}
	metrics := observability.NewMetrics()
	cfg := &Config{AppEnv: "development", OpsTokenHash: hash, RateLimitPerMin: 1000}
	router := NewRouter(RouterParams{
		Logger:     logger,
		Config:     cfg,
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(nil, logger),
		RunHandler: invoicinghttp.NewHandler(logger, svc),
	})
	return router, svc, metrics
}

func mustHash(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return string(hash)
}

func TestRouterHealthAndSecureHeaders(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing frame header: %v", rec.Header())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header: %v", rec.Header())
	}
}

func TestRouterJobsHealth(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"queue":"default"`) {
		t.Fatalf("unexpected jobs health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouterRunsRequireOpsToken(t *testing.T) {
	router, svc, _ := newTestRouter(t, mustHash(t, "s3cret"))
	path := "/runs/" + uuid.NewString()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", rec.Code)
	}
	if svc.actor != "ops" {
		t.Fatalf("expected ops actor, got %q", svc.actor)
	}
}

func TestRouterRunsOpenWithoutHash(t *testing.T) {
	router, svc, _ := newTestRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if svc.actor != "anonymous" {
		t.Fatalf("expected anonymous actor, got %q", svc.actor)
	}
}

func TestRouterRecordsRouteMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t, "")
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `payalloc_http_requests_total{code="404",route="/runs/{id}"} 1`) {
		t.Fatalf("expected route pattern metric, got %s", rec.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":       {"Bearer abc", "abc", true},
		"lower":       {"bearer abc", "abc", true},
		"basic":       {"Basic abc", "", false},
		"empty token": {"Bearer  ", "", false},
		"missing":     {"", "", false},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		token, ok := bearerToken(req)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("%s: got %q %v", name, token, ok)
		}
	}
}
