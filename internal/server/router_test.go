package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/fetch"
)

func TestFetchRouteReturnsBody(t *testing.T) {
	app, recorder := newTestApp(t, 5080)
	recorder.body = []byte("hello")

	resp, err := app.Test(httptest.NewRequest("GET", "/fetch?url=http://example.test/a&max_age=30", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Fatalf("unexpected body %s", body)
	}
	if recorder.url != "http://example.test/a" || recorder.maxAge != 30*time.Second {
		t.Fatalf("unexpected fetch args %s %s", recorder.url, recorder.maxAge)
	}
	if got := resp.Header.Get("X-Netcache-Key"); got != fetch.URLKey("http://example.test/a") {
		t.Fatalf("unexpected cache key header %s", got)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestFetchRouteMirrorsUpstreamStatus(t *testing.T) {
	app, recorder := newTestApp(t, 5080)
	recorder.err = &fetch.StatusError{URL: "http://example.test/a", StatusCode: fiber.StatusNotFound}

	resp, err := app.Test(httptest.NewRequest("GET", "/fetch?url=http://example.test/a", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"upstream_status"`)) {
		t.Fatalf("expected upstream_status error, got %s", string(body))
	}
}

func TestFetchRouteReturnsBadGatewayOnNetworkError(t *testing.T) {
	app, recorder := newTestApp(t, 5080)
	recorder.err = errors.New("connection refused")

	resp, err := app.Test(httptest.NewRequest("GET", "/fetch?url=http://example.test/a", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502 status, got %d", resp.StatusCode)
	}
}

func TestFetchRouteValidatesQuery(t *testing.T) {
	app, _ := newTestApp(t, 5080)

	for _, target := range []string{"/fetch", "/fetch?url=http://example.test/a&max_age=soon"} {
		resp, err := app.Test(httptest.NewRequest("GET", target, nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: expected 400 status, got %d", target, resp.StatusCode)
		}
	}
}

func TestMetricsRouteServesExposition(t *testing.T) {
	app, _ := newTestApp(t, 5080)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New(), Fetcher: &fetchRecorder{}}); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestParseMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"":    0,
		"90":  90 * time.Second,
		"2m":  2 * time.Minute,
		" 5 ": 5 * time.Second,
	}
	for raw, want := range cases {
		got, err := parseMaxAge(raw)
		if err != nil || got != want {
			t.Fatalf("parseMaxAge(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := parseMaxAge("-3"); err == nil {
		t.Fatalf("negative seconds should be rejected")
	}
}

func newTestApp(t *testing.T, port int) (*fiber.App, *fetchRecorder) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &fetchRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Fetcher:    recorder,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app, recorder
}

type fetchRecorder struct {
	url    string
	maxAge time.Duration
	body   []byte
	err    error
}

func (f *fetchRecorder) Fetch(_ context.Context, url string, maxAge time.Duration) ([]byte, error) {
	f.url = url
	f.maxAge = maxAge
	return f.body, f.err
}
