package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adevinta/product-ingestor/metrics"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		ready      func() bool
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no readiness check",
			ready:      nil,
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "ready",
			ready:      func() bool { return true },
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "not ready",
			ready:      func() bool { return false },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()

			Handler(tt.ready).ServeHTTP(rec, req)

			resp := rec.Result()
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("unexpected status: want=%v, got=%v", tt.wantStatus, resp.StatusCode)
			}
			if string(body) != tt.wantBody {
				t.Errorf("unexpected body: want=%q, got=%q", tt.wantBody, string(body))
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ReceiveErrorsTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler(nil).ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "product_ingestor_receive_errors_total") {
		t.Errorf("metrics not exported:\n%s", body)
	}
}

func TestRunShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, "127.0.0.1:0", nil)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
