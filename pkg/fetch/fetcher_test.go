package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testPolicy returns a RetryPolicy with small delays for testing
func testPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second, // Generous timeout for tests
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func newTestFetcher(maxAttempts int) (*Fetcher, *clock.Fake) {
	clk := clock.NewFake(testEpoch)
	return NewFetcher(testClient(), testPolicy(maxAttempts), nil, clk, testLogger()), clk
}

func TestFetchWithRetry_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"204 No Content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})
			fetcher, clk := newTestFetcher(3)
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, resp.StatusCode)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts.Load())
			}
			if len(clk.Sleeps()) != 0 {
				t.Errorf("expected no backoff sleeps, got %v", clk.Sleeps())
			}
		})
	}
}

func TestFetchWithRetry_ServerError_RetrySuccess(t *testing.T) {
	// 500 → 500 → 200 (succeeds on 3rd attempt)
	server, attempts := mockServer(t, []int{500, 500, 200})
	fetcher, clk := newTestFetcher(3)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error after retry, got: %v", err)
	}
	defer resp.Body.Close()

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 10*time.Millisecond || sleeps[1] != 20*time.Millisecond {
		t.Errorf("expected backoff [10ms 20ms], got %v", sleeps)
	}
}

func TestFetchWithRetry_ServerError_AllAttemptsFail(t *testing.T) {
	server, attempts := mockServer(t, []int{500})
	fetcher, _ := newTestFetcher(4)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err == nil {
		t.Fatal("expected error after all attempts failed")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response when all attempts fail")
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected wrapped ErrServerHTTPError, got: %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 4 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_TransientClientStatuses(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusTooEarly} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server, attempts := mockServer(t, []int{code, 200})
			fetcher, _ := newTestFetcher(3)
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)
			if err != nil {
				t.Fatalf("expected no error after retry, got: %v", err)
			}
			resp.Body.Close()
			if attempts.Load() != 2 {
				t.Errorf("expected 2 attempts, got %d", attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_ClientError_NoRetry(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"404 Not Found", http.StatusNotFound},
		{"403 Forbidden", http.StatusForbidden},
		{"410 Gone", http.StatusGone},
		{"400 Bad Request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})
			fetcher, _ := newTestFetcher(3)
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)

			// 4xx returns both response AND error (caller may need the status)
			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response for 4xx")
			}
			resp.Body.Close()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, resp.StatusCode)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt (no retry), got %d", attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_CancelledContext(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	fetcher, _ := newTestFetcher(3)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, utils.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected no requests, got %d", attempts.Load())
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code    int
		outcome string
		target  error
	}{
		{200, "success", nil},
		{206, "success", nil},
		{500, "transient_failure", utils.ErrServerHTTPError},
		{503, "transient_failure", utils.ErrServerHTTPError},
		{429, "transient_failure", utils.ErrClientHTTPError},
		{408, "transient_failure", utils.ErrClientHTTPError},
		{425, "transient_failure", utils.ErrClientHTTPError},
		{404, "fatal_failure", utils.ErrClientHTTPError},
		{410, "fatal_failure", utils.ErrClientHTTPError},
		{403, "fatal_failure", utils.ErrClientHTTPError},
		{304, "fatal_failure", utils.ErrOtherHTTPError},
	}

	for _, tt := range tests {
		outcome, err := ClassifyStatus(tt.code)
		if string(outcome) != tt.outcome {
			t.Errorf("ClassifyStatus(%d) outcome = %q, want %q", tt.code, outcome, tt.outcome)
		}
		if tt.target == nil && err != nil {
			t.Errorf("ClassifyStatus(%d) unexpected error %v", tt.code, err)
		}
		if tt.target != nil && !errors.Is(err, tt.target) {
			t.Errorf("ClassifyStatus(%d) error = %v, want %v", tt.code, err, tt.target)
		}
	}
}

func TestClassifyStatus_CategorizesByCode(t *testing.T) {
	_, err := ClassifyStatus(http.StatusNotFound)
	if got := utils.CategorizeError(err); got != "HTTP_404" {
		t.Errorf("expected HTTP_404, got %s", got)
	}
	_, err = ClassifyStatus(http.StatusTooManyRequests)
	if !utils.IsTransient(err) {
		t.Errorf("expected 429 to be transient: %v", err)
	}
}
