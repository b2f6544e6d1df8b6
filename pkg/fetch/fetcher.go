package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// Fetcher makes page-level HTTP requests (source page, robots.txt) with retries.
// Image downloads go through FetchWorker instead, where the coordinator owns the retry loop.
type Fetcher struct {
	client  *http.Client
	policy  *RetryPolicy
	limiter *RateLimiter // Optional; shared with the download workers when set
	clock   clock.Clock
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, policy *RetryPolicy, limiter *RateLimiter, clk clock.Clock, log *logrus.Entry) *Fetcher {
	if clk == nil {
		clk = clock.Real()
	}
	return &Fetcher{
		client:  client,
		policy:  policy,
		limiter: limiter,
		clock:   clk,
		log:     log,
	}
}

// FetchWithRetry performs req, retrying network errors, 5xx, 408, 425 and 429 per the retry policy.
// On 2xx the response is returned with a nil error. Other statuses are returned together with a
// wrapped error; the caller MUST close the body whenever resp is non-nil.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w (after: %v)", utils.ErrCancelled, err, lastErr)
			}
			return nil, fmt.Errorf("%w: %w", utils.ErrCancelled, err)
		}

		if f.limiter != nil {
			if _, err := f.limiter.Acquire(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", utils.ErrCancelled, err)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		outcome := models.OutcomeTransient
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", utils.ErrCancelled, err)
			}
			if errors.Is(err, ErrTooManyRedirects) {
				return nil, fmt.Errorf("%w: %w", utils.ErrNetwork, err)
			}
			lastErr = fmt.Errorf("%w: %w", utils.ErrNetwork, err)
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)

		default:
			var statusErr error
			outcome, statusErr = ClassifyStatus(resp.StatusCode)
			if outcome == models.OutcomeSuccess {
				reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Debug("Successfully fetched")
				return resp, nil
			}
			if outcome == models.OutcomeFatal {
				reqLog.WithField("status_code", resp.StatusCode).Warn("Non-retryable status, not retrying")
				return resp, statusErr
			}
			lastErr = statusErr
			drainAndClose(resp)
			reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Warn("Retryable status")
		}

		if !f.policy.ShouldRetry(attempt, outcome) {
			reqLog.Errorf("All %d fetch attempts failed. Last error: %v", attempt, lastErr)
			return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
		}

		delay := f.policy.Backoff(attempt)
		reqLog.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Warn("Retrying request...")
		if err := f.clock.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w (after: %v)", utils.ErrCancelled, err, lastErr)
		}
	}
}

// ClassifyStatus maps an HTTP status code to an attempt outcome and, for non-2xx, a wrapped sentinel error
func ClassifyStatus(code int) (models.Outcome, error) {
	status := fmt.Sprintf("%d %s", code, http.StatusText(code))
	switch {
	case code >= 200 && code < 300:
		return models.OutcomeSuccess, nil
	case code >= 500:
		return models.OutcomeTransient, fmt.Errorf("%w: status %s", utils.ErrServerHTTPError, status)
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code == http.StatusTooEarly:
		return models.OutcomeTransient, fmt.Errorf("%w: status %s", utils.ErrClientHTTPError, status)
	case code >= 400:
		return models.OutcomeFatal, fmt.Errorf("%w: status %s", utils.ErrClientHTTPError, status)
	default:
		return models.OutcomeFatal, fmt.Errorf("%w: status %s", utils.ErrOtherHTTPError, status)
	}
}

// drainLimit bounds how much of an error body is read before closing, so the connection can be reused
const drainLimit = 64 * 1024

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
}
