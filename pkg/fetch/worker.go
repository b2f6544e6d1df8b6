package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const imageAcceptHeader = "image/avif,image/webp,image/png,image/jpeg,image/gif,image/*;q=0.8,*/*;q=0.5"

// WorkerOptions configures a FetchWorker
type WorkerOptions struct {
	UserAgent               string
	PerItemTimeout          time.Duration
	MaxBytes                int64
	RequireImageContentType bool
	SizeOverflowFatal       bool // Mid-stream overflow is transient otherwise
}

// WorkerOptionsFrom derives worker options from the application configuration
func WorkerOptionsFrom(cfg *config.AppConfig) WorkerOptions {
	return WorkerOptions{
		UserAgent:               cfg.UserAgent,
		PerItemTimeout:          cfg.Download.PerItemTimeout,
		MaxBytes:                cfg.Download.MaxBytesPerItem,
		RequireImageContentType: config.GetEffectiveRequireImageContentType(cfg.Download),
		SizeOverflowFatal:       cfg.Download.SizeOverflowFatal,
	}
}

// FetchWorker performs single download attempts. It never retries on its own.
// A worker is safe for concurrent use; it holds no per-item state.
type FetchWorker struct {
	client  *http.Client
	limiter *RateLimiter
	opts    WorkerOptions
	clock   clock.Clock
	log     *logrus.Entry
}

// NewFetchWorker creates a FetchWorker sharing client and limiter with its siblings
func NewFetchWorker(client *http.Client, limiter *RateLimiter, opts WorkerOptions, clk clock.Clock, log *logrus.Entry) *FetchWorker {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.PerItemTimeout <= 0 {
		opts.PerItemTimeout = config.DefaultPerItemTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = config.DefaultMaxBytesPerItem
	}
	return &FetchWorker{
		client:  client,
		limiter: limiter,
		opts:    opts,
		clock:   clk,
		log:     log,
	}
}

// Attempt makes one download attempt for item. On Success the file is at item.DestPath.
// On failure no temp file is left in its directory and an existing item.DestPath is not
// touched; the coordinator removes it once the item fails for good.
//
// ctx bounds only the wait for a request slot. Once the request has started it runs
// to completion or to the per-item timeout, whichever comes first.
func (w *FetchWorker) Attempt(ctx context.Context, item models.WorkItem, attempt int) models.AttemptRecord {
	log := w.log.WithFields(logrus.Fields{"item": item.ID, "attempt": attempt})
	rec := models.AttemptRecord{Number: attempt}

	src, err := url.Parse(item.SourceURL)
	if err != nil || (src.Scheme != "http" && src.Scheme != "https") || src.Host == "" {
		rec.StartedAt = w.clock.Now()
		return w.finish(rec, models.OutcomeFatal, fmt.Errorf("%w: '%s'", utils.ErrMalformedURL, item.SourceURL), log)
	}

	if _, err := w.limiter.Acquire(ctx); err != nil {
		rec.StartedAt = w.clock.Now()
		return w.finish(rec, models.OutcomeFatal, fmt.Errorf("%w: waiting for request slot: %w", utils.ErrCancelled, err), log)
	}
	rec.StartedAt = w.clock.Now()

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.PerItemTimeout)
	defer cancel()

	t, outcome, err := w.download(reqCtx, item, log)
	rec.StatusCode = t.status
	rec.Bytes = t.bytes
	if outcome == models.OutcomeSuccess {
		rec.SHA256 = t.sha256
	}
	return w.finish(rec, outcome, err, log)
}

func (w *FetchWorker) finish(rec models.AttemptRecord, outcome models.Outcome, err error, log *logrus.Entry) models.AttemptRecord {
	rec.Outcome = outcome
	rec.Duration = w.clock.Now().Sub(rec.StartedAt)
	if err != nil {
		rec.Err = err
		rec.ErrorDetail = err.Error()
		log.WithFields(logrus.Fields{"outcome": outcome, "error_type": utils.CategorizeError(err)}).Debugf("Attempt failed: %v", err)
	} else {
		log.WithFields(logrus.Fields{"bytes": rec.Bytes, "duration": rec.Duration}).Debug("Attempt succeeded")
	}
	return rec
}

type transfer struct {
	status int
	bytes  int64
	sha256 string
}

func (w *FetchWorker) download(ctx context.Context, item models.WorkItem, log *logrus.Entry) (transfer, models.Outcome, error) {
	var t transfer

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceURL, nil)
	if err != nil {
		return t, models.OutcomeFatal, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if w.opts.UserAgent != "" {
		req.Header.Set("User-Agent", w.opts.UserAgent)
	}
	req.Header.Set("Accept", imageAcceptHeader)

	resp, err := w.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return t, models.OutcomeFatal, fmt.Errorf("%w: %w", utils.ErrNetwork, err)
		}
		return t, models.OutcomeTransient, fmt.Errorf("%w: %w", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	t.status = resp.StatusCode

	if outcome, statusErr := ClassifyStatus(resp.StatusCode); statusErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		return t, outcome, statusErr
	}

	if w.opts.RequireImageContentType {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			mediaType, _, perr := mime.ParseMediaType(ct)
			if perr != nil || !strings.HasPrefix(mediaType, "image/") {
				return t, models.OutcomeFatal, fmt.Errorf("%w: '%s'", utils.ErrUnsupportedContentType, ct)
			}
		}
	}

	if resp.ContentLength > w.opts.MaxBytes {
		return t, models.OutcomeFatal, fmt.Errorf("%w: declared %d bytes > limit %d", utils.ErrSizeLimitExceeded, resp.ContentLength, w.opts.MaxBytes)
	}

	n, sum, outcome, err := w.writeFile(item.DestPath, resp.Body, log)
	t.bytes = n
	t.sha256 = sum
	return t, outcome, err
}

// writeFile streams body into a temp file next to dest, then renames it into place.
// The temp file is removed on every failure path.
func (w *FetchWorker) writeFile(dest string, body io.Reader, log *logrus.Entry) (int64, string, models.Outcome, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, "", models.OutcomeFatal, fmt.Errorf("%w: creating dir '%s': %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, "", models.OutcomeFatal, fmt.Errorf("%w: creating temp file: %w", utils.ErrFilesystem, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warnf("Failed to remove partial file '%s': %v", tmpPath, rmErr)
			}
		}
	}()

	hasher := sha256.New()
	fw := &trackingWriter{w: tmp}
	n, err := io.Copy(io.MultiWriter(fw, hasher), io.LimitReader(body, w.opts.MaxBytes+1))
	if err != nil {
		if fw.err != nil {
			return n, "", models.OutcomeFatal, fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, tmpPath, fw.err)
		}
		return n, "", models.OutcomeTransient, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}

	if n > w.opts.MaxBytes {
		outcome := models.OutcomeTransient
		if w.opts.SizeOverflowFatal {
			outcome = models.OutcomeFatal
		}
		return n, "", outcome, fmt.Errorf("%w: received more than %d bytes", utils.ErrSizeLimitExceeded, w.opts.MaxBytes)
	}
	if n == 0 {
		return 0, "", models.OutcomeFatal, fmt.Errorf("%w: zero bytes received", utils.ErrEmptyResource)
	}

	if err := tmp.Close(); err != nil {
		return n, "", models.OutcomeFatal, fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return n, "", models.OutcomeFatal, fmt.Errorf("%w: renaming to '%s': %w", utils.ErrFilesystem, dest, err)
	}
	committed = true

	return n, hex.EncodeToString(hasher.Sum(nil)), models.OutcomeSuccess, nil
}

// trackingWriter remembers the first write error so it can be told apart from a read error
type trackingWriter struct {
	w   io.Writer
	err error
}

func (tw *trackingWriter) Write(p []byte) (int, error) {
	n, err := tw.w.Write(p)
	if err != nil && tw.err == nil {
		tw.err = err
	}
	return n, err
}
