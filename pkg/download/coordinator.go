package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// ReasonCancelled is the Failed reason for items that lost their chance to run to cancellation
const ReasonCancelled = "cancelled"

var (
	ErrNilAttempter = errors.New("download coordinator has no attempter")
	ErrEmptyItemID  = errors.New("work item has empty ID")
)

// Attempter makes a single download attempt. fetch.FetchWorker is the production implementation.
type Attempter interface {
	Attempt(ctx context.Context, item models.WorkItem, attempt int) models.AttemptRecord
}

// Policy decides on retries. fetch.RetryPolicy is the production implementation.
type Policy interface {
	ShouldRetry(attempt int, outcome models.Outcome) bool
	Backoff(attempt int) time.Duration
}

// SkipChecker can mark an item ineligible before any attempt is made
type SkipChecker interface {
	ShouldSkip(ctx context.Context, item models.WorkItem) (reason string, skip bool)
}

// StatusRecorder persists terminal results; storage.ImageStore satisfies it
type StatusRecorder interface {
	UpdateImageStatus(sourceURL string, entry *models.ImageDBEntry) error
}

// Options configures a Coordinator. Only Policy is required.
type Options struct {
	Concurrency int
	RunID       string // Generated when empty
	Policy      Policy
	Clock       clock.Clock
	Skip        SkipChecker
	Store       StatusRecorder
	OnResult    func(models.ItemResult) // Called from Run's goroutine in aggregation order
}

// Coordinator runs a batch of WorkItems through a fixed pool of workers
type Coordinator struct {
	attempter Attempter
	opts      Options
	log       *logrus.Entry
}

// NewCoordinator creates a Coordinator
func NewCoordinator(attempter Attempter, opts Options, log *logrus.Entry) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Coordinator{
		attempter: attempter,
		opts:      opts,
		log:       log.WithField("component", "download_coordinator"),
	}
}

// Run processes every item and returns once each one has reached a terminal state.
// Item failures never surface as an error; the error return is reserved for invalid input.
//
// Cancelling ctx stops dispatch and retries. Attempts already talking to the network
// finish, and every item that did not get to run is reported Failed("cancelled").
func (c *Coordinator) Run(ctx context.Context, items []models.WorkItem) (*models.BatchReport, error) {
	if c.attempter == nil {
		return nil, ErrNilAttempter
	}
	if c.opts.Policy == nil {
		return nil, errors.New("download coordinator has no retry policy")
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	runID := c.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runLog := c.log.WithField("run_id", runID)
	report := models.NewBatchReport(runID, c.opts.Clock.Now())
	if len(items) == 0 {
		report.FinishedAt = report.StartedAt
		runLog.Info("Empty work list, nothing to download")
		return report, nil
	}

	numWorkers := c.opts.Concurrency
	if numWorkers > len(items) {
		numWorkers = len(items)
	}
	runLog.WithFields(logrus.Fields{"items": len(items), "workers": numWorkers}).Info("Starting download batch")

	jobs := make(chan models.WorkItem)
	results := make(chan models.ItemResult)
	var wg sync.WaitGroup

	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go c.worker(ctx, i, jobs, results, &wg)
	}

	wg.Add(1)
	go c.dispatch(ctx, items, jobs, results, &wg)

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		c.collect(report, result, runLog)
	}

	report.FinishedAt = c.opts.Clock.Now()
	runLog.WithFields(logrus.Fields{
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"cancelled": report.Cancelled(utils.ErrCancelled),
		"duration":  report.FinishedAt.Sub(report.StartedAt),
	}).Info("Download batch finished")
	return report, nil
}

func validateItems(items []models.WorkItem) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%w (index %d)", ErrEmptyItemID, i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: '%s'", utils.ErrDuplicateItem, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// dispatch feeds items to the pool in input order. Once ctx ends, the remaining
// items are reported as cancelled without reaching a worker.
func (c *Coordinator) dispatch(ctx context.Context, items []models.WorkItem, jobs chan<- models.WorkItem, results chan<- models.ItemResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(jobs)

	for idx, item := range items {
		if ctx.Err() == nil {
			select {
			case jobs <- item:
				continue
			case <-ctx.Done():
			}
		}
		c.log.WithField("remaining", len(items)-idx).Warn("Batch cancelled, not dispatching remaining items")
		for _, rest := range items[idx:] {
			results <- c.cancelled(models.ItemResult{ID: rest.ID, SourceURL: rest.SourceURL}, ctx.Err())
		}
		return
	}
}

func (c *Coordinator) worker(ctx context.Context, id int, jobs <-chan models.WorkItem, results chan<- models.ItemResult, wg *sync.WaitGroup) {
	defer wg.Done()
	workerLog := c.log.WithField("worker_id", id)
	workerLog.Debug("Download worker started")

	for item := range jobs {
		results <- c.process(ctx, item, workerLog.WithField("item", item.ID))
	}

	workerLog.Debug("Download worker finished (job channel closed)")
}

// process drives one item through Attempting(n) until it is terminal
func (c *Coordinator) process(ctx context.Context, item models.WorkItem, log *logrus.Entry) (result models.ItemResult) {
	result = models.ItemResult{ID: item.ID, SourceURL: item.SourceURL}

	defer func() {
		if r := recover(); r != nil {
			stackTrace := string(debug.Stack())
			log.WithFields(logrus.Fields{"panic_info": r, "stack_trace": stackTrace}).Error("PANIC Recovered while processing item")
			err := fmt.Errorf("panic processing item '%s': %v", item.ID, r)
			result.State = models.ItemStateFailed
			result.Err = err
			result.Reason = err.Error()
			result.ErrorType = "Internal_Panic"
		}
		if result.State == models.ItemStateFailed && len(result.Attempts) > 0 {
			removeStaleDest(item.DestPath, log)
		}
		result.FinishedAt = c.opts.Clock.Now()
	}()

	if err := ctx.Err(); err != nil {
		return c.cancelled(result, err)
	}

	if c.opts.Skip != nil {
		if reason, skip := c.opts.Skip.ShouldSkip(ctx, item); skip {
			log.WithField("reason", reason).Debug("Skipping item")
			result.State = models.ItemStateSkipped
			result.Reason = reason
			result.LocalPath = item.DestPath
			return result
		}
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return c.cancelled(result, err)
		}

		rec := c.attempter.Attempt(ctx, item, n)
		if errors.Is(rec.Err, utils.ErrCancelled) {
			// Cancelled while waiting for a request slot: no request was made
			return c.cancelled(result, rec.Err)
		}
		result.Attempts = append(result.Attempts, rec)

		switch rec.Outcome {
		case models.OutcomeSuccess:
			result.State = models.ItemStateDownloaded
			result.LocalPath = item.DestPath
			result.Size = rec.Bytes
			result.SHA256 = rec.SHA256
			log.WithFields(logrus.Fields{"attempts": n, "bytes": rec.Bytes}).Debug("Item downloaded")
			return result

		case models.OutcomeTransient:
			if c.opts.Policy.ShouldRetry(n, rec.Outcome) {
				delay := c.opts.Policy.Backoff(n)
				log.WithFields(logrus.Fields{"attempt": n, "delay": delay}).Warnf("Transient failure, retrying: %s", rec.ErrorDetail)
				if err := c.opts.Clock.Sleep(ctx, delay); err != nil {
					return c.cancelled(result, err)
				}
				continue
			}
			return c.failed(result, rec, true, log)
		}

		return c.failed(result, rec, false, log)
	}
}

// removeStaleDest deletes a file left at dest by an earlier run so a Failed item has no file
func removeStaleDest(dest string, log *logrus.Entry) {
	if dest == "" {
		return
	}
	err := os.Remove(dest)
	switch {
	case err == nil:
		log.WithField("path", dest).Debug("Removed stale file of failed item")
	case !errors.Is(err, fs.ErrNotExist):
		log.WithField("path", dest).Warnf("Could not remove stale file of failed item: %v", err)
	}
}

func (c *Coordinator) failed(result models.ItemResult, rec models.AttemptRecord, exhausted bool, log *logrus.Entry) models.ItemResult {
	err := rec.Err
	if err == nil {
		err = fmt.Errorf("attempt %d ended with outcome '%s' and no error", rec.Number, rec.Outcome)
	}
	if exhausted {
		err = fmt.Errorf("%w: %w", utils.ErrRetryFailed, err)
	}
	result.State = models.ItemStateFailed
	result.Err = err
	result.Reason = rec.ErrorDetail
	if result.Reason == "" {
		result.Reason = err.Error()
	}
	result.ErrorType = utils.CategorizeError(err)
	log.WithFields(logrus.Fields{"attempts": len(result.Attempts), "error_type": result.ErrorType}).Warnf("Item failed: %v", err)
	return result
}

func (c *Coordinator) cancelled(result models.ItemResult, cause error) models.ItemResult {
	if cause == nil {
		cause = context.Canceled
	}
	result.State = models.ItemStateFailed
	if errors.Is(cause, utils.ErrCancelled) {
		result.Err = cause
	} else {
		result.Err = fmt.Errorf("%w: %w", utils.ErrCancelled, cause)
	}
	result.Reason = ReasonCancelled
	result.ErrorType = utils.CategorizeError(result.Err)
	if result.FinishedAt.IsZero() {
		result.FinishedAt = c.opts.Clock.Now()
	}
	return result
}

// collect is the single writer of the report, the state store and the result hook
func (c *Coordinator) collect(report *models.BatchReport, result models.ItemResult, log *logrus.Entry) {
	if !report.Add(result) {
		log.WithField("item", result.ID).Error("Dropping second result for item")
		return
	}

	if c.opts.Store != nil && len(result.Attempts) > 0 {
		entry := &models.ImageDBEntry{
			Status:      models.ImageStatusFor(result.State),
			ItemID:      result.ID,
			LocalPath:   result.LocalPath,
			Size:        result.Size,
			SHA256:      result.SHA256,
			ErrorType:   result.ErrorType,
			Attempts:    len(result.Attempts),
			RunID:       report.RunID,
			LastAttempt: result.FinishedAt,
		}
		if err := c.opts.Store.UpdateImageStatus(result.SourceURL, entry); err != nil {
			log.WithField("item", result.ID).Errorf("Failed to update image status to '%s': %v", entry.Status, err)
		}
	}

	if c.opts.OnResult != nil {
		c.opts.OnResult(result)
	}
}
