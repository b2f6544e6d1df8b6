package orchestrate

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/clock"
	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/download"
	"github.com/Sriram-PR/animal-scraper/pkg/fetch"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/publish"
	"github.com/Sriram-PR/animal-scraper/pkg/report"
	"github.com/Sriram-PR/animal-scraper/pkg/scrape"
	"github.com/Sriram-PR/animal-scraper/pkg/storage"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// ImageLogFilename is written under state_dir after every run
const ImageLogFilename = "image_log.tsv"

// RunOptions tune a single pipeline run
type RunOptions struct {
	RunID      string // Generated when empty
	OnlyFailed bool   // Restrict the work list to images the store records as failed
	OnPlanned  func(items int)
	OnResult   func(models.ItemResult)
}

// RunResult is everything one pipeline run produced
type RunResult struct {
	RunID       string
	Scrape      *scrape.Result
	Report      *models.BatchReport
	Summary     models.RunSummary
	Unresolved  []string // Animals without an image URL
	ReportFiles []string
	Published   *publish.Result
	Duration    time.Duration
}

// Orchestrator runs the scrape, download, report and publish stages for one configuration.
// One Orchestrator may serve several sequential or concurrent runs; they share the HTTP
// client, the request limiter and the state store.
type Orchestrator struct {
	appCfg *config.AppConfig
	store  storage.StateStore // Optional
	clock  clock.Clock
	log    *logrus.Entry

	client  *http.Client
	limiter *fetch.RateLimiter
	policy  *fetch.RetryPolicy
}

// NewOrchestrator creates an Orchestrator. appCfg must already be validated.
func NewOrchestrator(appCfg *config.AppConfig, store storage.StateStore, log *logrus.Entry) *Orchestrator {
	clk := clock.Real()
	return &Orchestrator{
		appCfg:  appCfg,
		store:   store,
		clock:   clk,
		log:     log,
		client:  fetch.NewClient(appCfg.HTTPClientSettings, log),
		limiter: fetch.NewRateLimiter(appCfg.Download.MinRequestInterval, clk, log.WithField("component", "ratelimit")),
		policy:  fetch.NewRetryPolicy(appCfg.Download),
	}
}

// Run executes the full pipeline. Per-item download failures do not make Run fail;
// only scraping errors and invalid work lists do. Report and publish problems are logged.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	startTime := time.Now()
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runLog := o.log.WithField("run_id", runID)
	cfg := o.appCfg

	if config.GetEffectiveCleanupEmptyFiles(cfg.Download) {
		if _, err := download.CleanupEmptyFiles(cfg.OutputDir, runLog); err != nil {
			runLog.Warnf("Cleanup of empty files failed: %v", err)
		}
	}

	// --- Scrape ---
	scraped, err := o.newScraper(runLog).Scrape(ctx, cfg.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("scraping '%s': %w", cfg.SourceURL, err)
	}

	items, unresolved := download.BuildWorkItems(scraped.Records, cfg.OutputDir, cfg.Scrape.UseCommonsFallback)
	if len(unresolved) > 0 {
		runLog.Infof("%d animals have no image URL", len(unresolved))
	}
	if opts.OnlyFailed {
		items, err = o.onlyFailed(ctx, items)
		if err != nil {
			return nil, err
		}
		runLog.Infof("Retrying %d previously failed images", len(items))
	}
	if opts.OnPlanned != nil {
		opts.OnPlanned(len(items))
	}

	// --- Download ---
	batch, err := o.newCoordinator(runID, opts.OnResult, runLog).Run(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("download batch: %w", err)
	}

	result := &RunResult{
		RunID:      runID,
		Scrape:     scraped,
		Report:     batch,
		Summary:    report.Summarize(batch, cfg.SourceURL),
		Unresolved: unresolved,
	}

	// --- Reports, state, publish ---
	result.ReportFiles, err = report.NewWriter(cfg.OutputDir, cfg, runLog.WithField("component", "report")).WriteAll(report.Input{
		Batch:      batch,
		SourceURL:  cfg.SourceURL,
		Scrape:     scraped,
		Unresolved: unresolved,
	})
	if err != nil {
		runLog.Errorf("Report writing incomplete: %v", err)
	}

	if o.store != nil {
		if err := o.store.SaveRun(&result.Summary); err != nil {
			runLog.Errorf("Failed to persist run summary: %v", err)
		}
		if err := o.store.WriteImageLog(filepath.Join(cfg.StateDir, ImageLogFilename)); err != nil {
			runLog.Warnf("Failed to write image log: %v", err)
		}
	}

	if cfg.Publish.BucketURL != "" && ctx.Err() == nil {
		result.Published = o.publish(ctx, batch, result.ReportFiles, runLog)
	}

	result.Duration = time.Since(startTime)
	o.logSummary(result, runLog)
	return result, nil
}

func (o *Orchestrator) newScraper(log *logrus.Entry) *scrape.Scraper {
	cfg := o.appCfg
	scrapeLog := log.WithField("component", "scrape")

	pageFetcher := fetch.NewFetcher(o.client, o.policy, o.limiter, o.clock, scrapeLog)
	var robots scrape.RobotsPolicy
	if cfg.Download.RespectRobots {
		robots = fetch.NewRobotsChecker(pageFetcher, cfg.UserAgent, scrapeLog)
	}

	// Summary lookups are paced by their own token bucket
	apiFetcher := fetch.NewFetcher(o.client, o.policy, nil, o.clock, scrapeLog)
	resolver := scrape.NewImageResolver(apiFetcher, cfg.SummaryAPIBase, cfg.UserAgent,
		cfg.Scrape.APIRequestInterval, cfg.Scrape.APIConcurrency, scrapeLog)

	return scrape.NewScraper(pageFetcher, resolver, robots, cfg.UserAgent, cfg.Scrape, scrapeLog)
}

func (o *Orchestrator) newCoordinator(runID string, onResult func(models.ItemResult), log *logrus.Entry) *download.Coordinator {
	cfg := o.appCfg
	downloadLog := log.WithField("component", "download")

	worker := fetch.NewFetchWorker(o.client, o.limiter, fetch.WorkerOptionsFrom(cfg), o.clock, downloadLog)
	skip := &download.SkipChain{
		SkipExisting: config.GetEffectiveSkipExisting(cfg.Download),
		Log:          downloadLog,
	}
	opts := download.Options{
		Concurrency: cfg.Download.Concurrency,
		RunID:       runID,
		Policy:      o.policy,
		Clock:       o.clock,
		Skip:        skip,
		OnResult:    onResult,
	}
	if o.store != nil {
		skip.Store = o.store
		opts.Store = o.store
	}
	if cfg.Download.RespectRobots {
		robotsFetcher := fetch.NewFetcher(o.client, o.policy, o.limiter, o.clock, downloadLog)
		skip.Robots = fetch.NewRobotsChecker(robotsFetcher, cfg.UserAgent, downloadLog)
	}
	return download.NewCoordinator(worker, opts, downloadLog)
}

// onlyFailed keeps the items whose source URL the store records as failed
func (o *Orchestrator) onlyFailed(ctx context.Context, items []models.WorkItem) ([]models.WorkItem, error) {
	if o.store == nil {
		return nil, fmt.Errorf("%w: retrying failed images needs a state store", utils.ErrConfigValidation)
	}
	failed, err := o.store.FailedImages(ctx)
	if err != nil {
		return nil, err
	}
	failedURLs := make(map[string]struct{}, len(failed))
	for _, f := range failed {
		failedURLs[f.SourceURL] = struct{}{}
	}
	var kept []models.WorkItem
	for _, item := range items {
		if _, ok := failedURLs[item.SourceURL]; ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func (o *Orchestrator) publish(ctx context.Context, batch *models.BatchReport, reportFiles []string, log *logrus.Entry) *publish.Result {
	publishLog := log.WithField("component", "publish")
	publisher, err := publish.Open(ctx, o.appCfg.Publish, publishLog)
	if err != nil {
		publishLog.Errorf("Publishing skipped: %v", err)
		return nil
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			publishLog.Warnf("Error closing bucket: %v", err)
		}
	}()

	res, err := publisher.Publish(ctx, batch, reportFiles)
	if err != nil {
		publishLog.Errorf("Publishing incomplete: %v", err)
	}
	return &res
}

// logSummary logs a summary of the run
func (o *Orchestrator) logSummary(r *RunResult, log *logrus.Entry) {
	s := r.Summary
	log.Info("============================================")
	log.Infof("Run completed in %v", r.Duration.Round(time.Millisecond))
	if r.Scrape != nil {
		log.Infof("Scraped: %d animals, %d adjective pairs, %d with images",
			r.Scrape.Stats.Animals, r.Scrape.Stats.Pairs, r.Scrape.Stats.WithImages)
	}
	log.Infof("Images: %d total (%d downloaded, %d skipped, %d failed, %d cancelled)",
		s.Total, s.Succeeded, s.Skipped, s.Failed, s.Cancelled)
	for category, n := range s.Failures {
		log.Infof("  %s: %d", category, n)
	}
	if r.Published != nil {
		log.Infof("Published: %d images, %d reports", r.Published.Images, r.Published.Reports)
	}
	log.Info("============================================")
}
