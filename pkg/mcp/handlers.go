package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/animal-scraper/pkg/config"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

// handleStartBatch handles the start_batch tool
func (s *Server) handleStartBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	onlyFailed := request.GetBool("only_failed", false)

	// Job config is a validated copy so a per-job source_url never leaks into the shared config
	appCfg := *s.cfg.AppConfig
	if sourceURL := request.GetString("source_url", ""); sourceURL != "" {
		appCfg.SourceURL = sourceURL
	}
	if _, err := appCfg.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, created := s.jobManager.CreateJob(appCfg.SourceURL, onlyFailed)
	if !created {
		result := map[string]interface{}{
			"status":     "already_running",
			"message":    "A batch is already in progress for this source",
			"job_id":     job.ID,
			"source_url": job.SourceURL,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runBatchJob(job, &appCfg)

	result := map[string]interface{}{
		"status":      "started",
		"message":     "Batch started successfully",
		"job_id":      job.ID,
		"source_url":  job.SourceURL,
		"only_failed": onlyFailed,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":      job.ID,
		"source_url":  job.SourceURL,
		"status":      job.Status,
		"only_failed": job.OnlyFailed,
		"started_at":  job.StartedAt.Format(time.RFC3339),
		"planned":     job.Planned,
		"done":        job.Done,
		"succeeded":   job.Succeeded,
		"failed":      job.Failed,
		"skipped":     job.Skipped,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if _, ok := s.jobManager.GetJob(jobID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":    jobID,
		"cancelled": s.jobManager.CancelJob(jobID),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListRuns handles the list_runs tool
func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultRunsLimit)
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := s.cfg.Store.ListRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}

	result := map[string]interface{}{
		"runs":       runs,
		"total_runs": len(runs),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetImageStatus handles the get_image_status tool
func (s *Server) handleGetImageStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceURL := request.GetString("source_url", "")
	if sourceURL == "" {
		return mcp.NewToolResultError("source_url parameter is required"), nil
	}

	status, entry, err := s.cfg.Store.CheckImageStatus(sourceURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read image status: %v", err)), nil
	}

	result := map[string]interface{}{
		"source_url": sourceURL,
		"status":     status,
	}
	if entry != nil {
		result["entry"] = entry
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runBatchJob runs one pipeline in the background and tracks its progress on the job
func (s *Server) runBatchJob(job Job, appCfg *config.AppConfig) {
	s.jobManager.UpdateStatus(job.ID, JobStatusRunning, "")
	jobCtx := s.jobManager.GetContext(job.ID)
	jobLog := s.log.WithField("job_id", job.ID)

	o := orchestrate.NewOrchestrator(appCfg, s.cfg.Store, jobLog)
	res, err := o.Run(jobCtx, orchestrate.RunOptions{
		RunID:      job.ID,
		OnlyFailed: job.OnlyFailed,
		OnPlanned:  func(n int) { s.jobManager.SetPlanned(job.ID, n) },
		OnResult:   func(r models.ItemResult) { s.jobManager.RecordResult(job.ID, r) },
	})

	switch {
	case err != nil && (errors.Is(err, utils.ErrCancelled) || jobCtx.Err() != nil):
		s.jobManager.UpdateStatus(job.ID, JobStatusCancelled, "")
	case err != nil:
		jobLog.Errorf("Batch failed: %v", err)
		s.jobManager.UpdateStatus(job.ID, JobStatusFailed, err.Error())
	case res.Summary.Cancelled > 0:
		s.jobManager.UpdateStatus(job.ID, JobStatusCancelled, "")
	default:
		s.jobManager.UpdateStatus(job.ID, JobStatusCompleted, "")
	}
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
