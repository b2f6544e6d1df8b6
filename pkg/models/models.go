package models

import (
	"errors"
	"sort"
	"time"
)

// WorkItem is one unit of fetch work. Treat as immutable once created.
type WorkItem struct {
	ID        string `json:"id"`         // Unique key within a batch, e.g. the animal name
	SourceURL string `json:"source_url"` // Remote resource to fetch
	DestPath  string `json:"dest_path"`  // Final local path of the downloaded file
}

// AttemptRecord describes one download attempt. Never mutated after creation.
type AttemptRecord struct {
	Number      int           `json:"number"` // 1-indexed
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Outcome     Outcome       `json:"outcome"`
	StatusCode  int           `json:"status_code,omitempty"`
	Bytes       int64         `json:"bytes"`
	SHA256      string        `json:"sha256,omitempty"` // Success only
	Err         error         `json:"-"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// ItemResult is the terminal outcome of one WorkItem
type ItemResult struct {
	ID         string          `json:"id"`
	SourceURL  string          `json:"source_url"`
	State      ItemState       `json:"state"`
	LocalPath  string          `json:"local_path,omitempty"` // Downloaded only
	Size       int64           `json:"size,omitempty"`       // Downloaded only
	SHA256     string          `json:"sha256,omitempty"`     // Downloaded only
	Reason     string          `json:"reason,omitempty"`     // Skip reason or last error detail
	ErrorType  string          `json:"error_type,omitempty"` // Category of Err
	Err        error           `json:"-"`
	Attempts   []AttemptRecord `json:"attempts"`
	FinishedAt time.Time       `json:"finished_at"`
}

// LastAttempt returns the final attempt, if any was made
func (r ItemResult) LastAttempt() (AttemptRecord, bool) {
	if len(r.Attempts) == 0 {
		return AttemptRecord{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// BatchReport aggregates every ItemResult of one coordinator run
type BatchReport struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Total      int                   `json:"total"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Skipped    int                   `json:"skipped"`
	Results    map[string]ItemResult `json:"results"`
}

// NewBatchReport returns an empty report ready for Add
func NewBatchReport(runID string, startedAt time.Time) *BatchReport {
	return &BatchReport{
		RunID:     runID,
		StartedAt: startedAt,
		Results:   make(map[string]ItemResult),
	}
}

// Add records a terminal result and updates the counters.
// Results for an ID already present are ignored and reported as false.
func (b *BatchReport) Add(r ItemResult) bool {
	if _, exists := b.Results[r.ID]; exists {
		return false
	}
	b.Results[r.ID] = r
	b.Total++
	switch r.State {
	case ItemStateDownloaded:
		b.Succeeded++
	case ItemStateSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
	return true
}

// Cancelled counts failed results caused by batch cancellation
func (b *BatchReport) Cancelled(sentinel error) int {
	n := 0
	for _, r := range b.Results {
		if r.State == ItemStateFailed && errors.Is(r.Err, sentinel) {
			n++
		}
	}
	return n
}

// SortedIDs returns the result identifiers in lexical order
func (b *BatchReport) SortedIDs() []string {
	ids := make([]string, 0, len(b.Results))
	for id := range b.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FailureCategories counts failed results per error category
func (b *BatchReport) FailureCategories() map[string]int {
	out := make(map[string]int)
	for _, r := range b.Results {
		if r.State != ItemStateFailed {
			continue
		}
		category := r.ErrorType
		if category == "" {
			category = "Unknown"
		}
		out[category]++
	}
	return out
}

// AnimalRecord is one row extracted from the source page
type AnimalRecord struct {
	Name       string   `json:"name" yaml:"name"`
	Adjectives []string `json:"adjectives" yaml:"adjectives"`
	PageURL    string   `json:"page_url,omitempty" yaml:"page_url,omitempty"`
	ImageURL   string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// ImageDBEntry stores the result of processing an image URL in the database
type ImageDBEntry struct {
	Status      ImageStatus `json:"status"`
	ItemID      string      `json:"item_id,omitempty"`
	LocalPath   string      `json:"local_path,omitempty"` // On success
	Size        int64       `json:"size,omitempty"`       // On success
	SHA256      string      `json:"sha256,omitempty"`     // On success
	ErrorType   string      `json:"error_type,omitempty"` // Error category (on failure)
	Attempts    int         `json:"attempts"`
	RunID       string      `json:"run_id,omitempty"`
	LastAttempt time.Time   `json:"last_attempt"`
}

// RunSummary is the persisted, map-free view of a BatchReport
type RunSummary struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	SourceURL  string         `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Total      int            `json:"total" yaml:"total"`
	Succeeded  int            `json:"succeeded" yaml:"succeeded"`
	Failed     int            `json:"failed" yaml:"failed"`
	Skipped    int            `json:"skipped" yaml:"skipped"`
	Cancelled  int            `json:"cancelled" yaml:"cancelled"`
	Failures   map[string]int `json:"failures,omitempty" yaml:"failures,omitempty"` // Category -> count
}
