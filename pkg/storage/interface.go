package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

// ImageStore handles per-image download state, keyed by source URL
type ImageStore interface {
	// CheckImageStatus retrieves the status and details of an image URL
	// Returns status (ImageStatusSuccess, ImageStatusFailure, ImageStatusNotFound, ImageStatusDBError),
	// the ImageDBEntry if found and parsed, and any error
	CheckImageStatus(sourceURL string) (status models.ImageStatus, entry *models.ImageDBEntry, err error)

	// UpdateImageStatus updates the status and details for an image URL
	UpdateImageStatus(sourceURL string, entry *models.ImageDBEntry) error

	// FailedImages returns every image whose last recorded status is a failure
	FailedImages(ctx context.Context) ([]FailedImage, error)
}

// RunStore keeps one summary per finished batch
type RunStore interface {
	SaveRun(summary *models.RunSummary) error
	GetRun(runID string) (*models.RunSummary, bool, error)
	// ListRuns returns summaries newest first; limit <= 0 means all
	ListRuns(limit int) ([]models.RunSummary, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetImageCount returns the number of image keys in the store
	GetImageCount() (int, error)

	// WriteImageLog writes one "url<TAB>status<TAB>local_path" line per image key
	WriteImageLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// StateStore combines all store interfaces for components that need full access
type StateStore interface {
	ImageStore
	RunStore
	StoreAdmin
}

// FailedImage is one row of FailedImages
type FailedImage struct {
	SourceURL string
	Entry     models.ImageDBEntry
}
