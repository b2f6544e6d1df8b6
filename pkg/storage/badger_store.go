package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/log"
	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

const (
	imageKeyPrefix = "img:"     // Prefix for image source URL keys in DB
	runKeyPrefix   = "run:"     // Prefix for run summary keys in DB
	stateDBDir     = "image_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the StateStore interface using BadgerDB
type BadgerStore struct {
	db         *badger.DB
	log        *logrus.Entry
	ctx        context.Context // Parent context
	imageCount atomic.Int64    // Cached image key count for O(1) GetImageCount
}

// NewBadgerStore opens the state DB under stateDir. Without resume, existing state is wiped.
func NewBadgerStore(ctx context.Context, stateDir string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, stateDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing image state database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest status per image matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys(imageKeyPrefix)
		if err != nil {
			logger.Warnf("Failed to count existing image keys on resume: %v", err)
		} else {
			store.imageCount.Store(int64(count))
			logger.Infof("Loaded existing image count on resume: %d", count)
		}
	}

	logger.Info("Image state database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time prefix scan (used only during initialization on resume)
func (s *BadgerStore) countKeys(prefix string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Conflicts between MVCC transactions resolve in microseconds, so no backoff is applied.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// CheckImageStatus implements the ImageStore interface
func (s *BadgerStore) CheckImageStatus(sourceURL string) (models.ImageStatus, *models.ImageDBEntry, error) {
	status := models.ImageStatusNotFound
	var entry *models.ImageDBEntry
	key := []byte(imageKeyPrefix + sourceURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting image key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				s.log.Warnf("Image key '%s' found with empty value, invalid state. Treating as 'not_found'.", string(key))
				return nil
			}

			var decodedEntry models.ImageDBEntry
			if errJson := json.Unmarshal(val, &decodedEntry); errJson != nil {
				s.log.Warnf("Failed to unmarshal ImageDBEntry for key '%s': %v. Treating as 'not_found'.", string(key), errJson)
				return nil
			}

			entry = &decodedEntry
			status = decodedEntry.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckImageStatus for key '%s': %v", string(key), errView)
		return models.ImageStatusDBError, nil, errView
	}

	return status, entry, nil
}

// UpdateImageStatus implements the ImageStore interface
func (s *BadgerStore) UpdateImageStatus(sourceURL string, entry *models.ImageDBEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: state DB not initialized", utils.ErrDatabase)
	}
	key := []byte(imageKeyPrefix + sourceURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal ImageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateImageStatus: %v", err)
		return fmt.Errorf("%w: failed setting image status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.imageCount.Add(1)
	}

	s.log.Debugf("Updated image status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// FailedImages implements the ImageStore interface
func (s *BadgerStore) FailedImages(ctx context.Context) ([]FailedImage, error) {
	var failed []FailedImage
	scanErrors := 0

	err := s.scanPrefix(ctx, imageKeyPrefix, func(key string, val []byte) error {
		var entry models.ImageDBEntry
		if errJson := json.Unmarshal(val, &entry); errJson != nil {
			s.log.Errorf("Failed scan: cannot unmarshal ImageDBEntry for '%s': %v. Skipping.", key, errJson)
			scanErrors++
			return nil
		}
		if entry.Status == models.ImageStatusFailure {
			failed = append(failed, FailedImage{SourceURL: key, Entry: entry})
		}
		return nil
	})
	if scanErrors > 0 {
		s.log.Warnf("Failed-image scan skipped %d undecodable entries", scanErrors)
	}
	return failed, err
}

// SaveRun implements the RunStore interface
func (s *BadgerStore) SaveRun(summary *models.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("%w: run summary without run ID", utils.ErrDatabase)
	}
	key := []byte(runKeyPrefix + summary.RunID)

	summaryBytes, errJson := json.Marshal(summary)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal RunSummary '%s': %w", utils.ErrParsing, summary.RunID, errJson)
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, summaryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in SaveRun: %v", err)
		return fmt.Errorf("%w: failed saving run '%s': %w", utils.ErrDatabase, summary.RunID, err)
	}
	return nil
}

// GetRun implements the RunStore interface
func (s *BadgerStore) GetRun(runID string) (*models.RunSummary, bool, error) {
	var summary *models.RunSummary
	key := []byte(runKeyPrefix + runID)

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting run key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.RunSummary
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				return fmt.Errorf("%w: failed to unmarshal RunSummary '%s': %w", utils.ErrParsing, runID, errJson)
			}
			summary = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return summary, summary != nil, nil
}

// ListRuns implements the RunStore interface
func (s *BadgerStore) ListRuns(limit int) ([]models.RunSummary, error) {
	var runs []models.RunSummary
	err := s.scanPrefix(s.ctx, runKeyPrefix, func(key string, val []byte) error {
		var summary models.RunSummary
		if errJson := json.Unmarshal(val, &summary); errJson != nil {
			s.log.Warnf("Skipping undecodable run summary '%s': %v", key, errJson)
			return nil
		}
		runs = append(runs, summary)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// scanPrefix calls fn with the prefix-stripped key and a copy of the value of every key under prefix
func (s *BadgerStore) scanPrefix(ctx context.Context, prefix string, fn func(key string, val []byte) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				s.log.Warnf("DB scan interrupted by context cancellation: %v", err)
				return err
			}
			item := it.Item()
			key := string(item.KeyCopy(nil)[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("%w: reading value for '%s': %w", utils.ErrDatabase, key, err)
			}
			if len(val) == 0 {
				continue
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetImageCount implements the StoreAdmin interface.
// Returns the cached count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) GetImageCount() (int, error) {
	return int(s.imageCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
				s.log.Info("BadgerDB GC cycle completed.")
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// WriteImageLog implements the StoreAdmin interface
func (s *BadgerStore) WriteImageLog(filePath string) error {
	s.log.Info("Writing image state log (from DB)...")
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create image log '%s': %v", filePath, err)
		return fmt.Errorf("%w: create image log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	writtenCount := 0

	iterErr := s.scanPrefix(s.ctx, imageKeyPrefix, func(key string, val []byte) error {
		var entry models.ImageDBEntry
		if errJson := json.Unmarshal(val, &entry); errJson != nil {
			s.log.Warnf("Writing image log: undecodable entry for '%s': %v", key, errJson)
		}
		if _, err := fmt.Fprintf(writer, "%s\t%s\t%s\n", key, entry.Status, entry.LocalPath); err != nil && writeErr == nil {
			writeErr = err
		}
		writtenCount++
		if writtenCount%5000 == 0 {
			if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
				writeErr = flushErr
			}
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if iterErr != nil {
		if !errors.Is(iterErr, context.Canceled) && !errors.Is(iterErr, context.DeadlineExceeded) {
			s.log.Errorf("Error during DB iteration for image log: %v", iterErr)
		}
		return iterErr
	}
	if writeErr != nil {
		s.log.Warnf("Finished writing image log with errors. Wrote ~%d entries to %s", writtenCount, filePath)
		return fmt.Errorf("%w: writing image log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Finished writing %d entries to image log: %s", writtenCount, filePath)
	return nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing state DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing state DB: %v", err)
			return err
		}
		s.log.Info("State DB closed.")
		return nil
	}
	s.log.Debug("State DB already closed or was not initialized.")
	return nil
}
