package download

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

// Skip reasons recorded on Skipped results
const (
	ReasonExists            = "destination exists"
	ReasonAlreadyDownloaded = "already downloaded"
	ReasonRobotsDisallowed  = "robots.txt disallows"
)

// StatusChecker reads persisted image state; storage.ImageStore satisfies it
type StatusChecker interface {
	CheckImageStatus(sourceURL string) (models.ImageStatus, *models.ImageDBEntry, error)
}

// RobotsPolicy reports whether a URL may be fetched; fetch.RobotsChecker satisfies it
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// SkipChain checks, in order: an existing non-empty destination, a recorded success whose
// file is still present, and robots.txt. The first match wins. Nil members are skipped.
type SkipChain struct {
	SkipExisting bool
	Store        StatusChecker
	Robots       RobotsPolicy
	Log          *logrus.Entry
}

// ShouldSkip implements SkipChecker
func (s *SkipChain) ShouldSkip(ctx context.Context, item models.WorkItem) (string, bool) {
	if s.SkipExisting && nonEmptyFile(item.DestPath) {
		return ReasonExists, true
	}

	if s.Store != nil {
		status, entry, err := s.Store.CheckImageStatus(item.SourceURL)
		switch {
		case err != nil:
			if s.Log != nil {
				s.Log.WithField("item", item.ID).Warnf("Image DB check failed, downloading anyway: %v", err)
			}
		case status == models.ImageStatusSuccess && entry != nil && entry.LocalPath != "" && nonEmptyFile(entry.LocalPath):
			return ReasonAlreadyDownloaded, true
		}
	}

	if s.Robots != nil && !s.Robots.Allowed(ctx, item.SourceURL) {
		return ReasonRobotsDisallowed, true
	}
	return "", false
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// CleanupEmptyFiles removes zero-byte images and leftover .part files from dir.
// A missing dir is not an error.
func CleanupEmptyFiles(dir string, log *logrus.Entry) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		isPartial := strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".part")
		isImage := strings.Contains(name, "_image.")
		if !isPartial && !isImage {
			continue
		}

		if !isPartial {
			info, err := e.Info()
			if err != nil || info.Size() > 0 {
				continue
			}
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			log.Warnf("Could not remove '%s': %v", path, err)
			continue
		}
		removed++
		log.Debugf("Removed empty or partial file '%s'", path)
	}
	if removed > 0 {
		log.Infof("Cleaned up %d empty or partial file(s) in '%s'", removed, dir)
	}
	return removed, nil
}
