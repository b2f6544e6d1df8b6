package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

type stubStatus struct {
	status models.ImageStatus
	entry  *models.ImageDBEntry
	err    error
}

func (s stubStatus) CheckImageStatus(string) (models.ImageStatus, *models.ImageDBEntry, error) {
	return s.status, s.entry, s.err
}

type stubRobots bool

func (r stubRobots) Allowed(context.Context, string) bool { return bool(r) }

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestSkipChain(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Lion_image.jpg")
	writeFile(t, existing, "jpeg")
	empty := filepath.Join(dir, "Tiger_image.jpg")
	writeFile(t, empty, "")
	recorded := filepath.Join(dir, "old", "Lion_image.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(recorded), 0755))
	writeFile(t, recorded, "jpeg")

	tests := []struct {
		name   string
		chain  SkipChain
		dest   string
		reason string
		skip   bool
	}{
		{"existing file", SkipChain{SkipExisting: true}, existing, ReasonExists, true},
		{"existing file but skipping disabled", SkipChain{}, existing, "", false},
		{"empty file is not skipped", SkipChain{SkipExisting: true}, empty, "", false},
		{"missing file", SkipChain{SkipExisting: true}, filepath.Join(dir, "none.jpg"), "", false},
		{
			"recorded success with file present",
			SkipChain{Store: stubStatus{status: models.ImageStatusSuccess, entry: &models.ImageDBEntry{LocalPath: recorded}}},
			filepath.Join(dir, "none.jpg"), ReasonAlreadyDownloaded, true,
		},
		{
			"recorded success but file gone",
			SkipChain{Store: stubStatus{status: models.ImageStatusSuccess, entry: &models.ImageDBEntry{LocalPath: filepath.Join(dir, "gone.jpg")}}},
			filepath.Join(dir, "none.jpg"), "", false,
		},
		{
			"recorded failure",
			SkipChain{Store: stubStatus{status: models.ImageStatusFailure, entry: &models.ImageDBEntry{ErrorType: "HTTP_404"}}},
			filepath.Join(dir, "none.jpg"), "", false,
		},
		{
			"store error downloads anyway",
			SkipChain{Store: stubStatus{status: models.ImageStatusDBError, err: errors.New("db closed")}, Log: testLogger()},
			filepath.Join(dir, "none.jpg"), "", false,
		},
		{"robots disallows", SkipChain{Robots: stubRobots(false)}, filepath.Join(dir, "none.jpg"), ReasonRobotsDisallowed, true},
		{"robots allows", SkipChain{Robots: stubRobots(true)}, filepath.Join(dir, "none.jpg"), "", false},
		{"existing file wins over robots", SkipChain{SkipExisting: true, Robots: stubRobots(false)}, existing, ReasonExists, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := models.WorkItem{ID: "Lion", SourceURL: "https://img.example/lion.jpg", DestPath: tt.dest}
			reason, skip := tt.chain.ShouldSkip(context.Background(), item)
			assert.Equal(t, tt.skip, skip)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestCleanupEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Lion_image.jpg"), "jpeg")
	writeFile(t, filepath.Join(dir, "Tiger_image.png"), "")
	writeFile(t, filepath.Join(dir, ".Bear_image.jpg.12345.part"), "partial")
	writeFile(t, filepath.Join(dir, "notes.txt"), "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub_image.d"), 0755))

	removed, err := CleanupEmptyFiles(dir, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.FileExists(t, filepath.Join(dir, "Lion_image.jpg"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.DirExists(t, filepath.Join(dir, "sub_image.d"))
	assert.NoFileExists(t, filepath.Join(dir, "Tiger_image.png"))
	assert.NoFileExists(t, filepath.Join(dir, ".Bear_image.jpg.12345.part"))
}

func TestCleanupEmptyFiles_MissingDir(t *testing.T) {
	removed, err := CleanupEmptyFiles(filepath.Join(t.TempDir(), "absent"), testLogger())
	assert.NoError(t, err)
	assert.Zero(t, removed)
}
