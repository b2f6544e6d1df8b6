package download

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
)

func TestBuildWorkItems(t *testing.T) {
	records := []models.AnimalRecord{
		{Name: "Aardvark", ImageURL: "https://upload.wikimedia.org/thumb/Aardvark.PNG?width=320"},
		{Name: "Red fox", ImageURL: "https://upload.wikimedia.org/Fox.webp"},
		{Name: "Bat", ImageURL: "https://upload.wikimedia.org/Bat.tiff"},
		{Name: "Cat"},
		{Name: "Aardvark", ImageURL: "https://other.example/aardvark.gif"},
		{Name: "  "},
	}

	items, skipped := BuildWorkItems(records, "out", false)

	require.Len(t, items, 3)
	assert.Equal(t, models.WorkItem{
		ID:        "Aardvark",
		SourceURL: "https://upload.wikimedia.org/thumb/Aardvark.PNG?width=320",
		DestPath:  filepath.Join("out", "Aardvark_image.png"),
	}, items[0])
	assert.Equal(t, filepath.Join("out", "Red_fox_image.webp"), items[1].DestPath)
	assert.Equal(t, filepath.Join("out", "Bat_image.jpg"), items[2].DestPath, "unsupported extension falls back to .jpg")
	assert.Equal(t, []string{"Cat"}, skipped)
}

func TestBuildWorkItems_CommonsFallback(t *testing.T) {
	items, skipped := BuildWorkItems([]models.AnimalRecord{{Name: "Snow leopard"}}, "out", true)

	require.Len(t, items, 1)
	assert.Empty(t, skipped)
	assert.Equal(t, "https://commons.wikimedia.org/wiki/Special:FilePath/Snow_leopard.jpg", items[0].SourceURL)
	assert.Equal(t, filepath.Join("out", "Snow_leopard_image.jpg"), items[0].DestPath)
}

func TestBuildWorkItems_RepeatedUnresolvedListedOnce(t *testing.T) {
	records := []models.AnimalRecord{
		{Name: "Cattle", Adjectives: []string{"bovine"}},
		{Name: "Cattle", Adjectives: []string{"taurine"}},
		{Name: "Owl", ImageURL: "https://x.example/owl.png"},
	}
	items, skipped := BuildWorkItems(records, "out", false)

	require.Len(t, items, 1)
	assert.Equal(t, []string{"Cattle"}, skipped)
}

func TestBuildWorkItems_FilenameCollision(t *testing.T) {
	records := []models.AnimalRecord{
		{Name: "Red fox", ImageURL: "https://x.example/a.jpg"},
		{Name: "Red_fox", ImageURL: "https://x.example/b.jpg"},
	}
	items, _ := BuildWorkItems(records, "out", false)

	require.Len(t, items, 2)
	assert.Equal(t, filepath.Join("out", "Red_fox_image.jpg"), items[0].DestPath)
	assert.Equal(t, filepath.Join("out", "Red_fox_image_2.jpg"), items[1].DestPath)
}

func TestCommonsFallbackURL_EscapesPath(t *testing.T) {
	assert.Equal(t, "https://commons.wikimedia.org/wiki/Special:FilePath/Guinea_pig%3F.jpg", CommonsFallbackURL("Guinea pig?"))
}
