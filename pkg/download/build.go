package download

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sriram-PR/animal-scraper/pkg/models"
	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// CommonsFilePathBase resolves a file name on Wikimedia Commons to the file itself
const CommonsFilePathBase = "https://commons.wikimedia.org/wiki/Special:FilePath/"

// CommonsFallbackURL guesses a Commons image URL from an animal name
func CommonsFallbackURL(name string) string {
	title := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return CommonsFilePathBase + url.PathEscape(title) + ".jpg"
}

// BuildWorkItems turns scraped records into download work, one item per animal.
// Records without an image URL are left out unless useCommonsFallback is set.
// The returned skipped list names the animals that got no item.
func BuildWorkItems(records []models.AnimalRecord, outputDir string, useCommonsFallback bool) (items []models.WorkItem, skipped []string) {
	seenIDs := make(map[string]struct{}, len(records))
	seenPaths := make(map[string]int, len(records))

	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			continue
		}
		if _, dup := seenIDs[name]; dup {
			continue
		}

		source := rec.ImageURL
		if source == "" && useCommonsFallback {
			source = CommonsFallbackURL(name)
		}
		seenIDs[name] = struct{}{}
		if source == "" {
			skipped = append(skipped, name)
			continue
		}

		filename := utils.ImageFilename(name, urlPath(source))
		key := strings.ToLower(filename)
		if n := seenPaths[key]; n > 0 {
			// Distinct names that sanitize to the same file, e.g. "Red fox" and "Red_fox"
			ext := filepath.Ext(filename)
			filename = strings.TrimSuffix(filename, ext) + "_" + strconv.Itoa(n+1) + ext
		}
		seenPaths[key]++

		items = append(items, models.WorkItem{
			ID:        name,
			SourceURL: source,
			DestPath:  filepath.Join(outputDir, filename),
		})
	}
	return items, skipped
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}
