package utils

import (
	"path"
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var whitespaceRuns = regexp.MustCompile(`\s+`)
var consecutiveUnderscores = regexp.MustCompile(`_+`)
const maxFilenameLength = 100

// SupportedImageExtensions lists the extensions kept from a source URL
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// DefaultImageExtension is used when the source URL has no supported extension
const DefaultImageExtension = ".jpg"

// SanitizeFilename cleans a string to be safe for use as a filename component.
// Whitespace becomes underscores so "Red fox" and "Red_fox" map to the same name.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = whitespaceRuns.ReplaceAllString(sanitized, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ .")

	if len(sanitized) > maxFilenameLength {
		sanitized = sanitized[:maxFilenameLength]
		sanitized = strings.Trim(sanitized, "_ .")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// ImageExtension returns the lowercased extension of the URL path when it is a
// supported image type, and DefaultImageExtension otherwise.
func ImageExtension(urlPath string) string {
	if i := strings.IndexAny(urlPath, "?#"); i >= 0 {
		urlPath = urlPath[:i]
	}
	ext := strings.ToLower(path.Ext(urlPath))
	for _, supported := range SupportedImageExtensions {
		if ext == supported {
			return ext
		}
	}
	return DefaultImageExtension
}

// ImageFilename builds the on-disk name for an animal's image: <name>_image<ext>
func ImageFilename(animalName, sourceURL string) string {
	return SanitizeFilename(animalName) + "_image" + ImageExtension(sourceURL)
}
