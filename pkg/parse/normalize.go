package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

// NormalizeURL standardizes an absolute URL for use as a state key.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// ensures an empty path becomes "/" and drops the fragment. The query is kept: image
// endpoints such as Special:FilePath select the rendition through it.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	}
	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// NormalizeImageURL resolves raw against base (which may be nil) and normalizes it.
// Protocol-relative references ("//upload.example/x.jpg") take base's scheme, or https
// without a base. The result must be an absolute http(s) URL.
func NormalizeImageURL(raw string, base *url.URL) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty image URL", utils.ErrMalformedURL)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: '%s': %w", utils.ErrMalformedURL, raw, err)
	}

	switch {
	case base != nil:
		ref = base.ResolveReference(ref)
	case ref.Scheme == "" && strings.HasPrefix(raw, "//"):
		ref.Scheme = "https"
	}

	scheme := strings.ToLower(ref.Scheme)
	if (scheme != "http" && scheme != "https") || ref.Host == "" {
		return "", fmt.Errorf("%w: '%s' is not an absolute http(s) URL", utils.ErrMalformedURL, raw)
	}
	return NormalizeURL(ref), nil
}
