package parse

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/animal-scraper/pkg/utils"
)

func TestNormalizeURL_NilInput(t *testing.T) {
	assert.Equal(t, "", NormalizeURL(nil))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseScheme", "HTTP://example.com/path", "http://example.com/path"},
		{"UppercaseHost", "https://UPLOAD.Wikimedia.ORG/a.jpg", "https://upload.wikimedia.org/a.jpg"},
		{"PathCasePreserved", "HTTPS://Example.COM/Path/Cat.JPG", "https://example.com/Path/Cat.JPG"},
		{"HTTPPort80Removed", "http://example.com:80/a.png", "http://example.com/a.png"},
		{"HTTPSPort443Removed", "https://example.com:443/a.png", "https://example.com/a.png"},
		{"NonDefaultPortKept", "https://example.com:8443/a.png", "https://example.com:8443/a.png"},
		{"CrossDefaultPortKept", "http://example.com:443/a.png", "http://example.com:443/a.png"},
		{"EmptyPathBecomesRoot", "https://example.com", "https://example.com/"},
		{"FragmentRemoved", "https://example.com/a.jpg#top", "https://example.com/a.jpg"},
		{"QueryKept", "https://commons.example/wiki/Special:FilePath/Cat.jpg?width=640", "https://commons.example/wiki/Special:FilePath/Cat.jpg?width=640"},
		{"TrailingSlashKept", "https://example.com/dir/", "https://example.com/dir/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, NormalizeURL(parsed))
		})
	}
}

func TestNormalizeURL_DoesNotModifyInput(t *testing.T) {
	parsed, err := url.Parse("HTTPS://Example.COM:443/a.jpg#frag")
	require.NoError(t, err)
	original := *parsed

	NormalizeURL(parsed)
	assert.Equal(t, original, *parsed)
}

func TestNormalizeImageURL(t *testing.T) {
	base, err := url.Parse("http://api.example/api/rest_v1/page/summary/Cat")
	require.NoError(t, err)

	tests := []struct {
		name     string
		raw      string
		base     *url.URL
		expected string
	}{
		{"Absolute", "https://upload.example/cat.jpg", base, "https://upload.example/cat.jpg"},
		{"ProtocolRelativeTakesBaseScheme", "//upload.example/cat.jpg", base, "http://upload.example/cat.jpg"},
		{"ProtocolRelativeWithoutBase", "//upload.example/cat.jpg", nil, "https://upload.example/cat.jpg"},
		{"RootRelative", "/images/cat.jpg", base, "http://api.example/images/cat.jpg"},
		{"Whitespace", "  https://upload.example/cat.jpg\n", nil, "https://upload.example/cat.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeImageURL(tt.raw, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeImageURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "/images/cat.jpg", "ftp://upload.example/cat.jpg", "data:image/png;base64,AAAA", "http://[::1"} {
		_, err := NormalizeImageURL(raw, nil)
		assert.ErrorIs(t, err, utils.ErrMalformedURL, "input %q", raw)
	}
}
