package utils

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Cancelled", ErrCancelled, "System_Cancelled"},
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"SizeLimit", ErrSizeLimitExceeded, "Content_SizeLimit"},
		{"EmptyResource", ErrEmptyResource, "Content_Empty"},
		{"ContentType", ErrUnsupportedContentType, "Content_Type"},
		{"MalformedURL", ErrMalformedURL, "Input_MalformedURL"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"Duplicate", ErrDuplicateItem, "Input_Duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"404", fmt.Errorf("%w: status 404 Not Found", ErrClientHTTPError), "HTTP_404"},
		{"429", fmt.Errorf("%w: status 429 Too Many Requests", ErrClientHTTPError), "HTTP_429"},
		{"generic 4xx", fmt.Errorf("%w: status 418 I'm a teapot", ErrClientHTTPError), "HTTP_4xx"},
		{"retry over 5xx", fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrServerHTTPError)), "RetryFailed_HTTPServer"},
		{"retry over size", fmt.Errorf("%w: %w", ErrRetryFailed, ErrSizeLimitExceeded), "RetryFailed_SizeLimit"},
		{"permission", fmt.Errorf("%w: create temp: %w", ErrFilesystem, os.ErrPermission), "Filesystem_Permission"},
		{"double wrapped", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrEmptyResource)), "Content_Empty"},
		{"html parsing", fmt.Errorf("%w: HTML document", ErrParsing), "Content_ParsingHTML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"context canceled", context.Canceled, "System_ContextCanceled"},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), "Network_Timeout"},
		{"refused", fmt.Errorf("dial tcp: connection refused"), "Network_ConnectionRefused"},
		{"dns", fmt.Errorf("lookup foo: no such host"), "Network_DNSLookup"},
		{"unknown", fmt.Errorf("something odd"), "Unknown"},
		{"network sentinel", fmt.Errorf("%w: EOF", ErrNetwork), "Network_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"5xx", fmt.Errorf("%w: status 503", ErrServerHTTPError), true},
		{"429", fmt.Errorf("%w: status 429 Too Many Requests", ErrClientHTTPError), true},
		{"404", fmt.Errorf("%w: status 404 Not Found", ErrClientHTTPError), false},
		{"network", fmt.Errorf("%w: reset", ErrNetwork), true},
		{"body read", fmt.Errorf("%w: unexpected EOF", ErrResponseBodyRead), true},
		{"empty", ErrEmptyResource, false},
		{"filesystem", ErrFilesystem, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// --- Sanitize Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Red fox", "Red_fox"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  spaced   out  ", "spaced_out"},
		{"___", "untitled"},
		{"", "untitled"},
		{"Cat?*", "Cat"},
		{"..hidden", "hidden"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}
	got := SanitizeFilename(string(long))
	if len(got) != maxFilenameLength {
		t.Errorf("expected length %d, got %d", maxFilenameLength, len(got))
	}
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/thumb/a/ab/Fox.PNG", ".png"},
		{"/x/y.jpeg?width=200", ".jpeg"},
		{"/x/y.svg#frag", ".svg"},
		{"/x/y.tiff", ".jpg"},
		{"/x/noext", ".jpg"},
		{"", ".jpg"},
	}
	for _, tt := range tests {
		if got := ImageExtension(tt.path); got != tt.want {
			t.Errorf("ImageExtension(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestImageFilename(t *testing.T) {
	got := ImageFilename("Arctic fox", "https://upload.wikimedia.org/a/b/Arctic_fox.webp")
	if got != "Arctic_fox_image.webp" {
		t.Errorf("ImageFilename = %q", got)
	}
}
