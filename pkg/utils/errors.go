package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed            = errors.New("download failed after all attempts") // Wraps the last attempt error
	ErrClientHTTPError        = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError        = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError         = errors.New("other HTTP error (non-2xx)")
	ErrNetwork                = errors.New("network error")
	ErrResponseBodyRead       = errors.New("failed to read response body")
	ErrSizeLimitExceeded      = errors.New("size limit exceeded")
	ErrEmptyResource          = errors.New("empty resource")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrMalformedURL           = errors.New("malformed source URL")
	ErrRequestCreation        = errors.New("failed to create HTTP request")
	ErrRobotsDisallowed       = errors.New("disallowed by robots.txt")
	ErrParsing                = errors.New("parsing error")    // Wraps HTML/JSON/URL parsing errors
	ErrFilesystem             = errors.New("filesystem error") // Wraps os errors
	ErrDatabase               = errors.New("database error")   // Wraps badger errors
	ErrCancelled              = errors.New("cancelled")
	ErrDuplicateItem          = errors.New("duplicate work item")
	ErrConfigValidation       = errors.New("configuration validation error")
)

// IsTransient reports whether err belongs to a class of failures that a later attempt may not hit
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrServerHTTPError),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrResponseBodyRead):
		return true
	case errors.Is(err, ErrClientHTTPError):
		msg := err.Error()
		return strings.Contains(msg, " 429 ") || strings.Contains(msg, " 408 ") || strings.Contains(msg, " 425 ")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// CategorizeError maps an error to a predefined category string for the state DB and reports.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrCancelled):
		return "System_Cancelled"
	case errors.Is(err, ErrRetryFailed):
		underlying := errors.Unwrap(err)
		if underlying != nil {
			if errors.Is(underlying, ErrServerHTTPError) {
				return "RetryFailed_HTTPServer"
			}
			if errors.Is(underlying, ErrClientHTTPError) {
				return "RetryFailed_HTTPClient"
			}
			if errors.Is(underlying, ErrSizeLimitExceeded) {
				return "RetryFailed_SizeLimit"
			}
			return "RetryFailed_Network"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "410", "429"} {
			if strings.Contains(errMsg, " "+code+" ") {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrSizeLimitExceeded):
		return "Content_SizeLimit"
	case errors.Is(err, ErrEmptyResource):
		return "Content_Empty"
	case errors.Is(err, ErrUnsupportedContentType):
		return "Content_Type"
	case errors.Is(err, ErrMalformedURL):
		return "Input_MalformedURL"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrDuplicateItem):
		return "Input_Duplicate"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Network_Timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}
	if errors.Is(err, ErrNetwork) {
		return "Network_Other"
	}

	return "Unknown"
}
