package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrInvalidURL         = errors.New("invalid URL")
	ErrUnsupportedScheme  = errors.New("unsupported URL scheme")
	ErrRobotsDisallowed   = errors.New("disallowed by robots.txt")
	ErrRateLimited        = errors.New("rate limited by host (429)")
	ErrClientHTTPError    = errors.New("client HTTP error (4xx)")    // Wraps original status
	ErrServerHTTPError    = errors.New("server HTTP error (5xx)")    // Wraps original status
	ErrOtherHTTPError     = errors.New("other HTTP error (non-2xx)") // Wraps original status
	ErrContentType        = errors.New("content type not allowed")
	ErrBodyTooLarge       = errors.New("response body exceeds size limit")
	ErrTooManyRedirects   = errors.New("too many redirects")
	ErrRequestCreation    = errors.New("failed to create HTTP request")
	ErrResponseBodyRead   = errors.New("failed to read response body")
	ErrMaxAttempts        = errors.New("maximum attempts exhausted")
	ErrPreviouslyFailed   = errors.New("URL is in the failure cache")
	ErrParsing            = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, JSON)
	ErrNoTitle            = errors.New("no title found")
	ErrMarkdownConversion = errors.New("markdown conversion failed")
	ErrFilesystem         = errors.New("filesystem error") // Wraps os errors
	ErrDatabase           = errors.New("database error")   // Wraps badger errors
	ErrStorageContention  = errors.New("storage contention not resolved")
	ErrNotFound           = errors.New("record not found")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrAlreadyLocked      = errors.New("queue entry locked by another worker")
	ErrBudgetExhausted    = errors.New("daily discovery budget exhausted")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrConfigValidation   = errors.New("configuration validation error")
)

// WrapErrorf wraps a sentinel with a formatted message so errors.Is keeps working.
func WrapErrorf(sentinel error, format string, args ...interface{}) error {
	if sentinel == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CategorizeError maps an error to a predefined category string for logging and failure reasons.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}
	// Exhausted retries are wrapped together with the last underlying error
	if errors.Is(err, ErrMaxAttempts) {
		return "MaxAttempts_" + categorize(err)
	}
	return categorize(err)
}

func categorize(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrUnsupportedScheme):
		return "URL_Invalid"
	case errors.Is(err, ErrPreviouslyFailed):
		return "Policy_FailureCache"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrRateLimited):
		return "HTTP_429"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrTooManyRedirects):
		return "HTTP_TooManyRedirects"
	case errors.Is(err, ErrContentType):
		return "Content_Type"
	case errors.Is(err, ErrBodyTooLarge):
		return "Content_TooLarge"
	case errors.Is(err, ErrNoTitle):
		return "Content_NoTitle"
	case errors.Is(err, ErrMarkdownConversion):
		return "Content_Markdown"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
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
	case errors.Is(err, ErrStorageContention):
		return "Database_Contention"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrAlreadyLocked):
		return "Queue_Locked"
	case errors.Is(err, ErrBudgetExhausted):
		return "Discovery_Budget"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
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
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}
	if strings.Contains(lowerErrMsg, "broken pipe") {
		return "Network_BrokenPipe"
	}
	if strings.Contains(lowerErrMsg, "eof") {
		return "Network_EOF"
	}

	return "Unknown"
}

// IsTransientNetworkError reports whether err matches a known transient network signature.
func IsTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.HasPrefix(CategorizeError(err), "Network_")
}
