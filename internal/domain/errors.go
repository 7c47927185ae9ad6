package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Domain errors.
var (
	// ErrRateLimited is returned when the platform or a proxy answers with
	// a 429-equivalent response.
	ErrRateLimited = errors.New("rate limited")

	// ErrAllProxiesExhausted is returned by the proxy pool when every
	// configured proxy is currently in cooldown.
	ErrAllProxiesExhausted = errors.New("all proxies in cooldown")

	// ErrNoFormats is returned when a video exposes no directly usable
	// stream formats.
	ErrNoFormats = errors.New("no downloadable formats")

	// ErrRunNotFound is returned when a download run cannot be found.
	ErrRunNotFound = errors.New("download run not found")
)

// ResolutionError indicates a video or playlist could not be resolved: the
// ID does not match the expected shape, the API returned an error payload,
// or expected response fields were absent. Never retried.
type ResolutionError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve %q: %s", e.Ref, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError creates a new ResolutionError.
func NewResolutionError(ref, reason string, err error) *ResolutionError {
	return &ResolutionError{Ref: ref, Reason: reason, Err: err}
}

// FormatNotFoundError indicates a requested itag or quality is not present
// among a video's available formats. Carries the available set so callers
// can surface it; never a silent downgrade.
type FormatNotFoundError struct {
	Quality   string
	Itag      int
	Available []string
}

func (e *FormatNotFoundError) Error() string {
	want := e.Quality
	if e.Itag != 0 {
		want = fmt.Sprintf("itag %d", e.Itag)
	}
	return fmt.Sprintf("format %s not available (have: %s)", want, strings.Join(e.Available, ", "))
}

// ConfigurationError indicates invalid startup configuration, such as a
// concurrency bound out of range or a malformed proxy file line. Fatal.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether an error represents a transient network fault
// (timeout, connection reset, 5xx) worth retrying through another proxy.
// Rate limiting is transient by definition; resolution, format, and
// configuration errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return false
	}
	var fmtErr *FormatNotFoundError
	if errors.As(err, &fmtErr) {
		return false
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var transient *TransientError
	return errors.As(err, &transient)
}

// TransientError marks an error as retryable, typically a 5xx response or a
// stalled stream.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}
