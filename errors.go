package imgguard

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrInvalidRequest      = errors.New("imgguard: invalid request")
	ErrUnknownProvider     = fmt.Errorf("%w: unknown provider", ErrInvalidRequest)
	ErrQuotaExhausted      = errors.New("imgguard: local quota exhausted")
	ErrImageNotFound       = errors.New("imgguard: image not found or inaccessible")
	ErrAuthFailed          = errors.New("imgguard: authentication failed")
	ErrRateLimited         = errors.New("imgguard: rate limited by provider")
	ErrProviderUnavailable = errors.New("imgguard: provider unavailable")
	ErrInternal            = errors.New("imgguard: internal error")
	ErrUsageNotFound       = errors.New("imgguard: usage record not found")
)

// ErrorKind is the caller-facing error category.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindImageNotFound      ErrorKind = "image_not_found"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindRateLimit          ErrorKind = "rate_limit"
	KindAuthentication     ErrorKind = "authentication"
	KindInternal           ErrorKind = "internal"
)

// ModerationError wraps an error with the provider and image it concerns.
type ModerationError struct {
	Err      error
	Provider string
	ImageURL string
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("imgguard: provider=%s url=%s: %v", e.Provider, e.ImageURL, e.Err)
}

func (e *ModerationError) Unwrap() error {
	return e.Err
}

// Kind returns the caller-facing category of the wrapped error.
func (e *ModerationError) Kind() ErrorKind { return KindOf(e.Err) }

// StatusCode returns the HTTP status suggested for the wrapped error.
func (e *ModerationError) StatusCode() int { return StatusCode(e.Err) }

// KindOf classifies any error. Local quota exhaustion and provider throttling
// both surface as KindRateLimit; use errors.Is to tell them apart.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return KindValidation
	case errors.Is(err, ErrImageNotFound):
		return KindImageNotFound
	case errors.Is(err, ErrQuotaExhausted), errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrAuthFailed):
		return KindAuthentication
	case errors.Is(err, ErrProviderUnavailable):
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}

// StatusCode maps an error to an HTTP status code.
func StatusCode(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	case KindImageNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ProviderOf returns the provider name carried by err, if any.
func ProviderOf(err error) string {
	var me *ModerationError
	if errors.As(err, &me) {
		return me.Provider
	}
	return ""
}
