package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tenant layer.
var (
	ErrUnauthenticated   = errors.New("missing or invalid tenant identity")
	ErrTenantUnavailable = errors.New("tenant not found or inactive")
	ErrCampaignNotFound  = errors.New("campaign not found")
	// ErrCampaignConflict is returned when an operation races with a run
	// already in progress (delete/update/run of a running campaign).
	ErrCampaignConflict = errors.New("campaign is currently running")
)

// Stable per-contact failure reasons exposed in the message ledger.
const (
	ReasonInvalidLength    = "invalid phone number length"
	ReasonLeadingZero      = "phone number starts with 0"
	ReasonPlaceholder      = "phone number looks like placeholder data"
	ReasonProviderRejected = "rejected by provider"
	ReasonRateLimited      = "provider rate limit exceeded"
	ReasonTemplateMissing  = "template not found or not approved"
	ReasonProviderTimeout  = "provider request timed out"
	ReasonProviderDown     = "provider unavailable"
)

// ValidationError marks a malformed recipient. Recorded as a per-contact
// failure, never aborts a run.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func NewValidation(reason string) error {
	return &ValidationError{Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderError is a send the provider rejected. Code is the provider's own
// error code; Reason is one of the stable user-facing reasons above.
type ProviderError struct {
	Code   int
	Reason string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Reason)
}

// DispatchFatalError is a failure before any per-contact processing; it
// marks the whole run failed.
type DispatchFatalError struct {
	Err error
}

func (e *DispatchFatalError) Error() string {
	return fmt.Sprintf("dispatch failed before processing contacts: %v", e.Err)
}

func (e *DispatchFatalError) Unwrap() error { return e.Err }

func NewDispatchFatal(err error) error {
	return &DispatchFatalError{Err: err}
}

func IsDispatchFatal(err error) bool {
	var de *DispatchFatalError
	return errors.As(err, &de)
}
