package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
	ErrWebhookDisabled = errors.New("webhook disabled")
	ErrUnauthorized    = errors.New("unauthorized")
)

// ErrConflict means another row already owns the normalized key or slug.
var ErrConflict = errors.New("conflict")
