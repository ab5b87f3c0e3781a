package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by repositories
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Registration errors
var (
	ErrRegistrationNotFound      = errors.New("registration not found")
	ErrRegistrationAlreadyExists = errors.New("registration already exists")
	ErrRegistrationClosed        = errors.New("registration is closed")
)

// Package errors
var (
	ErrPackageNotFound     = errors.New("package not found")
	ErrPackageInvalid      = errors.New("package manifest invalid")
	ErrPackageAlreadyKnown = errors.New("package already installed")
)

// Attempt errors
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptLive     = errors.New("attempt already in progress")
)

// Snapshot errors
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Launch token errors
var (
	ErrTokenInvalid = errors.New("launch token invalid")
	ErrTokenExpired = errors.New("launch token expired")
)

// General errors
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInternalError = errors.New("internal error")
)
