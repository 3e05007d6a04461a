package domain

import "errors"

// Capture pipeline hard-abort errors.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrCaptureFailed       = errors.New("photo capture failed")
	ErrUploadFailed        = errors.New("photo upload failed")
	ErrInsertFailed        = errors.New("report insert failed")
	ErrCaptureInProgress   = errors.New("capture already in progress")
)

var (
	ErrInvalidReport      = errors.New("invalid report")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrDeleteFailed       = errors.New("report delete failed")
	ErrSubscriptionClosed = errors.New("subscription already closed")
)
