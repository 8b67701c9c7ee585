package service

import (
	"errors"
	"fmt"

	"github.com/tallyfin/ledger-worker/internal/credentials"
	"github.com/tallyfin/ledger-worker/internal/extraction"
	"github.com/tallyfin/ledger-worker/internal/sheets"
	"github.com/tallyfin/ledger-worker/internal/storage"
)

// Job-level error codes. Every job failure is mapped through Classify so
// the same underlying fault always yields the same code and status message.
const (
	CodeDownloadFailed   = "DOWNLOAD_FAILED"
	CodeExtractionFailed = "EXTRACTION_FAILED"
	CodeDuplicateFile    = "DUPLICATE_FILE"
	CodeNoCredentials    = "NO_CREDENTIALS"
	CodeUnknownError     = "UNKNOWN_ERROR"
)

// Fixed user-facing templates per code.
var statusMessages = map[string]string{
	CodeDownloadFailed:   "We couldn't read your uploaded file. Please try re-uploading.",
	CodeExtractionFailed: "We couldn't extract any transactions from this file. Please try re-uploading.",
	CodeDuplicateFile:    "This file has already been uploaded.",
	CodeNoCredentials:    "Connect a Google account to continue.",
	CodeUnknownError:     "Something went wrong processing this file. Please try re-uploading.",
}

// Stage markers wrapped around errors by the processor so classification
// stays in one place.
var (
	errDownloadStage   = errors.New("download failed")
	errExtractionStage = errors.New("extraction failed")
)

// DuplicateFileError is returned on upload when the same content hash is
// already active for the owner and force was not set.
type DuplicateFileError struct {
	ExistingJobID string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("duplicate file: already uploaded as job %s", e.ExistingJobID)
}

// Classify maps any processing error to its job error code and the fixed
// user-facing status message for that code.
func Classify(err error) (code string, statusMessage string) {
	var dup *DuplicateFileError
	switch {
	case errors.As(err, &dup):
		code = CodeDuplicateFile
	case errors.Is(err, credentials.ErrNoCredentials):
		code = CodeNoCredentials
	case errors.Is(err, errDownloadStage), errors.Is(err, storage.ErrNotFound):
		code = CodeDownloadFailed
	case errors.Is(err, errExtractionStage),
		errors.Is(err, extraction.ErrNoRows),
		errors.Is(err, extraction.ErrUnsupportedFormat):
		code = CodeExtractionFailed
	default:
		code = CodeUnknownError
	}
	return code, statusMessages[code]
}

// Sync-level errors.
var (
	// ErrSyncInProgress: the connection's syncing claim was held by another
	// invocation. Fail fast rather than queue.
	ErrSyncInProgress = errors.New("sync already in progress for this connection")

	// ErrExternalPermission: the resolved identity cannot access the sheet.
	// Never retried.
	ErrExternalPermission = errors.New("no permission on the external spreadsheet")
)

// IsRetryable reports whether a sync fault is worth another attempt.
// Auth and permission faults are terminal for the attempt; rate limits
// and 5xx are transient.
func IsRetryable(err error) bool {
	if errors.Is(err, credentials.ErrReconnectRequired) ||
		errors.Is(err, ErrExternalPermission) ||
		sheets.IsAuthError(err) ||
		sheets.IsPermissionError(err) {
		return false
	}
	return sheets.IsTransient(err)
}
