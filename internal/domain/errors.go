package domain

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrAuthRequired is returned when a mutation is attempted with no bound user
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotFound is returned when a requested task does not exist
	ErrNotFound = errors.New("task not found")

	// ErrPermissionDenied is returned when the store rejects a mutation for authorization reasons
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBackendUnavailable is returned for transient store or network failures
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrIndexMissing is returned when the store lacks the composite index the task query needs
	ErrIndexMissing = errors.New("required index missing")

	// ErrBadParamInput is returned when request parameters are invalid
	ErrBadParamInput = errors.New("invalid parameters")
)

// IndexError wraps ErrIndexMissing with the repair instructions the store
// embedded in its error message, when present.
type IndexError struct {
	Message   string
	RepairURL string
}

func (e *IndexError) Error() string {
	if e.RepairURL != "" {
		return fmt.Sprintf("required index missing: %s (repair: %s)", e.Message, e.RepairURL)
	}
	return "required index missing: " + e.Message
}

func (e *IndexError) Unwrap() error {
	return ErrIndexMissing
}

var repairURLPattern = regexp.MustCompile(`https?://[^\s"']+`)

// NewIndexError builds an IndexError from a raw store error message,
// extracting a repair-instructions link if the message embeds one.
func NewIndexError(message string) *IndexError {
	return &IndexError{
		Message:   message,
		RepairURL: repairURLPattern.FindString(message),
	}
}

// ExtractRepairURL pulls the first link out of an index error, if any
func ExtractRepairURL(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.RepairURL
	}
	return repairURLPattern.FindString(err.Error())
}
