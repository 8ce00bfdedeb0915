package restore

// errors.go defines the restore error taxonomy and maps errors to
// user-facing messages with support codes.
//
//	RST000 - Unexpected failure inside the engine
//	RST001 - Invalid backup document or options (nothing was written)
//	RST002 - Another restore is running against the same environment
//	RST003 - Timed out waiting for the run; its final state is unknown
//	RST004 - Caller lacks the required capability
//	RST005 - Resume requested but no checkpoint exists

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed restore request. It is always raised
// before any store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrUnexpected wraps anything the orchestrator did not anticipate,
// including recovered panics.
var ErrUnexpected = errors.New("unexpected restore failure")

// ErrRestoreTimeout is returned by callers that stop waiting for a run.
// The run keeps going; row counts must be verified before retrying.
var ErrRestoreTimeout = errors.New("restore did not finish in time")

// ErrForbidden is returned when the caller may not run a restore.
var ErrForbidden = errors.New("administrator capability required")

// Validate checks that a document can be restored.
func Validate(doc *BackupDocument) error {
	if doc == nil {
		return &ValidationError{Field: "backupData", Reason: "is required"}
	}
	if doc.Data == nil {
		return &ValidationError{Field: "backupData.data", Reason: "is required"}
	}
	for table, records := range doc.Data {
		for i, rec := range records {
			if rec == nil {
				return &ValidationError{
					Field:  fmt.Sprintf("backupData.data.%s[%d]", table, i),
					Reason: "record must be an object",
				}
			}
		}
	}
	return nil
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// MapError converts an error into a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return UserMessage{
			Code:    "RST001",
			Message: "The backup document is invalid: " + verr.Error(),
			Action:  "Check the backup file and try again. Nothing was changed.",
		}
	case errors.Is(err, ErrRestoreInProgress):
		return UserMessage{
			Code:    "RST002",
			Message: "Another restore is already running",
			Action:  "Wait for it to finish before starting a new one",
		}
	case errors.Is(err, ErrRestoreTimeout):
		return UserMessage{
			Code:    "RST003",
			Message: "The restore did not finish in time and is still running; its final state is unknown",
			Action:  "Re-verify table row counts before retrying",
		}
	case errors.Is(err, ErrForbidden):
		return UserMessage{
			Code:    "RST004",
			Message: "You are not allowed to restore backups",
			Action:  "Ask an administrator",
		}
	case errors.Is(err, ErrNoCheckpoint):
		return UserMessage{
			Code:    "RST005",
			Message: "There is no saved progress for this backup",
			Action:  "Start a fresh restore without resume",
		}
	default:
		return UserMessage{
			Code:    "RST000",
			Message: "Restore failed due to an unexpected error",
			Action:  "Check the server logs and re-verify row counts before retrying",
		}
	}
}
