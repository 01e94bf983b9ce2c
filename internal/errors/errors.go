package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrNotFound - unknown conversation, tool, or customer (surfaced to the caller as a client error)
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict - optimistic save lost the version race (reload and retry once)
	ErrVersionConflict = errors.New("version conflict")

	// ErrPermissionDenied - caller role not in the tool's authorized set (recorded, non-fatal to the conversation)
	ErrPermissionDenied = errors.New("permission denied")

	// ErrToolTimeout - tool exceeded its configured timeout (recorded, retried per policy)
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolFailed - tool execution failed (recorded, retried per policy)
	ErrToolFailed = errors.New("tool execution failed")

	// ErrClassifierUnavailable - classification collaborator failed or timed out (degrade to clarification)
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrInvalidTransition - status transition outside the state machine table (invariant violation, turn aborted)
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidInput - invalid input (rejected before any side effect)
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient - transient error (caller may retry the whole request)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
