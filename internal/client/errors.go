package client

import (
	"errors"
	"fmt"
)

// ErrSessionExpired signals that the server rejected the stored credential.
// The transport discards the token before surfacing it.
var ErrSessionExpired = errors.New("session expired")

// Generic failure messages. Anything the caller should not branch on
// (timeouts, unreachable hosts, unclassified statuses) collapses to one of
// these; the underlying cause is logged, never surfaced.
var (
	ErrLoadModules  = errors.New("failed to load modules")
	ErrCreateModule = errors.New("failed to create module")
	ErrUpdateModule = errors.New("failed to update module")
	ErrDeleteModule = errors.New("failed to delete module")
	ErrSimulation   = errors.New("failed to generate simulation")
)

// ValidationError is raised before any network call and always names the
// offending fields. It is never rewritten by generic error handling.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports a missing resource by id.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ConflictError carries the server's own rejection message verbatim, e.g. a
// duplicate module name.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

// SimulationError embeds the server-side computation failure detail.
type SimulationError struct {
	Detail string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %s", e.Detail)
}

// StatusError is the transport-level error for any response with status >= 400.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Detail)
}

// Is lets callers match a 401 against ErrSessionExpired.
func (e *StatusError) Is(target error) bool {
	return target == ErrSessionExpired && e.Code == 401
}
