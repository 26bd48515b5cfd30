package world

import (
	"fmt"
	"time"

	"shelltown.ai/internal/protocol"
)

// Error is a caller-facing, recoverable outcome. Code is one of the protocol error codes.
type Error struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches on Code so errors.Is(err, ErrNotFound) works for any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound     = &Error{Code: protocol.ErrNotFound}
	ErrNameTaken    = &Error{Code: protocol.ErrNameTaken}
	ErrWorldFull    = &Error{Code: protocol.ErrWorldFull}
	ErrRateLimited  = &Error{Code: protocol.ErrRateLimit}
	ErrBlocked      = &Error{Code: protocol.ErrBlocked}
	ErrValidation   = &Error{Code: protocol.ErrBadRequest}
	ErrUnauthorized = &Error{Code: protocol.ErrUnauthorized}
	ErrInternal     = &Error{Code: protocol.ErrInternal}

	ErrWorldStopped = &Error{Code: protocol.ErrWorldBusy, Message: "world loop not running"}
)

func errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(agentID string) *Error {
	return errorf(protocol.ErrNotFound, "agent %q not found", agentID)
}
