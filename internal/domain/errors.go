package domain

import "errors"

// Domain errors
var (
	ErrNotFound             = errors.New("not found")
	ErrContestNotFound      = wrapNotFound("contest not found")
	ErrParticipantNotFound  = wrapNotFound("participant not found")
	ErrSurfaceNotFound      = wrapNotFound("leaderboard surface not found")
	ErrInvalidState         = errors.New("invalid contest state")
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientProblems = errors.New("no problems match the requested rating range")
	ErrExternalUnavailable  = errors.New("judge service unavailable")
	ErrPublishDenied        = errors.New("not allowed to update leaderboard surface")
	ErrAlreadyJoined        = errors.New("user already joined this contest")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// notFoundError keeps a specific message while still matching ErrNotFound.
type notFoundError struct {
	msg string
}

func wrapNotFound(msg string) error {
	return &notFoundError{msg: msg}
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
