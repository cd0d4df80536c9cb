package service

import "errors"

// Validation errors. Submit and SwitchSubject return them without touching
// the transcript; the HTTP layer answers them with 204 or 409.
var (
	ErrEmptyInput     = errors.New("empty input")
	ErrBusy           = errors.New("an exchange is in progress")
	ErrNoSession      = errors.New("no active conversation session")
	ErrUnknownSubject = errors.New("unknown subject")
)
