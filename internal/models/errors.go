package models

import "errors"

// Application-wide standard errors
var (
	// Session lifecycle errors
	ErrSessionNotFound = errors.New("pipeline session not found")
	ErrSessionBusy     = errors.New("session has a mutating operation in flight")

	// Stage operation errors
	ErrPreconditionNotMet = errors.New("stage preconditions are not met")
	ErrValidation         = errors.New("request is not applicable to the target artifact")

	// External collaborator errors
	ErrExternalClient  = errors.New("external generation client failed")
	ErrExternalJob     = errors.New("external conversion job failed")
	ErrJobTimeout      = errors.New("timed out waiting for conversion job")
	ErrNoArtifactURL   = errors.New("no artifact url in successful job result")
	ErrJobNotCreatable = errors.New("conversion job could not be created on any endpoint")

	// General request/server errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
