package entity

import "errors"

var (
	// ErrInvalidWorkflow is returned when a workflow definition id is unknown
	ErrInvalidWorkflow = errors.New("unknown workflow definition")

	// ErrRequestNotFound is returned when a request id is unknown
	ErrRequestNotFound = errors.New("approval request not found")

	// ErrStepNotFound is returned when a chain level does not exist
	ErrStepNotFound = errors.New("approval step not found")

	// ErrAlreadyTerminal is returned when acting on an approved or rejected request
	ErrAlreadyTerminal = errors.New("approval request already terminal")

	// ErrApprovalNotReady is returned when the request is not in an actionable state
	ErrApprovalNotReady = errors.New("approval request not actionable")

	// ErrForbidden is returned when the actor may not act on the request
	ErrForbidden = errors.New("actor not authorized for this approval")

	// ErrCommentRequired is returned when reject/return is missing comments
	ErrCommentRequired = errors.New("comments required for this action")

	// ErrInvalidReturnLevel is returned when a return target is out of range
	ErrInvalidReturnLevel = errors.New("invalid return level")

	// ErrInvalidAction is returned for unknown action types
	ErrInvalidAction = errors.New("invalid approval action")

	// ErrEmptySelection is returned when a bulk operation has no request ids
	ErrEmptySelection = errors.New("bulk operation requires at least one request")

	// ErrTooManyItems is returned when a bulk operation exceeds the configured cap
	ErrTooManyItems = errors.New("bulk operation exceeds item limit")

	// ErrJobNotFound is returned when a bulk job id is unknown or expired
	ErrJobNotFound = errors.New("bulk job not found")

	// ErrStaleRequest is returned when a guarded state update matched no row,
	// meaning a concurrent actor transitioned the request first
	ErrStaleRequest = errors.New("approval request state changed concurrently")

	// ErrUnknownActor is returned when the identity provider cannot resolve an actor
	ErrUnknownActor = errors.New("unknown actor")
)
