package orchestrator

import "errors"

var (
	// ErrValidation is returned for bad intake payloads; no case is created.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStage is returned when an operation is requested at a stage
	// that does not support it.
	ErrInvalidStage = errors.New("operation not valid for case stage")

	// ErrUnknownAction is returned for unrecognized human-decision actions.
	ErrUnknownAction = errors.New("unknown decision action")
)
