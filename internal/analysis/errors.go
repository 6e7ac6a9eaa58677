// Package analysis turns an ended session into a stored AnalysisResult.
//
// Failures split in two tiers. A CapabilityError (the external analysis call
// failed, timed out or answered with something unusable) is absorbed by
// substituting the fallback result. Collector and persistence failures are
// infrastructure failures and move the session to failed.
package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrResultNotFound is returned when a session has no servable analysis for the caller.
	ErrResultNotFound = errors.New("analysis result not found")
	// ErrNoAPIKey is returned by the LLM client when no provider key is configured.
	ErrNoAPIKey = errors.New("analysis provider api key not configured")
)

// CapabilityError reports a failed or unusable external analysis call.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string { return fmt.Sprintf("analysis capability %s: %v", e.Op, e.Err) }
func (e *CapabilityError) Unwrap() error { return e.Err }

// PersistenceError reports that a result or status could not be written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("analysis persistence %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func capabilityErr(op string, err error) error {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &CapabilityError{Op: op, Err: err}
}
