// Package sessions owns rehearsal session records and their lifecycle.
package sessions

import (
	"errors"
	"fmt"

	"github.com/edumirror/backend/internal/models"
)

var (
	// ErrSessionNotFound is returned when a session id (and owner) does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned for an out-of-order lifecycle signal.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Trigger is a lifecycle signal.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerEnd      Trigger = "end"
	TriggerComplete Trigger = "complete"
	TriggerFail     Trigger = "fail"
)

// TransitionError describes a rejected (status, trigger) pair. It matches ErrInvalidTransition.
type TransitionError struct {
	From    models.SessionStatus
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a session in status %q", e.Trigger, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

var transitions = map[models.SessionStatus]map[Trigger]models.SessionStatus{
	models.SessionStatusCreated: {
		TriggerStart: models.SessionStatusActive,
	},
	models.SessionStatusActive: {
		TriggerEnd: models.SessionStatusProcessing,
	},
	models.SessionStatusProcessing: {
		TriggerComplete: models.SessionStatusCompleted,
		TriggerFail:     models.SessionStatusFailed,
	},
}

// Next returns the status reached from `from` on trigger, or a *TransitionError.
func Next(from models.SessionStatus, trigger Trigger) (models.SessionStatus, error) {
	if to, ok := transitions[from][trigger]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Trigger: trigger}
}

// endedAlready reports whether an end signal for a session in status s is a duplicate.
func endedAlready(s models.SessionStatus) bool {
	return s == models.SessionStatusProcessing || s.Terminal()
}
