package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edumirror/backend/internal/models"
)

func TestNextIsTotal(t *testing.T) {
	statuses := []models.SessionStatus{
		models.SessionStatusCreated,
		models.SessionStatusActive,
		models.SessionStatusProcessing,
		models.SessionStatusCompleted,
		models.SessionStatusFailed,
	}
	triggers := []Trigger{TriggerStart, TriggerEnd, TriggerComplete, TriggerFail}
	allowed := map[models.SessionStatus]map[Trigger]models.SessionStatus{
		models.SessionStatusCreated:    {TriggerStart: models.SessionStatusActive},
		models.SessionStatusActive:     {TriggerEnd: models.SessionStatusProcessing},
		models.SessionStatusProcessing: {TriggerComplete: models.SessionStatusCompleted, TriggerFail: models.SessionStatusFailed},
	}

	for _, from := range statuses {
		for _, trig := range triggers {
			to, err := Next(from, trig)
			if want, ok := allowed[from][trig]; ok {
				assert.NoError(t, err, "%s/%s", from, trig)
				assert.Equal(t, want, to)
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", from, trig)
			assert.Equal(t, from, to)
			var te *TransitionError
			assert.ErrorAs(t, err, &te)
		}
	}
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusFailed} {
		assert.True(t, s.Terminal())
		for _, trig := range []Trigger{TriggerStart, TriggerEnd, TriggerComplete, TriggerFail} {
			_, err := Next(s, trig)
			assert.Error(t, err)
		}
	}
}
