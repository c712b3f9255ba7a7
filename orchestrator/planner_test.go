package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reachly/models"
)

var plannerNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func multiChannelPolicy() Policy {
	return Policy{
		Mode:                   models.ModeMultiChannel,
		LinkedInFirst:          true,
		WaitForConnection:      true,
		ConnectionTimeoutHours: 72,
		StepIntervalHours:      24,
	}
}

func state(status string, mutate ...func(*models.DeliveryState)) *models.DeliveryState {
	st := &models.DeliveryState{
		Status:            status,
		StateEnteredAt:    plannerNow.Add(-time.Hour),
		EmailStepTotal:    4,
		LinkedInStepTotal: 3,
	}
	for _, m := range mutate {
		m(st)
	}
	return st
}

func TestPlanStart(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   PlannedAction
	}{
		{
			name:   "email only starts email",
			policy: Policy{Mode: models.ModeEmailOnly},
			want:   ActionStartEmail,
		},
		{
			name:   "linkedin only starts linkedin",
			policy: Policy{Mode: models.ModeLinkedInOnly},
			want:   ActionStartLinkedIn,
		},
		{
			name:   "multi channel linkedin first",
			policy: multiChannelPolicy(),
			want:   ActionStartLinkedIn,
		},
		{
			name:   "multi channel email first with head start",
			policy: Policy{Mode: models.ModeMultiChannel, EmailHeadStartHours: 48},
			want:   ActionStartEmail,
		},
		{
			name:   "multi channel no preference starts both",
			policy: Policy{Mode: models.ModeMultiChannel},
			want:   ActionStartBoth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanNextAction(tt.policy, state(models.DeliveryNotStarted), plannerNow)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanAwaitingConnection(t *testing.T) {
	t.Run("waits while inside the timeout window", func(t *testing.T) {
		st := state(models.DeliveryAwaitingConnection, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-24 * time.Hour)
			s.LinkedInStepCurrent = 1
		})
		assert.Equal(t, ActionWait, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("starts email after the timeout elapses", func(t *testing.T) {
		st := state(models.DeliveryAwaitingConnection, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-73 * time.Hour)
			s.LinkedInStepCurrent = 1
		})
		assert.Equal(t, ActionStartEmail, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("starts both immediately when not waiting for connection", func(t *testing.T) {
		p := multiChannelPolicy()
		p.WaitForConnection = false
		st := state(models.DeliveryAwaitingConnection, func(s *models.DeliveryState) {
			s.LinkedInStepCurrent = 1
		})
		assert.Equal(t, ActionStartBoth, PlanNextAction(p, st, plannerNow))
	})

	t.Run("linkedin only keeps waiting past the timeout", func(t *testing.T) {
		p := Policy{Mode: models.ModeLinkedInOnly, WaitForConnection: true, ConnectionTimeoutHours: 72}
		st := state(models.DeliveryAwaitingConnection, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-100 * time.Hour)
			s.LinkedInStepCurrent = 1
		})
		assert.Equal(t, ActionWait, PlanNextAction(p, st, plannerNow))
	})
}

func TestPlanBothActiveTieBreak(t *testing.T) {
	// Both channels due in the same tick: email advances first so the
	// opened/replied flags are current before LinkedIn copy is resolved
	st := state(models.DeliveryBothActive, func(s *models.DeliveryState) {
		s.EmailStepCurrent = 1
		s.LinkedInStepCurrent = 1
		s.ConnectionAccepted = true
	})
	assert.Equal(t, ActionAdvanceEmail, PlanNextAction(multiChannelPolicy(), st, plannerNow))
}

func TestPlanBothActiveLinkedInGatedOnConnection(t *testing.T) {
	st := state(models.DeliveryBothActive, func(s *models.DeliveryState) {
		s.EmailStepCurrent = 4 // exhausted
		s.LinkedInStepCurrent = 1
		s.ConnectionAccepted = false
	})
	assert.Equal(t, ActionWait, PlanNextAction(multiChannelPolicy(), st, plannerNow))

	st.ConnectionAccepted = true
	assert.Equal(t, ActionAdvanceLinkedIn, PlanNextAction(multiChannelPolicy(), st, plannerNow))
}

func TestPlanStepIntervalRespected(t *testing.T) {
	recent := plannerNow.Add(-time.Hour)
	st := state(models.DeliveryBothActive, func(s *models.DeliveryState) {
		s.EmailStepCurrent = 1
		s.LinkedInStepCurrent = 1
		s.ConnectionAccepted = true
		s.LastEmailSyncAt = &recent
		s.LastLinkedInSentAt = &recent
	})
	assert.Equal(t, ActionWait, PlanNextAction(multiChannelPolicy(), st, plannerNow))

	stale := plannerNow.Add(-25 * time.Hour)
	st.LastEmailSyncAt = &stale
	assert.Equal(t, ActionAdvanceEmail, PlanNextAction(multiChannelPolicy(), st, plannerNow))
}

func TestPlanEmailActiveHeadStart(t *testing.T) {
	p := Policy{
		Mode:                models.ModeMultiChannel,
		EmailHeadStartHours: 48,
		StepIntervalHours:   24,
	}

	t.Run("linkedin held back during the head start", func(t *testing.T) {
		st := state(models.DeliveryEmailActive, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-24 * time.Hour)
			s.EmailStepCurrent = 1
			s.LastEmailSyncAt = &s.StateEnteredAt
		})
		assert.Equal(t, ActionAdvanceEmail, PlanNextAction(p, st, plannerNow))
	})

	t.Run("linkedin joins after the head start", func(t *testing.T) {
		st := state(models.DeliveryEmailActive, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-49 * time.Hour)
			s.EmailStepCurrent = 1
		})
		assert.Equal(t, ActionStartLinkedIn, PlanNextAction(p, st, plannerNow))
	})
}

func TestPlanEmailActiveExhaustedWaitsForLinkedIn(t *testing.T) {
	st := state(models.DeliveryEmailActive, func(s *models.DeliveryState) {
		s.EmailStepCurrent = 4
		s.LinkedInStepCurrent = 1
	})
	assert.Equal(t, ActionWait, PlanNextAction(multiChannelPolicy(), st, plannerNow))
}

func TestPlanTerminalAndPausedDoNothing(t *testing.T) {
	for _, status := range []string{models.DeliveryCompleted, models.DeliveryCancelled, models.DeliveryPaused} {
		st := state(status)
		assert.Equal(t, ActionNone, PlanNextAction(multiChannelPolicy(), st, plannerNow), status)
	}
	assert.Equal(t, ActionNone, PlanNextAction(multiChannelPolicy(), nil, plannerNow))
}

func TestPlanNeverStartsChannelWithoutSteps(t *testing.T) {
	noEmail := func(s *models.DeliveryState) { s.EmailStepTotal = 0 }

	t.Run("start picks linkedin when no email steps exist", func(t *testing.T) {
		st := state(models.DeliveryNotStarted, noEmail)
		assert.Equal(t, ActionStartLinkedIn, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("connection timeout has no email to fall back to", func(t *testing.T) {
		st := state(models.DeliveryAwaitingConnection, noEmail, func(s *models.DeliveryState) {
			s.StateEnteredAt = plannerNow.Add(-100 * time.Hour)
			s.LinkedInStepCurrent = 1
		})
		assert.Equal(t, ActionWait, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("linkedin progress does not trigger an email start", func(t *testing.T) {
		st := state(models.DeliveryLinkedInActive, noEmail, func(s *models.DeliveryState) {
			s.LinkedInStepCurrent = 2
		})
		assert.Equal(t, ActionAdvanceLinkedIn, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("linkedin exhaustion without email steps ends the sequence", func(t *testing.T) {
		st := state(models.DeliveryLinkedInActive, noEmail, func(s *models.DeliveryState) {
			s.LinkedInStepCurrent = 3
		})
		assert.Equal(t, ActionNone, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})

	t.Run("start picks email when no linkedin steps exist", func(t *testing.T) {
		st := state(models.DeliveryNotStarted, func(s *models.DeliveryState) { s.LinkedInStepTotal = 0 })
		assert.Equal(t, ActionStartEmail, PlanNextAction(multiChannelPolicy(), st, plannerNow))
	})
}

func TestPlanBothExhausted(t *testing.T) {
	st := state(models.DeliveryBothActive, func(s *models.DeliveryState) {
		s.EmailStepCurrent = 4
		s.LinkedInStepCurrent = 3
		s.ConnectionAccepted = true
	})
	assert.Equal(t, ActionNone, PlanNextAction(multiChannelPolicy(), st, plannerNow))
}
