package orchestrator

import (
	"time"

	"reachly/models"
)

// PlannedAction is the planner's verdict for one evaluation tick
type PlannedAction string

const (
	ActionStartLinkedIn   PlannedAction = "start_linkedin"
	ActionStartEmail      PlannedAction = "start_email"
	ActionStartBoth       PlannedAction = "start_both"
	ActionAdvanceLinkedIn PlannedAction = "advance_linkedin"
	ActionAdvanceEmail    PlannedAction = "advance_email"
	ActionWait            PlannedAction = "wait"
	ActionNone            PlannedAction = "none"
)

// Policy is the campaign's sequencing policy, read-only input to the planner
type Policy struct {
	Mode                   string
	LinkedInFirst          bool
	WaitForConnection      bool
	ConnectionTimeoutHours int
	EmailHeadStartHours    int
	StepIntervalHours      int
	PauseOnReply           bool
}

// PolicyFromCampaign extracts the planner inputs from a campaign row
func PolicyFromCampaign(c *models.Campaign) Policy {
	return Policy{
		Mode:                   c.Mode,
		LinkedInFirst:          c.LinkedInFirst,
		WaitForConnection:      c.WaitForConnection,
		ConnectionTimeoutHours: c.ConnectionTimeoutHours,
		EmailHeadStartHours:    c.EmailHeadStartHours,
		StepIntervalHours:      c.StepIntervalHours,
		PauseOnReply:           c.PauseOnReply,
	}
}

func (p Policy) stepInterval() time.Duration {
	hours := p.StepIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func (p Policy) connectionTimeout() time.Duration {
	hours := p.ConnectionTimeoutHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// PlanNextAction maps campaign policy plus the current delivery state to the
// next action. Pure function, no I/O: the state machine executes the verdict.
//
// Tie-break rule: when both channels could advance in the same tick, email
// advances first — email providers feed the opened/replied flags that
// LinkedIn content resolution reads, so email state must be current before a
// LinkedIn body is resolved.
func PlanNextAction(p Policy, st *models.DeliveryState, now time.Time) PlannedAction {
	if st == nil || st.Terminal() || st.Status == models.DeliveryPaused {
		return ActionNone
	}

	switch st.Status {
	case models.DeliveryNotStarted:
		return planStart(p, st)

	case models.DeliveryAwaitingConnection:
		return planAwaitingConnection(p, st, now)

	case models.DeliveryLinkedInActive:
		return planLinkedInActive(p, st, now)

	case models.DeliveryEmailActive:
		return planEmailActive(p, st, now)

	case models.DeliveryBothActive:
		return planBothActive(p, st, now)
	}

	return ActionNone
}

func planStart(p Policy, st *models.DeliveryState) PlannedAction {
	switch p.Mode {
	case models.ModeEmailOnly:
		return ActionStartEmail
	case models.ModeLinkedInOnly:
		return ActionStartLinkedIn
	case models.ModeMultiChannel:
		// A channel with no authored steps is never started
		if st.LinkedInStepTotal == 0 {
			return ActionStartEmail
		}
		if st.EmailStepTotal == 0 {
			return ActionStartLinkedIn
		}
		if p.LinkedInFirst {
			return ActionStartLinkedIn
		}
		if p.EmailHeadStartHours > 0 {
			return ActionStartEmail
		}
		return ActionStartBoth
	}
	return ActionNone
}

func planAwaitingConnection(p Policy, st *models.DeliveryState, now time.Time) PlannedAction {
	// No email to fall back to: linkedin_only mode, or a multi_channel
	// sequence authored without email steps
	if p.Mode == models.ModeLinkedInOnly || st.EmailStepTotal == 0 {
		return ActionWait
	}
	if !p.WaitForConnection {
		return ActionStartBoth
	}
	// Timeout means "stop waiting", not "cancel LinkedIn": email starts and
	// the connection request stays pending on the provider side.
	if now.Sub(st.StateEnteredAt) >= p.connectionTimeout() {
		return ActionStartEmail
	}
	return ActionWait
}

func planLinkedInActive(p Policy, st *models.DeliveryState, now time.Time) PlannedAction {
	// Email was deferred until the first LinkedIn message went out
	if p.Mode == models.ModeMultiChannel && st.EmailStepTotal > 0 &&
		st.EmailStepCurrent == 0 && st.LinkedInStepCurrent >= 2 {
		return ActionStartEmail
	}
	if st.LinkedInStepCurrent < st.LinkedInStepTotal {
		if due(st.LastLinkedInSentAt, p.stepInterval(), now) {
			return ActionAdvanceLinkedIn
		}
		return ActionWait
	}
	// LinkedIn exhausted before email ever started
	if p.Mode == models.ModeMultiChannel && st.EmailStepCurrent == 0 && st.EmailStepTotal > 0 {
		return ActionStartEmail
	}
	return ActionNone
}

func planEmailActive(p Policy, st *models.DeliveryState, now time.Time) PlannedAction {
	// linkedin_first=false with a head start: LinkedIn joins once the head
	// start has elapsed
	if p.Mode == models.ModeMultiChannel && !p.LinkedInFirst &&
		st.LinkedInStepCurrent == 0 && st.LinkedInStepTotal > 0 &&
		p.EmailHeadStartHours > 0 &&
		now.Sub(st.StateEnteredAt) >= time.Duration(p.EmailHeadStartHours)*time.Hour {
		return ActionStartLinkedIn
	}
	if st.EmailStepCurrent < st.EmailStepTotal {
		if due(st.LastEmailSyncAt, p.stepInterval(), now) {
			return ActionAdvanceEmail
		}
		return ActionWait
	}
	// Email exhausted; LinkedIn may still be pending a connection
	if p.Mode == models.ModeMultiChannel && st.LinkedInStepCurrent < st.LinkedInStepTotal {
		return ActionWait
	}
	return ActionNone
}

func planBothActive(p Policy, st *models.DeliveryState, now time.Time) PlannedAction {
	emailRemaining := st.EmailStepCurrent < st.EmailStepTotal
	linkedinRemaining := st.LinkedInStepCurrent < st.LinkedInStepTotal

	// Email first (tie-break rule)
	if emailRemaining && due(st.LastEmailSyncAt, p.stepInterval(), now) {
		return ActionAdvanceEmail
	}
	// LinkedIn messages are gated on an accepted connection
	if linkedinRemaining && st.ConnectionAccepted && due(st.LastLinkedInSentAt, p.stepInterval(), now) {
		return ActionAdvanceLinkedIn
	}
	if !emailRemaining && !linkedinRemaining {
		return ActionNone
	}
	return ActionWait
}

func due(last *time.Time, interval time.Duration, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= interval
}
