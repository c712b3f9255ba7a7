package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"reachly/models"
	"reachly/provider"
)

// Master control actions
const (
	ControlPause  = "pause"
	ControlResume = "resume"
	ControlCancel = "cancel"
)

// ControlOutcome is the result of a master control action. Status is the
// authoritative outcome; PlatformResults records how each enrolled provider
// responded, including the ones that failed or have no native primitive.
type ControlOutcome struct {
	SequenceID      uint              `json:"sequence_id"`
	Action          string            `json:"action"`
	Status          string            `json:"status"`
	PlatformResults map[string]string `json:"platform_results"`
}

// Control is the master pause/resume/cancel surface. Actions apply the
// requested intent to the delivery state first, then fan out to every
// enrolled provider independently; a provider failure never rolls back the
// recorded status.
type Control struct {
	Store    Store
	Adapters AdapterFactory
	Locker   Locker
	Logger   *log.Logger

	LockTTL time.Duration
	Now     func() time.Time
}

func NewControl(store Store, adapters AdapterFactory, locker Locker, logger *log.Logger) *Control {
	return &Control{
		Store:    store,
		Adapters: adapters,
		Locker:   locker,
		Logger:   logger,
		LockTTL:  30 * time.Second,
		Now:      time.Now,
	}
}

func (c *Control) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ApplyAction executes one master control action against a sequence under
// the sequence lease. Returns ErrIllegalAction when the action is not legal
// for the sequence's current status and ErrSequenceBusy when a tick holds
// the lease.
func (c *Control) ApplyAction(ctx context.Context, sequenceID uint, action string) (*ControlOutcome, error) {
	key := SequenceLockKey(sequenceID)
	token, ok, err := c.Locker.Acquire(ctx, key, c.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring sequence lock: %w", err)
	}
	if !ok {
		return nil, ErrSequenceBusy
	}
	defer func() {
		if err := c.Locker.Release(ctx, key, token); err != nil {
			c.Logger.Printf("failed to release lock for sequence %d: %v", sequenceID, err)
		}
	}()

	seq, err := c.Store.GetSequence(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	if err := checkLegality(seq.Status, action); err != nil {
		return nil, err
	}

	st, err := c.Store.GetDeliveryState(ctx, sequenceID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	outcome := &ControlOutcome{
		SequenceID:      sequenceID,
		Action:          action,
		PlatformResults: map[string]string{},
	}

	// Record the requested intent before touching any provider: the
	// delivery state is authoritative even when a provider call fails.
	switch action {
	case ControlPause:
		outcome.Status = models.SequenceStatusPaused
		if st != nil && !st.Terminal() && st.Status != models.DeliveryPaused {
			st.ResumeStatus = st.Status
			st.EnterStatus(models.DeliveryPaused, now)
		}
	case ControlResume:
		outcome.Status = models.SequenceStatusDeployed
		if st != nil && st.Status == models.DeliveryPaused {
			resumed := st.ResumeStatus
			if resumed == "" {
				resumed = models.DeliveryNotStarted
			}
			st.EnterStatus(resumed, now)
			st.ResumeStatus = ""
		}
	case ControlCancel:
		outcome.Status = models.SequenceStatusCancelled
		if st != nil && !st.Terminal() {
			st.EnterStatus(models.DeliveryCancelled, now)
			st.ResumeStatus = ""
		}
	}

	if err := c.Store.UpdateSequenceStatus(ctx, sequenceID, outcome.Status, ""); err != nil {
		return nil, err
	}
	if st != nil {
		if err := c.Store.SaveDeliveryState(ctx, st); err != nil {
			return nil, err
		}
	}
	if action == ControlCancel {
		if err := c.Store.UpdateLeadStatus(ctx, seq.LeadID, models.LeadStatusCancelled); err != nil {
			c.Logger.Printf("failed to update lead %d status: %v", seq.LeadID, err)
		}
	}

	c.fanOut(ctx, seq, action, outcome)
	c.audit(ctx, seq, outcome)
	return outcome, nil
}

func checkLegality(status, action string) error {
	switch action {
	case ControlPause:
		if status != models.SequenceStatusDeployed && status != models.SequenceStatusApproved {
			return fmt.Errorf("%w: cannot pause a %s sequence", ErrIllegalAction, status)
		}
	case ControlResume:
		if status != models.SequenceStatusPaused {
			return fmt.Errorf("%w: cannot resume a %s sequence", ErrIllegalAction, status)
		}
	case ControlCancel:
		if status == models.SequenceStatusCancelled {
			return fmt.Errorf("%w: sequence is already cancelled", ErrIllegalAction)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalAction, action)
	}
	return nil
}

// fanOut propagates the action to every enrolled provider. Each enrollment
// is attempted independently; one failure never skips the rest.
func (c *Control) fanOut(ctx context.Context, seq *models.Sequence, action string, outcome *ControlOutcome) {
	enrollments, err := c.Store.ListEnrollments(ctx, seq.ID)
	if err != nil {
		c.Logger.Printf("failed to list enrollments for sequence %d: %v", seq.ID, err)
		return
	}

	for i := range enrollments {
		e := &enrollments[i]
		adapter, err := c.adapterFor(ctx, seq.TenantID, e.Channel)
		if err != nil {
			outcome.PlatformResults[e.Provider] = "error: " + err.Error()
			continue
		}

		campaignRef := seq.SmartleadCampaignID
		if e.Channel == models.ChannelLinkedIn {
			campaignRef = seq.HeyReachCampaignID
		}
		leadRef := e.ProviderID

		var res provider.ControlResult
		switch action {
		case ControlPause, ControlCancel:
			res = adapter.Pause(ctx, campaignRef, leadRef)
		case ControlResume:
			res = adapter.Resume(ctx, campaignRef, leadRef)
		}

		switch {
		case res.NotImplemented:
			outcome.PlatformResults[e.Provider] = "not_implemented"
		case !res.OK:
			reason := "unknown"
			if res.Err != nil {
				reason = res.Err.Error()
			}
			outcome.PlatformResults[e.Provider] = "error: " + reason
			c.Logger.Printf("%s failed on %s for sequence %d: %s", action, e.Provider, seq.ID, reason)
		case action == ControlCancel:
			outcome.PlatformResults[e.Provider] = "stopped"
		case action == ControlResume:
			outcome.PlatformResults[e.Provider] = "resumed"
		default:
			outcome.PlatformResults[e.Provider] = "paused"
		}
	}
}

func (c *Control) adapterFor(ctx context.Context, tenantID uint, channel string) (provider.Adapter, error) {
	if channel == models.ChannelLinkedIn {
		return c.Adapters.LinkedInAdapter(ctx, tenantID)
	}
	return c.Adapters.EmailAdapter(ctx, tenantID)
}

func (c *Control) audit(ctx context.Context, seq *models.Sequence, outcome *ControlOutcome) {
	detail, _ := json.Marshal(outcome)
	if err := c.Store.AppendMemory(ctx, &models.LeadMemory{
		TenantID:   seq.TenantID,
		LeadID:     seq.LeadID,
		SequenceID: seq.ID,
		Kind:       "control_action",
		Summary:    fmt.Sprintf("%s -> %s", outcome.Action, outcome.Status),
		Detail:     string(detail),
	}); err != nil {
		c.Logger.Printf("failed to record control audit for sequence %d: %v", seq.ID, err)
	}
}
