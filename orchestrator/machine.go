package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reachly/models"
	"reachly/provider"
)

// Machine drives one lead's delivery state through discrete, idempotent
// evaluation ticks. Each tick is a short-lived invocation: it takes the
// sequence lease, re-reads persisted state, executes at most one planned
// action, persists, and exits. Any worker can run any tick.
type Machine struct {
	Store    Store
	Adapters AdapterFactory
	Locker   Locker
	Logger   *log.Logger
	Alerts   Alerter

	// VerifyEmail vets a lead address before deployment (syntax, MX, domain)
	VerifyEmail func(email string) error

	LockTTL time.Duration
	Now     func() time.Time
}

func NewMachine(store Store, adapters AdapterFactory, locker Locker, logger *log.Logger) *Machine {
	return &Machine{
		Store:    store,
		Adapters: adapters,
		Locker:   locker,
		Logger:   logger,
		LockTTL:  30 * time.Second,
		Now:      time.Now,
	}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Deploy approves the lead's active sequence for delivery and enters the
// state machine at not_started. Idempotent: a second deploy returns the
// existing delivery state.
func (m *Machine) Deploy(ctx context.Context, leadID uint) (*models.DeliveryState, error) {
	lead, err := m.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !lead.Contactable() {
		return nil, ErrLeadNotContactable
	}

	seq, err := m.Store.GetActiveSequence(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, ErrNoActiveSequence
	}
	if seq.ReviewStatus != models.ReviewStatusApproved {
		return nil, ErrSequenceNotReady
	}
	if err := seq.ValidateContent(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSequenceNotReady, err)
	}

	existing, err := m.Store.GetDeliveryState(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if m.VerifyEmail != nil && seq.EmailStepTotal() > 0 {
		if err := m.VerifyEmail(lead.Email); err != nil {
			return nil, fmt.Errorf("lead email failed vetting: %w", err)
		}
	}

	state := &models.DeliveryState{
		TenantID:          seq.TenantID,
		LeadID:            lead.ID,
		SequenceID:        seq.ID,
		Status:            models.DeliveryNotStarted,
		StateEnteredAt:    m.now(),
		EmailStepTotal:    seq.EmailStepTotal(),
		LinkedInStepTotal: seq.LinkedInStepTotal(),
	}
	if err := m.Store.CreateDeliveryState(ctx, state); err != nil {
		return nil, err
	}

	if err := m.Store.UpdateSequenceStatus(ctx, seq.ID, models.SequenceStatusDeployed, ""); err != nil {
		return nil, err
	}
	if err := m.Store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusDeployed); err != nil {
		m.Logger.Printf("failed to update lead %d status: %v", lead.ID, err)
	}

	if err := m.Tick(ctx, seq.ID); err != nil {
		m.Logger.Printf("initial tick for sequence %d failed: %v", seq.ID, err)
	}
	return m.Store.GetDeliveryState(ctx, seq.ID)
}

// Tick runs one evaluation for the sequence. A tick that cannot take the
// lease is dropped, not queued: the sweep will come back around.
func (m *Machine) Tick(ctx context.Context, sequenceID uint) error {
	key := SequenceLockKey(sequenceID)
	token, ok, err := m.Locker.Acquire(ctx, key, m.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring sequence lock: %w", err)
	}
	if !ok {
		m.Logger.Printf("tick dropped for sequence %d: lock contended", sequenceID)
		return nil
	}
	defer func() {
		if err := m.Locker.Release(ctx, key, token); err != nil {
			m.Logger.Printf("failed to release lock for sequence %d: %v", sequenceID, err)
		}
	}()

	// Re-check status under the lock: a cancel issued while this tick was
	// queued must abort before any adapter call.
	seq, err := m.Store.GetSequence(ctx, sequenceID)
	if err != nil {
		return err
	}
	if seq.Status == models.SequenceStatusCancelled || seq.Status == models.SequenceStatusPaused {
		return nil
	}

	st, err := m.Store.GetDeliveryState(ctx, sequenceID)
	if err != nil {
		return err
	}
	if st == nil || st.Terminal() || st.Status == models.DeliveryPaused {
		return nil
	}

	campaign, err := m.Store.GetCampaign(ctx, seq.CampaignID)
	if err != nil {
		return err
	}
	lead, err := m.Store.GetLead(ctx, seq.LeadID)
	if err != nil {
		return err
	}

	now := m.now()
	action := PlanNextAction(PolicyFromCampaign(campaign), st, now)
	if err := m.execute(ctx, action, lead, seq, st, now); err != nil {
		return err
	}

	if !st.Terminal() && st.Status != models.DeliveryPaused && st.Exhausted() &&
		st.Status != models.DeliveryNotStarted {
		st.EnterStatus(models.DeliveryCompleted, now)
	}
	return m.Store.SaveDeliveryState(ctx, st)
}

func (m *Machine) execute(ctx context.Context, action PlannedAction, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, now time.Time) error {
	switch action {
	case ActionStartEmail:
		return m.startEmail(ctx, lead, seq, st, now)
	case ActionStartLinkedIn:
		return m.startLinkedIn(ctx, lead, seq, st, now)
	case ActionStartBoth:
		// Channels start independently; a failure on one never blocks
		// the other.
		if err := m.startEmail(ctx, lead, seq, st, now); err != nil {
			return err
		}
		return m.startLinkedIn(ctx, lead, seq, st, now)
	case ActionAdvanceLinkedIn:
		return m.advanceLinkedIn(ctx, lead, seq, st, now)
	case ActionAdvanceEmail:
		return m.advanceEmail(ctx, lead, seq, st, now)
	case ActionWait, ActionNone:
		return nil
	}
	return nil
}

// startEmail enrolls the lead with the tenant's email provider. The
// enrollment row doubles as the duplicate-dispatch guard: an existing row
// means a prior tick already started this channel.
func (m *Machine) startEmail(ctx context.Context, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, now time.Time) error {
	enrolled, err := m.enrollmentFor(ctx, seq.ID, models.ChannelEmail)
	if err != nil {
		return err
	}
	if enrolled == nil {
		if seq.SmartleadCampaignID == "" {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelEmail,
				fmt.Errorf("sequence has no email campaign reference"), true)
			return nil
		}
		adapter, err := m.Adapters.EmailAdapter(ctx, seq.TenantID)
		if err != nil {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelEmail, err, true)
			return nil
		}

		res := adapter.AddLead(ctx, seq.SmartleadCampaignID, leadPayload(lead), EmailCustomFields(seq))
		if !res.OK {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelEmail, res.Err, res.Permanent)
			return nil
		}
		if err := m.Store.CreateEnrollment(ctx, &models.ChannelEnrollment{
			TenantID:   seq.TenantID,
			LeadID:     lead.ID,
			SequenceID: seq.ID,
			Channel:    models.ChannelEmail,
			Provider:   adapter.Name(),
			ProviderID: res.ProviderID,
			EnrolledAt: now,
		}); err != nil {
			return err
		}
		m.markContacted(ctx, lead, st)
	}

	// Email joins whatever LinkedIn is already doing
	switch st.Status {
	case models.DeliveryLinkedInActive:
		st.EnterStatus(models.DeliveryBothActive, now)
	case models.DeliveryNotStarted, models.DeliveryAwaitingConnection:
		st.EnterStatus(models.DeliveryEmailActive, now)
	}
	return nil
}

// startLinkedIn dispatches the connection request by enrolling the lead in
// the LinkedIn provider campaign
func (m *Machine) startLinkedIn(ctx context.Context, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, now time.Time) error {
	enrolled, err := m.enrollmentFor(ctx, seq.ID, models.ChannelLinkedIn)
	if err != nil {
		return err
	}
	if enrolled != nil {
		return nil
	}

	if lead.LinkedInURL == "" {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn,
			fmt.Errorf("lead has no linkedin url"), true)
		return nil
	}
	if seq.HeyReachCampaignID == "" {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn,
			fmt.Errorf("sequence has no linkedin campaign reference"), true)
		return nil
	}
	adapter, err := m.Adapters.LinkedInAdapter(ctx, seq.TenantID)
	if err != nil {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn, err, true)
		return nil
	}

	res := adapter.AddLead(ctx, seq.HeyReachCampaignID, leadPayload(lead), LinkedInCustomFields(seq, st))
	if !res.OK {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn, res.Err, res.Permanent)
		return nil
	}
	if err := m.Store.CreateEnrollment(ctx, &models.ChannelEnrollment{
		TenantID:   seq.TenantID,
		LeadID:     lead.ID,
		SequenceID: seq.ID,
		Channel:    models.ChannelLinkedIn,
		Provider:   adapter.Name(),
		ProviderID: res.ProviderID,
		EnrolledAt: now,
	}); err != nil {
		return err
	}
	m.markContacted(ctx, lead, st)

	// The connection request is the first LinkedIn step
	if connection := seq.ConnectionRequestStep(); connection != nil &&
		st.LinkedInStepCurrent < connection.StepNumber {
		st.LinkedInStepCurrent = connection.StepNumber
		st.LastLinkedInSentAt = &now
	}
	if st.Status == models.DeliveryNotStarted {
		st.EnterStatus(models.DeliveryAwaitingConnection, now)
	}
	return nil
}

// advanceLinkedIn dispatches the next undelivered LinkedIn step. Content is
// resolved against live delivery state at dispatch time, which is how
// conditional copy stays in sync with email engagement.
func (m *Machine) advanceLinkedIn(ctx context.Context, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, now time.Time) error {
	step := NextLinkedInStep(seq.LinkedInSteps, st)
	if step == nil {
		return nil
	}
	// Optimistic re-check against persisted state: an already-advanced
	// cursor means another dispatch won the race, and this tick is a no-op.
	if step.StepNumber <= st.LinkedInStepCurrent {
		return nil
	}

	switch step.Type {
	case models.LinkedInStepMessage, models.LinkedInStepInMail:
		enrollment, err := m.enrollmentFor(ctx, seq.ID, models.ChannelLinkedIn)
		if err != nil {
			return err
		}
		leadRef := lead.LinkedInURL
		if enrollment != nil && enrollment.ProviderID != "" {
			leadRef = enrollment.ProviderID
		}
		adapter, err := m.Adapters.LinkedInAdapter(ctx, seq.TenantID)
		if err != nil {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn, err, true)
			return nil
		}
		body := ResolveLinkedInBody(*step, st)
		res := adapter.SendMessage(ctx, seq.HeyReachCampaignID, leadRef, body)
		if res.NotImplemented {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn,
				fmt.Errorf("%s does not support direct messages", adapter.Name()), true)
			return nil
		}
		if !res.OK {
			m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelLinkedIn, res.Err, res.Permanent)
			return nil
		}
		st.LinkedInStepCurrent = step.StepNumber
		st.LastLinkedInSentAt = &now

	case models.LinkedInStepViewProfile, models.LinkedInStepFollow, models.LinkedInStepLikePost:
		// Provider-side automations: counted as explicitly skipped so the
		// sequence can still complete.
		st.LinkedInStepCurrent = step.StepNumber
		st.LastLinkedInSentAt = &now
		m.appendEvent(ctx, lead, seq, models.EventStepSkipped,
			fmt.Sprintf(`{"step":%d,"type":%q}`, step.StepNumber, step.Type), now)

	case models.LinkedInStepConnectionRequest:
		// Dispatched by startLinkedIn; reaching it here means the cursor
		// never recorded it
		st.LinkedInStepCurrent = step.StepNumber
		st.LastLinkedInSentAt = &now
	}
	return nil
}

// advanceEmail syncs the email cursor from the provider. Email sequences run
// provider-side, so advancement here is observation, not dispatch; the
// cursor stays monotonic regardless of what the provider reports.
func (m *Machine) advanceEmail(ctx context.Context, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, now time.Time) error {
	enrollment, err := m.enrollmentFor(ctx, seq.ID, models.ChannelEmail)
	if err != nil {
		return err
	}
	if enrollment == nil {
		return nil
	}
	adapter, err := m.Adapters.EmailAdapter(ctx, seq.TenantID)
	if err != nil {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelEmail, err, true)
		return nil
	}

	leadRef := enrollment.ProviderID
	if leadRef == "" {
		leadRef = lead.Email
	}
	status, err := adapter.GetStatus(ctx, seq.SmartleadCampaignID, leadRef)
	if err != nil {
		m.recordDispatchFailure(ctx, lead, seq, st, models.ChannelEmail, err, provider.IsPermanent(err))
		return nil
	}

	if sent := status.Stats["sent"]; sent > st.EmailStepCurrent {
		st.EmailStepCurrent = sent
		if st.EmailStepCurrent > st.EmailStepTotal {
			st.EmailStepCurrent = st.EmailStepTotal
		}
	}
	st.LastEmailSyncAt = &now
	return nil
}

// ProcessEvent applies one freshly inserted engagement event to the delivery
// state under the sequence lease. Callers must only invoke it for events
// that actually inserted — replays are dropped at the store.
func (m *Machine) ProcessEvent(ctx context.Context, event *models.EngagementEvent) error {
	if event.SequenceID == 0 {
		seq, err := m.Store.GetActiveSequence(ctx, event.LeadID)
		if err != nil || seq == nil {
			return err
		}
		event.SequenceID = seq.ID
	}

	key := SequenceLockKey(event.SequenceID)
	token, ok, err := m.Locker.Acquire(ctx, key, m.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		// The sweep re-reads events indirectly through the flags the next
		// holder persists; losing this race is safe to retry
		return ErrSequenceBusy
	}
	release := func() {
		if err := m.Locker.Release(ctx, key, token); err != nil {
			m.Logger.Printf("failed to release lock for sequence %d: %v", event.SequenceID, err)
		}
	}

	st, err := m.Store.GetDeliveryState(ctx, event.SequenceID)
	if err != nil || st == nil {
		release()
		return err
	}
	seq, err := m.Store.GetSequence(ctx, event.SequenceID)
	if err != nil {
		release()
		return err
	}
	campaign, err := m.Store.GetCampaign(ctx, seq.CampaignID)
	if err != nil {
		release()
		return err
	}

	m.applyEvent(ctx, event, campaign, seq, st)
	if err := m.Store.SaveDeliveryState(ctx, st); err != nil {
		release()
		return err
	}
	release()

	// An event usually makes a new action eligible; evaluate right away
	return m.Tick(ctx, event.SequenceID)
}

func (m *Machine) applyEvent(ctx context.Context, event *models.EngagementEvent, campaign *models.Campaign, seq *models.Sequence, st *models.DeliveryState) {
	now := m.now()

	switch event.EventType {
	case models.EventOpen:
		st.EmailOpened = true

	case models.EventEmailSent:
		if st.EmailStepCurrent < st.EmailStepTotal {
			st.EmailStepCurrent++
			st.LastEmailSyncAt = &now
		}

	case models.EventConnectionAccepted:
		st.ConnectionAccepted = true
		switch st.Status {
		case models.DeliveryAwaitingConnection:
			st.EnterStatus(models.DeliveryLinkedInActive, now)
		case models.DeliveryEmailActive:
			if st.LinkedInStepCurrent > 0 {
				st.EnterStatus(models.DeliveryBothActive, now)
			}
		}

	case models.EventReply, models.EventPositiveReply:
		if event.Provider != models.ProviderHeyReach {
			st.EmailReplied = true
		}
		// leads_replied counts leads, not messages: only the first reply
		// on either channel moves the counter
		firstReply := !st.LeadReplied
		st.LeadReplied = true
		if firstReply {
			if err := m.Store.BumpCampaignCounter(ctx, campaign.ID, "leads_replied"); err != nil {
				m.Logger.Printf("failed to bump reply counter: %v", err)
			}
		}
		status := models.LeadStatusReplied
		if event.EventType == models.EventPositiveReply {
			status = models.LeadStatusInterested
		}
		if err := m.Store.UpdateLeadStatus(ctx, event.LeadID, status); err != nil {
			m.Logger.Printf("failed to update lead %d status: %v", event.LeadID, err)
		}
		if campaign.PauseOnReply && !st.Terminal() && st.Status != models.DeliveryPaused {
			m.pauseDelivery(ctx, seq, st, now)
		}

	case models.EventMeetingBooked:
		if err := m.Store.UpdateLeadStatus(ctx, event.LeadID, models.LeadStatusMeetingBooked); err != nil {
			m.Logger.Printf("failed to update lead %d status: %v", event.LeadID, err)
		}
		if err := m.Store.BumpCampaignCounter(ctx, campaign.ID, "leads_converted"); err != nil {
			m.Logger.Printf("failed to bump conversion counter: %v", err)
		}
		if !st.Terminal() && st.Status != models.DeliveryPaused {
			m.pauseDelivery(ctx, seq, st, now)
		}

	case models.EventBounce:
		st.NeedsAttention = true
		st.LastError = "email bounced"
	}
}

func (m *Machine) pauseDelivery(ctx context.Context, seq *models.Sequence, st *models.DeliveryState, now time.Time) {
	st.ResumeStatus = st.Status
	st.EnterStatus(models.DeliveryPaused, now)
	if err := m.Store.UpdateSequenceStatus(ctx, seq.ID, models.SequenceStatusPaused, ""); err != nil {
		m.Logger.Printf("failed to pause sequence %d: %v", seq.ID, err)
	}
}

func (m *Machine) enrollmentFor(ctx context.Context, sequenceID uint, channel string) (*models.ChannelEnrollment, error) {
	enrollments, err := m.Store.ListEnrollments(ctx, sequenceID)
	if err != nil {
		return nil, err
	}
	for i := range enrollments {
		if enrollments[i].Channel == channel {
			return &enrollments[i], nil
		}
	}
	return nil, nil
}

func (m *Machine) markContacted(ctx context.Context, lead *models.Lead, st *models.DeliveryState) {
	if st.EmailStepCurrent > 0 || st.LinkedInStepCurrent > 0 {
		return
	}
	if err := m.Store.BumpCampaignCounter(ctx, lead.CampaignID, "leads_contacted"); err != nil {
		m.Logger.Printf("failed to bump contacted counter: %v", err)
	}
}

// recordDispatchFailure converts an adapter failure into observability
// without advancing state, so the next tick retries the same step.
// Permanent failures flag the sequence for operator attention instead.
func (m *Machine) recordDispatchFailure(ctx context.Context, lead *models.Lead, seq *models.Sequence, st *models.DeliveryState, channel string, cause error, permanent bool) {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	m.Logger.Printf("dispatch failed for sequence %d on %s: %s", seq.ID, channel, reason)

	m.appendEvent(ctx, lead, seq, models.EventDispatchFailed,
		fmt.Sprintf(`{"channel":%q,"error":%q,"permanent":%t}`, channel, reason, permanent), m.now())

	if permanent {
		st.NeedsAttention = true
		st.LastError = reason
		if m.Alerts != nil {
			m.Alerts.SequenceNeedsAttention(seq.TenantID, lead.Email, seq.ID, reason)
		}
	}
}

func (m *Machine) appendEvent(ctx context.Context, lead *models.Lead, seq *models.Sequence, eventType, metadata string, now time.Time) {
	if _, err := m.Store.InsertEvent(ctx, &models.EngagementEvent{
		TenantID:   seq.TenantID,
		LeadID:     lead.ID,
		SequenceID: seq.ID,
		EventUID:   uuid.New().String(),
		EventType:  eventType,
		OccurredAt: now,
		Metadata:   metadata,
	}); err != nil {
		m.Logger.Printf("failed to append %s event: %v", eventType, err)
	}
}

func leadPayload(lead *models.Lead) provider.LeadPayload {
	return provider.LeadPayload{
		Email:       lead.Email,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Company:     lead.Company,
		JobTitle:    lead.JobTitle,
		LinkedInURL: lead.LinkedInURL,
	}
}
