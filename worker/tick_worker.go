package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"reachly/models"
	"reachly/orchestrator"
)

// TickWorker drives the delivery state machine on a schedule: a frequent
// sweep over due delivery states and a nightly provider drift check. Ticks
// are idempotent and lock-guarded, so overlapping runs are harmless.
type TickWorker struct {
	Store    *models.Store
	Machine  *orchestrator.Machine
	Adapters orchestrator.AdapterFactory
	Logger   *log.Logger

	SweepSpec string
	DriftSpec string
	BatchSize int

	cron *cron.Cron
}

func NewTickWorker(store *models.Store, machine *orchestrator.Machine, adapters orchestrator.AdapterFactory, logger *log.Logger) *TickWorker {
	return &TickWorker{
		Store:     store,
		Machine:   machine,
		Adapters:  adapters,
		Logger:    logger,
		SweepSpec: "@every 5m",
		DriftSpec: "0 3 * * *",
		BatchSize: 200,
	}
}

func (tw *TickWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	tw.Logger.Println("TICK: worker started")

	tw.cron = cron.New()
	if _, err := tw.cron.AddFunc(tw.SweepSpec, func() { tw.sweep(ctx) }); err != nil {
		tw.Logger.Printf("TICK: invalid sweep spec %q: %v", tw.SweepSpec, err)
		return
	}
	if _, err := tw.cron.AddFunc(tw.DriftSpec, func() { tw.checkDrift(ctx) }); err != nil {
		tw.Logger.Printf("TICK: invalid drift spec %q: %v", tw.DriftSpec, err)
		return
	}
	tw.cron.Start()

	// Run one sweep immediately so restarts don't wait a full interval
	tw.sweep(ctx)

	<-ctx.Done()
	tw.Logger.Println("TICK: worker shutting down...")
	stopped := tw.cron.Stop()
	<-stopped.Done()
}

// sweep ticks every delivery state that may have a due action. States whose
// lease is held elsewhere are skipped by the machine itself.
func (tw *TickWorker) sweep(ctx context.Context) {
	states, err := tw.Store.DueDeliveryStates(ctx, tw.BatchSize)
	if err != nil {
		tw.Logger.Printf("TICK: failed to load due delivery states: %v", err)
		return
	}

	var ticked int
	for i := range states {
		if ctx.Err() != nil {
			return
		}
		if err := tw.Machine.Tick(ctx, states[i].SequenceID); err != nil {
			tw.Logger.Printf("TICK: sequence %d failed: %v", states[i].SequenceID, err)
			continue
		}
		ticked++
	}
	if len(states) > 0 {
		tw.Logger.Printf("TICK: sweep evaluated %d/%d sequences", ticked, len(states))
	}
}

// checkDrift compares the provider-side email cursor against the persisted
// one and records divergence. Drift is reported for an operator to resolve,
// never auto-corrected.
func (tw *TickWorker) checkDrift(ctx context.Context) {
	states, err := tw.Store.DueDeliveryStates(ctx, tw.BatchSize)
	if err != nil {
		tw.Logger.Printf("TICK: drift check failed to load states: %v", err)
		return
	}

	for i := range states {
		st := &states[i]
		if !st.EmailDispatching() {
			continue
		}
		if err := tw.checkSequenceDrift(ctx, st); err != nil {
			tw.Logger.Printf("TICK: drift check for sequence %d failed: %v", st.SequenceID, err)
		}
	}
}

func (tw *TickWorker) checkSequenceDrift(ctx context.Context, st *models.DeliveryState) error {
	seq, err := tw.Store.GetSequence(ctx, st.SequenceID)
	if err != nil {
		return err
	}
	enrollments, err := tw.Store.ListEnrollments(ctx, seq.ID)
	if err != nil {
		return err
	}

	var emailEnrollment *models.ChannelEnrollment
	for i := range enrollments {
		if enrollments[i].Channel == models.ChannelEmail {
			emailEnrollment = &enrollments[i]
			break
		}
	}
	if emailEnrollment == nil {
		return nil
	}

	adapter, err := tw.Adapters.EmailAdapter(ctx, seq.TenantID)
	if err != nil {
		return err
	}

	leadRef := emailEnrollment.ProviderID
	if leadRef == "" {
		lead, err := tw.Store.GetLead(ctx, seq.LeadID)
		if err != nil {
			return err
		}
		leadRef = lead.Email
	}

	status, err := adapter.GetStatus(ctx, seq.SmartleadCampaignID, leadRef)
	if err != nil {
		return err
	}

	providerSent := status.Stats["sent"]
	if providerSent == st.EmailStepCurrent {
		return nil
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"provider":        adapter.Name(),
		"provider_sent":   providerSent,
		"recorded_cursor": st.EmailStepCurrent,
	})
	if _, err := tw.Store.InsertEvent(ctx, &models.EngagementEvent{
		TenantID:   seq.TenantID,
		LeadID:     seq.LeadID,
		SequenceID: seq.ID,
		EventUID:   uuid.New().String(),
		EventType:  models.EventProviderDrift,
		Provider:   adapter.Name(),
		OccurredAt: time.Now(),
		Metadata:   string(detail),
	}); err != nil {
		return err
	}
	return tw.Store.AppendMemory(ctx, &models.LeadMemory{
		TenantID:   seq.TenantID,
		LeadID:     seq.LeadID,
		SequenceID: seq.ID,
		Kind:       "drift",
		Summary:    "provider email cursor diverged from recorded state",
		Detail:     string(detail),
	})
}
