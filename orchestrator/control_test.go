package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachly/models"
	"reachly/provider"
)

func newControlHarness(t *testing.T) (*harness, *Control) {
	t.Helper()
	h := newHarness(t)

	control := NewControl(h.store, &fakeFactory{email: h.email, linkedin: h.linkedin}, h.locker,
		log.New(os.Stderr, "TEST: ", log.LstdFlags))
	control.Now = func() time.Time { return h.now }

	// Deploy so the sequence has a delivery state and a LinkedIn enrollment
	_, err := h.machine.Deploy(context.Background(), fixtureLeadID)
	require.NoError(t, err)
	return h, control
}

func TestControlLegality(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		action  string
		wantErr bool
	}{
		{"pause from deployed", models.SequenceStatusDeployed, ControlPause, false},
		{"pause from paused", models.SequenceStatusPaused, ControlPause, true},
		{"pause from approved", models.SequenceStatusApproved, ControlPause, false},
		{"pause from pending", models.SequenceStatusPending, ControlPause, true},
		{"resume from paused", models.SequenceStatusPaused, ControlResume, false},
		{"resume from deployed", models.SequenceStatusDeployed, ControlResume, true},
		{"cancel from deployed", models.SequenceStatusDeployed, ControlCancel, false},
		{"cancel from paused", models.SequenceStatusPaused, ControlCancel, false},
		{"cancel from cancelled", models.SequenceStatusCancelled, ControlCancel, true},
		{"unknown action", models.SequenceStatusDeployed, "restart", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, control := newControlHarness(t)
			h.store.sequences[fixtureSequenceID].Status = tt.status

			_, err := control.ApplyAction(context.Background(), fixtureSequenceID, tt.action)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIllegalAction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestControlPauseBeforeDeployment(t *testing.T) {
	// An approved-but-undeployed sequence has no delivery state and no
	// enrollments; pausing it is still legal and authoritative
	h := newHarness(t)
	control := NewControl(h.store, &fakeFactory{email: h.email, linkedin: h.linkedin}, h.locker,
		log.New(os.Stderr, "TEST: ", log.LstdFlags))
	control.Now = func() time.Time { return h.now }

	outcome, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlPause)
	require.NoError(t, err)

	assert.Equal(t, models.SequenceStatusPaused, outcome.Status)
	assert.Equal(t, models.SequenceStatusPaused, h.store.sequences[fixtureSequenceID].Status)
	assert.Nil(t, h.store.states[fixtureSequenceID])
	assert.Empty(t, outcome.PlatformResults)
}

func TestControlBusyWhenLockHeld(t *testing.T) {
	h, control := newControlHarness(t)
	h.locker.contended = true

	_, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlPause)
	assert.ErrorIs(t, err, ErrSequenceBusy)
}

func TestControlPauseResumeRoundTrip(t *testing.T) {
	h, control := newControlHarness(t)

	outcome, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlPause)
	require.NoError(t, err)
	assert.Equal(t, models.SequenceStatusPaused, outcome.Status)

	st := h.store.states[fixtureSequenceID]
	assert.Equal(t, models.DeliveryPaused, st.Status)
	assert.Equal(t, models.DeliveryAwaitingConnection, st.ResumeStatus)
	assert.Equal(t, 1, h.linkedin.pauseCalls)

	outcome, err = control.ApplyAction(context.Background(), fixtureSequenceID, ControlResume)
	require.NoError(t, err)
	assert.Equal(t, models.SequenceStatusDeployed, outcome.Status)

	st = h.store.states[fixtureSequenceID]
	assert.Equal(t, models.DeliveryAwaitingConnection, st.Status)
	assert.Empty(t, st.ResumeStatus)
	assert.Equal(t, 1, h.linkedin.resumeCalls)
	assert.Equal(t, "resumed", outcome.PlatformResults[models.ProviderHeyReach])
}

func TestControlCancelIsAuthoritativeDespiteProviderFailure(t *testing.T) {
	h, control := newControlHarness(t)
	h.linkedin.control = provider.ControlResult{Err: fmt.Errorf("upstream 500")}

	outcome, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlCancel)
	require.NoError(t, err)

	// The recorded status never rolls back on a provider failure
	assert.Equal(t, models.SequenceStatusCancelled, outcome.Status)
	assert.Equal(t, models.SequenceStatusCancelled, h.store.sequences[fixtureSequenceID].Status)
	assert.Equal(t, models.DeliveryCancelled, h.store.states[fixtureSequenceID].Status)
	assert.Equal(t, models.LeadStatusCancelled, h.store.leads[fixtureLeadID].Status)
	assert.Equal(t, "error: upstream 500", outcome.PlatformResults[models.ProviderHeyReach])
}

func TestControlReportsPerProviderResults(t *testing.T) {
	h, control := newControlHarness(t)

	// Add an email enrollment so the fan-out covers both channels. The
	// email adapter has no native pause primitive.
	require.NoError(t, h.store.CreateEnrollment(context.Background(), &models.ChannelEnrollment{
		TenantID:   1,
		LeadID:     fixtureLeadID,
		SequenceID: fixtureSequenceID,
		Channel:    models.ChannelEmail,
		Provider:   models.ProviderSmartlead,
		ProviderID: "sl-lead-1",
	}))

	outcome, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlPause)
	require.NoError(t, err)

	assert.Equal(t, "paused", outcome.PlatformResults[models.ProviderHeyReach])
	assert.Equal(t, "not_implemented", outcome.PlatformResults[models.ProviderSmartlead])
}

func TestControlCancelMapsToProviderPause(t *testing.T) {
	h, control := newControlHarness(t)

	outcome, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlCancel)
	require.NoError(t, err)

	// No provider exposes a native cancel; the fan-out stops dispatch via pause
	assert.Equal(t, 1, h.linkedin.pauseCalls)
	assert.Equal(t, "stopped", outcome.PlatformResults[models.ProviderHeyReach])
}

func TestControlWritesAuditMemory(t *testing.T) {
	h, control := newControlHarness(t)

	_, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlPause)
	require.NoError(t, err)

	require.Len(t, h.store.memories, 1)
	mem := h.store.memories[0]
	assert.Equal(t, "control_action", mem.Kind)
	assert.Equal(t, "pause -> paused", mem.Summary)
	assert.Contains(t, mem.Detail, `"platform_results"`)
	assert.Equal(t, fixtureSequenceID, mem.SequenceID)
}

func TestControlCancelledSequenceStopsTicking(t *testing.T) {
	h, control := newControlHarness(t)

	_, err := control.ApplyAction(context.Background(), fixtureSequenceID, ControlCancel)
	require.NoError(t, err)

	h.advance(100 * time.Hour)
	require.NoError(t, h.machine.Tick(context.Background(), fixtureSequenceID))
	assert.Equal(t, 0, h.email.addLeadCalls)
	assert.Equal(t, models.DeliveryCancelled, h.store.states[fixtureSequenceID].Status)
}
