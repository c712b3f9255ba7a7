// Package orchestrator contains the per-lead outreach engine: the deployment
// planner, the delivery state machine, conditional content resolution, and
// the master pause/resume/cancel surface.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"reachly/models"
	"reachly/provider"
)

var (
	ErrNoActiveSequence   = errors.New("lead has no active sequence")
	ErrSequenceNotReady   = errors.New("sequence is not approved for deployment")
	ErrLeadNotContactable = errors.New("lead is bounced, unsubscribed or on the DNC list")
	ErrIllegalAction      = errors.New("action is not legal for the sequence's current status")
	ErrSequenceBusy       = errors.New("sequence is locked by another operation")
)

// Store is the persistence surface the orchestrator needs. Implemented by
// models.Store; tests substitute an in-memory fake.
type Store interface {
	GetLead(ctx context.Context, id uint) (*models.Lead, error)
	UpdateLeadStatus(ctx context.Context, id uint, status string) error
	GetCampaign(ctx context.Context, id uint) (*models.Campaign, error)
	BumpCampaignCounter(ctx context.Context, campaignID uint, column string) error

	GetSequence(ctx context.Context, id uint) (*models.Sequence, error)
	GetActiveSequence(ctx context.Context, leadID uint) (*models.Sequence, error)
	UpdateSequenceStatus(ctx context.Context, id uint, status, reviewStatus string) error

	GetDeliveryState(ctx context.Context, sequenceID uint) (*models.DeliveryState, error)
	CreateDeliveryState(ctx context.Context, state *models.DeliveryState) error
	SaveDeliveryState(ctx context.Context, state *models.DeliveryState) error

	ListEnrollments(ctx context.Context, sequenceID uint) ([]models.ChannelEnrollment, error)
	CreateEnrollment(ctx context.Context, e *models.ChannelEnrollment) error

	InsertEvent(ctx context.Context, event *models.EngagementEvent) (bool, error)
	AppendMemory(ctx context.Context, memory *models.LeadMemory) error
}

// AdapterFactory resolves per-tenant channel adapters. Instances are
// constructed per call with the tenant's own credentials.
type AdapterFactory interface {
	EmailAdapter(ctx context.Context, tenantID uint) (provider.Adapter, error)
	LinkedInAdapter(ctx context.Context, tenantID uint) (provider.Adapter, error)
}

// Locker provides the per-sequence advisory lease that enforces
// at-most-one-in-flight tick semantics.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Alerter is notified when a sequence needs operator attention
// (permanent provider errors). Implemented by utils.AlertMailer.
type Alerter interface {
	SequenceNeedsAttention(tenantID uint, leadEmail string, sequenceID uint, reason string)
}
