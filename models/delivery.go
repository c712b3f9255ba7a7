package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery statuses. This record is the single source of truth for
// cross-channel progress; provider-side states are caches of it.
const (
	DeliveryNotStarted         = "not_started"
	DeliveryAwaitingConnection = "awaiting_connection"
	DeliveryLinkedInActive     = "linkedin_active"
	DeliveryEmailActive        = "email_active"
	DeliveryBothActive         = "both_active"
	DeliveryPaused             = "paused"
	DeliveryCancelled          = "cancelled"
	DeliveryCompleted          = "completed"
)

// Channels and providers
const (
	ChannelEmail    = "email"
	ChannelLinkedIn = "linkedin"

	ProviderSmartlead = "smartlead"
	ProviderNureply   = "nureply"
	ProviderInstantly = "instantly"
	ProviderHeyReach  = "heyreach"
)

// DeliveryState is the authoritative per-lead, per-sequence cross-channel
// status record. Created when a sequence is approved for deployment;
// transitions are driven only by the orchestrator and the master control
// surface.
type DeliveryState struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	SequenceID uint `gorm:"not null;uniqueIndex" json:"sequence_id"`

	Status         string    `gorm:"not null;default:'not_started';index" json:"status"`
	StateEnteredAt time.Time `gorm:"not null" json:"state_entered_at"`

	// Per-channel step cursors. Monotonically non-decreasing; advancement is
	// the de facto idempotency key for dispatch.
	EmailStepCurrent    int `gorm:"default:0" json:"email_step_current"`
	EmailStepTotal      int `gorm:"default:0" json:"email_step_total"`
	LinkedInStepCurrent int `gorm:"default:0" json:"linkedin_step_current"`
	LinkedInStepTotal   int `gorm:"default:0" json:"linkedin_step_total"`

	// Engagement flags consumed by conditional content resolution
	EmailOpened        bool `gorm:"default:false" json:"email_opened"`
	EmailReplied       bool `gorm:"default:false" json:"email_replied"`
	ConnectionAccepted bool `gorm:"default:false" json:"connection_accepted"`

	// First-seen marker across both channels; keeps the per-lead campaign
	// reply counter from double-counting repeat replies
	LeadReplied bool `gorm:"default:false" json:"lead_replied"`

	LastEmailSyncAt    *time.Time `json:"last_email_sync_at"`
	LastLinkedInSentAt *time.Time `json:"last_linkedin_sent_at"`

	// Status to restore when a paused sequence is resumed
	ResumeStatus string `json:"resume_status"`

	// Flagged sub-state for permanent provider errors; not a status change
	NeedsAttention bool   `gorm:"default:false" json:"needs_attention"`
	LastError      string `json:"last_error"`
}

// Terminal reports whether no further transitions are possible
func (d *DeliveryState) Terminal() bool {
	return d.Status == DeliveryCancelled || d.Status == DeliveryCompleted
}

// ActiveChannels reports which channels are currently dispatching
func (d *DeliveryState) EmailDispatching() bool {
	return d.Status == DeliveryEmailActive || d.Status == DeliveryBothActive
}

func (d *DeliveryState) LinkedInDispatching() bool {
	return d.Status == DeliveryLinkedInActive || d.Status == DeliveryBothActive ||
		d.Status == DeliveryAwaitingConnection
}

// Exhausted reports whether every planned step in every channel has been
// delivered or skipped
func (d *DeliveryState) Exhausted() bool {
	return d.EmailStepCurrent >= d.EmailStepTotal && d.LinkedInStepCurrent >= d.LinkedInStepTotal
}

// EnterStatus records a status transition with its entry timestamp
func (d *DeliveryState) EnterStatus(status string, now time.Time) {
	d.Status = status
	d.StateEnteredAt = now
}

// ChannelEnrollment records one provider enrollment for a lead. The master
// control fan-out iterates these rows instead of branching on per-provider
// boolean flags.
type ChannelEnrollment struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	Channel    string    `gorm:"not null" json:"channel"`  // email, linkedin
	Provider   string    `gorm:"not null" json:"provider"` // smartlead, nureply, instantly, heyreach
	ProviderID string    `json:"provider_id"`              // provider's lead identifier
	EnrolledAt time.Time `gorm:"not null" json:"enrolled_at"`
}
