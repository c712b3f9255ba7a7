package models

import (
	"time"

	"gorm.io/gorm"
)

// Engagement event types
const (
	EventOpen               = "open"
	EventClick              = "click"
	EventReply              = "reply"
	EventPositiveReply      = "positive_reply"
	EventMeetingBooked      = "meeting_booked"
	EventConnectionAccepted = "connection_accepted"
	EventBounce             = "bounce"
	EventDispatchFailed     = "dispatch_failed"
	EventEmailSent          = "email_sent"
	EventStepSkipped        = "step_skipped"
	EventProviderDrift      = "provider_drift"
)

// EngagementEvent is an immutable append-only fact about lead interaction.
// Never updated or deleted; consumed by the orchestrator to drive
// transitions and by reporting.
type EngagementEvent struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	SequenceID uint `gorm:"index" json:"sequence_id"`

	// Deduplication key for webhook replays. Provider-supplied when
	// available, otherwise a generated UUID.
	EventUID string `gorm:"not null;uniqueIndex" json:"event_uid"`

	EventType  string    `gorm:"not null;index" json:"event_type"`
	Provider   string    `json:"provider"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	Metadata   string    `gorm:"type:text" json:"metadata"` // raw provider payload, JSON
}

// LeadMemory is an append-only audit record on a lead: master control
// outcomes, drift observations, review decisions.
type LeadMemory struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`
	SequenceID uint `gorm:"index" json:"sequence_id"`

	Kind    string `gorm:"not null" json:"kind"` // control_action, drift, review
	Summary string `gorm:"not null" json:"summary"`
	Detail  string `gorm:"type:text" json:"detail"` // JSON, e.g. per-platform results
}
