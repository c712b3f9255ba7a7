package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead funnel statuses. Advisory for the UI; channel progress is owned by
// the delivery state, not by this enum.
const (
	LeadStatusQualified     = "qualified"
	LeadStatusResearched    = "researched"
	LeadStatusSequenceReady = "sequence_ready"
	LeadStatusDeployed      = "deployed"
	LeadStatusReplied       = "replied"
	LeadStatusInterested    = "interested"
	LeadStatusMeetingBooked = "meeting_booked"
	LeadStatusHolding       = "holding"
	LeadStatusCancelled     = "cancelled"
)

// Lead is a single prospect sourced from Apollo, a pixel feed, or manual import
type Lead struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Email       string `gorm:"not null;index" json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	LinkedInURL string `json:"linkedin_url"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`

	Status string `gorm:"not null;default:'qualified';index" json:"status"`
	Source string `json:"source"` // apollo, audiencelab, csv, manual

	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	LastContactAt *time.Time `json:"last_contact_at"`

	// Relations
	Campaign    Campaign            `json:"-"`
	Sequences   []Sequence          `gorm:"foreignKey:LeadID" json:"sequences,omitempty"`
	Enrollments []ChannelEnrollment `gorm:"foreignKey:LeadID" json:"enrollments,omitempty"`
	Memories    []LeadMemory        `gorm:"foreignKey:LeadID" json:"memories,omitempty"`
}

// Contactable reports whether outreach may be dispatched to this lead at all
func (l *Lead) Contactable() bool {
	return !l.IsBounced && !l.IsUnsubscribed && !l.IsDoNotContact
}

// FullName joins first and last name for provider payloads
func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	default:
		return l.FirstName + " " + l.LastName
	}
}
