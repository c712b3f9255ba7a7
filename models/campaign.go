package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign channel modes
const (
	ModeEmailOnly    = "email_only"
	ModeLinkedInOnly = "linkedin_only"
	ModeMultiChannel = "multi_channel"
)

// Campaign groups leads under a brand and carries the sequencing policy.
// Mode and the policy knobs are read-only inputs to the deployment planner;
// the aggregate counters are derived and updated only by engagement ingestion.
type Campaign struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`
	BrandID  uint `gorm:"index" json:"brand_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Channel policy
	Mode                   string `gorm:"not null;default:'email_only'" json:"mode"` // email_only, linkedin_only, multi_channel
	LinkedInFirst          bool   `gorm:"default:false" json:"linkedin_first"`
	WaitForConnection      bool   `gorm:"default:false" json:"wait_for_connection"`
	ConnectionTimeoutHours int    `gorm:"default:72" json:"connection_timeout_hours"`
	EmailHeadStartHours    int    `gorm:"default:0" json:"email_head_start_hours"` // linkedin_first=false: hours email runs before LinkedIn joins
	StepIntervalHours      int    `gorm:"default:24" json:"step_interval_hours"`
	EmailCount             int    `gorm:"default:4" json:"email_count"`
	LinkedInCount          int    `gorm:"default:3" json:"linkedin_count"`

	// A positive reply pauses active dispatch when set
	PauseOnReply bool `gorm:"default:true" json:"pause_on_reply"`

	Status string `gorm:"default:'active'" json:"status"` // active, archived

	// Derived counters, bumped by engagement ingestion
	TotalLeads     int `gorm:"default:0" json:"total_leads"`
	LeadsContacted int `gorm:"default:0" json:"leads_contacted"`
	LeadsReplied   int `gorm:"default:0" json:"leads_replied"`
	LeadsConverted int `gorm:"default:0" json:"leads_converted"`

	StartedAt *time.Time `json:"started_at"`

	// Relations
	Leads []Lead `gorm:"foreignKey:CampaignID" json:"leads,omitempty"`
}
