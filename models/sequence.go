package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sequence statuses. Transitions are owned by the orchestrator and the
// review surface; channel adapters never write these.
const (
	SequenceStatusPending   = "pending"
	SequenceStatusApproved  = "approved"
	SequenceStatusDeployed  = "deployed"
	SequenceStatusPaused    = "paused"
	SequenceStatusCancelled = "cancelled"
)

// Review statuses for the human approval surface
const (
	ReviewStatusPending        = "pending"
	ReviewStatusApproved       = "approved"
	ReviewStatusRevisionNeeded = "revision_needed"
	ReviewStatusRejected       = "rejected"
)

// ActiveSequenceStatuses are the statuses that count against the
// one-active-sequence-per-lead invariant
var ActiveSequenceStatuses = []string{
	SequenceStatusPending,
	SequenceStatusApproved,
	SequenceStatusDeployed,
	SequenceStatusPaused,
}

// LinkedIn step types
const (
	LinkedInStepConnectionRequest = "connection_request"
	LinkedInStepMessage           = "message"
	LinkedInStepViewProfile       = "view_profile"
	LinkedInStepFollow            = "follow"
	LinkedInStepLikePost          = "like_post"
	LinkedInStepInMail            = "inmail"
)

// Sequence is one generated outreach plan for one lead within one campaign.
// Content is immutable once generated; conditional copy is selected at
// delivery time by reading delivery state, never by editing steps in place.
type Sequence struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	LeadID     uint `gorm:"not null;index" json:"lead_id"`

	Status       string `gorm:"not null;default:'pending';index" json:"status"`
	ReviewStatus string `gorm:"not null;default:'pending'" json:"review_status"`
	ReviewNotes  string `gorm:"type:text" json:"review_notes"`

	// Provider-side campaign references
	SmartleadCampaignID string `json:"smartlead_campaign_id"`
	HeyReachCampaignID  string `json:"heyreach_campaign_id"`

	// Generated content payload
	EmailThreads  []EmailThread  `gorm:"type:jsonb;serializer:json" json:"email_threads"`
	LinkedInSteps []LinkedInStep `gorm:"type:jsonb;serializer:json" json:"linkedin_steps"`

	ApprovedAt *time.Time `json:"approved_at"`
	DeployedAt *time.Time `json:"deployed_at"`

	// Relations
	Lead          Lead           `json:"-"`
	Campaign      Campaign       `json:"-"`
	DeliveryState *DeliveryState `gorm:"foreignKey:SequenceID" json:"delivery_state,omitempty"`
}

// EmailThread is one email conversation thread (thread 1 / thread 2)
type EmailThread struct {
	ThreadNumber int         `json:"thread_number"`
	Emails       []EmailStep `json:"emails"`
}

// EmailStep is a single email inside a thread
type EmailStep struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// LinkedInStep is a single LinkedIn action. Message steps carry optional
// conditional bodies selected against email engagement at dispatch time.
type LinkedInStep struct {
	StepNumber       int    `json:"step_number"`
	Type             string `json:"type"`
	Body             string `json:"body"`
	BodyFallback     string `json:"body_fallback,omitempty"`
	BodyEmailOpened  string `json:"body_email_opened,omitempty"`
	BodyEmailReplied string `json:"body_email_replied,omitempty"`
}

// IsActive reports whether this sequence counts against the
// one-active-sequence-per-lead invariant
func (s *Sequence) IsActive() bool {
	for _, st := range ActiveSequenceStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// EmailStepTotal is the number of emails across all threads
func (s *Sequence) EmailStepTotal() int {
	n := 0
	for _, t := range s.EmailThreads {
		n += len(t.Emails)
	}
	return n
}

// LinkedInStepTotal is the number of LinkedIn steps including the
// connection request
func (s *Sequence) LinkedInStepTotal() int {
	return len(s.LinkedInSteps)
}

// ConnectionRequestStep returns the connection request step, or nil
func (s *Sequence) ConnectionRequestStep() *LinkedInStep {
	for i := range s.LinkedInSteps {
		if s.LinkedInSteps[i].Type == LinkedInStepConnectionRequest {
			return &s.LinkedInSteps[i]
		}
	}
	return nil
}

// ValidateContent enforces the content invariants: exactly one connection
// request per LinkedIn sequence, and message steps numbered sequentially
// from 1 so provider custom fields line up.
func (s *Sequence) ValidateContent() error {
	if len(s.EmailThreads) == 0 && len(s.LinkedInSteps) == 0 {
		return fmt.Errorf("sequence has no content")
	}
	if len(s.LinkedInSteps) > 0 {
		connections := 0
		lastNumber := 0
		for _, step := range s.LinkedInSteps {
			if step.Type == LinkedInStepConnectionRequest {
				connections++
			}
			if step.StepNumber <= lastNumber {
				return fmt.Errorf("linkedin step numbers must be strictly increasing, got %d after %d", step.StepNumber, lastNumber)
			}
			lastNumber = step.StepNumber
		}
		if connections != 1 {
			return fmt.Errorf("linkedin sequence must contain exactly one connection_request, got %d", connections)
		}
		if s.LinkedInSteps[0].Type != LinkedInStepConnectionRequest {
			return fmt.Errorf("connection_request must be the first linkedin step")
		}
	}
	for _, t := range s.EmailThreads {
		for i, e := range t.Emails {
			if e.Subject == "" && i == 0 {
				return fmt.Errorf("thread %d: first email needs a subject", t.ThreadNumber)
			}
			if e.Body == "" {
				return fmt.Errorf("thread %d: email %d has an empty body", t.ThreadNumber, i+1)
			}
		}
	}
	return nil
}
