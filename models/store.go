package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrActiveSequenceExists is returned when sequence creation would violate
// the one-active-sequence-per-lead invariant
var ErrActiveSequenceExists = errors.New("lead already has an active sequence")

// Store is the GORM-backed persistence surface consumed by the orchestrator,
// controllers and workers
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetLead(ctx context.Context, id uint) (*Lead, error) {
	var lead Lead
	if err := s.DB.WithContext(ctx).First(&lead, id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (s *Store) UpdateLeadStatus(ctx context.Context, id uint, status string) error {
	return s.DB.WithContext(ctx).Model(&Lead{}).Where("id = ?", id).
		Update("status", status).Error
}

func (s *Store) GetCampaign(ctx context.Context, id uint) (*Campaign, error) {
	var campaign Campaign
	if err := s.DB.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// BumpCampaignCounter increments one of the derived campaign counters
func (s *Store) BumpCampaignCounter(ctx context.Context, campaignID uint, column string) error {
	return s.DB.WithContext(ctx).Model(&Campaign{}).Where("id = ?", campaignID).
		Update(column, gorm.Expr(column+" + ?", 1)).Error
}

func (s *Store) GetSequence(ctx context.Context, id uint) (*Sequence, error) {
	var seq Sequence
	if err := s.DB.WithContext(ctx).First(&seq, id).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

// GetActiveSequence returns the lead's sequence in an active status, or nil
func (s *Store) GetActiveSequence(ctx context.Context, leadID uint) (*Sequence, error) {
	var seq Sequence
	err := s.DB.WithContext(ctx).
		Where("lead_id = ? AND status IN ?", leadID, ActiveSequenceStatuses).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

// CreateSequenceIfNoneActive creates the sequence unless the lead already
// has one in an active status
func (s *Store) CreateSequenceIfNoneActive(ctx context.Context, seq *Sequence) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sequence{}).
			Where("lead_id = ? AND status IN ?", seq.LeadID, ActiveSequenceStatuses).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveSequenceExists
		}
		return tx.Create(seq).Error
	})
}

func (s *Store) UpdateSequenceStatus(ctx context.Context, id uint, status string, reviewStatus string) error {
	updates := map[string]interface{}{"status": status}
	if reviewStatus != "" {
		updates["review_status"] = reviewStatus
	}
	return s.DB.WithContext(ctx).Model(&Sequence{}).Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) GetDeliveryState(ctx context.Context, sequenceID uint) (*DeliveryState, error) {
	var state DeliveryState
	err := s.DB.WithContext(ctx).Where("sequence_id = ?", sequenceID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) CreateDeliveryState(ctx context.Context, state *DeliveryState) error {
	return s.DB.WithContext(ctx).Create(state).Error
}

func (s *Store) SaveDeliveryState(ctx context.Context, state *DeliveryState) error {
	return s.DB.WithContext(ctx).Save(state).Error
}

// DueDeliveryStates returns non-terminal states that may need a tick:
// awaiting_connection rows (timeout evaluation) and active rows with steps
// remaining
func (s *Store) DueDeliveryStates(ctx context.Context, limit int) ([]DeliveryState, error) {
	var states []DeliveryState
	err := s.DB.WithContext(ctx).
		Where("status IN ?", []string{
			DeliveryNotStarted,
			DeliveryAwaitingConnection,
			DeliveryLinkedInActive,
			DeliveryEmailActive,
			DeliveryBothActive,
		}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&states).Error
	return states, err
}

func (s *Store) ListEnrollments(ctx context.Context, sequenceID uint) ([]ChannelEnrollment, error) {
	var enrollments []ChannelEnrollment
	err := s.DB.WithContext(ctx).Where("sequence_id = ?", sequenceID).
		Order("enrolled_at ASC").Find(&enrollments).Error
	return enrollments, err
}

func (s *Store) CreateEnrollment(ctx context.Context, e *ChannelEnrollment) error {
	return s.DB.WithContext(ctx).Create(e).Error
}

// InsertEvent appends an engagement event. Replayed events (same EventUID)
// are dropped and reported as inserted=false, not as an error.
func (s *Store) InsertEvent(ctx context.Context, event *EngagementEvent) (bool, error) {
	err := s.DB.WithContext(ctx).Create(event).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListEventsSince(ctx context.Context, leadID uint, since time.Time) ([]EngagementEvent, error) {
	var events []EngagementEvent
	err := s.DB.WithContext(ctx).
		Where("lead_id = ? AND occurred_at > ?", leadID, since).
		Order("occurred_at ASC").
		Find(&events).Error
	return events, err
}

func (s *Store) AppendMemory(ctx context.Context, memory *LeadMemory) error {
	return s.DB.WithContext(ctx).Create(memory).Error
}

func (s *Store) GetCredential(ctx context.Context, tenantID uint, provider string) (*ProviderCredential, error) {
	var cred ProviderCredential
	err := s.DB.WithContext(ctx).
		Where("tenant_id = ? AND provider = ? AND is_active = ?", tenantID, provider, true).
		First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *Store) ListMailboxes(ctx context.Context) ([]Mailbox, error) {
	var boxes []Mailbox
	err := s.DB.WithContext(ctx).
		Where("polling_enabled = ? AND imap_host <> ''", true).
		Find(&boxes).Error
	return boxes, err
}

func (s *Store) SaveMailbox(ctx context.Context, box *Mailbox) error {
	return s.DB.WithContext(ctx).Save(box).Error
}

// FindLeadByEmail matches an inbound reply sender to a lead within a tenant
func (s *Store) FindLeadByEmail(ctx context.Context, tenantID uint, email string) (*Lead, error) {
	var lead Lead
	err := s.DB.WithContext(ctx).
		Where("tenant_id = ? AND lower(email) = lower(?)", tenantID, email).
		First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}
