package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"reachly/models"
	"reachly/orchestrator"
	"reachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EngagementController struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Store   *models.Store
	Machine *orchestrator.Machine
	Feed    *EngagementFeed
}

func NewEngagementController(db *gorm.DB, logger *log.Logger, store *models.Store, machine *orchestrator.Machine) *EngagementController {
	return &EngagementController{
		DB:      db,
		Logger:  logger,
		Store:   store,
		Machine: machine,
		Feed:    NewEngagementFeed(logger),
	}
}

// Provider event names mapped onto the canonical vocabulary
var providerEventNames = map[string]string{
	"email_open":                  models.EventOpen,
	"open":                        models.EventOpen,
	"email_link_click":            models.EventClick,
	"click":                       models.EventClick,
	"email_reply":                 models.EventReply,
	"reply":                       models.EventReply,
	"positive_reply":              models.EventPositiveReply,
	"lead_interested":             models.EventPositiveReply,
	"meeting_booked":              models.EventMeetingBooked,
	"connection_accepted":         models.EventConnectionAccepted,
	"connection_request_accepted": models.EventConnectionAccepted,
	"email_bounce":                models.EventBounce,
	"bounce":                      models.EventBounce,
	"email_sent":                  models.EventEmailSent,
	"sent":                        models.EventEmailSent,
}

// HandleWebhook is the engagement intake for all providers. Replays are
// dropped on the event UID unique index; only a fresh insert drives the
// state machine.
func (ec *EngagementController) HandleWebhook(c *fiber.Ctx) error {
	providerName := c.Params("provider")

	var input struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Email     string `json:"email"`
		LeadID    uint   `json:"lead_id"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", err)
	}

	eventType, ok := providerEventNames[input.EventType]
	if !ok {
		// Unknown event kinds are acknowledged so providers stop retrying
		ec.Logger.Printf("WEBHOOK: ignoring unknown %s event type %q", providerName, input.EventType)
		return c.JSON(fiber.Map{"message": "Event ignored"})
	}

	lead, err := ec.resolveLead(c, input.LeadID, input.Email)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found for event", nil)
	}

	occurredAt := time.Now()
	if input.Timestamp > 0 {
		occurredAt = time.Unix(input.Timestamp, 0)
	}

	eventUID := input.EventID
	if eventUID != "" {
		eventUID = fmt.Sprintf("%s:%s", providerName, eventUID)
	} else {
		// No provider event id means no replay protection for this event
		eventUID = uuid.New().String()
	}

	event := &models.EngagementEvent{
		TenantID:   lead.TenantID,
		LeadID:     lead.ID,
		EventUID:   eventUID,
		EventType:  eventType,
		Provider:   providerName,
		OccurredAt: occurredAt,
		Metadata:   string(c.Body()),
	}

	inserted, err := ec.Store.InsertEvent(c.Context(), event)
	if err != nil {
		ec.Logger.Printf("WEBHOOK: failed to store %s event for lead %d: %v", eventType, lead.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store event", nil)
	}
	if !inserted {
		return c.JSON(fiber.Map{"message": "Duplicate event ignored"})
	}

	ec.Feed.Broadcast(lead.TenantID, event)

	// Apply to the state machine off the request path; the webhook must
	// acknowledge fast regardless of lock contention
	go func(ev models.EngagementEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ec.Machine.ProcessEvent(ctx, &ev); err != nil {
			ec.Logger.Printf("WEBHOOK: failed to process %s event %s: %v", ev.EventType, ev.EventUID, err)
		}
	}(*event)

	return c.JSON(fiber.Map{"message": "Event accepted"})
}

// ListEvents returns recent engagement events for a lead
func (ec *EngagementController) ListEvents(c *fiber.Ctx) error {
	tenantID := c.Locals("tenantID").(uint)
	leadID := utils.ParseUint(c.Params("leadId"))

	var lead models.Lead
	if err := ec.DB.Where("id = ? AND tenant_id = ?", leadID, tenantID).First(&lead).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}

	events, err := ec.Store.ListEventsSince(c.Context(), lead.ID, time.Now().AddDate(0, -3, 0))
	if err != nil {
		ec.Logger.Printf("failed to list events for lead %d: %v", lead.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load events", nil)
	}
	return c.JSON(utils.SuccessResponse(events))
}

func (ec *EngagementController) resolveLead(c *fiber.Ctx, leadID uint, email string) (*models.Lead, error) {
	var lead models.Lead
	if leadID > 0 {
		if err := ec.DB.First(&lead, leadID).Error; err == nil {
			return &lead, nil
		}
	}
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if err := ec.DB.Where("email = ?", email).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// feedWriter is the write side of a feed connection
type feedWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// feedClient serializes writes to one connection: the websocket library
// does not allow concurrent writers, and broadcasts run on webhook request
// goroutines.
type feedClient struct {
	mu   sync.Mutex
	conn feedWriter
}

func (fc *feedClient) send(payload []byte) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.conn.WriteMessage(websocket.TextMessage, payload)
}

// EngagementFeed pushes live engagement events to dashboard clients over
// websockets, fanned out per tenant.
type EngagementFeed struct {
	mu      sync.RWMutex
	clients map[uint]map[*feedClient]bool
	logger  *log.Logger
}

func NewEngagementFeed(logger *log.Logger) *EngagementFeed {
	return &EngagementFeed{
		clients: make(map[uint]map[*feedClient]bool),
		logger:  logger,
	}
}

func (f *EngagementFeed) register(tenantID uint, conn feedWriter) *feedClient {
	client := &feedClient{conn: conn}
	f.mu.Lock()
	if f.clients[tenantID] == nil {
		f.clients[tenantID] = make(map[*feedClient]bool)
	}
	f.clients[tenantID][client] = true
	f.mu.Unlock()
	return client
}

func (f *EngagementFeed) unregister(tenantID uint, client *feedClient) {
	f.mu.Lock()
	delete(f.clients[tenantID], client)
	f.mu.Unlock()
}

// HandleFeed keeps one dashboard connection subscribed until it closes
func (f *EngagementFeed) HandleFeed(c *websocket.Conn) {
	tenantID, ok := c.Locals("tenantID").(uint)
	if !ok {
		_ = c.Close()
		return
	}

	client := f.register(tenantID, c)
	defer func() {
		f.unregister(tenantID, client)
		_ = c.Close()
	}()

	// Drain reads so close frames are seen; the feed is write-only
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *EngagementFeed) Broadcast(tenantID uint, event *models.EngagementEvent) {
	payload, err := json.Marshal(fiber.Map{
		"lead_id":     event.LeadID,
		"sequence_id": event.SequenceID,
		"event_type":  event.EventType,
		"provider":    event.Provider,
		"occurred_at": event.OccurredAt,
	})
	if err != nil {
		return
	}

	f.mu.RLock()
	targets := make([]*feedClient, 0, len(f.clients[tenantID]))
	for client := range f.clients[tenantID] {
		targets = append(targets, client)
	}
	f.mu.RUnlock()

	for _, client := range targets {
		if err := client.send(payload); err != nil {
			f.logger.Printf("FEED: dropping client for tenant %d: %v", tenantID, err)
		}
	}
}
