package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"influencer-gifting-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventClaimAccepted is emitted when a claim becomes an order.
	EventClaimAccepted EventType = "claim.accepted"
	// EventClaimDuplicate is emitted when a claim is diverted for review.
	EventClaimDuplicate EventType = "claim.duplicate"
	EventDuplicateAccepted EventType = "duplicate.accepted"
	EventDuplicateDeclined EventType = "duplicate.declined"
	EventCampaignCreated   EventType = "campaign.created"
	EventCampaignArchived  EventType = "campaign.archived"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

type ClaimAcceptedData struct {
	Campaign models.Campaign
	Order    models.Order
}

type ClaimDuplicateData struct {
	Campaign models.Campaign
	Attempt  models.DuplicateAttempt
}

type DuplicateResolvedData struct {
	AttemptID string
	// Order is set when the attempt was accepted.
	Order *models.Order
}

type CampaignData struct {
	Campaign models.Campaign
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger *zap.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish runs every subscribed handler in its own goroutine. Handlers get a
// context detached from the request so they outlive it.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	m.mu.RLock()
	enabled := m.enabled
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				m.logger.Warn("event handler failed",
					zap.String("event", string(eventType)),
					zap.Error(err),
				)
			}
		}(handler)
	}
}

func (m *Manager) PublishClaimAccepted(ctx context.Context, campaign models.Campaign, order models.Order) {
	m.Publish(ctx, EventClaimAccepted, ClaimAcceptedData{Campaign: campaign, Order: order})
}

func (m *Manager) PublishClaimDuplicate(ctx context.Context, campaign models.Campaign, attempt models.DuplicateAttempt) {
	m.Publish(ctx, EventClaimDuplicate, ClaimDuplicateData{Campaign: campaign, Attempt: attempt})
}

func (m *Manager) PublishDuplicateAccepted(ctx context.Context, attemptID string, order models.Order) {
	m.Publish(ctx, EventDuplicateAccepted, DuplicateResolvedData{AttemptID: attemptID, Order: &order})
}

func (m *Manager) PublishDuplicateDeclined(ctx context.Context, attemptID string) {
	m.Publish(ctx, EventDuplicateDeclined, DuplicateResolvedData{AttemptID: attemptID})
}

func (m *Manager) PublishCampaignCreated(ctx context.Context, campaign models.Campaign) {
	m.Publish(ctx, EventCampaignCreated, CampaignData{Campaign: campaign})
}

func (m *Manager) PublishCampaignArchived(ctx context.Context, campaign models.Campaign) {
	m.Publish(ctx, EventCampaignArchived, CampaignData{Campaign: campaign})
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
