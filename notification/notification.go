package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindRequestCreated      Kind = "request_created"
	KindRequestAccepted     Kind = "request_accepted"
	KindRequestRejected     Kind = "request_rejected"
	KindCounterOfferCreated Kind = "counter_offer_created"
)

const CategoryShipmentRequest = "shipment_request"

// Event is a committed negotiation change addressed to a single user.
type Event struct {
	Kind        Kind             `json:"kind"`
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id"`
	ActorName   string           `json:"actor_name"`
	RequestID   string           `json:"request_id"`
	ShipmentID  *string          `json:"shipment_id,omitempty"`
	TripID      *string          `json:"trip_id,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Sink delivers an event to one channel (database, Slack, webhook...).
type Sink interface {
	Send(ctx context.Context, event Event) error
}

type Notification struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Title      string    `db:"title" json:"title"`
	Message    string    `db:"message" json:"message"`
	Category   string    `db:"category" json:"category"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	RequestID  *string   `db:"request_id" json:"request_id"`
	ShipmentID *string   `db:"shipment_id" json:"shipment_id"`
	TripID     *string   `db:"trip_id" json:"trip_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Store interface {
	AddNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// StoreSink persists events as user notifications.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Send(ctx context.Context, event Event) error {
	title, message, err := Render(event)
	if err != nil {
		return err
	}
	requestID := event.RequestID
	n := &Notification{
		ID:         uuid.NewString(),
		UserID:     event.RecipientID,
		Title:      title,
		Message:    message,
		Category:   CategoryShipmentRequest,
		RequestID:  &requestID,
		ShipmentID: event.ShipmentID,
		TripID:     event.TripID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.AddNotification(ctx, n); err != nil {
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}
