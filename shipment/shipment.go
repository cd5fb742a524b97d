package shipment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

type Shipment struct {
	ID         string          `db:"id" json:"id"`
	SenderID   string          `db:"sender_id" json:"sender_id"`
	TravelerID *string         `db:"traveler_id" json:"traveler_id"`
	Name       string          `db:"name" json:"name"`
	Status     Status          `db:"status" json:"status"`
	Weight     decimal.Decimal `db:"weight" json:"weight"`
	Reward     decimal.Decimal `db:"reward" json:"reward"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("shipment %s not found", e.ID)
}

type Store interface {
	AddShipment(ctx context.Context, shipment *Shipment) error
	GetShipment(ctx context.Context, id string) (*Shipment, error)
}

func NewShipment(senderID, name string, weight, reward decimal.Decimal) *Shipment {
	now := time.Now().UTC()
	return &Shipment{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Name:      name,
		Status:    StatusPending,
		Weight:    weight,
		Reward:    reward,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AssignTraveler links the shipment to the traveler who will carry it.
func (s *Shipment) AssignTraveler(travelerID string, at time.Time) {
	s.TravelerID = &travelerID
	s.Status = StatusAccepted
	s.UpdatedAt = at
}
