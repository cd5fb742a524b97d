package request

import (
	"context"
	"time"

	"github.com/oriser/tramper/shipment"
	"github.com/oriser/tramper/trip"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionAll      Direction = "all"
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionSent, DirectionReceived:
		return Direction(s)
	}
	return DirectionAll
}

// ListFilter narrows ListRequests. Zero values mean "any".
type ListFilter struct {
	UserID     string
	Direction  Direction
	Status     Status
	ShipmentID string
	TripID     string
}

// Summary is a request as shown in lists.
type Summary struct {
	*Request
	CounterOffersCount int             `db:"counter_offers_count" json:"counter_offers_count"`
	CurrentPrice       decimal.Decimal `db:"current_price" json:"current_price"`
}

// Tx is a unit of work. The *ForUpdate getters lock the row until the
// transaction ends; locks are always taken request, then shipment, then trip.
type Tx interface {
	GetRequestForUpdate(ctx context.Context, id string) (*Request, error)
	InsertRequest(ctx context.Context, r *Request) error
	UpdateRequestStatus(ctx context.Context, r *Request) error
	DeleteRequest(ctx context.Context, id string) error
	InsertCounterOffer(ctx context.Context, offer *CounterOffer) error
	GetShipmentForUpdate(ctx context.Context, id string) (*shipment.Shipment, error)
	UpdateShipmentMatch(ctx context.Context, s *shipment.Shipment) error
	GetTripForUpdate(ctx context.Context, id string) (*trip.Trip, error)
	UpdateTripCapacity(ctx context.Context, t *trip.Trip) error
}

type Store interface {
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]*Summary, error)
	// ListStaleRequests returns ids of negotiable requests untouched since olderThan.
	ListStaleRequests(ctx context.Context, olderThan time.Time) ([]string, error)
}
