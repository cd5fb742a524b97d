package request

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCountered Status = "countered"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var allStatuses = map[Status]struct{}{
	StatusPending:   {},
	StatusAccepted:  {},
	StatusRejected:  {},
	StatusCountered: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func ParseStatus(s string) (Status, bool) {
	_, ok := allStatuses[Status(s)]
	return Status(s), ok
}

// IsFinal reports whether no further transition or counter offer is allowed.
func (s Status) IsFinal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Negotiable reports whether a counter offer may be appended.
func (s Status) Negotiable() bool {
	return s == StatusPending || s == StatusCountered
}

type Request struct {
	ID            string          `db:"id" json:"id"`
	SenderID      string          `db:"sender_id" json:"sender_id"`
	ReceiverID    string          `db:"receiver_id" json:"receiver_id"`
	ShipmentID    *string         `db:"shipment_id" json:"shipment_id"`
	TripID        *string         `db:"trip_id" json:"trip_id"`
	OfferedPrice  decimal.Decimal `db:"offered_price" json:"offered_price"`
	Status        Status          `db:"status" json:"status"`
	Message       *string         `db:"message" json:"message"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	CounterOffers []*CounterOffer `db:"-" json:"counter_offers"`
}

type CounterOffer struct {
	ID         string          `db:"id" json:"id"`
	RequestID  string          `db:"request_id" json:"request_id"`
	SenderID   string          `db:"sender_id" json:"sender_id"`
	ReceiverID string          `db:"receiver_id" json:"receiver_id"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Message    *string         `db:"message" json:"message"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

func New(senderID, receiverID string, shipmentID, tripID *string, offeredPrice decimal.Decimal, message *string) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		ReceiverID:   receiverID,
		ShipmentID:   shipmentID,
		TripID:       tripID,
		OfferedPrice: offeredPrice,
		Status:       StatusPending,
		Message:      message,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LatestCounterOffer returns the chronologically last counter offer, or nil.
// CounterOffers is kept in creation order.
func (r *Request) LatestCounterOffer() *CounterOffer {
	if len(r.CounterOffers) == 0 {
		return nil
	}
	return r.CounterOffers[len(r.CounterOffers)-1]
}

// CurrentPrice is the latest counter offer price, falling back to the offered price.
func (r *Request) CurrentPrice() decimal.Decimal {
	if latest := r.LatestCounterOffer(); latest != nil {
		return latest.Price
	}
	return r.OfferedPrice
}

func (r *Request) IsParticipant(userID string) bool {
	return userID == r.SenderID || userID == r.ReceiverID
}

// OtherParty returns the participant of the request that is not userID.
// The second return value is false when userID takes no part in the request.
func OtherParty(r *Request, userID string) (string, bool) {
	switch userID {
	case r.SenderID:
		return r.ReceiverID, true
	case r.ReceiverID:
		return r.SenderID, true
	}
	return "", false
}

func (r *Request) touch(at time.Time) {
	r.UpdatedAt = at
}
