package request

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	// Amounts are stored as DECIMAL(12, 2).
	AmountScale     = 2
	amountMaxDigits = 10
)

var maxAmount = decimal.New(1, amountMaxDigits)

// ValidateAmount rejects amounts the store cannot hold exactly: more than two
// decimal places, or ten integer digits or more.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%s must have at most %d decimal places", field, AmountScale)}
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%s must be less than %s", field, maxAmount)}
	}
	return nil
}

// ValidateNew checks the creation rules that need no lookups.
func ValidateNew(senderID, receiverID string, shipmentID, tripID *string, offeredPrice decimal.Decimal) error {
	if shipmentID == nil && tripID == nil {
		return &ValidationError{Field: "shipment_id", Reason: "either shipment_id or trip_id is required"}
	}
	if receiverID == "" {
		return &ValidationError{Field: "receiver_id", Reason: "receiver is required"}
	}
	if senderID == receiverID {
		return &ValidationError{Field: "receiver_id", Reason: "cannot send request to yourself"}
	}
	if offeredPrice.IsNegative() {
		return &ValidationError{Field: "offered_price", Reason: "offered price must not be negative"}
	}
	return ValidateAmount("offered_price", offeredPrice)
}

// CheckTransition validates moving r to the status `to` on behalf of actorID.
// Only accepted, rejected and cancelled can be requested directly: countered is
// reached through counter offers and expired through the expiry sweep.
func CheckTransition(r *Request, actorID string, to Status) error {
	switch to {
	case StatusAccepted, StatusRejected, StatusCancelled:
	case StatusCountered:
		return &ValidationError{Field: "status", Reason: "create a counter offer to counter a request"}
	default:
		return &ValidationError{Field: "status", Reason: "unsupported status " + string(to)}
	}

	if r.Status.IsFinal() {
		return &StateError{Status: r.Status, Reason: "cannot change status of a finalized request"}
	}

	switch to {
	case StatusAccepted, StatusRejected:
		if actorID != r.ReceiverID {
			return &AuthorizationError{Reason: "only the receiver can accept or reject a request"}
		}
	case StatusCancelled:
		if actorID != r.SenderID {
			return &AuthorizationError{Reason: "only the sender can cancel a request"}
		}
	}
	return nil
}

// ApplyTransition checks and applies the transition on r.
func ApplyTransition(r *Request, actorID string, to Status, at time.Time) error {
	if err := CheckTransition(r, actorID, to); err != nil {
		return err
	}
	r.Status = to
	r.touch(at)
	return nil
}

// AppendCounterOffer adds a counter offer from actorID to r, addressed to the other
// participant, and moves r to countered.
func AppendCounterOffer(r *Request, actorID string, price decimal.Decimal, message *string, at time.Time) (*CounterOffer, error) {
	if !r.Status.Negotiable() {
		return nil, &StateError{Status: r.Status, Reason: "cannot counter offer on this request"}
	}
	receiverID, ok := OtherParty(r, actorID)
	if !ok {
		return nil, &AuthorizationError{Reason: "only participants can counter offer"}
	}
	if !price.IsPositive() {
		return nil, &ValidationError{Field: "price", Reason: "price must be greater than 0"}
	}
	if err := ValidateAmount("price", price); err != nil {
		return nil, err
	}

	offer := &CounterOffer{
		ID:         ulid.Make().String(),
		RequestID:  r.ID,
		SenderID:   actorID,
		ReceiverID: receiverID,
		Price:      price,
		Message:    message,
		CreatedAt:  at,
	}
	r.CounterOffers = append(r.CounterOffers, offer)
	r.Status = StatusCountered
	r.touch(at)
	return offer, nil
}

// Expire moves a negotiable request to expired. It reports whether r changed.
func Expire(r *Request, at time.Time) bool {
	if !r.Status.Negotiable() {
		return false
	}
	r.Status = StatusExpired
	r.touch(at)
	return true
}
