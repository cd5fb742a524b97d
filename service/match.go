package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/shipment"
	"github.com/oriser/tramper/trip"
)

// finalizeMatch links the accepted request's traveler to its shipment and, in strict
// capacity mode, debits the shipment weight from the trip. It runs inside the
// transaction that accepted r.
func (h *Service) finalizeMatch(ctx context.Context, tx request.Tx, r *request.Request, at time.Time) error {
	if r.ShipmentID == nil {
		return nil
	}

	s, err := tx.GetShipmentForUpdate(ctx, *r.ShipmentID)
	if err != nil {
		var notFound *shipment.ErrNotFound
		if errors.As(err, &notFound) {
			return &request.ConflictError{Reason: fmt.Sprintf("shipment %s disappeared while accepting", *r.ShipmentID)}
		}
		return fmt.Errorf("lock shipment: %w", err)
	}

	// The shipment owner recruited the other party, or a traveler offered to carry it.
	travelerID := r.ReceiverID
	if r.SenderID != s.SenderID {
		travelerID = r.SenderID
	}
	s.AssignTraveler(travelerID, at)
	if err := tx.UpdateShipmentMatch(ctx, s); err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}

	if !h.cfg.StrictCapacity || r.TripID == nil {
		return nil
	}

	t, err := tx.GetTripForUpdate(ctx, *r.TripID)
	if err != nil {
		var notFound *trip.ErrNotFound
		if errors.As(err, &notFound) {
			return &request.ConflictError{Reason: fmt.Sprintf("trip %s disappeared while accepting", *r.TripID)}
		}
		return fmt.Errorf("lock trip: %w", err)
	}
	if err := t.Reserve(s.Weight); err != nil {
		return fmt.Errorf("reserve trip capacity: %w", err)
	}
	t.UpdatedAt = at
	if err := tx.UpdateTripCapacity(ctx, t); err != nil {
		return fmt.Errorf("update trip capacity: %w", err)
	}
	return nil
}
