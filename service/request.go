package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/trip"
	"github.com/oriser/tramper/user"
	"github.com/shopspring/decimal"
)

type CreateRequestInput struct {
	ReceiverID   string
	ShipmentID   *string
	TripID       *string
	OfferedPrice decimal.Decimal
	Message      *string
}

func (h *Service) CreateRequest(ctx context.Context, actor user.Actor, input CreateRequestInput) (*request.Request, error) {
	if err := request.ValidateNew(actor.ID, input.ReceiverID, input.ShipmentID, input.TripID, input.OfferedPrice); err != nil {
		return nil, err
	}

	if input.ShipmentID != nil {
		if _, err := h.shipmentStore.GetShipment(ctx, *input.ShipmentID); err != nil {
			return nil, lookupError(err, "shipment", *input.ShipmentID)
		}
	}
	if input.TripID != nil {
		if _, err := h.tripStore.GetTrip(ctx, *input.TripID); err != nil {
			return nil, lookupError(err, "trip", *input.TripID)
		}
	}
	if _, err := h.userStore.GetUser(ctx, input.ReceiverID); err != nil {
		return nil, lookupError(err, "user", input.ReceiverID)
	}

	r := request.New(actor.ID, input.ReceiverID, input.ShipmentID, input.TripID, input.OfferedPrice, input.Message)
	err := h.requestStore.RunInTx(ctx, func(tx request.Tx) error {
		return tx.InsertRequest(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	r.CounterOffers = []*request.CounterOffer{}

	h.informEvent(ctx, notification.KindRequestCreated, r.ReceiverID, actor.ID, r, nil)
	return r, nil
}

func (h *Service) AppendCounterOffer(ctx context.Context, actor user.Actor, requestID string, price decimal.Decimal, message *string) (*request.Request, error) {
	var (
		updated *request.Request
		offer   *request.CounterOffer
	)
	err := h.requestStore.RunInTx(ctx, func(tx request.Tx) error {
		r, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		offer, err = request.AppendCounterOffer(r, actor.ID, price, message, now())
		if err != nil {
			return err
		}
		if err := tx.InsertCounterOffer(ctx, offer); err != nil {
			return fmt.Errorf("insert counter offer: %w", err)
		}
		if err := tx.UpdateRequestStatus(ctx, r); err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.informEvent(ctx, notification.KindCounterOfferCreated, offer.ReceiverID, actor.ID, updated, &offer.Price)
	return updated, nil
}

// UpdateRequestStatus applies an accept, reject or cancel. Acceptance finalizes the
// match in the same transaction, so a failing finalizer leaves the request untouched.
func (h *Service) UpdateRequestStatus(ctx context.Context, actor user.Actor, requestID string, to request.Status) (*request.Request, error) {
	var updated *request.Request
	err := h.requestStore.RunInTx(ctx, func(tx request.Tx) error {
		r, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		from, at := r.Status, now()
		if err := request.ApplyTransition(r, actor.ID, to, at); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, r); err != nil {
			return fmt.Errorf("update request status: %w", err)
		}
		if to == request.StatusAccepted {
			if err := h.finalizeMatch(ctx, tx, r, at); err != nil {
				if errors.Is(err, trip.ErrCapacityExceeded) {
					return &request.StateError{Status: from, Reason: err.Error()}
				}
				return err
			}
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch to {
	case request.StatusAccepted:
		h.informEvent(ctx, notification.KindRequestAccepted, updated.SenderID, actor.ID, updated, nil)
	case request.StatusRejected:
		h.informEvent(ctx, notification.KindRequestRejected, updated.SenderID, actor.ID, updated, nil)
	}
	return updated, nil
}

// DeleteRequest removes a request with its counter offers in any status.
// Only the sender or an admin may delete.
func (h *Service) DeleteRequest(ctx context.Context, actor user.Actor, requestID string) error {
	return h.requestStore.RunInTx(ctx, func(tx request.Tx) error {
		r, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if actor.ID != r.SenderID && !actor.IsAdmin {
			return &request.AuthorizationError{Reason: "only the sender can delete a request"}
		}
		return tx.DeleteRequest(ctx, requestID)
	})
}

func (h *Service) GetRequest(ctx context.Context, actor user.Actor, requestID string) (*request.Request, error) {
	r, err := h.requestStore.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !r.IsParticipant(actor.ID) && !actor.IsAdmin {
		return nil, &request.AuthorizationError{Reason: "only participants can view a request"}
	}
	return r, nil
}

func (h *Service) ListRequestsForUser(ctx context.Context, actor user.Actor, direction request.Direction, status *request.Status) ([]*request.Summary, error) {
	filter := request.ListFilter{UserID: actor.ID, Direction: direction}
	if status != nil {
		if _, ok := request.ParseStatus(string(*status)); !ok {
			return nil, &request.ValidationError{Field: "status", Reason: "unknown status " + string(*status)}
		}
		filter.Status = *status
	}
	summaries, err := h.requestStore.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests for user: %w", err)
	}
	return summaries, nil
}

// ListRequestsForShipment lists the requests of a shipment the actor takes part in.
// The shipment owner and admins see all of them.
func (h *Service) ListRequestsForShipment(ctx context.Context, actor user.Actor, shipmentID string) ([]*request.Summary, error) {
	s, err := h.shipmentStore.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, lookupError(err, "shipment", shipmentID)
	}

	filter := request.ListFilter{ShipmentID: shipmentID}
	if s.SenderID != actor.ID && !actor.IsAdmin {
		filter.UserID = actor.ID
	}
	summaries, err := h.requestStore.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests for shipment: %w", err)
	}
	return summaries, nil
}

// ListRequestsForTrip lists the requests of a trip the actor takes part in.
// The traveler and admins see all of them.
func (h *Service) ListRequestsForTrip(ctx context.Context, actor user.Actor, tripID string) ([]*request.Summary, error) {
	t, err := h.tripStore.GetTrip(ctx, tripID)
	if err != nil {
		return nil, lookupError(err, "trip", tripID)
	}

	filter := request.ListFilter{TripID: tripID}
	if t.TravelerID != actor.ID && !actor.IsAdmin {
		filter.UserID = actor.ID
	}
	summaries, err := h.requestStore.ListRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests for trip: %w", err)
	}
	return summaries, nil
}
