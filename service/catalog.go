package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/shipment"
	"github.com/oriser/tramper/trip"
	"github.com/oriser/tramper/user"
	"github.com/shopspring/decimal"
)

type CreateShipmentInput struct {
	Name   string
	Weight decimal.Decimal
	Reward decimal.Decimal
}

type CreateTripInput struct {
	FromLocation string
	ToLocation   string
	DepartureAt  time.Time
	TotalWeight  decimal.Decimal
	Unit         string
}

// RegisterUser stores the profile of the authenticated actor.
func (h *Service) RegisterUser(ctx context.Context, actor user.Actor, profile user.User) (*user.User, error) {
	if _, err := h.userStore.GetUser(ctx, actor.ID); err == nil {
		return nil, &request.ValidationError{Field: "id", Reason: "user already registered"}
	}
	profile.ID = actor.ID
	profile.IsAdmin = actor.IsAdmin
	if err := h.userStore.AddUser(ctx, &profile); err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	return &profile, nil
}

func (h *Service) CreateShipment(ctx context.Context, actor user.Actor, input CreateShipmentInput) (*shipment.Shipment, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, &request.ValidationError{Field: "name", Reason: "name is required"}
	}
	if !input.Weight.IsPositive() {
		return nil, &request.ValidationError{Field: "weight", Reason: "weight must be greater than 0"}
	}
	if input.Reward.IsNegative() {
		return nil, &request.ValidationError{Field: "reward", Reason: "reward must not be negative"}
	}
	if err := request.ValidateAmount("weight", input.Weight); err != nil {
		return nil, err
	}
	if err := request.ValidateAmount("reward", input.Reward); err != nil {
		return nil, err
	}

	s := shipment.NewShipment(actor.ID, input.Name, input.Weight, input.Reward)
	if err := h.shipmentStore.AddShipment(ctx, s); err != nil {
		return nil, fmt.Errorf("add shipment: %w", err)
	}
	return s, nil
}

func (h *Service) GetShipment(ctx context.Context, shipmentID string) (*shipment.Shipment, error) {
	s, err := h.shipmentStore.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, lookupError(err, "shipment", shipmentID)
	}
	return s, nil
}

func (h *Service) CreateTrip(ctx context.Context, actor user.Actor, input CreateTripInput) (*trip.Trip, error) {
	if strings.TrimSpace(input.FromLocation) == "" {
		return nil, &request.ValidationError{Field: "from_location", Reason: "origin is required"}
	}
	if strings.TrimSpace(input.ToLocation) == "" {
		return nil, &request.ValidationError{Field: "to_location", Reason: "destination is required"}
	}
	if input.DepartureAt.IsZero() {
		return nil, &request.ValidationError{Field: "departure_at", Reason: "departure time is required"}
	}

	if err := request.ValidateAmount("total_weight", input.TotalWeight); err != nil {
		return nil, err
	}

	t := trip.NewTrip(actor.ID, input.FromLocation, input.ToLocation, input.DepartureAt, input.TotalWeight, input.Unit)
	if err := t.Capacity.Validate(); err != nil {
		return nil, &request.ValidationError{Field: "total_weight", Reason: err.Error()}
	}
	if err := h.tripStore.AddTrip(ctx, t); err != nil {
		return nil, fmt.Errorf("add trip: %w", err)
	}
	return t, nil
}

func (h *Service) GetTrip(ctx context.Context, tripID string) (*trip.Trip, error) {
	t, err := h.tripStore.GetTrip(ctx, tripID)
	if err != nil {
		return nil, lookupError(err, "trip", tripID)
	}
	return t, nil
}

func (h *Service) ListNotifications(ctx context.Context, actor user.Actor, unreadOnly bool) ([]*notification.Notification, error) {
	notifications, err := h.notificationStore.ListNotifications(ctx, actor.ID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (h *Service) MarkNotificationRead(ctx context.Context, actor user.Actor, notificationID string) error {
	return h.notificationStore.MarkNotificationRead(ctx, actor.ID, notificationID)
}
