package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/shipment"
	"github.com/oriser/tramper/trip"
	"github.com/oriser/tramper/user"
	"github.com/shopspring/decimal"
)

type EventNotification interface {
	Notify(event notification.Event)
}

type Config struct {
	StrictCapacity      bool          `env:"STRICT_CAPACITY" envDefault:"false"`
	RequestExpiryAfter  time.Duration `env:"REQUEST_EXPIRY_AFTER" envDefault:"0"`
	ExpirySweepInterval time.Duration `env:"REQUEST_EXPIRY_SWEEP_INTERVAL" envDefault:"5m"`
}

type Service struct {
	cfg               Config
	eventNotification EventNotification
	requestStore      request.Store
	shipmentStore     shipment.Store
	tripStore         trip.Store
	userStore         user.Store
	notificationStore notification.Store
}

func New(cfg Config, requestStore request.Store, shipmentStore shipment.Store, tripStore trip.Store, userStore user.Store, notificationStore notification.Store, eventNotification EventNotification) (*Service, error) {
	if cfg.RequestExpiryAfter < 0 {
		return nil, fmt.Errorf("REQUEST_EXPIRY_AFTER must not be negative (got %s)", cfg.RequestExpiryAfter)
	}
	if cfg.RequestExpiryAfter > 0 && cfg.ExpirySweepInterval <= 0 {
		return nil, fmt.Errorf("REQUEST_EXPIRY_SWEEP_INTERVAL must be positive when expiry is enabled")
	}
	return &Service{
		cfg:               cfg,
		eventNotification: eventNotification,
		requestStore:      requestStore,
		shipmentStore:     shipmentStore,
		tripStore:         tripStore,
		userStore:         userStore,
		notificationStore: notificationStore,
	}, nil
}

// informEvent hands a committed change to the notification collaborator.
// It never fails the calling operation.
func (h *Service) informEvent(ctx context.Context, kind notification.Kind, recipientID, actorID string, r *request.Request, price *decimal.Decimal) {
	if h.eventNotification == nil {
		return
	}

	h.eventNotification.Notify(notification.Event{
		Kind:        kind,
		RecipientID: recipientID,
		ActorID:     actorID,
		ActorName:   h.displayName(ctx, actorID),
		RequestID:   r.ID,
		ShipmentID:  r.ShipmentID,
		TripID:      r.TripID,
		Price:       price,
		OccurredAt:  r.UpdatedAt,
	})
}

func (h *Service) displayName(ctx context.Context, userID string) string {
	u, err := h.userStore.GetUser(ctx, userID)
	if err != nil {
		log.Printf("Error getting user %s for notification: %v\n", userID, err)
		return ""
	}
	return u.DisplayName()
}

// lookupError turns a store's not found error into the engine's NotFoundError.
func lookupError(err error, kind, id string) error {
	var (
		shipmentNotFound *shipment.ErrNotFound
		tripNotFound     *trip.ErrNotFound
		userNotFound     *user.ErrNotFound
	)
	if errors.As(err, &shipmentNotFound) || errors.As(err, &tripNotFound) || errors.As(err, &userNotFound) {
		return &request.NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

func now() time.Time {
	return time.Now().UTC()
}
