package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrCapacityExceeded = errors.New("trip capacity exceeded")

// Capacity is the weight ledger of a trip.
type Capacity struct {
	TotalWeight decimal.Decimal `db:"total_weight" json:"total_weight"`
	UsedWeight  decimal.Decimal `db:"used_weight" json:"used_weight"`
	Unit        string          `db:"weight_unit" json:"unit"`
}

func (c Capacity) Available() decimal.Decimal {
	return c.TotalWeight.Sub(c.UsedWeight)
}

func (c Capacity) IsFull() bool {
	return c.UsedWeight.GreaterThanOrEqual(c.TotalWeight)
}

func (c Capacity) Validate() error {
	if c.TotalWeight.IsNegative() {
		return fmt.Errorf("total weight must not be negative")
	}
	if c.UsedWeight.IsNegative() {
		return fmt.Errorf("used weight must not be negative")
	}
	if c.UsedWeight.GreaterThan(c.TotalWeight) {
		return fmt.Errorf("used weight %s exceeds total weight %s", c.UsedWeight, c.TotalWeight)
	}
	return nil
}

// Reserve debits weight from the ledger. The ledger is left untouched on error.
func (c *Capacity) Reserve(weight decimal.Decimal) error {
	if weight.IsNegative() {
		return fmt.Errorf("reserve negative weight %s", weight)
	}
	if c.UsedWeight.Add(weight).GreaterThan(c.TotalWeight) {
		return fmt.Errorf("reserve %s %s with %s available: %w", weight, c.Unit, c.Available(), ErrCapacityExceeded)
	}
	c.UsedWeight = c.UsedWeight.Add(weight)
	return nil
}

type Trip struct {
	ID           string    `db:"id" json:"id"`
	TravelerID   string    `db:"traveler_id" json:"traveler_id"`
	FromLocation string    `db:"from_location" json:"from_location"`
	ToLocation   string    `db:"to_location" json:"to_location"`
	DepartureAt  time.Time `db:"departure_at" json:"departure_at"`
	Capacity
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("trip %s not found", e.ID)
}

type Store interface {
	AddTrip(ctx context.Context, trip *Trip) error
	GetTrip(ctx context.Context, id string) (*Trip, error)
}

func NewTrip(travelerID, from, to string, departureAt time.Time, totalWeight decimal.Decimal, unit string) *Trip {
	if unit == "" {
		unit = "kg"
	}
	now := time.Now().UTC()
	return &Trip{
		ID:           uuid.NewString(),
		TravelerID:   travelerID,
		FromLocation: from,
		ToLocation:   to,
		DepartureAt:  departureAt.UTC(),
		Capacity: Capacity{
			TotalWeight: totalWeight,
			UsedWeight:  decimal.Zero,
			Unit:        unit,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
