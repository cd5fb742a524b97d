package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oriser/tramper/trip"
)

func (d *DBStore) AddTrip(ctx context.Context, t *trip.Trip) error {
	if t == nil {
		return fmt.Errorf("nil trip")
	}
	if err := t.Capacity.Validate(); err != nil {
		return fmt.Errorf("invalid capacity: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	sql, args, err := sq.Insert("trips").
		Columns("id", "traveler_id", "from_location", "to_location", "departure_at",
			"total_weight", "used_weight", "weight_unit", "created_at", "updated_at").
		Values(t.ID, t.TravelerID, t.FromLocation, t.ToLocation, t.DepartureAt,
			t.TotalWeight, t.UsedWeight, t.Unit, t.CreatedAt, t.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = d.db.ExecContext(ctx, sql, args...); err != nil {
		return newExecError("adding trip", sql, err, args...)
	}
	return nil
}

func (d *DBStore) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	return getTrip(ctx, d.db, id, "")
}

func getTrip(ctx context.Context, q sqlx.QueryerContext, id, suffix string) (*trip.Trip, error) {
	query := sq.Select("*").From("trips").Where("id=?", id)
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	var trips []*trip.Trip
	if err = sqlx.SelectContext(ctx, q, &trips, sql, args...); err != nil {
		return nil, execFailure("selecting trip", sql, err, args...)
	}
	if len(trips) == 0 {
		return nil, &trip.ErrNotFound{ID: id}
	}
	return trips[0], nil
}

func (t *txStore) GetTripForUpdate(ctx context.Context, id string) (*trip.Trip, error) {
	return getTrip(ctx, t.tx, id, t.lockSuffix)
}

func (t *txStore) UpdateTripCapacity(ctx context.Context, tr *trip.Trip) error {
	sql, args, err := sq.Update("trips").
		Set("used_weight", tr.UsedWeight).
		Set("updated_at", tr.UpdatedAt).
		Where("id=?", tr.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating update SQL: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return execFailure("updating trip capacity", sql, err, args...)
	}
	return expectOneRow(res, &trip.ErrNotFound{ID: tr.ID})
}
