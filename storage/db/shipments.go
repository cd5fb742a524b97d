package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oriser/tramper/shipment"
)

func (d *DBStore) AddShipment(ctx context.Context, s *shipment.Shipment) error {
	if s == nil {
		return fmt.Errorf("nil shipment")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = shipment.StatusPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	sql, args, err := sq.Insert("shipments").
		Columns("id", "sender_id", "traveler_id", "name", "status", "weight", "reward", "created_at", "updated_at").
		Values(s.ID, s.SenderID, s.TravelerID, s.Name, s.Status, s.Weight, s.Reward, s.CreatedAt, s.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = d.db.ExecContext(ctx, sql, args...); err != nil {
		return newExecError("adding shipment", sql, err, args...)
	}
	return nil
}

func (d *DBStore) GetShipment(ctx context.Context, id string) (*shipment.Shipment, error) {
	return getShipment(ctx, d.db, id, "")
}

func getShipment(ctx context.Context, q sqlx.QueryerContext, id, suffix string) (*shipment.Shipment, error) {
	query := sq.Select("*").From("shipments").Where("id=?", id)
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	var shipments []*shipment.Shipment
	if err = sqlx.SelectContext(ctx, q, &shipments, sql, args...); err != nil {
		return nil, execFailure("selecting shipment", sql, err, args...)
	}
	if len(shipments) == 0 {
		return nil, &shipment.ErrNotFound{ID: id}
	}
	return shipments[0], nil
}

func (t *txStore) GetShipmentForUpdate(ctx context.Context, id string) (*shipment.Shipment, error) {
	return getShipment(ctx, t.tx, id, t.lockSuffix)
}

func (t *txStore) UpdateShipmentMatch(ctx context.Context, s *shipment.Shipment) error {
	sql, args, err := sq.Update("shipments").
		Set("traveler_id", s.TravelerID).
		Set("status", s.Status).
		Set("updated_at", s.UpdatedAt).
		Where("id=?", s.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating update SQL: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return execFailure("updating shipment match", sql, err, args...)
	}
	return expectOneRow(res, &shipment.ErrNotFound{ID: s.ID})
}
