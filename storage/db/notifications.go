package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/request"
)

func (d *DBStore) AddNotification(ctx context.Context, n *notification.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	sql, args, err := sq.Insert("notifications").
		Columns("id", "user_id", "title", "message", "category", "is_read", "request_id", "shipment_id", "trip_id", "created_at").
		Values(n.ID, n.UserID, n.Title, n.Message, n.Category, n.IsRead, n.RequestID, n.ShipmentID, n.TripID, n.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = d.db.ExecContext(ctx, sql, args...); err != nil {
		return newExecError("adding notification", sql, err, args...)
	}
	return nil
}

func (d *DBStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*notification.Notification, error) {
	query := sq.Select("*").From("notifications").Where("user_id=?", userID)
	if unreadOnly {
		query = query.Where(sq.Eq{"is_read": false})
	}
	sql, args, err := query.OrderBy("created_at DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	notifications := make([]*notification.Notification, 0)
	if err = d.db.SelectContext(ctx, &notifications, sql, args...); err != nil {
		return nil, newExecError("listing notifications", sql, err, args...)
	}
	return notifications, nil
}

func (d *DBStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	sql, args, err := sq.Update("notifications").
		Set("is_read", true).
		Where("id=?", id).
		Where("user_id=?", userID).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating update SQL: %w", err)
	}

	res, err := d.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return newExecError("marking notification read", sql, err, args...)
	}
	return expectOneRow(res, &request.NotFoundError{Kind: "notification", ID: id})
}
