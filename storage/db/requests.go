package db

import (
	"context"
	dbsql "database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/oriser/tramper/request"
)

const (
	counterOffersCountColumn = "(SELECT COUNT(*) FROM counter_offers co WHERE co.request_id = r.id) AS counter_offers_count"
	// Latest counter offer price, or the offered price while there is none.
	currentPriceColumn = "COALESCE((SELECT co.price FROM counter_offers co WHERE co.request_id = r.id " +
		"ORDER BY co.created_at DESC, co.id DESC LIMIT 1), r.offered_price) AS current_price"
)

// expectOneRow returns notFound when the statement touched no row.
func expectOneRow(res dbsql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id, suffix string) (*request.Request, error) {
	query := sq.Select("*").From("requests").Where("id=?", id)
	if suffix != "" {
		query = query.Suffix(suffix)
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	var requests []*request.Request
	if err = sqlx.SelectContext(ctx, q, &requests, sql, args...); err != nil {
		return nil, execFailure("selecting request", sql, err, args...)
	}
	if len(requests) == 0 {
		return nil, &request.NotFoundError{Kind: "request", ID: id}
	}
	r := requests[0]

	r.CounterOffers, err = getCounterOffers(ctx, q, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func getCounterOffers(ctx context.Context, q sqlx.QueryerContext, requestID string) ([]*request.CounterOffer, error) {
	// ULIDs sort by creation time, so id breaks ties within the same timestamp.
	sql, args, err := sq.Select("*").From("counter_offers").
		Where("request_id=?", requestID).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	offers := make([]*request.CounterOffer, 0)
	if err = sqlx.SelectContext(ctx, q, &offers, sql, args...); err != nil {
		return nil, execFailure("selecting counter offers", sql, err, args...)
	}
	return offers, nil
}

func (d *DBStore) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	return getRequest(ctx, d.db, id, "")
}

func (d *DBStore) ListRequests(ctx context.Context, filter request.ListFilter) ([]*request.Summary, error) {
	query := sq.Select("r.*", counterOffersCountColumn, currentPriceColumn).From("requests r")

	if filter.UserID != "" {
		switch filter.Direction {
		case request.DirectionSent:
			query = query.Where(sq.Eq{"r.sender_id": filter.UserID})
		case request.DirectionReceived:
			query = query.Where(sq.Eq{"r.receiver_id": filter.UserID})
		default:
			query = query.Where(sq.Or{sq.Eq{"r.sender_id": filter.UserID}, sq.Eq{"r.receiver_id": filter.UserID}})
		}
	}
	if filter.Status != "" {
		query = query.Where(sq.Eq{"r.status": filter.Status})
	}
	if filter.ShipmentID != "" {
		query = query.Where(sq.Eq{"r.shipment_id": filter.ShipmentID})
	}
	if filter.TripID != "" {
		query = query.Where(sq.Eq{"r.trip_id": filter.TripID})
	}

	sql, args, err := query.OrderBy("r.created_at DESC", "r.id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	summaries := make([]*request.Summary, 0)
	if err = d.db.SelectContext(ctx, &summaries, sql, args...); err != nil {
		return nil, newExecError("listing requests", sql, err, args...)
	}
	return summaries, nil
}

func (d *DBStore) ListStaleRequests(ctx context.Context, olderThan time.Time) ([]string, error) {
	sql, args, err := sq.Select("id").From("requests").
		Where(sq.Eq{"status": []request.Status{request.StatusPending, request.StatusCountered}}).
		Where(sq.Lt{"updated_at": olderThan.UTC()}).
		OrderBy("updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	var ids []string
	if err = d.db.SelectContext(ctx, &ids, sql, args...); err != nil {
		return nil, newExecError("listing stale requests", sql, err, args...)
	}
	return ids, nil
}

func (t *txStore) GetRequestForUpdate(ctx context.Context, id string) (*request.Request, error) {
	return getRequest(ctx, t.tx, id, t.lockSuffix)
}

func (t *txStore) InsertRequest(ctx context.Context, r *request.Request) error {
	sql, args, err := sq.Insert("requests").
		Columns("id", "sender_id", "receiver_id", "shipment_id", "trip_id", "offered_price",
			"status", "message", "created_at", "updated_at").
		Values(r.ID, r.SenderID, r.ReceiverID, r.ShipmentID, r.TripID, r.OfferedPrice,
			r.Status, r.Message, r.CreatedAt.UTC(), r.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = t.tx.ExecContext(ctx, sql, args...); err != nil {
		return execFailure("adding request", sql, err, args...)
	}
	return nil
}

func (t *txStore) UpdateRequestStatus(ctx context.Context, r *request.Request) error {
	sql, args, err := sq.Update("requests").
		Set("status", r.Status).
		Set("updated_at", r.UpdatedAt.UTC()).
		Where("id=?", r.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating update SQL: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return execFailure("updating request status", sql, err, args...)
	}
	return expectOneRow(res, &request.NotFoundError{Kind: "request", ID: r.ID})
}

func (t *txStore) DeleteRequest(ctx context.Context, id string) error {
	sql, args, err := sq.Delete("counter_offers").Where("request_id=?", id).ToSql()
	if err != nil {
		return fmt.Errorf("generating delete SQL: %w", err)
	}
	if _, err = t.tx.ExecContext(ctx, sql, args...); err != nil {
		return execFailure("deleting counter offers", sql, err, args...)
	}

	sql, args, err = sq.Delete("requests").Where("id=?", id).ToSql()
	if err != nil {
		return fmt.Errorf("generating delete SQL: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, sql, args...)
	if err != nil {
		return execFailure("deleting request", sql, err, args...)
	}
	return expectOneRow(res, &request.NotFoundError{Kind: "request", ID: id})
}

func (t *txStore) InsertCounterOffer(ctx context.Context, offer *request.CounterOffer) error {
	sql, args, err := sq.Insert("counter_offers").
		Columns("id", "request_id", "sender_id", "receiver_id", "price", "message", "created_at").
		Values(offer.ID, offer.RequestID, offer.SenderID, offer.ReceiverID, offer.Price, offer.Message, offer.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = t.tx.ExecContext(ctx, sql, args...); err != nil {
		return execFailure("adding counter offer", sql, err, args...)
	}
	return nil
}
