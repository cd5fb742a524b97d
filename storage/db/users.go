package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	userDomain "github.com/oriser/tramper/user"
)

type userModel struct {
	*userDomain.User
	CreatedAt time.Time `db:"created_at"`
}

func (d *DBStore) AddUser(ctx context.Context, user *userDomain.User) error {
	if user == nil {
		return fmt.Errorf("nil user")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	model := &userModel{User: user, CreatedAt: time.Now().UTC()}

	sql, args, err := sq.Insert("users").
		Columns("id", "full_name", "email", "phone", "timezone", "transport_id", "is_admin", "created_at").
		Values(model.ID, model.FullName, model.Email, model.Phone, model.Timezone, model.TransportID, model.IsAdmin, model.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("generating insert SQL: %w", err)
	}

	if _, err = d.db.ExecContext(ctx, sql, args...); err != nil {
		return newExecError("adding user", sql, err, args...)
	}

	return nil
}

func (d *DBStore) GetUser(ctx context.Context, id string) (*userDomain.User, error) {
	sql, args, err := sq.Select("*").From("users").Where("id=?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("generating select SQL: %w", err)
	}

	var user []*userModel
	err = d.db.SelectContext(ctx, &user, sql, args...)
	if err != nil {
		return nil, newExecError("selecting user", sql, err, args...)
	}

	if len(user) > 1 {
		return nil, fmt.Errorf("more than one user found (found %d)", len(user))
	}
	if len(user) == 0 {
		return nil, &userDomain.ErrNotFound{ID: id}
	}

	return user[0].User, nil
}
