package user

import (
	"context"
	"fmt"
)

type User struct {
	ID          string `db:"id"`
	FullName    string `db:"full_name"`
	Email       string `db:"email"`
	Phone       string `db:"phone"`
	Timezone    string `db:"timezone"`
	TransportID string `db:"transport_id"` // For example slack user ID
	IsAdmin     bool   `db:"is_admin"`
}

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID      string
	IsAdmin bool
}

type ErrNotFound struct {
	ID string
}

func (u *ErrNotFound) Error() string {
	return fmt.Sprintf("user with id %s not found", u.ID)
}

type Store interface {
	AddUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
}

// DisplayName returns the name used in notifications.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
