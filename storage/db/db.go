package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/oriser/tramper/request"
)

//go:embed migrations
var migrations embed.FS

type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

// MySQL lock contention error numbers.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

type ExecError struct {
	sql  string
	err  error
	msg  string
	args []interface{}
}

func newExecError(msg, sql string, err error, args ...interface{}) *ExecError {
	return &ExecError{sql: sql, err: err, msg: msg, args: args}
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: executing SQL:\n%s\nargs:%#v\nerror:%v", e.msg, e.sql, e.args, e.err)
}

func (e *ExecError) Unwrap() error {
	return e.err
}

// isLockConflict reports whether err is lock contention that a retry may resolve.
func isLockConflict(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlLockWaitTimeout || mysqlErr.Number == mysqlDeadlock
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// execFailure wraps a failed statement, turning lock contention into a ConflictError.
func execFailure(msg, sql string, err error, args ...interface{}) error {
	execErr := newExecError(msg, sql, err, args...)
	if isLockConflict(err) {
		return &request.ConflictError{Reason: msg, Err: execErr}
	}
	return execErr
}

type DBStore struct {
	db      *sqlx.DB
	dialect Dialect
}

func New(db *sqlx.DB, migrationDriver database.Driver, dialect Dialect, dbName string) (*DBStore, error) {
	switch dialect {
	case DialectSQLite:
		// Only one connection, so an in-memory database is shared and writers queue up.
		db.SetMaxOpenConns(1)
	case DialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	d, err := iofs.New(migrations, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("new iofs: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, dbName, migrationDriver)
	if err != nil {
		return nil, fmt.Errorf("new migration instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DBStore{
		db:      db,
		dialect: dialect,
	}, nil
}

// SQLiteDSN adds the connection options the store relies on to a sqlite location.
func SQLiteDSN(location string) string {
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + "_txlock=immediate&_foreign_keys=on&_busy_timeout=5000"
}

func (d *DBStore) Close() error {
	return d.db.Close()
}

func (d *DBStore) lockSuffix() string {
	if d.dialect == DialectMySQL {
		return "FOR UPDATE"
	}
	return ""
}

func (d *DBStore) RunInTx(ctx context.Context, fn func(tx request.Tx) error) error {
	sqlTx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		if isLockConflict(err) {
			return &request.ConflictError{Reason: "begin transaction", Err: err}
		}
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: sqlTx, lockSuffix: d.lockSuffix()}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Printf("Error rolling back transaction: %v\n", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isLockConflict(err) {
			return &request.ConflictError{Reason: "commit transaction", Err: err}
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements request.Tx on top of a single transaction.
type txStore struct {
	tx         *sqlx.Tx
	lockSuffix string
}
