package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/caarlos0/env/v6"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/oriser/tramper/api"
	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/notification/slack"
	"github.com/oriser/tramper/notification/webhook"
	"github.com/oriser/tramper/service"
	"github.com/oriser/tramper/storage/db"
)

type DBConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"sqlite3"`
	Location string `env:"DB_LOCATION" envDefault:"/var/sqlite/store.db"`
	DSN      string `env:"DB_DSN" json:"-"` // mysql only
}

type Config struct {
	DB           DBConfig
	Service      service.Config
	API          api.Config
	Notification notification.Config
	Slack        slack.Config
	Webhook      webhook.Config
}

func (c Config) String() string {
	res, _ := json.Marshal(&c)
	return string(res)
}

// Run serves the API until ctx is done.
func Run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	log.Printf("Starting with options: %s\n", cfg.String())

	dbStorage, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer dbStorage.Close()

	sinks := []notification.Sink{notification.NewStoreSink(dbStorage)}
	if cfg.Slack.Enabled() {
		sinks = append(sinks, slack.NewSink(cfg.Slack, dbStorage))
	}
	if cfg.Webhook.Enabled() {
		sinks = append(sinks, webhook.NewSink(cfg.Webhook))
	}
	dispatcher := notification.NewDispatcher(cfg.Notification, sinks...)

	serviceHandler, err := service.New(cfg.Service, dbStorage, dbStorage, dbStorage, dbStorage, dbStorage, dispatcher)
	if err != nil {
		return fmt.Errorf("new service: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	dispatcher.Start(ctx)
	defer func() {
		cancel()
		dispatcher.Wait()
	}()
	go serviceHandler.ExpiryWorker(ctx)

	if err := api.New(cfg.API, serviceHandler).ListenAndServe(ctx); err != nil {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func openStore(cfg DBConfig) (*db.DBStore, error) {
	var (
		conn   *sqlx.DB
		driver database.Driver
		dbName string
		err    error
	)

	dialect := db.Dialect(cfg.Driver)
	switch dialect {
	case db.DialectSQLite:
		conn, err = sqlx.Connect("sqlite3", db.SQLiteDSN(cfg.Location))
		if err != nil {
			return nil, fmt.Errorf("connect DB: %w", err)
		}
		driver, err = sqlite3.WithInstance(conn.DB, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("new sqlite3 migration driver: %w", err)
		}
	case db.DialectMySQL:
		mysqlCfg, parseErr := mysqldriver.ParseDSN(cfg.DSN)
		if parseErr != nil {
			return nil, fmt.Errorf("parse DB_DSN: %w", parseErr)
		}
		mysqlCfg.ParseTime = true
		mysqlCfg.MultiStatements = true
		dbName = mysqlCfg.DBName

		conn, err = sqlx.Connect("mysql", mysqlCfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("connect DB: %w", err)
		}
		driver, err = mysql.WithInstance(conn.DB, &mysql.Config{DatabaseName: dbName})
		if err != nil {
			return nil, fmt.Errorf("new mysql migration driver: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	store, err := db.New(conn, driver, dialect, dbName)
	if err != nil {
		return nil, fmt.Errorf("new dbStorage: %w", err)
	}
	return store, nil
}
