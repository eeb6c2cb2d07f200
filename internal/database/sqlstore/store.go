// Package sqlstore implements database.Store on gorm, for SQLite (pure-Go
// modernc driver) or PostgreSQL. Connections are opened through otelsql so
// every query is traced.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issuesmap/internal/database"

	"github.com/XSAM/otelsql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures the SQL store.
type Options struct {
	Driver string
	DSN    string
	// LogLevel controls gorm's own query logger. Zero means warnings only.
	LogLevel logger.LogLevel
}

// Store is a gorm-backed database.Store.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ database.Store = (*Store)(nil)

// Open connects to the database and migrates the schema.
func Open(opts Options) (*Store, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}

	var (
		dialector gorm.Dialector
		sqlDB     *sql.DB
		err       error
	)
	switch opts.Driver {
	case DriverPostgres:
		sqlDB, err = otelsql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case DriverSQLite, "":
		sqlDB, err = otelsql.Open("sqlite", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// single writer
		sqlDB.SetMaxOpenConns(1)
		dialector = sqlite.New(sqlite.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(opts.LogLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialise gorm: %w", err)
	}

	if err := db.AutoMigrate(&issueRow{}, &reportRow{}, &commentRow{}, &userRow{}, &settingRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// DB exposes the gorm handle for advanced operations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) withContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// notFound maps gorm's missing-row error to database.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.ErrNotFound
	}
	return err
}
