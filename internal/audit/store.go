package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/log-redactor/internal/reload"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// MaxRecent caps the number of records Recent returns
const MaxRecent = 500

// Store records reload attempts in PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	// DatabaseURL is a postgres:// URL or sqlite://<path>
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Record is one stored reload attempt
type Record struct {
	ID        int64     `db:"id" json:"id"`
	Source    string    `db:"source" json:"source"`
	Trigger   string    `db:"trigger_name" json:"trigger"`
	Checksum  string    `db:"checksum" json:"checksum,omitempty"`
	RuleCount int       `db:"rule_count" json:"rule_count"`
	Status    string    `db:"status" json:"status"`
	Error     string    `db:"error" json:"error,omitempty"`
	LoadedAt  time.Time `db:"loaded_at" json:"loaded_at"`
}

// NewStore connects to the database and creates the history table
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	driver, dsn, err := parseDatabaseURL(config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	if driver == driverSQLite {
		// a single long-lived connection serialises writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := NewStoreWithDB(db, logger)
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("driver", driver),
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)))

	return store, nil
}

// NewStoreWithDB wraps an open connection. Call NewStore to also create
// the schema.
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// initialize checks the connection and creates the history table
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := postgresSchema
	if s.db.DriverName() == driverSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS redactor_reloads (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		rule_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		loaded_at TIMESTAMPTZ NOT NULL
	)`

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS redactor_reloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		rule_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		loaded_at DATETIME NOT NULL
	)`

// Record stores ev and returns its ID
func (s *Store) Record(ctx context.Context, ev reload.Event) (int64, error) {
	query := s.db.Rebind(`
		INSERT INTO redactor_reloads (source, trigger_name, checksum, rule_count, status, error, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		ev.Source,
		ev.Trigger,
		ev.Checksum,
		ev.Rules,
		string(ev.Status),
		ev.Error,
		ev.At.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record reload: %w", err)
	}

	s.logger.Debug("Reload recorded", zap.Int64("id", id), zap.String("status", string(ev.Status)))
	return id, nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}

	query := s.db.Rebind(`
		SELECT id, source, trigger_name, checksum, rule_count, status, error, loaded_at
		FROM redactor_reloads
		ORDER BY id DESC
		LIMIT ?`)

	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query reload history: %w", err)
	}
	return records, nil
}

// Listener records every reload event. Failures to record are logged;
// they never affect the reload itself.
func (s *Store) Listener() reload.Listener {
	return func(ctx context.Context, ev reload.Event) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.Record(ctx, ev); err != nil {
			s.logger.Warn("Failed to record reload", zap.Error(err))
		}
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// parseDatabaseURL maps a database URL to a driver name and DSN
func parseDatabaseURL(raw string) (string, string, error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return driverPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite database URL has no path")
		}
		return driverSQLite, path, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL %q: expected postgres:// or sqlite://", maskDatabaseURL(raw))
	}
}

// maskDatabaseURL hides the password in a database URL for logging.
// Unparseable URLs are replaced entirely.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid-database-url>"
	}
	return u.Redacted()
}
