package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver, registered as "pgx"
	_ "modernc.org/sqlite"             // sqlite driver, registered as "sqlite"
)

// Dialect names the SQL flavor behind a DB handle.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
}

// DB wraps database/sql with the dialect so repositories can rebind
// placeholders for postgres.
type DB struct {
	*sql.DB
	dialect Dialect
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Rebind converts `?` placeholders to `$n` for postgres. Queries in this
// package are written with `?` (the sqlite/default form).
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to the database named by the DSN. postgres:// DSNs go
// through the pgx stdlib driver; everything else is treated as a sqlite DSN.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, dialect := "sqlite", DialectSQLite
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		driver, dialect = "pgx", DialectPostgres
	}

	logger.Info("connecting to database", "driver", driver)
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "driver", driver, "error", err)
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == DialectSQLite && strings.Contains(cfg.DSN, ":memory:") {
		// a pooled second connection would see a different in-memory database
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("successfully connected to database")
	return &DB{DB: db, dialect: dialect}, nil
}

// schema is shared between sqlite and postgres; types are picked from the
// common subset both understand.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id               TEXT PRIMARY KEY,
		status           TEXT NOT NULL,
		source_pdf_path  TEXT NOT NULL,
		source_filename  TEXT NOT NULL,
		temp_dir_path    TEXT,
		start_page       INTEGER,
		end_page         INTEGER,
		company_name     TEXT,
		publication_year TEXT,
		error_message    TEXT,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		job_id           TEXT NOT NULL,
		page_index       INTEGER NOT NULL,
		image_path       TEXT NOT NULL,
		extracted_json   TEXT,
		confidence_score REAL,
		created_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (job_id, page_index)
	)`,
	`CREATE TABLE IF NOT EXISTS taxonomy_match_cache (
		normalized_label TEXT NOT NULL,
		template_hash    TEXT NOT NULL,
		matched_header   TEXT NOT NULL,
		source           TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (normalized_label, template_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at)`,
}

// InitSchema creates the tables if they do not exist yet.
func InitSchema(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("schema init failed", "error", err)
			return fmt.Errorf("init schema: %w", err)
		}
	}
	logger.Debug("schema initialized")
	return nil
}

// HealthCheck pings the database; used at startup (fatal) and by /healthz.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

// Close closes the database connection gracefully.
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil && logger != nil {
		logger.Error("failed to close database", "error", err)
	}
}
