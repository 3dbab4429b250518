package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when a duplicate attempt was accepted or
	// declined by a concurrent reviewer action.
	ErrAlreadyResolved = errors.New("duplicate attempt already resolved")
	// ErrSlugTaken is returned when a campaign slug is already in use.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrOrderLimitReached is returned when a campaign already holds as many
	// claims as its order limit allows. Nothing is written.
	ErrOrderLimitReached = errors.New("campaign order limit reached")
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn   *sql.DB
	driver string
}

// NewDB opens a connection for the given driver and initializes the schema.
// For sqlite3 the dsn is a file path.
func NewDB(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		dsn += "?_foreign_keys=1&_busy_timeout=5000"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer.
		conn.SetMaxOpenConns(1)
	}

	db := New(conn, driver)

	if err := db.initSchema(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// New wraps an already opened connection without touching the schema.
func New(conn *sql.DB, driver string) *DB {
	return &DB{conn: conn, driver: driver}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			merchant_id TEXT NOT NULL DEFAULT '',
			shop TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			welcome_message TEXT NOT NULL DEFAULT '',
			brand_color TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			claims_count INTEGER NOT NULL DEFAULT 0,
			config TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS campaign_products (
			campaign_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL DEFAULT '',
			variant_legacy_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			price TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			available_for_sale INTEGER,
			inventory_quantity INTEGER,
			position INTEGER NOT NULL,
			PRIMARY KEY (campaign_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			campaign_name TEXT NOT NULL DEFAULT '',
			influencer_name TEXT NOT NULL DEFAULT '',
			influencer_email TEXT NOT NULL DEFAULT '',
			influencer_phone TEXT NOT NULL DEFAULT '',
			influencer_handle TEXT NOT NULL DEFAULT '',
			influencer_instagram TEXT NOT NULL DEFAULT '',
			influencer_tiktok TEXT NOT NULL DEFAULT '',
			items TEXT NOT NULL,
			shipping_address TEXT NOT NULL,
			status TEXT NOT NULL,
			shopify_order_id TEXT NOT NULL DEFAULT '',
			shopify_order_number TEXT NOT NULL DEFAULT '',
			terms_consent INTEGER NOT NULL DEFAULT 0,
			marketing_opt_in INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS duplicate_attempts (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			campaign_name TEXT NOT NULL DEFAULT '',
			influencer_info TEXT NOT NULL,
			reason TEXT NOT NULL,
			decision TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS merchants (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL UNIQUE,
			active_plan TEXT NOT NULL DEFAULT 'FREE',
			total_claims_count INTEGER NOT NULL DEFAULT 0,
			access_token TEXT NOT NULL DEFAULT '',
			plan_started_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_campaign ON orders(campaign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_campaign_email ON orders(campaign_id, influencer_email)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_campaign_handle ON orders(campaign_id, influencer_handle)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_duplicate_attempts_campaign ON duplicate_attempts(campaign_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders into the driver's positional form.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
