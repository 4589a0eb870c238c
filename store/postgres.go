package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cloudx-io/opentender/core"
	"github.com/cloudx-io/opentender/tenderapi"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database, verifies connectivity, and runs
// migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	// position is consumed from the sequence even when the upsert hits the
	// conflict branch; gaps are harmless, order is what matters.
	schema := `
	CREATE TABLE IF NOT EXISTS sealed_bids (
		bidder TEXT PRIMARY KEY,
		sealed_price TEXT NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		position BIGSERIAL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		bidder TEXT,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_events_kind ON ledger_events(kind);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) SaveBid(bid core.Bid) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO sealed_bids (bidder, sealed_price, submitted_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (bidder) DO UPDATE SET
		sealed_price = EXCLUDED.sealed_price,
		submitted_at = EXCLUDED.submitted_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(bid.Bidder),
		string(bid.SealedPrice),
		bid.SubmittedAt,
	)
	return err
}

func (s *PostgresStore) LoadBids() ([]core.Bid, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT bidder, sealed_price, submitted_at
		FROM sealed_bids
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []core.Bid
	for rows.Next() {
		var (
			bidder      string
			sealedPrice string
			submittedAt time.Time
		)
		if err := rows.Scan(&bidder, &sealedPrice, &submittedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		bids = append(bids, core.Bid{
			SealedPrice: core.Handle(sealedPrice),
			Bidder:      core.Principal(bidder),
			SubmittedAt: submittedAt,
			Exists:      true,
		})
	}

	return bids, rows.Err()
}

func (s *PostgresStore) AppendEvent(event tenderapi.LedgerEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (kind, bidder, occurred_at)
		VALUES ($1, $2, $3)
	`, event.Kind, event.Bidder, event.Timestamp)
	return err
}

func (s *PostgresStore) RecentEvents(limit int) ([]tenderapi.LedgerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, bidder, occurred_at
		FROM ledger_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []tenderapi.LedgerEvent
	for rows.Next() {
		var event tenderapi.LedgerEvent
		if err := rows.Scan(&event.Kind, &event.Bidder, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want chronological.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
