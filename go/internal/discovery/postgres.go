package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/dbconfig"
)

// PostgresRegistry keeps session addresses in a shared Postgres table so
// slaves on other networks can resolve a master.
type PostgresRegistry struct {
	db    *sql.DB
	table string
	clock clockwork.Clock
}

// NewPostgresRegistry opens the database and ensures the table exists.
func NewPostgresRegistry(ctx context.Context, cfg dbconfig.Config) (*PostgresRegistry, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r, err := newPostgresRegistry(ctx, db, cfg.Table, clockwork.NewRealClock())
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("database", cfg.Database).
		Str("table", cfg.Table).
		Msg("postgres discovery registry ready")
	return r, nil
}

func newPostgresRegistry(ctx context.Context, db *sql.DB, table string, clock clockwork.Clock) (*PostgresRegistry, error) {
	r := &PostgresRegistry{
		db:    db,
		table: pq.QuoteIdentifier(table),
		clock: clock,
	}
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRegistry) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_id TEXT PRIMARY KEY,
		address    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, r.table)
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create discovery table: %w", err)
	}
	return nil
}

// Register upserts the address for sessionID.
func (r *PostgresRegistry) Register(ctx context.Context, sessionID, address string) (Registration, error) {
	id := canonical(sessionID)
	query := fmt.Sprintf(`INSERT INTO %s (session_id, address, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET address = EXCLUDED.address, updated_at = EXCLUDED.updated_at`, r.table)
	if _, err := r.db.ExecContext(ctx, query, id, address, r.clock.Now().UTC()); err != nil {
		return nil, fmt.Errorf("register session %s: %w", id, err)
	}

	log.Info().
		Str("session_id", id).
		Str("address", address).
		Msg("session advertised in postgres")
	return postgresRegistration{registry: r, id: id, address: address}, nil
}

// Resolve looks up the address registered for sessionID.
func (r *PostgresRegistry) Resolve(ctx context.Context, sessionID string) (string, error) {
	id := canonical(sessionID)
	query := fmt.Sprintf(`SELECT address FROM %s WHERE session_id = $1`, r.table)

	var address string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("resolve session %s: %w", id, err)
	}
	return address, nil
}

// Close closes the database handle.
func (r *PostgresRegistry) Close() error {
	return r.db.Close()
}

type postgresRegistration struct {
	registry *PostgresRegistry
	id       string
	address  string
}

// Withdraw deletes the row if it still points at this registration's address.
func (p postgresRegistration) Withdraw(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1 AND address = $2`, p.registry.table)
	if _, err := p.registry.db.ExecContext(ctx, query, p.id, p.address); err != nil {
		return fmt.Errorf("withdraw session %s: %w", p.id, err)
	}
	return nil
}
