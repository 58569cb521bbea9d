// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package shadow

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed migrations_postgres/*.sql
var postgresMigrationFS embed.FS

// PostgresConfig tunes the production multi-tenant connection pool.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPostgresConfig mirrors a conservative production pool sizing.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgresStore is the production multi-tenant Store backend. Every
// transaction binds app.tenant_id via SET LOCAL so the database's own
// row-level security policies enforce tenant isolation independent of the
// application's WHERE predicates — a second line of defense, not a
// replacement for them.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects to dsn, applies migrations, and returns a ready
// Store. Callers are responsible for ensuring the target database's RLS
// policies already reference app.tenant_id (applied via the embedded
// migrations on first run).
func OpenPostgresStore(ctx context.Context, dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("shadow: postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("shadow: postgres ping: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migration_history (version INT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("shadow: create migration_history: %w", err)
	}

	var applied int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migration_history WHERE version = 1`).Scan(&applied); err != nil {
		return fmt.Errorf("shadow: check migration 1: %w", err)
	}
	if applied > 0 {
		return nil
	}

	src, err := postgresMigrationFS.ReadFile("migrations_postgres/0001_init.sql")
	if err != nil {
		return fmt.Errorf("shadow: read postgres migration: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: begin migration tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, string(src)); err != nil {
		return fmt.Errorf("shadow: apply postgres migration 0001: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migration_history (version) VALUES (1)`); err != nil {
		return fmt.Errorf("shadow: record migration 0001: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// withTenantTx opens a transaction and sets app.tenant_id for its duration,
// so every statement inside fn runs under the tenant's RLS policies.
func (s *PostgresStore) withTenantTx(ctx context.Context, tenant string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenant); err != nil {
		return fmt.Errorf("shadow: set tenant context: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) CreateHold(ctx context.Context, h *Hold) error {
	seatsJSON, err := json.Marshal(h.Seats)
	if err != nil {
		return fmt.Errorf("shadow: marshal seats: %w", err)
	}

	return s.withTenantTx(ctx, h.TenantID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holds (hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			h.HoldID, h.TenantID, h.Performance, string(seatsJSON), h.Owner, h.Version,
			h.ExpiresAt, string(h.State), h.CreatedAt, h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("shadow: insert hold: %w", err)
		}
		for _, ev := range h.Events {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO hold_events (hold_id, sequence, type, at, note)
				VALUES ($1, $2, $3, $4, $5)`,
				h.HoldID, ev.Sequence, ev.Type, ev.At, ev.Note); err != nil {
				return fmt.Errorf("shadow: insert hold event: %w", err)
			}
		}
		return nil
	})
}

func scanPostgresHold(row interface {
	Scan(dest ...any) error
}) (*Hold, error) {
	var h Hold
	var seatsJSON, state string
	if err := row.Scan(&h.HoldID, &h.TenantID, &h.Performance, &seatsJSON, &h.Owner,
		&h.Version, &h.ExpiresAt, &state, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seatsJSON), &h.Seats); err != nil {
		return nil, fmt.Errorf("shadow: unmarshal seats: %w", err)
	}
	h.State = HoldState(state)
	return &h, nil
}

func (s *PostgresStore) GetHold(ctx context.Context, tenant, holdID string) (*Hold, error) {
	var h *Hold
	err := s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
			FROM holds WHERE hold_id = $1 AND tenant_id = $2`, holdID, tenant)
		var err error
		h, err = scanPostgresHold(row)
		if err == sql.ErrNoRows {
			return &ErrNotFound{Resource: "hold", ID: holdID}
		}
		if err != nil {
			return fmt.Errorf("shadow: scan hold: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT sequence, type, at, note FROM hold_events WHERE hold_id = $1 ORDER BY sequence ASC`, holdID)
		if err != nil {
			return fmt.Errorf("shadow: query hold events: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var ev HoldEvent
			if err := rows.Scan(&ev.Sequence, &ev.Type, &ev.At, &ev.Note); err != nil {
				return fmt.Errorf("shadow: scan hold event: %w", err)
			}
			h.Events = append(h.Events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// AppendHoldEvent transitions state/expiry and appends the audit event in
// one tenant-scoped transaction, mirroring the sqlite backend: state,
// expires_at and updated_at are updated and the event row inserted together.
func (s *PostgresStore) AppendHoldEvent(ctx context.Context, tenant, holdID string, newState HoldState, newExpiresAt time.Time, event HoldEvent) error {
	return s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		var currentExpiresAt time.Time
		err := tx.QueryRowContext(ctx, `SELECT expires_at FROM holds WHERE hold_id = $1 AND tenant_id = $2`, holdID, tenant).Scan(&currentExpiresAt)
		if err == sql.ErrNoRows {
			return &ErrNotFound{Resource: "hold", ID: holdID}
		}
		if err != nil {
			return fmt.Errorf("shadow: read hold for update: %w", err)
		}

		expiresAt := currentExpiresAt
		if !newExpiresAt.IsZero() {
			expiresAt = newExpiresAt
		}

		var nextSeq int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM hold_events WHERE hold_id = $1`, holdID).Scan(&nextSeq); err != nil {
			return fmt.Errorf("shadow: compute next sequence: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE holds SET state = $1, expires_at = $2, updated_at = $3
			WHERE hold_id = $4 AND tenant_id = $5`,
			string(newState), expiresAt, event.At, holdID, tenant); err != nil {
			return fmt.Errorf("shadow: update hold: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hold_events (hold_id, sequence, type, at, note)
			VALUES ($1, $2, $3, $4, $5)`,
			holdID, nextSeq, event.Type, event.At, event.Note); err != nil {
			return fmt.Errorf("shadow: insert hold event: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CheckConflicts(ctx context.Context, tenant, performance string, seats []string) ([]string, []string, error) {
	var blocked, sold []string
	err := s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		for _, seat := range seats {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE tenant_id = $1 AND performance = $2 AND seat = $3`, tenant, performance, seat).Scan(&one)
			if err == nil {
				blocked = append(blocked, seat)
			} else if err != sql.ErrNoRows {
				return fmt.Errorf("shadow: check block: %w", err)
			}
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM sold WHERE tenant_id = $1 AND performance = $2 AND seat = $3`, tenant, performance, seat).Scan(&one)
			if err == nil {
				sold = append(sold, seat)
			} else if err != sql.ErrNoRows {
				return fmt.Errorf("shadow: check sold: %w", err)
			}
		}
		return nil
	})
	return blocked, sold, err
}

func (s *PostgresStore) Block(ctx context.Context, tenant, performance, seat, reason string) error {
	return s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (tenant_id, performance, seat, reason, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (tenant_id, performance, seat) DO UPDATE SET reason = excluded.reason`,
			tenant, performance, seat, reason)
		if err != nil {
			return fmt.Errorf("shadow: insert block: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Unblock(ctx context.Context, tenant, performance, seat string) error {
	return s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE tenant_id = $1 AND performance = $2 AND seat = $3`, tenant, performance, seat)
		if err != nil {
			return fmt.Errorf("shadow: delete block: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) InsertSold(ctx context.Context, tenant, performance string, seats []string, orderID string) error {
	return s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		for _, seat := range seats {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sold (tenant_id, performance, seat, order_id, created_at)
				VALUES ($1, $2, $3, $4, now())`,
				tenant, performance, seat, orderID)
			if err != nil {
				return fmt.Errorf("shadow: insert sold: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) NextVersion(ctx context.Context, tenant, performance string) (int64, error) {
	var v int64
	err := s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO version_counters (tenant_id, performance, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (tenant_id, performance) DO UPDATE SET version = version_counters.version + 1
			RETURNING version`, tenant, performance).Scan(&v)
	})
	if err != nil {
		return 0, fmt.Errorf("shadow: next version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) PutIdempotency(ctx context.Context, tenant, idemKey, resultJSON string, ttl time.Duration) error {
	return s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO idempotency (tenant_id, idem_key, result_json, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, idem_key) DO UPDATE SET result_json = excluded.result_json, expires_at = excluded.expires_at`,
			tenant, idemKey, resultJSON, time.Now().Add(ttl))
		if err != nil {
			return fmt.Errorf("shadow: put idempotency: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetIdempotency(ctx context.Context, tenant, idemKey string) (string, bool, error) {
	var resultJSON string
	var found bool
	err := s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		var expiresAt time.Time
		err := tx.QueryRowContext(ctx, `SELECT result_json, expires_at FROM idempotency WHERE tenant_id = $1 AND idem_key = $2`, tenant, idemKey).Scan(&resultJSON, &expiresAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("shadow: get idempotency: %w", err)
		}
		if time.Now().After(expiresAt) {
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return resultJSON, found, nil
}

// ListSweepable is called by the Expiry Reaper, a background job that must
// see every tenant's sweepable holds, not just one. An empty tenant sweeps
// across all tenants; this path intentionally runs outside withTenantTx
// (no SET LOCAL app.tenant_id) and therefore requires the reaper's database
// role to carry BYPASSRLS — the reaper is a privileged maintenance process,
// not a per-request tenant actor.
func (s *PostgresStore) ListSweepable(ctx context.Context, tenant string, cutoff time.Time) ([]*Hold, error) {
	query := `
		SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
		FROM holds
		WHERE state IN ('ACTIVE', 'EXTENDED') AND expires_at < $1 AND ($2 = '' OR tenant_id = $2)`

	rows, err := s.db.QueryContext(ctx, query, cutoff, tenant)
	if err != nil {
		return nil, fmt.Errorf("shadow: query sweepable: %w", err)
	}
	defer rows.Close()

	var out []*Hold
	for rows.Next() {
		h, err := scanPostgresHold(rows)
		if err != nil {
			return nil, fmt.Errorf("shadow: scan sweepable: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Snapshot(ctx context.Context, tenant, performance string) ([]*Hold, []*Block, []*Sold, error) {
	var holds []*Hold
	var blocks []*Block
	var sold []*Sold

	err := s.withTenantTx(ctx, tenant, func(tx *sql.Tx) error {
		holdRows, err := tx.QueryContext(ctx, `
			SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
			FROM holds
			WHERE tenant_id = $1 AND performance = $2 AND state NOT IN ('RELEASED', 'EXPIRED', 'CONVERTED')`, tenant, performance)
		if err != nil {
			return fmt.Errorf("shadow: query snapshot holds: %w", err)
		}
		defer holdRows.Close()
		for holdRows.Next() {
			h, err := scanPostgresHold(holdRows)
			if err != nil {
				return fmt.Errorf("shadow: scan snapshot hold: %w", err)
			}
			holds = append(holds, h)
		}
		if err := holdRows.Err(); err != nil {
			return err
		}

		blockRows, err := tx.QueryContext(ctx, `SELECT tenant_id, performance, seat, reason, created_at FROM blocks WHERE tenant_id = $1 AND performance = $2`, tenant, performance)
		if err != nil {
			return fmt.Errorf("shadow: query snapshot blocks: %w", err)
		}
		defer blockRows.Close()
		for blockRows.Next() {
			var b Block
			if err := blockRows.Scan(&b.TenantID, &b.Performance, &b.Seat, &b.Reason, &b.CreatedAt); err != nil {
				return fmt.Errorf("shadow: scan block: %w", err)
			}
			blocks = append(blocks, &b)
		}
		if err := blockRows.Err(); err != nil {
			return err
		}

		soldRows, err := tx.QueryContext(ctx, `SELECT tenant_id, performance, seat, order_id, created_at FROM sold WHERE tenant_id = $1 AND performance = $2`, tenant, performance)
		if err != nil {
			return fmt.Errorf("shadow: query snapshot sold: %w", err)
		}
		defer soldRows.Close()
		for soldRows.Next() {
			var sd Sold
			if err := soldRows.Scan(&sd.TenantID, &sd.Performance, &sd.Seat, &sd.OrderID, &sd.CreatedAt); err != nil {
				return fmt.Errorf("shadow: scan sold: %w", err)
			}
			sold = append(sold, &sd)
		}
		return soldRows.Err()
	})
	return holds, blocks, sold, err
}

type postgresLease struct {
	key   string
	owner string
	exp   time.Time
}

func (l *postgresLease) Key() string          { return l.key }
func (l *postgresLease) Owner() string        { return l.owner }
func (l *postgresLease) ExpiresAt() time.Time { return l.exp }

// Leases are cluster-wide, not tenant-scoped, so these bypass withTenantTx.

func (s *PostgresStore) TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	deadline := time.Now().Add(ttl)
	var curOwner string
	var curExpiresAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT owner, expires_at FROM leases WHERE key = $1 FOR UPDATE`, key).Scan(&curOwner, &curExpiresAt)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO leases (key, owner, expires_at) VALUES ($1, $2, $3)`, key, owner, deadline); err != nil {
			return nil, false, fmt.Errorf("shadow: insert lease: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("shadow: read lease: %w", err)
	default:
		if time.Now().Before(curExpiresAt) && curOwner != owner {
			return nil, false, nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE leases SET owner = $1, expires_at = $2 WHERE key = $3`, owner, deadline, key); err != nil {
			return nil, false, fmt.Errorf("shadow: update lease: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("shadow: commit lease: %w", err)
	}
	return &postgresLease{key: key, owner: owner, exp: deadline}, true, nil
}

func (s *PostgresStore) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	var curOwner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM leases WHERE key = $1`, key).Scan(&curOwner)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("shadow: read lease for renew: %w", err)
	}
	if curOwner != owner {
		return nil, false, nil
	}
	return s.TryAcquireLease(ctx, key, owner, ttl)
}

func (s *PostgresStore) GetLease(ctx context.Context, key string) (Lease, bool, error) {
	var owner string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT owner, expires_at FROM leases WHERE key = $1`, key).Scan(&owner, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("shadow: get lease: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, false, nil
	}
	return &postgresLease{key: key, owner: owner, exp: expiresAt}, true, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE key = $1 AND owner = $2`, key, owner)
	if err != nil {
		return fmt.Errorf("shadow: release lease: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAllLeases(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leases`)
	if err != nil {
		return 0, fmt.Errorf("shadow: delete all leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("shadow: rows affected: %w", err)
	}
	return int(n), nil
}
