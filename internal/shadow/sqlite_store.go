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

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SqliteConfig tunes the embedded sqlite connection pool.
type SqliteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSqliteConfig mirrors the pool sizing used for the embedded/default
// deployment profile: one writer, WAL readers fan out behind it.
func DefaultSqliteConfig() SqliteConfig {
	return SqliteConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// SqliteStore is the sqlite-backed Store, used for the embedded/default
// deployment profile and in tests.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqliteStore opens dbPath in WAL mode, runs pending migrations, and
// returns a ready Store.
func OpenSqliteStore(dbPath string, cfg SqliteConfig) (*SqliteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("shadow: sqlite open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("shadow: sqlite ping: %w", err)
	}

	s := &SqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var userVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&userVersion); err != nil {
		return fmt.Errorf("shadow: read user_version: %w", err)
	}
	if userVersion >= 1 {
		return nil
	}

	src, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return fmt.Errorf("shadow: read migration: %w", err)
	}
	if _, err := s.db.Exec(string(src)); err != nil {
		return fmt.Errorf("shadow: apply migration 0001: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 1"); err != nil {
		return fmt.Errorf("shadow: set user_version: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error { return s.db.Close() }

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func timeToMS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (s *SqliteStore) CreateHold(ctx context.Context, h *Hold) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	seatsJSON, err := json.Marshal(h.Seats)
	if err != nil {
		return fmt.Errorf("shadow: marshal seats: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO holds (hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.HoldID, h.TenantID, h.Performance, string(seatsJSON), h.Owner, h.Version,
		timeToMS(h.ExpiresAt), string(h.State), timeToMS(h.CreatedAt), timeToMS(h.UpdatedAt))
	if err != nil {
		return fmt.Errorf("shadow: insert hold: %w", err)
	}

	for _, ev := range h.Events {
		if err := insertHoldEvent(ctx, tx, h.HoldID, ev); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertHoldEvent(ctx context.Context, tx *sql.Tx, holdID string, ev HoldEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hold_events (hold_id, sequence, type, at, note)
		VALUES (?, ?, ?, ?, ?)`,
		holdID, ev.Sequence, ev.Type, timeToMS(ev.At), ev.Note)
	if err != nil {
		return fmt.Errorf("shadow: insert hold event: %w", err)
	}
	return nil
}

func scanHold(row interface {
	Scan(dest ...any) error
}) (*Hold, error) {
	var h Hold
	var seatsJSON, state string
	var expiresAt, createdAt, updatedAt int64
	if err := row.Scan(&h.HoldID, &h.TenantID, &h.Performance, &seatsJSON, &h.Owner,
		&h.Version, &expiresAt, &state, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(seatsJSON), &h.Seats); err != nil {
		return nil, fmt.Errorf("shadow: unmarshal seats: %w", err)
	}
	h.State = HoldState(state)
	h.ExpiresAt = msToTime(expiresAt)
	h.CreatedAt = msToTime(createdAt)
	h.UpdatedAt = msToTime(updatedAt)
	return &h, nil
}

func (s *SqliteStore) loadHoldEvents(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, holdID string) ([]HoldEvent, error) {
	rows, err := q.QueryContext(ctx, `SELECT sequence, type, at, note FROM hold_events WHERE hold_id = ? ORDER BY sequence ASC`, holdID)
	if err != nil {
		return nil, fmt.Errorf("shadow: query hold events: %w", err)
	}
	defer rows.Close()

	var events []HoldEvent
	for rows.Next() {
		var ev HoldEvent
		var at int64
		if err := rows.Scan(&ev.Sequence, &ev.Type, &at, &ev.Note); err != nil {
			return nil, fmt.Errorf("shadow: scan hold event: %w", err)
		}
		ev.At = msToTime(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SqliteStore) GetHold(ctx context.Context, tenant, holdID string) (*Hold, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
		FROM holds WHERE hold_id = ? AND tenant_id = ?`, holdID, tenant)
	h, err := scanHold(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Resource: "hold", ID: holdID}
	}
	if err != nil {
		return nil, fmt.Errorf("shadow: scan hold: %w", err)
	}
	events, err := s.loadHoldEvents(ctx, s.db, holdID)
	if err != nil {
		return nil, err
	}
	h.Events = events
	return h, nil
}

// AppendHoldEvent transitions a hold's state and expiry and appends its
// audit event in a single transaction: state, expires_at and updated_at are
// updated and the event row inserted together, so a reader never observes a
// state change without its corresponding event.
func (s *SqliteStore) AppendHoldEvent(ctx context.Context, tenant, holdID string, newState HoldState, newExpiresAt time.Time, event HoldEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
		FROM holds WHERE hold_id = ? AND tenant_id = ?`, holdID, tenant)
	h, err := scanHold(row)
	if err == sql.ErrNoRows {
		return &ErrNotFound{Resource: "hold", ID: holdID}
	}
	if err != nil {
		return fmt.Errorf("shadow: scan hold for update: %w", err)
	}

	expiresAt := h.ExpiresAt
	if !newExpiresAt.IsZero() {
		expiresAt = newExpiresAt
	}

	var nextSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM hold_events WHERE hold_id = ?`, holdID).Scan(&nextSeq); err != nil {
		return fmt.Errorf("shadow: compute next sequence: %w", err)
	}
	event.Sequence = nextSeq

	_, err = tx.ExecContext(ctx, `
		UPDATE holds SET state = ?, expires_at = ?, updated_at = ?
		WHERE hold_id = ? AND tenant_id = ?`,
		string(newState), timeToMS(expiresAt), timeToMS(event.At), holdID, tenant)
	if err != nil {
		return fmt.Errorf("shadow: update hold: %w", err)
	}

	if err := insertHoldEvent(ctx, tx, holdID, event); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SqliteStore) CheckConflicts(ctx context.Context, tenant, performance string, seats []string) ([]string, []string, error) {
	var blocked, sold []string
	for _, seat := range seats {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE tenant_id = ? AND performance = ? AND seat = ?`, tenant, performance, seat).Scan(&one)
		if err == nil {
			blocked = append(blocked, seat)
		} else if err != sql.ErrNoRows {
			return nil, nil, fmt.Errorf("shadow: check block: %w", err)
		}

		err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sold WHERE tenant_id = ? AND performance = ? AND seat = ?`, tenant, performance, seat).Scan(&one)
		if err == nil {
			sold = append(sold, seat)
		} else if err != sql.ErrNoRows {
			return nil, nil, fmt.Errorf("shadow: check sold: %w", err)
		}
	}
	return blocked, sold, nil
}

func (s *SqliteStore) Block(ctx context.Context, tenant, performance, seat, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (tenant_id, performance, seat, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, performance, seat) DO UPDATE SET reason = excluded.reason`,
		tenant, performance, seat, reason, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("shadow: insert block: %w", err)
	}
	return nil
}

func (s *SqliteStore) Unblock(ctx context.Context, tenant, performance, seat string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE tenant_id = ? AND performance = ? AND seat = ?`, tenant, performance, seat)
	if err != nil {
		return fmt.Errorf("shadow: delete block: %w", err)
	}
	return nil
}

func (s *SqliteStore) InsertSold(ctx context.Context, tenant, performance string, seats []string, orderID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, seat := range seats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sold (tenant_id, performance, seat, order_id, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			tenant, performance, seat, orderID, now)
		if err != nil {
			return fmt.Errorf("shadow: insert sold: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) NextVersion(ctx context.Context, tenant, performance string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	var v int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM version_counters WHERE tenant_id = ? AND performance = ?`, tenant, performance).Scan(&v)
	if err == sql.ErrNoRows {
		v = 0
		if _, err := tx.ExecContext(ctx, `INSERT INTO version_counters (tenant_id, performance, version) VALUES (?, ?, 0)`, tenant, performance); err != nil {
			return 0, fmt.Errorf("shadow: seed version counter: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("shadow: read version counter: %w", err)
	}

	v++
	if _, err := tx.ExecContext(ctx, `UPDATE version_counters SET version = ? WHERE tenant_id = ? AND performance = ?`, v, tenant, performance); err != nil {
		return 0, fmt.Errorf("shadow: bump version counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("shadow: commit version bump: %w", err)
	}
	return v, nil
}

func (s *SqliteStore) PutIdempotency(ctx context.Context, tenant, idemKey, resultJSON string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency (tenant_id, idem_key, result_json, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, idem_key) DO UPDATE SET result_json = excluded.result_json, expires_at = excluded.expires_at`,
		tenant, idemKey, resultJSON, time.Now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("shadow: put idempotency: %w", err)
	}
	return nil
}

func (s *SqliteStore) GetIdempotency(ctx context.Context, tenant, idemKey string) (string, bool, error) {
	var resultJSON string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT result_json, expires_at FROM idempotency WHERE tenant_id = ? AND idem_key = ?`, tenant, idemKey).Scan(&resultJSON, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("shadow: get idempotency: %w", err)
	}
	if time.Now().UnixMilli() > expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE tenant_id = ? AND idem_key = ?`, tenant, idemKey)
		return "", false, nil
	}
	return resultJSON, true, nil
}

// ListSweepable is called by the Expiry Reaper. An empty tenant sweeps
// across all tenants, since sqlite has no RLS to bypass.
func (s *SqliteStore) ListSweepable(ctx context.Context, tenant string, cutoff time.Time) ([]*Hold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
		FROM holds
		WHERE (? = '' OR tenant_id = ?) AND state IN ('ACTIVE', 'EXTENDED') AND expires_at < ?`,
		tenant, tenant, timeToMS(cutoff))
	if err != nil {
		return nil, fmt.Errorf("shadow: query sweepable: %w", err)
	}
	defer rows.Close()

	var out []*Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("shadow: scan sweepable: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Snapshot(ctx context.Context, tenant, performance string) ([]*Hold, []*Block, []*Sold, error) {
	holdRows, err := s.db.QueryContext(ctx, `
		SELECT hold_id, tenant_id, performance, seats, owner, version, expires_at, state, created_at, updated_at
		FROM holds
		WHERE tenant_id = ? AND performance = ? AND state NOT IN ('RELEASED', 'EXPIRED', 'CONVERTED')`,
		tenant, performance)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shadow: query snapshot holds: %w", err)
	}
	defer holdRows.Close()

	var holds []*Hold
	for holdRows.Next() {
		h, err := scanHold(holdRows)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("shadow: scan snapshot hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := holdRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	blockRows, err := s.db.QueryContext(ctx, `SELECT tenant_id, performance, seat, reason, created_at FROM blocks WHERE tenant_id = ? AND performance = ?`, tenant, performance)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shadow: query snapshot blocks: %w", err)
	}
	defer blockRows.Close()

	var blocks []*Block
	for blockRows.Next() {
		var b Block
		var createdAt int64
		if err := blockRows.Scan(&b.TenantID, &b.Performance, &b.Seat, &b.Reason, &createdAt); err != nil {
			return nil, nil, nil, fmt.Errorf("shadow: scan block: %w", err)
		}
		b.CreatedAt = msToTime(createdAt)
		blocks = append(blocks, &b)
	}
	if err := blockRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	soldRows, err := s.db.QueryContext(ctx, `SELECT tenant_id, performance, seat, order_id, created_at FROM sold WHERE tenant_id = ? AND performance = ?`, tenant, performance)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shadow: query snapshot sold: %w", err)
	}
	defer soldRows.Close()

	var sold []*Sold
	for soldRows.Next() {
		var sd Sold
		var createdAt int64
		if err := soldRows.Scan(&sd.TenantID, &sd.Performance, &sd.Seat, &sd.OrderID, &createdAt); err != nil {
			return nil, nil, nil, fmt.Errorf("shadow: scan sold: %w", err)
		}
		sd.CreatedAt = msToTime(createdAt)
		sold = append(sold, &sd)
	}
	return holds, blocks, sold, soldRows.Err()
}

type sqliteLease struct {
	key   string
	owner string
	exp   time.Time
}

func (l *sqliteLease) Key() string          { return l.key }
func (l *sqliteLease) Owner() string        { return l.owner }
func (l *sqliteLease) ExpiresAt() time.Time { return l.exp }

func (s *SqliteStore) TryAcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("shadow: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	deadline := now.Add(ttl)

	var curOwner string
	var curExpiresAt int64
	err = tx.QueryRowContext(ctx, `SELECT owner, expires_at FROM leases WHERE key = ?`, key).Scan(&curOwner, &curExpiresAt)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO leases (key, owner, expires_at) VALUES (?, ?, ?)`, key, owner, timeToMS(deadline)); err != nil {
			return nil, false, fmt.Errorf("shadow: insert lease: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("shadow: read lease: %w", err)
	default:
		expired := now.UnixMilli() > curExpiresAt
		if !expired && curOwner != owner {
			return nil, false, nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE leases SET owner = ?, expires_at = ? WHERE key = ?`, owner, timeToMS(deadline), key); err != nil {
			return nil, false, fmt.Errorf("shadow: update lease: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("shadow: commit lease: %w", err)
	}
	return &sqliteLease{key: key, owner: owner, exp: deadline}, true, nil
}

func (s *SqliteStore) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (Lease, bool, error) {
	var curOwner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM leases WHERE key = ?`, key).Scan(&curOwner)
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

func (s *SqliteStore) GetLease(ctx context.Context, key string) (Lease, bool, error) {
	var owner string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT owner, expires_at FROM leases WHERE key = ?`, key).Scan(&owner, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("shadow: get lease: %w", err)
	}
	if time.Now().UnixMilli() > expiresAt {
		return nil, false, nil
	}
	return &sqliteLease{key: key, owner: owner, exp: msToTime(expiresAt)}, true, nil
}

func (s *SqliteStore) ReleaseLease(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND owner = ?`, key, owner)
	if err != nil {
		return fmt.Errorf("shadow: release lease: %w", err)
	}
	return nil
}

func (s *SqliteStore) DeleteAllLeases(ctx context.Context) (int, error) {
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
