// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hold

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ticketing/seatlock/internal/bus"
	"github.com/ticketing/seatlock/internal/holderr"
	"github.com/ticketing/seatlock/internal/ledger"
	"github.com/ticketing/seatlock/internal/log"
	"github.com/ticketing/seatlock/internal/metrics"
	"github.com/ticketing/seatlock/internal/shadow"
)

// Coordinator is the cooperative request state machine:
// validate -> reserve-version -> ledger-acquire -> shadow-commit -> publish.
// It is re-entrant and holds no per-request state of its own beyond the
// per-owner rate limiters.
type Coordinator struct {
	Ledger ledger.Ledger
	Store  shadow.Store
	Bus    bus.Bus
	Conf   Config

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New returns a ready Coordinator.
func New(ldg ledger.Ledger, store shadow.Store, b bus.Bus, conf Config) *Coordinator {
	return &Coordinator{
		Ledger:   ldg,
		Store:    store,
		Bus:      b,
		Conf:     conf,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Coordinator) limiterFor(tenant, owner string) *rate.Limiter {
	key := tenant + "\x00" + owner
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	lim, ok := c.limiters[key]
	if !ok {
		every := rate.Every(c.Conf.RateLimitPeriod / time.Duration(c.Conf.RateLimitBurst))
		lim = rate.NewLimiter(every, c.Conf.RateLimitBurst)
		c.limiters[key] = lim
	}
	return lim
}

func (c *Coordinator) checkRateLimit(tenant, owner string) error {
	if !c.limiterFor(tenant, owner).Allow() {
		return holderr.New(holderr.KindRateLimited, "OWNER_RATE_LIMITED", "per-owner request budget exceeded")
	}
	return nil
}

func (c *Coordinator) validateOwner(owner string) error {
	if owner == "" {
		return holderr.New(holderr.KindValidation, "OWNER_REQUIRED", "owner is required")
	}
	if len(owner) > c.Conf.OwnerIDMaxLength {
		return holderr.New(holderr.KindValidation, "OWNER_TOO_LONG", "owner exceeds maximum length")
	}
	return nil
}

func seatKeyMap(tenant, performance string, seats []string) map[string]string {
	out := make(map[string]string, len(seats))
	for _, s := range seats {
		out[s] = ledger.Key(tenant, performance, s)
	}
	return out
}

// publishSeatEvents emits one message per seat, bounded to Conf.EmitConcurrency
// concurrent publishes so a slow or degraded bus cannot stall the caller on a
// seat-by-seat basis. Publish failures are logged, never fatal to the
// originating mutation: the Projector's snapshot path remains correct even if
// a subscriber misses an event.
func (c *Coordinator) publishSeatEvents(ctx context.Context, tenant, performance, holdID, owner string, seats []string, kind string, at time.Time, baseSeq int64) {
	topic := bus.Topic(tenant, performance)
	sem := semaphore.NewWeighted(c.Conf.EmitConcurrency)
	g, gctx := errgroup.WithContext(context.Background())

	for i, seat := range seats {
		seat := seat
		seq := baseSeq + int64(i)
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			msg := bus.Message{
				Tenant: tenant, Performance: performance, Seat: seat,
				Kind: kind, Sequence: seq, HoldID: holdID, Owner: owner, At: at,
			}
			if err := c.Bus.Publish(ctx, topic, msg); err != nil {
				log.L().Warn().Err(err).Str("hold_id", holdID).Str("seat", seat).Str("kind", kind).Msg("hold: publish failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// rollbackSeats best-effort-releases every seat key via rollback_if_owner,
// used to undo a ledger acquire when the subsequent shadow-store write
// fails or the caller's context is cancelled before it commits.
func (c *Coordinator) rollbackSeats(tenant, performance, owner, versionStr string, seatKeys map[string]string, reason string) {
	rbCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for seat := range seatKeys {
		if _, err := c.Ledger.RollbackIfOwner(rbCtx, tenant, performance, seat, owner, versionStr); err != nil {
			log.L().Warn().Err(err).Str("seat", seat).Str("reason", reason).Msg("hold: rollback failed")
		}
	}
}

func (c *Coordinator) checkIdempotency(ctx context.Context, tenant, idemKey, reqHash string) (result json.RawMessage, found bool, err error) {
	if idemKey == "" {
		return nil, false, nil
	}
	raw, ok, err := c.Store.GetIdempotency(ctx, tenant, idemKey)
	if err != nil {
		return nil, false, holderr.Wrap(holderr.KindStorageError, "IDEMPOTENCY_LOOKUP_FAILED", err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec idemRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, holderr.Wrap(holderr.KindInternal, "IDEMPOTENCY_RECORD_CORRUPT", err)
	}
	if rec.RequestHash != reqHash {
		return nil, false, holderr.New(holderr.KindIdempotencyMismatch, "IDEMPOTENCY_KEY_REUSED", "idempotency key reused with a different request body")
	}
	return rec.Result, true, nil
}

func (c *Coordinator) recordIdempotency(ctx context.Context, tenant, idemKey, reqHash string, result any) {
	if idemKey == "" {
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		log.L().Warn().Err(err).Msg("hold: marshal idempotency result failed")
		return
	}
	rec := idemRecord{RequestHash: reqHash, Result: resultJSON}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		log.L().Warn().Err(err).Msg("hold: marshal idempotency record failed")
		return
	}
	if err := c.Store.PutIdempotency(ctx, tenant, idemKey, string(recJSON), c.Conf.IdempotencyTTL); err != nil {
		log.L().Warn().Err(err).Msg("hold: persist idempotency record failed")
	}
}

// AcquireRequest is the input to Acquire.
type AcquireRequest struct {
	Tenant      string
	Performance string
	Seats       []string
	Owner       string
	TTL         time.Duration
	IdemKey     string
}

// Acquire atomically locks every requested seat or none, per the all-or-none
// contract. See Coordinator for the five-step pipeline this follows.
func (c *Coordinator) Acquire(ctx context.Context, req AcquireRequest) (*Hold, error) {
	if req.Tenant == "" || req.Performance == "" {
		return nil, holderr.New(holderr.KindValidation, "TENANT_PERFORMANCE_REQUIRED", "tenant and performance are required")
	}
	if err := c.validateOwner(req.Owner); err != nil {
		return nil, err
	}
	if len(req.Seats) == 0 {
		return nil, holderr.New(holderr.KindValidation, "SEATS_REQUIRED", "seats must be non-empty")
	}
	deduped, hadDup := dedupSeats(req.Seats)
	if hadDup {
		return nil, holderr.New(holderr.KindValidation, "DUPLICATE_SEAT_IDS", "duplicate seat ids")
	}
	if len(deduped) > c.Conf.MaxSeatsPerRequest {
		return nil, holderr.New(holderr.KindValidation, "TOO_MANY_SEATS", "seats exceeds the per-request maximum")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = c.Conf.DefaultTTL
	}
	if ttl > c.Conf.MaxTTL {
		return nil, holderr.New(holderr.KindValidation, "TTL_TOO_LARGE", "ttl exceeds the configured maximum")
	}
	if req.IdemKey == "" {
		return nil, holderr.New(holderr.KindValidation, "IDEMPOTENCY_KEY_REQUIRED", "idempotency key is required")
	}
	if err := c.checkRateLimit(req.Tenant, req.Owner); err != nil {
		return nil, err
	}

	hashFields := append([]string{req.Tenant, req.Performance, req.Owner, strconv.FormatInt(ttl.Milliseconds(), 10)}, deduped...)
	reqHash := requestHash("acquire", hashFields...)
	if cached, found, err := c.checkIdempotency(ctx, req.Tenant, req.IdemKey, reqHash); err != nil {
		return nil, err
	} else if found {
		metrics.IdempotencyReplays.WithLabelValues(req.Tenant, "acquire").Inc()
		var h Hold
		if err := json.Unmarshal(cached, &h); err != nil {
			return nil, holderr.Wrap(holderr.KindInternal, "IDEMPOTENCY_RECORD_CORRUPT", err)
		}
		return &h, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	blocked, sold, err := c.Store.CheckConflicts(opCtx, req.Tenant, req.Performance, deduped)
	if err != nil {
		return nil, holderr.Wrap(holderr.KindStorageError, "CHECK_CONFLICTS_FAILED", err)
	}
	if len(blocked) > 0 || len(sold) > 0 {
		conflicts := append(append([]string(nil), blocked...), sold...)
		return nil, holderr.Conflict("SEATS_UNAVAILABLE", conflicts)
	}

	version, err := c.Store.NextVersion(opCtx, req.Tenant, req.Performance)
	if err != nil {
		return nil, holderr.Wrap(holderr.KindStorageError, "VERSION_ALLOCATION_FAILED", err)
	}
	versionStr := strconv.FormatInt(version, 10)
	holdID := uuid.NewString()
	seatKeys := seatKeyMap(req.Tenant, req.Performance, deduped)

	acqRes, err := c.Ledger.AcquireAllOrNone(opCtx, req.Tenant, req.Performance, seatKeys, req.Owner, versionStr, ttl.Milliseconds())
	if err != nil {
		if opCtx.Err() != nil {
			c.rollbackSeats(req.Tenant, req.Performance, req.Owner, versionStr, seatKeys, "acquire timeout")
			return nil, holderr.Wrap(holderr.KindTimeout, "ACQUIRE_TIMEOUT", err)
		}
		return nil, holderr.Wrap(holderr.KindStorageError, "LEDGER_ACQUIRE_FAILED", err)
	}
	if acqRes.Outcome == ledger.OutcomeConflict {
		return nil, holderr.Conflict("SEATS_LOCKED", acqRes.Conflicts)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	h := &shadow.Hold{
		HoldID: holdID, TenantID: req.Tenant, Performance: req.Performance,
		Seats: deduped, Owner: req.Owner, Version: version,
		ExpiresAt: expiresAt, State: shadow.HoldActive,
		CreatedAt: now, UpdatedAt: now,
		Events: []shadow.HoldEvent{{Sequence: 1, Type: "hold.created", At: now}},
	}
	if err := c.Store.CreateHold(opCtx, h); err != nil {
		c.rollbackSeats(req.Tenant, req.Performance, req.Owner, versionStr, seatKeys, "shadow write failed")
		return nil, holderr.Wrap(holderr.KindStorageError, "ACQUIRE_SHADOW_WRITE_FAILED", err)
	}

	c.publishSeatEvents(ctx, req.Tenant, req.Performance, holdID, req.Owner, deduped, "seat.locked", now, 1)

	result := toHold(h)
	c.recordIdempotency(opCtx, req.Tenant, req.IdemKey, reqHash, result)
	return result, nil
}

// ExtendRequest is the input to Extend.
type ExtendRequest struct {
	Tenant     string
	HoldID     string
	Owner      string
	Version    int64
	Additional time.Duration
}

// Extend refreshes every seat's TTL if owner and version match, rejecting
// the whole call before touching the ledger if the resulting life would
// exceed MaxHoldLife.
func (c *Coordinator) Extend(ctx context.Context, req ExtendRequest) (*Hold, error) {
	if err := c.validateOwner(req.Owner); err != nil {
		return nil, err
	}
	if req.Additional <= 0 {
		return nil, holderr.New(holderr.KindValidation, "ADDITIONAL_TTL_REQUIRED", "additional_ms must be positive")
	}

	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	h, err := c.Store.GetHold(opCtx, req.Tenant, req.HoldID)
	if err != nil {
		if _, ok := err.(*shadow.ErrNotFound); ok {
			return nil, holderr.New(holderr.KindNotFound, "HOLD_NOT_FOUND", "hold not found")
		}
		return nil, holderr.Wrap(holderr.KindStorageError, "GET_HOLD_FAILED", err)
	}
	if h.Owner != req.Owner || h.Version != req.Version {
		return nil, holderr.New(holderr.KindStale, "HOLD_VERSION_MISMATCH", "fencing token does not match current hold")
	}
	if h.State.IsTerminal() {
		return nil, holderr.New(holderr.KindNotFound, "HOLD_GONE", "hold is no longer active")
	}

	newExpiresAt := h.ExpiresAt.Add(req.Additional)
	if newExpiresAt.Sub(h.CreatedAt) > c.Conf.MaxHoldLife {
		return nil, holderr.New(holderr.KindStale, "HOLD_MAX_LIFE_EXCEEDED", "extend would exceed the maximum hold lifetime")
	}

	versionStr := strconv.FormatInt(req.Version, 10)
	newTTLMS := time.Until(newExpiresAt).Milliseconds()
	var failed []string
	for _, seat := range h.Seats {
		out, err := c.Ledger.ExtendIfOwner(opCtx, req.Tenant, h.Performance, seat, req.Owner, versionStr, newTTLMS)
		if err != nil {
			if opCtx.Err() != nil {
				return nil, holderr.Wrap(holderr.KindTimeout, "EXTEND_TIMEOUT", err)
			}
			return nil, holderr.Wrap(holderr.KindStorageError, "LEDGER_EXTEND_FAILED", err)
		}
		if out == ledger.OutcomeNOOP {
			failed = append(failed, seat)
		}
	}
	if len(failed) > 0 {
		return nil, holderr.New(holderr.KindStale, "EXTEND_STALE", "one or more seats rejected the fencing token").WithSeats(failed)
	}

	if err := c.Store.AppendHoldEvent(opCtx, req.Tenant, req.HoldID, shadow.HoldExtended, newExpiresAt, shadow.HoldEvent{
		Type: "hold.extended", At: time.Now(),
	}); err != nil {
		return nil, holderr.Wrap(holderr.KindStorageError, "EXTEND_SHADOW_WRITE_FAILED", err)
	}

	h.State = shadow.HoldExtended
	h.ExpiresAt = newExpiresAt
	return toHold(h), nil
}

// ReleaseRequest is the input to Release.
type ReleaseRequest struct {
	Tenant  string
	HoldID  string
	Owner   string
	Version int64
	Reason  string
}

// Release gives up every seat in the hold, emitting seat.released even for
// seats the ledger reports NOOP (already expired or released): the caller
// cannot distinguish those cases.
func (c *Coordinator) Release(ctx context.Context, req ReleaseRequest) (*Hold, error) {
	if err := c.validateOwner(req.Owner); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	h, err := c.Store.GetHold(opCtx, req.Tenant, req.HoldID)
	if err != nil {
		if _, ok := err.(*shadow.ErrNotFound); ok {
			return nil, holderr.New(holderr.KindNotFound, "HOLD_NOT_FOUND", "hold not found")
		}
		return nil, holderr.Wrap(holderr.KindStorageError, "GET_HOLD_FAILED", err)
	}
	if h.Owner != req.Owner || h.Version != req.Version {
		return nil, holderr.New(holderr.KindStale, "HOLD_VERSION_MISMATCH", "fencing token does not match current hold")
	}

	versionStr := strconv.FormatInt(req.Version, 10)
	for _, seat := range h.Seats {
		out, err := c.Ledger.ReleaseIfOwner(opCtx, req.Tenant, h.Performance, seat, req.Owner, versionStr)
		if err != nil {
			log.L().Warn().Err(err).Str("hold_id", req.HoldID).Str("seat", seat).Msg("hold: ledger release failed")
			continue
		}
		if out == ledger.OutcomeNOOP {
			log.L().Debug().Str("hold_id", req.HoldID).Str("seat", seat).Msg("hold: release NOOP, seat already gone")
		}
	}

	if err := c.Store.AppendHoldEvent(opCtx, req.Tenant, req.HoldID, shadow.HoldReleased, time.Time{}, shadow.HoldEvent{
		Type: "hold.released", At: time.Now(), Note: req.Reason,
	}); err != nil {
		return nil, holderr.Wrap(holderr.KindStorageError, "RELEASE_SHADOW_WRITE_FAILED", err)
	}

	c.publishSeatEvents(ctx, req.Tenant, h.Performance, req.HoldID, req.Owner, h.Seats, "seat.released", time.Now(), int64(len(h.Events))+1)

	h.State = shadow.HoldReleased
	return toHold(h), nil
}

// RollbackRequest is the input to Rollback. Rollback is for internal callers
// compensating a downstream failure; unlike Release it emits no event,
// treating the hold as if it never occurred.
type RollbackRequest struct {
	Tenant  string
	HoldID  string
	Owner   string
	Version int64
}

// Rollback is semantically Release without the seat.released broadcast.
func (c *Coordinator) Rollback(ctx context.Context, req RollbackRequest) error {
	if err := c.validateOwner(req.Owner); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	h, err := c.Store.GetHold(opCtx, req.Tenant, req.HoldID)
	if err != nil {
		if _, ok := err.(*shadow.ErrNotFound); ok {
			return holderr.New(holderr.KindNotFound, "HOLD_NOT_FOUND", "hold not found")
		}
		return holderr.Wrap(holderr.KindStorageError, "GET_HOLD_FAILED", err)
	}
	if h.Owner != req.Owner || h.Version != req.Version {
		return holderr.New(holderr.KindStale, "HOLD_VERSION_MISMATCH", "fencing token does not match current hold")
	}

	versionStr := strconv.FormatInt(req.Version, 10)
	for _, seat := range h.Seats {
		if _, err := c.Ledger.RollbackIfOwner(opCtx, req.Tenant, h.Performance, seat, req.Owner, versionStr); err != nil {
			log.L().Warn().Err(err).Str("hold_id", req.HoldID).Str("seat", seat).Msg("hold: ledger rollback failed")
		}
	}

	return c.Store.AppendHoldEvent(opCtx, req.Tenant, req.HoldID, shadow.HoldReleased, time.Time{}, shadow.HoldEvent{
		Type: "hold.rolled_back", At: time.Now(),
	})
}

// ConvertRequest is the input to Convert.
type ConvertRequest struct {
	Tenant  string
	HoldID  string
	Owner   string
	Version int64
	OrderID string
	IdemKey string
}

// Convert turns a hold into a sold record: it is the only operation that
// both writes to the Shadow Store and deletes ledger keys as part of the
// same logical commit, so failure partway through surfaces
// KindStorageError/"CONVERSION_FAILED" rather than a narrower kind.
func (c *Coordinator) Convert(ctx context.Context, req ConvertRequest) (*Hold, error) {
	if err := c.validateOwner(req.Owner); err != nil {
		return nil, err
	}
	if req.OrderID == "" {
		return nil, holderr.New(holderr.KindValidation, "ORDER_ID_REQUIRED", "order_id is required")
	}

	opCtx, cancel := context.WithTimeout(ctx, c.Conf.ConvertTimeout)
	defer cancel()

	reqHash := requestHash("convert", req.Tenant, req.HoldID, req.Owner, strconv.FormatInt(req.Version, 10), req.OrderID)
	if cached, found, err := c.checkIdempotency(opCtx, req.Tenant, req.IdemKey, reqHash); err != nil {
		return nil, err
	} else if found {
		metrics.IdempotencyReplays.WithLabelValues(req.Tenant, "convert").Inc()
		var h Hold
		if err := json.Unmarshal(cached, &h); err != nil {
			return nil, holderr.Wrap(holderr.KindInternal, "IDEMPOTENCY_RECORD_CORRUPT", err)
		}
		return &h, nil
	}

	h, err := c.Store.GetHold(opCtx, req.Tenant, req.HoldID)
	if err != nil {
		if _, ok := err.(*shadow.ErrNotFound); ok {
			return nil, holderr.New(holderr.KindNotFound, "HOLD_NOT_FOUND", "hold not found")
		}
		return nil, holderr.Wrap(holderr.KindStorageError, "GET_HOLD_FAILED", err)
	}
	if h.Owner != req.Owner || h.Version != req.Version {
		return nil, holderr.New(holderr.KindStale, "HOLD_VERSION_MISMATCH", "fencing token does not match current hold")
	}
	if h.State != shadow.HoldActive && h.State != shadow.HoldExtended {
		return nil, holderr.New(holderr.KindConflict, "HOLD_ALREADY_TERMINAL", "hold is not active or extended")
	}

	if err := c.Store.InsertSold(opCtx, req.Tenant, h.Performance, h.Seats, req.OrderID); err != nil {
		return nil, holderr.Wrap(holderr.KindStorageError, "CONVERSION_FAILED", err)
	}

	versionStr := strconv.FormatInt(req.Version, 10)
	for _, seat := range h.Seats {
		if _, err := c.Ledger.ReleaseIfOwner(opCtx, req.Tenant, h.Performance, seat, req.Owner, versionStr); err != nil {
			log.L().Warn().Err(err).Str("hold_id", req.HoldID).Str("seat", seat).Msg("hold: ledger release on convert failed")
		}
	}

	now := time.Now()
	if err := c.Store.AppendHoldEvent(opCtx, req.Tenant, req.HoldID, shadow.HoldConverted, time.Time{}, shadow.HoldEvent{
		Type: "hold.converted", At: now, Note: req.OrderID,
	}); err != nil {
		log.L().Error().Err(err).Str("hold_id", req.HoldID).Str("order_id", req.OrderID).Msg("hold: convert committed sold rows but failed to mark hold converted")
		return nil, holderr.Wrap(holderr.KindStorageError, "CONVERSION_FAILED", err)
	}

	c.publishSeatEvents(ctx, req.Tenant, h.Performance, req.HoldID, req.Owner, h.Seats, "seat.sold", now, int64(len(h.Events))+1)

	h.State = shadow.HoldConverted
	result := toHold(h)
	c.recordIdempotency(opCtx, req.Tenant, req.IdemKey, reqHash, result)
	return result, nil
}

// BlockRequest is the input to Block.
type BlockRequest struct {
	Tenant      string
	Performance string
	Seat        string
	Reason      string
}

// Block marks a seat permanently unavailable and publishes seat.blocked so a
// live Stream subscriber learns of the change without polling Snapshot.
func (c *Coordinator) Block(ctx context.Context, req BlockRequest) error {
	if req.Tenant == "" || req.Performance == "" || req.Seat == "" {
		return holderr.New(holderr.KindValidation, "TENANT_PERFORMANCE_SEAT_REQUIRED", "tenant, performance and seat are required")
	}
	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	if err := c.Store.Block(opCtx, req.Tenant, req.Performance, req.Seat, req.Reason); err != nil {
		return holderr.Wrap(holderr.KindStorageError, "BLOCK_FAILED", err)
	}
	c.publishSeatEvents(ctx, req.Tenant, req.Performance, "", "", []string{req.Seat}, "seat.blocked", time.Now(), 1)
	return nil
}

// Unblock removes a block record and publishes seat.unblocked.
func (c *Coordinator) Unblock(ctx context.Context, req BlockRequest) error {
	if req.Tenant == "" || req.Performance == "" || req.Seat == "" {
		return holderr.New(holderr.KindValidation, "TENANT_PERFORMANCE_SEAT_REQUIRED", "tenant, performance and seat are required")
	}
	opCtx, cancel := context.WithTimeout(ctx, c.Conf.OperationTimeout)
	defer cancel()

	if err := c.Store.Unblock(opCtx, req.Tenant, req.Performance, req.Seat); err != nil {
		return holderr.Wrap(holderr.KindStorageError, "UNBLOCK_FAILED", err)
	}
	c.publishSeatEvents(ctx, req.Tenant, req.Performance, "", "", []string{req.Seat}, "seat.unblocked", time.Now(), 1)
	return nil
}
