// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging, kept in one place
// so log-line shape stays consistent across packages.
const (
	FieldRequestID = "request_id"
	FieldTenantID  = "tenant_id"
	FieldHoldID    = "hold_id"
	FieldOwner     = "owner"

	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldOutcome   = "outcome"

	FieldOldState = "old_state"
	FieldNewState = "new_state"

	FieldSeatCount = "seat_count"
)
