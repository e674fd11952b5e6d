// Package events defines the capitan signals emitted while turns run and
// pattern memory learns. Signals follow the pattern: <component>.<entity>.<event>.
package events

import "github.com/zoobzio/capitan"

var (
	// Turn signals.
	TurnHalted = capitan.NewSignal(
		"cascade.turn.halted",
		"Turn terminated at a gate before response generation",
	)
	TurnResponded = capitan.NewSignal(
		"cascade.turn.responded",
		"Turn reached response generation",
	)
	TurnDegraded = capitan.NewSignal(
		"cascade.turn.degraded",
		"Upstream failure replaced the turn with a containment response",
	)

	// Pattern memory signals.
	UpdateApplied = capitan.NewSignal(
		"pattern.update.applied",
		"Outcome classified and applied to pattern memory",
	)
	InvariantRejected = capitan.NewSignal(
		"pattern.invariant.rejected",
		"Permissive update to a crisis or danger context was dropped",
	)
	SnapshotSaved = capitan.NewSignal(
		"pattern.snapshot.saved",
		"Pattern memory snapshot written to storage",
	)
	StateReset = capitan.NewSignal(
		"pattern.state.reset",
		"Persisted pattern memory was unusable and defaults were loaded",
	)
)

// Field keys for event data.
var (
	FieldTurnID   = capitan.NewStringKey("turn_id")
	FieldGate     = capitan.NewStringKey("gate")
	FieldDecision = capitan.NewStringKey("decision")
	FieldVerdict  = capitan.NewStringKey("verdict")
	FieldCategory = capitan.NewStringKey("category")
	FieldScore    = capitan.NewFloat32Key("score")

	FieldSign       = capitan.NewStringKey("sign")
	FieldRule       = capitan.NewStringKey("rule")
	FieldChanged    = capitan.NewIntKey("changed")
	FieldRejected   = capitan.NewIntKey("rejected")
	FieldContextKey = capitan.NewStringKey("context_key")
	FieldVersion    = capitan.NewStringKey("version")
	FieldUpdates    = capitan.NewIntKey("updates")

	FieldError = capitan.NewErrorKey("error")
)
