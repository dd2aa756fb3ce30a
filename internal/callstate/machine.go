package callstate

import "github.com/relaydesk/voicegate/internal/types"

// transitions is the finite-state table: (current phase, event type) ->
// next phase. Every pair has an entry; the out-of-order and idempotence
// rules hang off this table instead of ad hoc branching.
var transitions = map[types.Phase]map[types.EventType]types.Phase{
	types.PhaseCreated: {
		types.EventCallStarted:   types.PhaseCreated,
		types.EventStatusUpdate:  types.PhaseInProgress,
		types.EventTurnCompleted: types.PhaseInProgress,
		types.EventEndOfCall:     types.PhaseEnded,
	},
	types.PhaseInProgress: {
		types.EventCallStarted:   types.PhaseInProgress,
		types.EventStatusUpdate:  types.PhaseInProgress,
		types.EventTurnCompleted: types.PhaseInProgress,
		types.EventEndOfCall:     types.PhaseEnded,
	},
	// Ended is terminal. Late events may still enrich the record (a
	// delayed transcript entry, late start metadata) but the phase and
	// terminal status never regress.
	types.PhaseEnded: {
		types.EventCallStarted:   types.PhaseEnded,
		types.EventStatusUpdate:  types.PhaseEnded,
		types.EventTurnCompleted: types.PhaseEnded,
		types.EventEndOfCall:     types.PhaseEnded,
	},
}

// nextPhase resolves the transition table for one event
func nextPhase(current types.Phase, event types.EventType) types.Phase {
	row, ok := transitions[current]
	if !ok {
		return current
	}
	next, ok := row[event]
	if !ok {
		return current
	}
	return next
}

// StatusPolicy derives the terminal status of a call when it ends.
// reportedOutcome is the front-end's endedReason field, which may be
// empty or unrecognized; turns is the number of user utterances the call
// reached.
type StatusPolicy func(turns int, reportedOutcome string) types.CallStatus

// DefaultStatusPolicy honors an explicitly reported outcome and falls
// back to a turn-count heuristic: completed when the call reached at
// least minTurns user turns, missed otherwise.
func DefaultStatusPolicy(minTurns int) StatusPolicy {
	return func(turns int, reportedOutcome string) types.CallStatus {
		switch types.CallStatus(reportedOutcome) {
		case types.CallStatusCompleted, types.CallStatusFailed, types.CallStatusMissed:
			return types.CallStatus(reportedOutcome)
		}
		if turns >= minTurns {
			return types.CallStatusCompleted
		}
		return types.CallStatusMissed
	}
}
