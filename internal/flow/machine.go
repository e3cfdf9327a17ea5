// ABOUTME: Conversation state machine for the vehicle-service intake dialogue.
// ABOUTME: Pure transition function mapping (step, input) to (next, patch, outcome).

package flow

import "strings"

// Step identifies where a user is in the intake dialogue.
// Values are persisted verbatim in the session store, so they must stay
// stable across releases.
type Step string

// Dialogue steps. StepIdle is the initial state; there is no terminal state,
// a successful description loops the dialogue back to StepIdle after the job
// record is emitted.
const (
	StepIdle             Step = "IDLE"
	StepAwaitName        Step = "AWAIT_NAME"
	StepAwaitVehicle     Step = "AWAIT_VEHICLE"
	StepAwaitDescription Step = "AWAIT_DESC"
)

// Known reports whether the step is one the machine understands. A step read
// from the store that is not known indicates corruption or a stale schema and
// must be surfaced as a desync, never silently coerced to StepIdle.
func (s Step) Known() bool {
	switch s {
	case StepIdle, StepAwaitName, StepAwaitVehicle, StepAwaitDescription:
		return true
	}
	return false
}

// Session data field keys accumulated across turns.
const (
	FieldClientName  = "client_name"
	FieldVehicleInfo = "vehicle_info"
)

// Minimum trimmed input lengths per stage.
const (
	minNameLen        = 3
	minVehicleLen     = 2
	minDescriptionLen = 1
)

// Outcome tells the caller what side effects a transition requires.
type Outcome int

const (
	// OutcomeNoop means no state change and no persistence; the caller may
	// answer with a usage hint.
	OutcomeNoop Outcome = iota

	// OutcomeReject means the input failed this stage's validation rule.
	// State is unchanged; the caller replies with Result.Reason.
	OutcomeReject

	// OutcomeAdvance means the dialogue moved forward; the caller must
	// persist Result.Next and Result.Patch to the session store.
	OutcomeAdvance

	// OutcomeFinalize means the dialogue completed; the caller builds the
	// job record from the accumulated session data plus Result.Notes, saves
	// it, and clears the session.
	OutcomeFinalize

	// OutcomeDesync means the stored step was not recognized. The caller
	// must tell the user to restart explicitly rather than guessing.
	OutcomeDesync
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeReject:
		return "reject"
	case OutcomeAdvance:
		return "advance"
	case OutcomeFinalize:
		return "finalize"
	case OutcomeDesync:
		return "desync"
	default:
		return "unknown"
	}
}

// Result is the output of a transition.
type Result struct {
	// Next is the step the session should hold after this turn. Unchanged
	// from the input step on reject, noop and desync.
	Next Step

	// Patch holds the session data fields gained on this turn. Nil unless
	// the outcome is OutcomeAdvance.
	Patch map[string]string

	// Outcome describes the required side effects.
	Outcome Outcome

	// Reason is a short validation message, set only on OutcomeReject.
	Reason string

	// Notes is the trimmed problem description, set only on OutcomeFinalize.
	Notes string
}

// Transition computes the dialogue transition for a free-text input. It is a
// pure function: calling it twice with the same arguments yields the same
// result, which makes duplicate webhook deliveries safe to re-apply from the
// same session snapshot. Commands (/start, /quote, ...) never reach here;
// they are handled by the intake service as explicit resets or side paths.
func Transition(step Step, input string) Result {
	trimmed := strings.TrimSpace(input)

	switch step {
	case StepIdle:
		return Result{Next: StepIdle, Outcome: OutcomeNoop}

	case StepAwaitName:
		if len(trimmed) < minNameLen {
			return Result{Next: step, Outcome: OutcomeReject, Reason: "name too short"}
		}
		return Result{
			Next:    StepAwaitVehicle,
			Outcome: OutcomeAdvance,
			Patch:   map[string]string{FieldClientName: trimmed},
		}

	case StepAwaitVehicle:
		if len(trimmed) < minVehicleLen {
			return Result{Next: step, Outcome: OutcomeReject, Reason: "vehicle info too short"}
		}
		return Result{
			Next:    StepAwaitDescription,
			Outcome: OutcomeAdvance,
			Patch:   map[string]string{FieldVehicleInfo: trimmed},
		}

	case StepAwaitDescription:
		if len(trimmed) < minDescriptionLen {
			return Result{Next: step, Outcome: OutcomeReject, Reason: "description too short"}
		}
		return Result{Next: StepIdle, Outcome: OutcomeFinalize, Notes: trimmed}

	default:
		return Result{Next: step, Outcome: OutcomeDesync}
	}
}
