// ABOUTME: Package flow implements the intake conversation state machine.
// ABOUTME: Pure transition logic with no knowledge of transports or stores.

// Package flow contains the conversation state machine that drives the
// vehicle-service intake dialogue. The machine is deliberately pure: given a
// dialogue step and a user input it computes the next step, the data gained
// on this turn, and an outcome describing the side effects the caller must
// perform. All persistence and messaging lives in callers (internal/intake).
package flow
