// ABOUTME: Package intake composes the conversation machine with its collaborators.
// ABOUTME: Routes commands vs. free text and performs the per-outcome side effects.

// Package intake is the command router and turn service. It classifies each
// inbound chat event as a command (/start, /schedule, /status, /quote) or a
// free-text turn, re-reads the session for free text, applies the flow
// transition, and performs the side effects each outcome requires: session
// writes, job saves, staff notification, and the post-finalize clear. All
// replies originate here; transports only deliver them.
package intake
