// Package session implements the per-session state machine at the center of
// the core.
//
// A session is either an assistant session, which alternates between idle and
// responding as turns start and finish, or a terminal session, which never
// responds. While a turn is in flight the session ingests bridge events:
// tool calls become activity records, permission requests queue up for the
// user, and a completion, cancellation, or error returns the session to idle.
//
// Cancellation is asynchronous. Cancel moves the session to a cancelling
// phase and asks the bridge to interrupt; whichever terminal event arrives
// first, the acknowledgment or a natural completion, settles the turn and
// the other is discarded. Any permission prompts still queued when a turn
// ends are denied, since the tool calls they guarded will never run.
package session
