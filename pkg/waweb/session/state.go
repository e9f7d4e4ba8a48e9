// Package session owns the connection lifecycle of a single messaging
// account: one Messaging Client at a time, an explicit state machine over
// its raw events, the pairing artifact, and the send surface. It also
// clears stale session-directory locks before every (re)start.
package session

import "github.com/AsafBen179/WhatsAppWebAPI/pkg/waweb/client"

// State is the single source of truth for connection status.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateAwaitingScan  State = "awaiting_scan"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
)

// transition is the total transition function over (current state, event
// kind). The second return is false for pairs not in the table; those are
// ignored by the caller rather than treated as errors, because the client
// may emit events in a different order across versions.
func transition(cur State, kind client.EventKind) (State, bool) {
	switch kind {
	case client.EventQR:
		// A fresh pairing code only makes sense before authentication.
		switch cur {
		case StateDisconnected, StateConnecting, StateAwaitingScan:
			return StateAwaitingScan, true
		}
		return cur, false
	case client.EventAuthenticated:
		return StateAuthenticated, true
	case client.EventReady:
		return StateReady, true
	case client.EventAuthFailure:
		return StateDisconnected, true
	case client.EventDisconnected:
		return StateDisconnected, true
	}
	return cur, false
}
