// Package events carries status-change notifications out of the transition
// engine. The engine depends only on the Publisher interface; the in-process
// Bus, the Postgres NOTIFY adapter, and fan-out composition are adapters so
// hosts can wire whatever transport they run on.
package events

import (
	"time"

	"github.com/ripkitten-co/tether/bindings"
)

// Signal names carried alongside the generic status-changed feed.
const (
	SignalStatusChanged = "status-changed"
	SignalHidden        = "hidden"
	SignalShown         = "shown"
	SignalDeleted       = "deleted"
	SignalPending       = "pending"
	SignalApproved      = "approved"
	SignalRejected      = "rejected"
)

// Event is the payload published on every applied transition. Idempotent
// no-op transitions publish nothing.
type Event struct {
	BindingID      string          `json:"bindingId"`
	ElementID      string          `json:"elementId"`
	Status         bindings.Status `json:"status"`
	PreviousStatus bindings.Status `json:"previousStatus"`
	Cause          bindings.Cause  `json:"cause"`
	ActorID        string          `json:"actorId"`
	Reason         string          `json:"reason,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// Signal returns the status-specific name for an event: arbitration causes
// map to approved/rejected, everything else follows the new status.
func (e Event) Signal() string {
	switch e.Cause {
	case bindings.CauseArbitrationApprove:
		return SignalApproved
	case bindings.CauseArbitrationReject:
		return SignalRejected
	}
	switch e.Status {
	case bindings.StatusHidden:
		return SignalHidden
	case bindings.StatusVisible:
		return SignalShown
	case bindings.StatusDeleted:
		return SignalDeleted
	case bindings.StatusPending:
		return SignalPending
	}
	return SignalStatusChanged
}
