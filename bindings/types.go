// Package bindings defines the canonical binding record and its durable
// stores: the bindings table, the append-only status log, the derived
// existence cache, and persisted inconsistency findings. The binding's
// status column is the only authoritative existence signal for a
// cross-projection link; both projections follow it.
package bindings

import "time"

// Status is the canonical existence state of a binding.
type Status string

const (
	StatusVisible Status = "visible"
	StatusHidden  Status = "hidden"
	StatusDeleted Status = "deleted"
	StatusPending Status = "pending"
)

// Valid reports whether s is one of the four binding states.
func (s Status) Valid() bool {
	switch s {
	case StatusVisible, StatusHidden, StatusDeleted, StatusPending:
		return true
	}
	return false
}

// Provenance records which kind of author established a binding.
type Provenance string

const (
	ProvenanceUser   Provenance = "user"
	ProvenanceAI     Provenance = "ai"
	ProvenanceSystem Provenance = "system"
)

// Cause names the operation that triggered a status transition. Causes are
// recorded for audit; they do not restrict which transitions are legal.
type Cause string

const (
	CauseRegistered         Cause = "registered"
	CauseUserHide           Cause = "user_hide"
	CauseUserShow           Cause = "user_show"
	CauseUserDelete         Cause = "user_delete"
	CauseUserRestore        Cause = "user_restore"
	CauseSystemReconcile    Cause = "system_reconcile"
	CauseArbitrationApprove Cause = "arbitration_approve"
	CauseArbitrationReject  Cause = "arbitration_reject"
)

// ActorType classifies who performed a transition.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAI     ActorType = "ai"
	ActorSystem ActorType = "system"
)

// Binding is the canonical link between one element in the canvas projection
// and one mark in the document projection, scoped to a container. It is
// never physically removed; StatusDeleted is a tombstone.
type Binding struct {
	ID              string
	ContainerID     string
	ElementID       string
	BlockID         string
	MarkID          string
	Status          Status
	StatusUpdatedAt time.Time
	StatusUpdatedBy string
	Provenance      Provenance
	Version         int
	CreatedAt       time.Time
}

// StatusLogEntry is one immutable audit record. Entries form a total order
// per binding; they are never mutated or deleted.
type StatusLogEntry struct {
	ID             int64
	BindingID      string
	Status         Status
	PreviousStatus Status
	Cause          Cause
	ActorID        string
	ActorType      ActorType
	Metadata       map[string]any
	CreatedAt      time.Time
}

// ExistenceCacheEntry is a derived per-binding snapshot. It may be discarded
// and rebuilt at any time; truth lives in Binding and StatusLogEntry.
type ExistenceCacheEntry struct {
	BindingID      string
	Status         Status
	ElementExists  bool
	ElementDeleted bool
	MarkExists     bool
	LastVerifiedAt time.Time
	CacheVersion   int
	IsStale        bool
}

// InconsistencyType classifies a detected divergence between canonical
// status and projection-observed reality.
type InconsistencyType string

const (
	InconsistencyOrphaned       InconsistencyType = "orphaned"
	InconsistencyMissingElement InconsistencyType = "missing-element"
	InconsistencyMissingMark    InconsistencyType = "missing-mark"
	InconsistencyStatusMismatch InconsistencyType = "status-mismatch"
	InconsistencyGhostBinding   InconsistencyType = "ghost-binding"
)

// Resolution actions recorded when a finding is closed.
const (
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionAutoFixed = "auto_fixed"
)

// Inconsistency is a detected divergence. Resolution fields stay nil until
// the finding is arbitrated or auto-fixed.
type Inconsistency struct {
	ID                  string
	BindingID           string
	Type                InconsistencyType
	DetectedAt          time.Time
	DetectedBy          string
	BindingStatus       Status
	SuggestedResolution string
	Confidence          float64
	ResolvedAt          *time.Time
	ResolvedBy          *string
	ResolutionAction    *string
	ResolutionNotes     *string
	Snapshot            map[string]any
}

// Resolved reports whether the finding has been closed by auto-fix or
// arbitration.
func (i *Inconsistency) Resolved() bool {
	return i.ResolvedAt != nil
}
