package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ripkitten-co/tether/bindings"
)

// Suggested resolutions attached to findings. Only the first three are
// auto-fixable; human review is always demoted.
const (
	ResolutionSetHidden   = "set status=hidden"
	ResolutionSetVisible  = "set status=visible"
	ResolutionSoftDelete  = "soft-delete binding"
	ResolutionHumanReview = "human review"
)

// Confidence scores per observed combination.
const (
	confMismatchHide = 0.95
	confMismatchShow = 0.85
	confMissing      = 0.90
	confGhost        = 0.95
	confOrphaned     = 0.80
)

// AutoFixThreshold is the minimum confidence for automatic repair.
const AutoFixThreshold = 0.90

const detectedBy = "tether-detector"

// Observation is a point-in-time read of both projections' existence
// signals for one container.
type Observation struct {
	Elements map[string]EntityState
	Marks    map[string]EntityState
}

// Detector compares canonical binding status against both projections'
// observed reality. A found divergence is data, never an error; only signal
// reads can fail.
type Detector struct {
	elements Source
	marks    Source
}

// NewDetector creates a detector over the two projections' signal sources.
func NewDetector(elements, marks Source) *Detector {
	return &Detector{elements: elements, marks: marks}
}

// Observe reads both projections' signals for a container.
func (d *Detector) Observe(ctx context.Context, containerID string) (Observation, error) {
	elements, err := d.elements.States(ctx, containerID)
	if err != nil {
		return Observation{}, fmt.Errorf("reconcile: observe %s: %w", containerID, err)
	}
	marks, err := d.marks.States(ctx, containerID)
	if err != nil {
		return Observation{}, fmt.Errorf("reconcile: observe %s: %w", containerID, err)
	}
	return Observation{Elements: elements, Marks: marks}, nil
}

// Detect observes both projections and evaluates every binding in the scope.
func (d *Detector) Detect(ctx context.Context, containerID string, bs []bindings.Binding) ([]bindings.Inconsistency, error) {
	obs, err := d.Observe(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return Evaluate(bs, obs), nil
}

// Evaluate is the pure classification: at most one finding per binding,
// picked by severity. Tombstoned bindings are always consistent — a deleted
// binding whose entities are gone is the system working as intended.
func Evaluate(bs []bindings.Binding, obs Observation) []bindings.Inconsistency {
	var findings []bindings.Inconsistency
	for i := range bs {
		if inc := evaluateOne(&bs[i], obs); inc != nil {
			findings = append(findings, *inc)
		}
	}
	return findings
}

func evaluateOne(b *bindings.Binding, obs Observation) *bindings.Inconsistency {
	if b.Status == bindings.StatusDeleted {
		return nil
	}

	element, elementFound := obs.Elements[b.ElementID]
	mark, markFound := obs.Marks[b.MarkID]
	elementAbsent := !elementFound || !element.Exists
	markAbsent := !markFound || !mark.Exists

	switch {
	case elementAbsent && markAbsent:
		return finding(b, obs, bindings.InconsistencyGhostBinding, confGhost, ResolutionSoftDelete)

	case elementAbsent:
		return finding(b, obs, bindings.InconsistencyMissingElement, confMissing, ResolutionSoftDelete)

	case markAbsent:
		return finding(b, obs, bindings.InconsistencyMissingMark, confMissing, ResolutionSoftDelete)

	case element.Deleted && mark.Deleted:
		// Both sides tombstoned their entity but the binding is still live.
		// Which side should win is not inferable from the signals alone.
		return finding(b, obs, bindings.InconsistencyOrphaned, confOrphaned, ResolutionHumanReview)

	case b.Status == bindings.StatusVisible && (element.Deleted || mark.Deleted):
		return finding(b, obs, bindings.InconsistencyStatusMismatch, confMismatchHide, ResolutionSetHidden)

	case b.Status == bindings.StatusHidden && !element.Deleted && !mark.Deleted:
		return finding(b, obs, bindings.InconsistencyStatusMismatch, confMismatchShow, ResolutionSetVisible)
	}
	return nil
}

func finding(b *bindings.Binding, obs Observation, typ bindings.InconsistencyType, confidence float64, resolution string) *bindings.Inconsistency {
	element := obs.Elements[b.ElementID]
	mark := obs.Marks[b.MarkID]
	return &bindings.Inconsistency{
		ID:                  uuid.NewString(),
		BindingID:           b.ID,
		Type:                typ,
		DetectedAt:          time.Now().UTC(),
		DetectedBy:          detectedBy,
		BindingStatus:       b.Status,
		SuggestedResolution: resolution,
		Confidence:          confidence,
		Snapshot: map[string]any{
			"containerId":    b.ContainerID,
			"elementId":      b.ElementID,
			"markId":         b.MarkID,
			"status":         string(b.Status),
			"elementExists":  element.Exists,
			"elementDeleted": element.Deleted,
			"markExists":     mark.Exists,
			"markDeleted":    mark.Deleted,
		},
	}
}
