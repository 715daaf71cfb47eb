package engine

import "github.com/ripkitten-co/tether/bindings"

// index is the per-scope lookup structure: binding by id, binding id by
// element id, and the set of binding ids per block. All operations are O(1)
// except listByStatus, which scans.
type index struct {
	byID      map[string]*bindings.Binding
	byElement map[string]string
	byBlock   map[string]map[string]struct{}
}

func newIndex() *index {
	return &index{
		byID:      make(map[string]*bindings.Binding),
		byElement: make(map[string]string),
		byBlock:   make(map[string]map[string]struct{}),
	}
}

// register inserts a binding into all three maps.
func (x *index) register(b *bindings.Binding) {
	x.byID[b.ID] = b
	x.byElement[b.ElementID] = b.ID
	set, ok := x.byBlock[b.BlockID]
	if !ok {
		set = make(map[string]struct{})
		x.byBlock[b.BlockID] = set
	}
	set[b.ID] = struct{}{}
}

// update replaces the stored binding, keeping the secondary maps current.
func (x *index) update(b *bindings.Binding) {
	prev, ok := x.byID[b.ID]
	if !ok {
		x.register(b)
		return
	}
	if prev.ElementID != b.ElementID {
		delete(x.byElement, prev.ElementID)
		x.byElement[b.ElementID] = b.ID
	}
	if prev.BlockID != b.BlockID {
		if set, ok := x.byBlock[prev.BlockID]; ok {
			delete(set, b.ID)
			if len(set) == 0 {
				delete(x.byBlock, prev.BlockID)
			}
		}
		set, ok := x.byBlock[b.BlockID]
		if !ok {
			set = make(map[string]struct{})
			x.byBlock[b.BlockID] = set
		}
		set[b.ID] = struct{}{}
	}
	x.byID[b.ID] = b
}

func (x *index) get(id string) (*bindings.Binding, bool) {
	b, ok := x.byID[id]
	return b, ok
}

func (x *index) byElementID(elementID string) (*bindings.Binding, bool) {
	id, ok := x.byElement[elementID]
	if !ok {
		return nil, false
	}
	return x.get(id)
}

func (x *index) byBlockID(blockID string) []*bindings.Binding {
	set, ok := x.byBlock[blockID]
	if !ok {
		return nil
	}
	result := make([]*bindings.Binding, 0, len(set))
	for id := range set {
		if b, ok := x.byID[id]; ok {
			result = append(result, b)
		}
	}
	return result
}

func (x *index) listByStatus(status bindings.Status) []*bindings.Binding {
	var result []*bindings.Binding
	for _, b := range x.byID {
		if b.Status == status {
			result = append(result, b)
		}
	}
	return result
}

func (x *index) size() int { return len(x.byID) }

func (x *index) countByStatus() map[bindings.Status]int {
	counts := make(map[bindings.Status]int, 4)
	for _, b := range x.byID {
		counts[b.Status]++
	}
	return counts
}
