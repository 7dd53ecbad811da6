// Package metadata implements the MXF header metadata engine: an
// in-memory reference graph of typed sets, read and written through a
// primer-driven local-tag encoding.
//
// Sets live in an arena keyed by InstanceUID; references between sets
// are stored as 16-octet UUIDs only, never as pointers. A side map from
// UUID to set gives O(1) dereferencing.
package metadata

import (
	"errors"
	"fmt"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/schema"
)

var (
	ErrUnknownClass      = errors.New("metadata: unknown set class")
	ErrUnknownItem       = errors.New("metadata: unknown item")
	ErrTypeMismatch      = errors.New("metadata: item type mismatch")
	ErrDanglingStrongRef = errors.New("metadata: dangling strong reference")
	ErrMissingRequired   = errors.New("metadata: missing required item")
	ErrDuplicateInstance = errors.New("metadata: duplicate InstanceUID")
	ErrCyclicStrongRefs  = errors.New("metadata: cyclic strong references")
	ErrNoPreface         = errors.New("metadata: no Preface set")
)

// Item is one item of a set: the item UL and its raw serialised value.
type Item struct {
	Key   klv.UL
	Value []byte
}

// Set is a typed record in the metadata graph.
type Set struct {
	Key   klv.UL // class UL
	items map[klv.UL]*Item
	order []klv.UL // insertion order, for deterministic writes

	// FixedSpace reserves a byte budget for the serialised set; the
	// remainder is padded with a fill KLV so the set can be rewritten
	// in place.
	FixedSpace uint64

	hm *HeaderMetadata
}

// HeaderMetadata owns a graph of sets rooted at a Preface.
type HeaderMetadata struct {
	model *schema.DataModel
	sets  map[klv.UUID]*Set
	order []*Set
}

// New returns an empty header metadata container over model.
func New(model *schema.DataModel) *HeaderMetadata {
	return &HeaderMetadata{
		model: model,
		sets:  make(map[klv.UUID]*Set),
	}
}

// Model returns the data model the metadata was created with.
func (hm *HeaderMetadata) Model() *schema.DataModel { return hm.model }

// NewSet creates a set of the given class with a fresh InstanceUID and
// adds it to the graph.
func (hm *HeaderMetadata) NewSet(classKey *klv.UL) (*Set, error) {
	if !hm.model.HaveSetDef(classKey) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, classKey)
	}
	return hm.addSet(classKey, klv.GenerateUUID())
}

// addSet inserts a set with a known InstanceUID (used on read/clone).
func (hm *HeaderMetadata) addSet(classKey *klv.UL, uid klv.UUID) (*Set, error) {
	if _, ok := hm.sets[uid]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, uid)
	}
	set := &Set{
		Key:   *classKey,
		items: make(map[klv.UL]*Item),
		hm:    hm,
	}
	set.setRaw(&schema.ItemInstanceUID, uid[:])
	hm.sets[uid] = set
	hm.order = append(hm.order, set)
	return set, nil
}

// InstanceUID returns the set's InstanceUID.
func (s *Set) InstanceUID() klv.UUID {
	var uid klv.UUID
	if it, ok := s.items[schema.ItemInstanceUID]; ok {
		copy(uid[:], it.Value)
	}
	return uid
}

// RemoveSet detaches a set from the graph. References to it are left
// as-is and will dangle until fixed or validated.
func (hm *HeaderMetadata) RemoveSet(s *Set) {
	delete(hm.sets, s.InstanceUID())
	for i, o := range hm.order {
		if o == s {
			hm.order = append(hm.order[:i], hm.order[i+1:]...)
			break
		}
	}
}

// Sets returns the sets in insertion order.
func (hm *HeaderMetadata) Sets() []*Set { return hm.order }

// FindSet returns the set with the given InstanceUID.
func (hm *HeaderMetadata) FindSet(uid klv.UUID) (*Set, bool) {
	s, ok := hm.sets[uid]
	return s, ok
}

// FindSingularSet returns the unique set of the given class, failing
// when there are zero or several.
func (hm *HeaderMetadata) FindSingularSet(classKey *klv.UL) (*Set, error) {
	var found *Set
	for _, s := range hm.order {
		if s.Key == *classKey {
			if found != nil {
				return nil, fmt.Errorf("metadata: several sets of class %s", classKey)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no set of class %s", ErrUnknownClass, classKey)
	}
	return found, nil
}

// FindSets returns every set of the given class.
func (hm *HeaderMetadata) FindSets(classKey *klv.UL) []*Set {
	var out []*Set
	for _, s := range hm.order {
		if s.Key == *classKey {
			out = append(out, s)
		}
	}
	return out
}

// Preface returns the root Preface set.
func (hm *HeaderMetadata) Preface() (*Set, error) {
	for _, s := range hm.order {
		if hm.model.IsSubclassOf(&s.Key, &schema.SetPreface) {
			return s, nil
		}
	}
	return nil, ErrNoPreface
}

// HaveItem reports whether the set carries the item.
func (s *Set) HaveItem(itemKey *klv.UL) bool {
	_, ok := s.items[*itemKey]
	return ok
}

// RawItem returns the raw serialised value of the item.
func (s *Set) RawItem(itemKey *klv.UL) ([]byte, error) {
	it, ok := s.items[*itemKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, itemKey)
	}
	return it.Value, nil
}

// SetRawItem stores value verbatim as the item's serialised form.
func (s *Set) SetRawItem(itemKey *klv.UL, value []byte) {
	s.setRaw(itemKey, value)
}

func (s *Set) setRaw(itemKey *klv.UL, value []byte) {
	if it, ok := s.items[*itemKey]; ok {
		it.Value = append(it.Value[:0], value...)
		return
	}
	it := &Item{Key: *itemKey, Value: append([]byte(nil), value...)}
	s.items[*itemKey] = it
	s.order = append(s.order, *itemKey)
}

// RemoveItem drops an item from the set.
func (s *Set) RemoveItem(itemKey *klv.UL) {
	if _, ok := s.items[*itemKey]; !ok {
		return
	}
	delete(s.items, *itemKey)
	for i, k := range s.order {
		if k == *itemKey {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Validate checks required items and strong reference integrity over
// the whole graph.
func (hm *HeaderMetadata) Validate() error {
	if _, err := hm.Preface(); err != nil {
		return err
	}
	for _, s := range hm.order {
		if _, err := hm.model.FindSetDef(&s.Key); err != nil {
			continue // unknown classes round-trip unvalidated
		}
		if err := hm.validateSet(s); err != nil {
			return err
		}
	}
	return hm.checkStrongRefCycles()
}

func (hm *HeaderMetadata) validateSet(s *Set) error {
	for _, k := range s.order {
		idef, err := hm.model.FindItemDef(&s.Key, &k)
		if err != nil {
			continue
		}
		switch idef.Type {
		case schema.TypeStrongRef:
			uid, err := s.GetStrongRefUID(&k)
			if err != nil {
				return err
			}
			if _, ok := hm.sets[uid]; !ok {
				return fmt.Errorf("%w: %s item %s", ErrDanglingStrongRef, s.Key, &k)
			}
		case schema.TypeStrongRefArray, schema.TypeStrongRefBatch:
			uids, err := s.GetUUIDArrayItem(&k)
			if err != nil {
				return err
			}
			for _, uid := range uids {
				if _, ok := hm.sets[uid]; !ok {
					return fmt.Errorf("%w: %s item %s", ErrDanglingStrongRef, s.Key, &k)
				}
			}
		}
	}
	return hm.checkRequired(s)
}

func (hm *HeaderMetadata) checkRequired(s *Set) error {
	model := hm.model
	setDef, err := model.FindSetDef(&s.Key)
	if err != nil {
		return nil
	}
	for d := setDef; d != nil; d = d.Parent() {
		for _, idef := range d.Items() {
			if idef.Required && !s.HaveItem(&idef.Key) {
				return fmt.Errorf("%w: %s in %s", ErrMissingRequired, idef.Name, d.Name)
			}
		}
	}
	return nil
}

func (hm *HeaderMetadata) checkStrongRefCycles() error {
	const (
		white = iota
		grey
		black
	)
	state := make(map[klv.UUID]int)
	var visit func(s *Set) error
	visit = func(s *Set) error {
		uid := s.InstanceUID()
		switch state[uid] {
		case grey:
			return ErrCyclicStrongRefs
		case black:
			return nil
		}
		state[uid] = grey
		for _, target := range hm.strongRefTargets(s) {
			if err := visit(target); err != nil {
				return err
			}
		}
		state[uid] = black
		return nil
	}
	for _, s := range hm.order {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

// strongRefTargets resolves the sets strongly referenced by s, in item
// order.
func (hm *HeaderMetadata) strongRefTargets(s *Set) []*Set {
	var out []*Set
	for _, k := range s.order {
		k := k
		idef, err := hm.model.FindItemDef(&s.Key, &k)
		if err != nil {
			continue
		}
		switch idef.Type {
		case schema.TypeStrongRef:
			if uid, err := s.GetStrongRefUID(&k); err == nil {
				if t, ok := hm.sets[uid]; ok {
					out = append(out, t)
				}
			}
		case schema.TypeStrongRefArray, schema.TypeStrongRefBatch:
			if uids, err := s.GetUUIDArrayItem(&k); err == nil {
				for _, uid := range uids {
					if t, ok := hm.sets[uid]; ok {
						out = append(out, t)
					}
				}
			}
		}
	}
	return out
}
