// Package schema holds the MXF data model: the registry of metadata set
// classes and item definitions that drives local-tag encoding and typed
// item access.
//
// A model is built once with RegisterSetDef/RegisterItemDef, finalised,
// and then queried; queries before Finalise fail.
package schema

import (
	"errors"
	"fmt"

	"github.com/distr1/mxf/internal/klv"
)

var (
	ErrUnknownParent       = errors.New("schema: unknown parent set")
	ErrDuplicateDefinition = errors.New("schema: duplicate definition")
	ErrNotFinalised        = errors.New("schema: data model not finalised")
	ErrUnknownSet          = errors.New("schema: unknown set class")
	ErrUnknownItem         = errors.New("schema: unknown item")
)

// TypeID identifies the wire encoding of an item value.
type TypeID int

const (
	TypeUnknown TypeID = iota
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeVersionType
	TypeRational
	TypePosition
	TypeLength
	TypeBoolean
	TypeTimestamp
	TypeProductVersion
	TypeUL
	TypeUUID
	TypeUMID
	TypeUTF16String
	TypeUTF8String
	TypeISO7String
	TypeRaw
	TypeStrongRef
	TypeWeakRef
	TypeStrongRefArray
	TypeStrongRefBatch
	TypeWeakRefArray
	TypeWeakRefBatch
	TypeULArray
	TypeULBatch
	TypeUUIDArray
	TypeRationalArray
)

// ItemDef defines one item of a set class.
type ItemDef struct {
	Name     string
	SetKey   klv.UL
	Key      klv.UL
	LocalTag uint16
	Type     TypeID
	Required bool
}

// SetDef defines a set class. Parent links form the subclass relation.
type SetDef struct {
	Name      string
	Key       klv.UL
	ParentKey klv.UL
	parent    *SetDef

	items      map[klv.UL]*ItemDef
	itemsByTag map[uint16]*ItemDef
}

// Parent returns the parent set class, or nil for a root class. Only
// valid after Finalise.
func (s *SetDef) Parent() *SetDef { return s.parent }

// Items returns the items registered directly on this class (excluding
// inherited items).
func (s *SetDef) Items() map[klv.UL]*ItemDef { return s.items }

// DataModel is the registry of set and item definitions.
type DataModel struct {
	sets      map[klv.UL]*SetDef
	finalised bool
}

// New returns an empty data model.
func New() *DataModel {
	return &DataModel{sets: make(map[klv.UL]*SetDef)}
}

// RegisterSetDef registers a set class. parentKey may be nil for a root
// class.
func (m *DataModel) RegisterSetDef(name string, key *klv.UL, parentKey *klv.UL) error {
	if m.finalised {
		return fmt.Errorf("schema: register %q after finalise", name)
	}
	if _, ok := m.sets[*key]; ok {
		return fmt.Errorf("%w: set %q", ErrDuplicateDefinition, name)
	}
	def := &SetDef{
		Name:       name,
		Key:        *key,
		items:      make(map[klv.UL]*ItemDef),
		itemsByTag: make(map[uint16]*ItemDef),
	}
	if parentKey != nil {
		def.ParentKey = *parentKey
	}
	m.sets[*key] = def
	return nil
}

// RegisterItemDef registers an item of the set class identified by
// setKey. localTag below 0x8000 marks a statically registered tag; a
// zero tag means the primer assigns one dynamically at write time.
func (m *DataModel) RegisterItemDef(name string, setKey, key *klv.UL, localTag uint16, typ TypeID, required bool) error {
	if m.finalised {
		return fmt.Errorf("schema: register %q after finalise", name)
	}
	set, ok := m.sets[*setKey]
	if !ok {
		return fmt.Errorf("%w: item %q in unregistered set %s", ErrUnknownSet, name, setKey)
	}
	if _, ok := set.items[*key]; ok {
		return fmt.Errorf("%w: item %q", ErrDuplicateDefinition, name)
	}
	def := &ItemDef{
		Name:     name,
		SetKey:   *setKey,
		Key:      *key,
		LocalTag: localTag,
		Type:     typ,
		Required: required,
	}
	set.items[*key] = def
	if localTag != 0 {
		set.itemsByTag[localTag] = def
	}
	return nil
}

// Finalise resolves parent pointers and detects unknown parents. The
// model must be finalised before queries.
func (m *DataModel) Finalise() error {
	for _, set := range m.sets {
		if set.ParentKey == (klv.UL{}) {
			continue
		}
		parent, ok := m.sets[set.ParentKey]
		if !ok {
			return fmt.Errorf("%w: set %q parent %s", ErrUnknownParent, set.Name, set.ParentKey)
		}
		set.parent = parent
	}
	m.finalised = true
	return nil
}

// FindSetDef looks up the set class registered for key.
func (m *DataModel) FindSetDef(key *klv.UL) (*SetDef, error) {
	if !m.finalised {
		return nil, ErrNotFinalised
	}
	set, ok := m.sets[*key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, key)
	}
	return set, nil
}

// FindItemDef looks up an item by UL in the set class or any of its
// ancestors.
func (m *DataModel) FindItemDef(setKey, itemKey *klv.UL) (*ItemDef, error) {
	set, err := m.FindSetDef(setKey)
	if err != nil {
		return nil, err
	}
	for s := set; s != nil; s = s.parent {
		if def, ok := s.items[*itemKey]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s in set %q", ErrUnknownItem, itemKey, set.Name)
}

// FindItemDefByTag looks up an item by statically registered local tag
// in the set class or any of its ancestors.
func (m *DataModel) FindItemDefByTag(setKey *klv.UL, localTag uint16) (*ItemDef, error) {
	set, err := m.FindSetDef(setKey)
	if err != nil {
		return nil, err
	}
	for s := set; s != nil; s = s.parent {
		if def, ok := s.itemsByTag[localTag]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: tag 0x%04x in set %q", ErrUnknownItem, localTag, set.Name)
}

// IsSubclassOf reports whether the class identified by key equals or
// descends from ancestorKey.
func (m *DataModel) IsSubclassOf(key, ancestorKey *klv.UL) bool {
	if !m.finalised {
		return false
	}
	set, ok := m.sets[*key]
	if !ok {
		return false
	}
	for s := set; s != nil; s = s.parent {
		if s.Key == *ancestorKey {
			return true
		}
	}
	return false
}

// HaveSetDef reports whether key names a registered set class; unlike
// the other queries it also answers before Finalise.
func (m *DataModel) HaveSetDef(key *klv.UL) bool {
	_, ok := m.sets[*key]
	return ok
}
