package metadata

import (
	"fmt"

	"github.com/distr1/mxf/internal/klv"
)

// SetIterator walks the sets of a metadata container in order. It
// doubles as the position hint for DerefStrongHint during a traversal
// that visits sets in write order.
type SetIterator struct {
	hm  *HeaderMetadata
	pos int
}

// Iterate returns an iterator positioned before the first set.
func (hm *HeaderMetadata) Iterate() *SetIterator {
	return &SetIterator{hm: hm}
}

// Next returns the next set, or nil when exhausted.
func (it *SetIterator) Next() *Set {
	if it.pos >= len(it.hm.order) {
		return nil
	}
	s := it.hm.order[it.pos]
	it.pos++
	return s
}

// DerefStrongHint resolves uid, first checking the iterator's current
// position so a traversal in known order dereferences in O(1) without
// consulting the map. The iterator is advanced past a successful hit.
func (hm *HeaderMetadata) DerefStrongHint(it *SetIterator, uid klv.UUID) (*Set, error) {
	if it != nil && it.pos < len(hm.order) {
		if s := hm.order[it.pos]; s.InstanceUID() == uid {
			it.pos++
			return s, nil
		}
	}
	s, ok := hm.sets[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDanglingStrongRef, uid)
	}
	return s, nil
}
