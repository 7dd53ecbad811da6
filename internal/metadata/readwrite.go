package metadata

import (
	"fmt"
	"io"
	"log"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/schema"
)

// IsHeaderMetadata reports whether key begins the header metadata: the
// primer pack is always first.
func IsHeaderMetadata(key *klv.Key) bool {
	return IsPrimerPack(key)
}

// writeOrder returns the sets Preface-first in strong-reference
// pre-order, followed by any sets not reachable over strong edges, in
// insertion order.
func (hm *HeaderMetadata) writeOrder() ([]*Set, error) {
	preface, err := hm.Preface()
	if err != nil {
		return nil, err
	}
	visited := make(map[*Set]bool)
	var order []*Set
	var visit func(s *Set)
	visit = func(s *Set) {
		if visited[s] {
			return
		}
		visited[s] = true
		order = append(order, s)
		for _, t := range hm.strongRefTargets(s) {
			visit(t)
		}
	}
	visit(preface)
	for _, s := range hm.order {
		if !visited[s] {
			order = append(order, s)
		}
	}
	return order, nil
}

// BuildPrimer walks all items of all sets and assigns local tags:
// statically registered tags are reused, everything else gets a fresh
// dynamic tag at or above 0x8000.
func (hm *HeaderMetadata) BuildPrimer() (*Primer, error) {
	order, err := hm.writeOrder()
	if err != nil {
		return nil, err
	}
	primer := NewPrimer()
	for _, s := range order {
		for _, k := range s.order {
			k := k
			staticTag := uint16(0)
			if def, err := hm.model.FindItemDef(&s.Key, &k); err == nil && def.LocalTag != 0 && def.LocalTag < 0x8000 {
				staticTag = def.LocalTag
			}
			if _, err := primer.Register(&k, staticTag); err != nil {
				return nil, err
			}
		}
	}
	return primer, nil
}

// Write serialises the primer pack followed by every set,
// Preface-first. fillKey is used for per-set fixed-space padding.
func (hm *HeaderMetadata) Write(f mxfio.File, fillKey *klv.Key) error {
	primer, err := hm.BuildPrimer()
	if err != nil {
		return err
	}
	if err := primer.Write(f); err != nil {
		return err
	}
	order, err := hm.writeOrder()
	if err != nil {
		return err
	}
	for _, s := range order {
		if err := hm.writeSet(f, s, primer, fillKey); err != nil {
			return fmt.Errorf("writing set %s: %w", s.Key, err)
		}
	}
	return nil
}

func (hm *HeaderMetadata) writeSet(f mxfio.File, s *Set, primer *Primer, fillKey *klv.Key) error {
	var payloadLen uint64
	for _, k := range s.order {
		itemLen := len(s.items[k].Value)
		if itemLen > 0xffff {
			return fmt.Errorf("item %s length %d exceeds local set limit", &k, itemLen)
		}
		payloadLen += 4 + uint64(itemLen)
	}

	startPos := f.Tell()
	if err := klv.WriteKey(f, &s.Key); err != nil {
		return err
	}
	if _, err := klv.WriteL(f, payloadLen); err != nil {
		return err
	}
	for _, k := range s.order {
		k := k
		tag, ok := primer.byKey[k]
		if !ok {
			return fmt.Errorf("item %s missing from primer", &k)
		}
		item := s.items[k]
		if err := klv.WriteLocalTL(f, tag, uint16(len(item.Value))); err != nil {
			return err
		}
		if len(item.Value) > 0 {
			if _, err := f.Write(item.Value); err != nil {
				return err
			}
		}
	}

	if s.FixedSpace > 0 {
		written := uint64(f.Tell() - startPos)
		if written > s.FixedSpace {
			return fmt.Errorf("set needs %d bytes, fixed space is %d", written, s.FixedSpace)
		}
		if written < s.FixedSpace {
			if err := klv.WriteFill(f, fillKey, s.FixedSpace-written); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadFilter lets a caller decide, before and after each set is
// decoded, whether to retain it. Skipped sets have their payload
// discarded.
type ReadFilter struct {
	// BeforeSet is called with the set's KL; returning skip drops the
	// set without decoding it.
	BeforeSet func(key *klv.Key, llen uint8, length uint64) (skip bool, err error)

	// AfterSet is called with the decoded set; returning skip removes
	// it again.
	AfterSet func(set *Set) (skip bool, err error)
}

// Read decodes header metadata. The caller has already read the first
// KL of the metadata (which must be the primer pack) and passes it in
// along with the partition's headerByteCount, which bounds the
// metadata including the primer and any trailing fill.
func Read(f mxfio.File, model *schema.DataModel, headerByteCount uint64, key *klv.Key, llen uint8, length uint64, filter *ReadFilter) (*HeaderMetadata, error) {
	if !IsPrimerPack(key) {
		return nil, fmt.Errorf("metadata: header metadata does not start with a primer pack (key %s)", key)
	}
	primer, err := ReadPrimer(f, length)
	if err != nil {
		return nil, err
	}

	hm := New(model)
	remaining := int64(headerByteCount) - int64(klv.KeyExtlen) - int64(llen) - int64(length)
	for remaining > 0 {
		setKey, setLLen, setLen, err := klv.ReadKL(f)
		if err != nil {
			return nil, err
		}
		remaining -= int64(klv.KeyExtlen) + int64(setLLen) + int64(setLen)

		if klv.IsFill(&setKey) {
			if err := klv.Skip(f, setLen); err != nil {
				return nil, err
			}
			continue
		}

		if filter != nil && filter.BeforeSet != nil {
			skip, err := filter.BeforeSet(&setKey, setLLen, setLen)
			if err != nil {
				return nil, err
			}
			if skip {
				if err := klv.Skip(f, setLen); err != nil {
					return nil, err
				}
				continue
			}
		}

		set, err := hm.readSet(f, primer, &setKey, setLen)
		if err != nil {
			return nil, err
		}
		if set == nil {
			continue
		}
		if filter != nil && filter.AfterSet != nil {
			skip, err := filter.AfterSet(set)
			if err != nil {
				return nil, err
			}
			if skip {
				hm.RemoveSet(set)
			}
		}
	}
	return hm, nil
}

// readSet decodes one local set. Unknown local tags are dropped with a
// warning; a set without an InstanceUID is dropped entirely.
func (hm *HeaderMetadata) readSet(f mxfio.File, primer *Primer, setKey *klv.Key, setLen uint64) (*Set, error) {
	payload := make([]byte, setLen)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, err
	}

	type decoded struct {
		key   klv.UL
		value []byte
	}
	var items []decoded
	var uid klv.UUID
	haveUID := false

	for off := 0; off+4 <= len(payload); {
		tag := uint16(payload[off])<<8 | uint16(payload[off+1])
		itemLen := int(payload[off+2])<<8 | int(payload[off+3])
		off += 4
		if off+itemLen > len(payload) {
			return nil, fmt.Errorf("metadata: item 0x%04x overruns set %s", tag, setKey)
		}
		value := payload[off : off+itemLen]
		off += itemLen

		itemKey, ok := primer.Lookup(tag)
		if !ok {
			if def, err := hm.model.FindItemDefByTag(setKey, tag); err == nil {
				itemKey = def.Key
			} else {
				log.Printf("metadata: dropping unknown local tag 0x%04x in set %s", tag, setKey)
				continue
			}
		}
		if itemKey == schema.ItemInstanceUID && itemLen == klv.UUIDExtlen {
			copy(uid[:], value)
			haveUID = true
			continue
		}
		items = append(items, decoded{key: itemKey, value: value})
	}

	if !haveUID {
		log.Printf("metadata: dropping set %s without InstanceUID", setKey)
		return nil, nil
	}
	set, err := hm.addSet(setKey, uid)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		it := it
		set.setRaw(&it.key, it.value)
	}
	return set, nil
}
