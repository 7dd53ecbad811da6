package metadata

import (
	"fmt"
	"sort"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

// PrimerPackKey frames the on-disk local-tag map written immediately
// before the header metadata.
var PrimerPackKey = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01,
	0x0d, 0x01, 0x02, 0x01, 0x01, 0x05, 0x01, 0x00,
}

// IsPrimerPack reports whether key frames a primer pack.
func IsPrimerPack(key *klv.Key) bool {
	return klv.EqualsKeyModRegVer(key, &PrimerPackKey)
}

const primerEntrySize = 2 + klv.KeyExtlen

// Primer is the map between 16-bit local tags and item ULs. Tags below
// 0x8000 are statically registered; the primer assigns dynamic tags
// from 0x8000 upward.
type Primer struct {
	byTag   map[uint16]klv.UL
	byKey   map[klv.UL]uint16
	nextTag uint16
}

// NewPrimer returns an empty primer.
func NewPrimer() *Primer {
	return &Primer{
		byTag:   make(map[uint16]klv.UL),
		byKey:   make(map[klv.UL]uint16),
		nextTag: 0x8000,
	}
}

// Register returns the tag for itemKey, adding an entry. A nonzero
// staticTag is used as-is; otherwise a fresh dynamic tag is assigned.
func (p *Primer) Register(itemKey *klv.UL, staticTag uint16) (uint16, error) {
	if tag, ok := p.byKey[*itemKey]; ok {
		return tag, nil
	}
	tag := staticTag
	if tag == 0 {
		for {
			if _, used := p.byTag[p.nextTag]; !used {
				break
			}
			if p.nextTag == 0xffff {
				return 0, fmt.Errorf("metadata: primer out of dynamic tags")
			}
			p.nextTag++
		}
		tag = p.nextTag
		p.nextTag++
	} else if existing, used := p.byTag[tag]; used && existing != *itemKey {
		return 0, fmt.Errorf("metadata: local tag 0x%04x registered for %s and %s", tag, existing, itemKey)
	}
	p.byTag[tag] = *itemKey
	p.byKey[*itemKey] = tag
	return tag, nil
}

// Lookup resolves a local tag to its item UL.
func (p *Primer) Lookup(tag uint16) (klv.UL, bool) {
	ul, ok := p.byTag[tag]
	return ul, ok
}

// Write serialises the primer as a KLV at the current position.
func (p *Primer) Write(f mxfio.File) error {
	tags := make([]int, 0, len(p.byTag))
	for tag := range p.byTag {
		tags = append(tags, int(tag))
	}
	sort.Ints(tags)

	length := uint64(8 + len(tags)*primerEntrySize)
	if err := klv.WriteKL(f, &PrimerPackKey, length); err != nil {
		return err
	}
	if err := klv.WriteBatchHeader(f, uint32(len(tags)), primerEntrySize); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := klv.WriteUint16(f, uint16(tag)); err != nil {
			return err
		}
		ul := p.byTag[uint16(tag)]
		if err := klv.WriteKey(f, &ul); err != nil {
			return err
		}
	}
	return nil
}

// ReadPrimer decodes a primer pack whose KL has already been consumed.
func ReadPrimer(f mxfio.File, length uint64) (*Primer, error) {
	count, eleLen, err := klv.ReadBatchHeader(f)
	if err != nil {
		return nil, err
	}
	if eleLen != primerEntrySize {
		return nil, fmt.Errorf("metadata: primer entry length %d, want %d", eleLen, primerEntrySize)
	}
	if uint64(count)*primerEntrySize != length-8 {
		return nil, fmt.Errorf("metadata: primer length %d does not match %d entries", length, count)
	}
	p := NewPrimer()
	for i := uint32(0); i < count; i++ {
		tag, err := klv.ReadUint16(f)
		if err != nil {
			return nil, err
		}
		ul, err := klv.ReadKey(f)
		if err != nil {
			return nil, err
		}
		p.byTag[tag] = ul
		p.byKey[ul] = tag
		if tag >= p.nextTag {
			p.nextTag = tag + 1
		}
	}
	return p, nil
}
