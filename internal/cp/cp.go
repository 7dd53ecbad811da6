// Package cp implements the content package multiplexer: it
// accumulates samples per track and emits KAG-aligned content packages
// in the canonical element order (system item, picture, sound, data).
package cp

import (
	"errors"
	"fmt"

	"github.com/distr1/mxf/internal/index"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

var (
	ErrSequenceMismatch = errors.New("cp: sound sample sequence cannot be matched")
	ErrTooManyPending   = errors.New("cp: too many incomplete content packages")
)

// maxContentPackages caps the pending package queue plus the free
// list used to recycle package objects.
const maxContentPackages = 250

// SystemPackKey frames the SDTI-CP system metadata pack.
var SystemPackKey = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01,
	0x0d, 0x01, 0x03, 0x01, 0x04, 0x01, 0x01, 0x00,
}

// EmptyPackageMetadataSetKey frames the empty package metadata set
// following the system metadata pack.
var EmptyPackageMetadataSetKey = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x43, 0x01, 0x01,
	0x0d, 0x01, 0x03, 0x01, 0x04, 0x02, 0x01, 0x00,
}

// systemPackSize is the fixed system metadata pack payload: 7 core
// bytes, the 16-octet ESC label and two 17-byte date/time stamps.
const systemPackSize = 7 + 16 + 17 + 17

// llen is the fixed BER length size used for element KLVs so slots can
// be sized before payload lengths are known.
const llen = 4

// System metadata bitmap flags for the item types present.
const (
	sysMetaPictureFlag = 0x08
	sysMetaSoundFlag   = 0x04
	sysMetaDataFlag    = 0x02
)

// ElementType orders elements canonically.
type ElementType int

const (
	SystemElement ElementType = iota
	PictureElement
	SoundElement
	DataElement
)

// Element is a registered content package element.
type Element struct {
	TrackIndex uint32
	Key        klv.Key
	Type       ElementType

	// Sound elements: samples per edit unit sequence and bytes per
	// sample.
	SampleSequence []uint32
	SampleSize     uint32

	// Data elements: fixed essence length (0 for variable) and the
	// maximum length.
	ConstantLen uint32
	MaxLen      uint32

	maxSeqSamples    uint32
	variableSequence bool
	fixedElementSize uint32
	seqOffset        uint8
	seqOffsetSet     bool
}

// samplesAt returns the required sample count at position once the
// sequence offset is known.
func (e *Element) samplesAt(position int64) uint32 {
	if len(e.SampleSequence) == 0 {
		return 1
	}
	return e.SampleSequence[(position+int64(e.seqOffset))%int64(len(e.SampleSequence))]
}

// validSampleCount reports whether count appears in the sample
// sequence.
func (e *Element) validSampleCount(count uint32) bool {
	for _, n := range e.SampleSequence {
		if n == count {
			return true
		}
	}
	return false
}

// systemItemRateCode encodes the content package rate byte: the rate
// code in bits 1..3 with bit 0 flagging a 1/1.001 rate.
func systemItemRateCode(rate klv.Rational) (uint8, error) {
	codes := map[int32]uint8{24: 1, 25: 2, 30: 3, 48: 4, 50: 5, 60: 6}
	if rate.Denominator == 1 {
		if code, ok := codes[rate.Numerator]; ok {
			return code << 1, nil
		}
	}
	if rate.Denominator == 1001 && rate.Numerator%1000 == 0 {
		if code, ok := codes[rate.Numerator/1000]; ok {
			return code<<1 | 1, nil
		}
	}
	return 0, fmt.Errorf("cp: no system item rate code for %d/%d", rate.Numerator, rate.Denominator)
}

// RoundedTCBase returns the rounded timecode base for a frame rate.
func RoundedTCBase(rate klv.Rational) uint16 {
	if rate.Denominator == 0 {
		return 0
	}
	return uint16((int64(rate.Numerator) + int64(rate.Denominator)/2) / int64(rate.Denominator))
}

// Manager accumulates samples and emits ready content packages FIFO.
type Manager struct {
	f         mxfio.File
	table     *index.Table
	frameRate klv.Rational
	kagSize   uint32
	fillKey   klv.Key

	haveInputUserTimecode bool
	startTimecode         Timecode

	elements   []*Element
	elementMap map[uint32]*Element

	haveSystemItem bool
	sysMetaFlags   uint8
	rateCode       uint8

	soundSequence  []uint32
	soundSeqOffset uint8
	soundSeqSet    bool

	packages []*Package
	free     []*Package
	position int64
}

// NewManager returns a content package manager writing to f and
// reporting each emitted package to table.
func NewManager(f mxfio.File, table *index.Table, frameRate klv.Rational, kagSize uint32, fillKey *klv.Key) *Manager {
	return &Manager{
		f:          f,
		table:      table,
		frameRate:  frameRate,
		kagSize:    kagSize,
		fillKey:    *fillKey,
		elementMap: make(map[uint32]*Element),
	}
}

// SetHaveInputUserTimecode makes the system item wait for a caller
// supplied user timecode per edit unit.
func (m *Manager) SetHaveInputUserTimecode(enable bool) { m.haveInputUserTimecode = enable }

// SetStartTimecode sets the timecode the system item derives user
// timecodes from when none is supplied.
func (m *Manager) SetStartTimecode(tc Timecode) { m.startTimecode = tc }

// SetSoundSequenceOffset supplies the sample sequence phase instead of
// having it inferred.
func (m *Manager) SetSoundSequenceOffset(offset uint8) {
	m.soundSeqOffset = offset
	m.soundSeqSet = true
}

// SoundSequenceOffset returns the phase once known.
func (m *Manager) SoundSequenceOffset() (uint8, bool) { return m.soundSeqOffset, m.soundSeqSet }

// RegisterSystemItem reserves the fixed-size system metadata slot at
// the head of every content package.
func (m *Manager) RegisterSystemItem() {
	m.haveSystemItem = true
}

// RegisterPicture registers a picture element.
func (m *Manager) RegisterPicture(trackIndex uint32, elementKey klv.Key) {
	m.addElement(&Element{TrackIndex: trackIndex, Key: elementKey, Type: PictureElement})
	m.sysMetaFlags |= sysMetaPictureFlag
}

// RegisterSound registers a sound element with its per-edit-unit
// sample sequence and sample size.
func (m *Manager) RegisterSound(trackIndex uint32, elementKey klv.Key, sampleSequence []uint32, sampleSize uint32) {
	e := &Element{
		TrackIndex:     trackIndex,
		Key:            elementKey,
		Type:           SoundElement,
		SampleSequence: append([]uint32(nil), sampleSequence...),
		SampleSize:     sampleSize,
	}
	for _, n := range e.SampleSequence {
		if e.maxSeqSamples != 0 && n != e.maxSeqSamples {
			e.variableSequence = true
		}
		if n > e.maxSeqSamples {
			e.maxSeqSamples = n
		}
	}
	m.addElement(e)
	m.sysMetaFlags |= sysMetaSoundFlag
}

// RegisterData registers a data element with a constant essence length
// or, when constantLen is zero, a maximum length.
func (m *Manager) RegisterData(trackIndex uint32, elementKey klv.Key, constantLen, maxLen uint32) {
	m.addElement(&Element{
		TrackIndex:  trackIndex,
		Key:         elementKey,
		Type:        DataElement,
		ConstantLen: constantLen,
		MaxLen:      maxLen,
	})
	m.sysMetaFlags |= sysMetaDataFlag
}

func (m *Manager) addElement(e *Element) {
	m.elements = append(m.elements, e)
	m.elementMap[e.TrackIndex] = e
}

// PrepareWrite sorts elements into canonical order and checks sound
// sequences agree across sound elements.
func (m *Manager) PrepareWrite() error {
	rateCode, err := systemItemRateCode(m.frameRate)
	if err != nil {
		return err
	}
	m.rateCode = rateCode

	// stable sort to the canonical element order
	ordered := make([]*Element, 0, len(m.elements))
	for _, typ := range []ElementType{SystemElement, PictureElement, SoundElement, DataElement} {
		for _, e := range m.elements {
			if e.Type == typ {
				ordered = append(ordered, e)
			}
		}
	}
	m.elements = ordered

	for _, e := range m.elements {
		if e.Type != SoundElement {
			continue
		}
		if m.soundSequence == nil {
			m.soundSequence = e.SampleSequence
			continue
		}
		if len(m.soundSequence) != len(e.SampleSequence) {
			return fmt.Errorf("%w: sound tracks have different sequences", ErrSequenceMismatch)
		}
		for i := range m.soundSequence {
			if m.soundSequence[i] != e.SampleSequence[i] {
				return fmt.Errorf("%w: sound tracks have different sequences", ErrSequenceMismatch)
			}
		}
	}

	if len(m.soundSequence) <= 1 {
		m.soundSeqOffset = 0
		m.soundSeqSet = true
	} else if m.soundSeqSet {
		m.soundSeqOffset %= uint8(len(m.soundSequence))
	}
	if m.soundSeqSet {
		m.commitSequenceOffset()
	}

	for _, e := range m.elements {
		switch e.Type {
		case SoundElement:
			e.fixedElementSize = m.alignedSlot(klv.KeyExtlen + llen + e.maxSeqSamples*e.SampleSize)
			if e.variableSequence && e.fixedElementSize == klv.KeyExtlen+llen+e.maxSeqSamples*e.SampleSize {
				// allow space to include a KLV fill
				e.fixedElementSize = m.alignedSlot(klv.KeyExtlen + llen + e.maxSeqSamples*e.SampleSize +
					klv.KeyExtlen + llen)
			}
		case DataElement:
			if e.ConstantLen != 0 {
				e.fixedElementSize = m.alignedSlot(klv.KeyExtlen + llen + e.ConstantLen)
			} else if e.MaxLen != 0 {
				e.fixedElementSize = m.alignedSlot(klv.KeyExtlen + llen + e.MaxLen)
				if e.fixedElementSize == klv.KeyExtlen+llen+e.MaxLen {
					// allow space to include a KLV fill
					e.fixedElementSize = m.alignedSlot(klv.KeyExtlen + llen + e.MaxLen +
						klv.KeyExtlen + llen)
				}
			}
		}
	}
	return nil
}

func (m *Manager) commitSequenceOffset() {
	for _, e := range m.elements {
		e.seqOffset = m.soundSeqOffset
		e.seqOffsetSet = true
	}
}

// Position returns the edit unit position of the next package to be
// emitted.
func (m *Manager) Position() int64 { return m.position }
