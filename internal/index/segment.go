// Package index implements the MXF index table engine: segment-based
// indexes of edit-unit byte offsets in constant (CBE) and variable
// (VBE) byte-count modes.
package index

import (
	"errors"
	"fmt"
	"log"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

var (
	ErrBacklog        = errors.New("index: unresolved index entry backlog")
	ErrCBESizeChanged = errors.New("index: CBE sub-element size changed mid-stream")
)

// SegmentKey frames an index table segment.
var SegmentKey = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x53, 0x01, 0x01,
	0x0d, 0x01, 0x02, 0x01, 0x01, 0x10, 0x01, 0x00,
}

// IsSegment reports whether key frames an index table segment.
func IsSegment(key *klv.Key) bool {
	return klv.EqualsKeyModRegVer(key, &SegmentKey)
}

// OptBool is a tri-state boolean for the optional segment items.
type OptBool int

const (
	OptBoolNotPresent OptBool = iota
	OptBoolFalse
	OptBoolTrue
)

// DeltaEntry describes one sub-element of the content package.
type DeltaEntry struct {
	PosTableIndex int8
	Slice         uint8
	ElementDelta  uint32
}

// Entry is one edit unit's index entry.
type Entry struct {
	TemporalOffset int8
	KeyFrameOffset int8
	Flags          uint8
	StreamOffset   uint64
	SliceOffsets   []uint32
	PosTable       []klv.Rational
}

// Entry flag bits.
const (
	FlagRandomAccess   = 0x80
	FlagSequenceHeader = 0x08
)

// Segment is an index table segment for the stream
// (BodySID, IndexSID).
type Segment struct {
	InstanceUID        klv.UUID
	IndexEditRate      klv.Rational
	IndexStartPosition int64
	IndexDuration      int64
	EditUnitByteCount  uint32
	IndexSID           uint32
	BodySID            uint32
	SliceCount         uint8
	PosTableCount      uint8
	DeltaEntries       []DeltaEntry
	Entries            []Entry

	ExtStartOffset        uint64
	VBEByteCount          uint64
	SingleIndexLocation   OptBool
	SingleEssenceLocation OptBool
	ForwardIndexDirection OptBool

	// ForceWriteSliceCount writes the slice count item even without an
	// index entry array.
	ForceWriteSliceCount bool

	// ForceWriteCBEDuration0 writes a zero duration for a CBE segment
	// whose final duration is unknown until the footer.
	ForceWriteCBEDuration0 bool
}

func (s *Segment) entrySize() uint32 {
	return 11 + uint32(s.SliceCount)*4 + uint32(s.PosTableCount)*8
}

// wireLen computes the KLV value length, mirroring the write path.
func (s *Segment) wireLen(numEntries int, rawEntryLen uint64) uint64 {
	segmentLen := uint64(80)
	if len(s.DeltaEntries) > 0 {
		segmentLen += 12 + 6*uint64(len(s.DeltaEntries))
	}
	if numEntries > 0 {
		segmentLen += 22 + rawEntryLen
	} else if s.ForceWriteSliceCount {
		segmentLen += 5
	}
	if s.ExtStartOffset != 0 {
		segmentLen += 12
	}
	if s.VBEByteCount != 0 {
		segmentLen += 12
	}
	for _, b := range []OptBool{s.SingleIndexLocation, s.SingleEssenceLocation, s.ForwardIndexDirection} {
		if b != OptBoolNotPresent {
			segmentLen += 5
		}
	}
	return segmentLen
}

// Write serialises the segment, including any parsed entries.
func (s *Segment) Write(f mxfio.File) error {
	var raw []byte
	if len(s.Entries) > 0 {
		raw = s.encodeEntries()
	}
	return s.writeWithRawEntries(f, raw, len(s.Entries))
}

func (s *Segment) encodeEntries() []byte {
	size := s.entrySize()
	raw := make([]byte, 0, int(size)*len(s.Entries))
	for _, e := range s.Entries {
		raw = append(raw, byte(e.TemporalOffset), byte(e.KeyFrameOffset), e.Flags)
		raw = append(raw,
			byte(e.StreamOffset>>56), byte(e.StreamOffset>>48), byte(e.StreamOffset>>40), byte(e.StreamOffset>>32),
			byte(e.StreamOffset>>24), byte(e.StreamOffset>>16), byte(e.StreamOffset>>8), byte(e.StreamOffset))
		for _, so := range e.SliceOffsets {
			raw = append(raw, byte(so>>24), byte(so>>16), byte(so>>8), byte(so))
		}
		for _, pt := range e.PosTable {
			n, d := uint32(pt.Numerator), uint32(pt.Denominator)
			raw = append(raw, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
			raw = append(raw, byte(d>>24), byte(d>>16), byte(d>>8), byte(d))
		}
	}
	return raw
}

// writeWithRawEntries writes the segment with pre-serialised index
// entries (the engine keeps VBE entries in wire form).
func (s *Segment) writeWithRawEntries(f mxfio.File, rawEntries []byte, numEntries int) error {
	if err := klv.WriteKL(f, &SegmentKey, s.wireLen(numEntries, uint64(len(rawEntries)))); err != nil {
		return err
	}

	if err := klv.WriteLocalTL(f, 0x3c0a, klv.UUIDExtlen); err != nil {
		return err
	}
	if err := klv.WriteUUID(f, &s.InstanceUID); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f0b, 8); err != nil {
		return err
	}
	if err := klv.WriteInt32(f, s.IndexEditRate.Numerator); err != nil {
		return err
	}
	if err := klv.WriteInt32(f, s.IndexEditRate.Denominator); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f0c, 8); err != nil {
		return err
	}
	if err := klv.WriteInt64(f, s.IndexStartPosition); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f0d, 8); err != nil {
		return err
	}
	duration := s.IndexDuration
	if numEntries == 0 && s.ForceWriteCBEDuration0 {
		duration = 0
	}
	if err := klv.WriteInt64(f, duration); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f05, 4); err != nil {
		return err
	}
	if err := klv.WriteUint32(f, s.EditUnitByteCount); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f06, 4); err != nil {
		return err
	}
	if err := klv.WriteUint32(f, s.IndexSID); err != nil {
		return err
	}
	if err := klv.WriteLocalTL(f, 0x3f07, 4); err != nil {
		return err
	}
	if err := klv.WriteUint32(f, s.BodySID); err != nil {
		return err
	}

	if numEntries > 0 {
		if err := klv.WriteLocalTL(f, 0x3f08, 1); err != nil {
			return err
		}
		if err := klv.WriteUint8(f, s.SliceCount); err != nil {
			return err
		}
		if err := klv.WriteLocalTL(f, 0x3f0e, 1); err != nil {
			return err
		}
		if err := klv.WriteUint8(f, s.PosTableCount); err != nil {
			return err
		}
	} else if s.ForceWriteSliceCount {
		if err := klv.WriteLocalTL(f, 0x3f08, 1); err != nil {
			return err
		}
		if err := klv.WriteUint8(f, s.SliceCount); err != nil {
			return err
		}
	}
	if s.ExtStartOffset != 0 {
		if err := klv.WriteLocalTL(f, 0x3f0f, 8); err != nil {
			return err
		}
		if err := klv.WriteUint64(f, s.ExtStartOffset); err != nil {
			return err
		}
	}
	if s.VBEByteCount != 0 {
		if err := klv.WriteLocalTL(f, 0x3f10, 8); err != nil {
			return err
		}
		if err := klv.WriteUint64(f, s.VBEByteCount); err != nil {
			return err
		}
	}
	optBools := []struct {
		tag uint16
		val OptBool
	}{
		{0x3f11, s.SingleIndexLocation},
		{0x3f12, s.SingleEssenceLocation},
		{0x3f13, s.ForwardIndexDirection},
	}
	for _, ob := range optBools {
		if ob.val == OptBoolNotPresent {
			continue
		}
		if err := klv.WriteLocalTL(f, ob.tag, 1); err != nil {
			return err
		}
		v := uint8(0)
		if ob.val == OptBoolTrue {
			v = 1
		}
		if err := klv.WriteUint8(f, v); err != nil {
			return err
		}
	}

	if len(s.DeltaEntries) > 0 {
		if err := klv.WriteLocalTL(f, 0x3f09, uint16(8+len(s.DeltaEntries)*6)); err != nil {
			return err
		}
		if err := klv.WriteBatchHeader(f, uint32(len(s.DeltaEntries)), 6); err != nil {
			return err
		}
		for _, d := range s.DeltaEntries {
			if err := klv.WriteInt8(f, d.PosTableIndex); err != nil {
				return err
			}
			if err := klv.WriteUint8(f, d.Slice); err != nil {
				return err
			}
			if err := klv.WriteUint32(f, d.ElementDelta); err != nil {
				return err
			}
		}
	}

	if numEntries > 0 {
		entrySize := s.entrySize()
		if err := klv.WriteLocalTL(f, 0x3f0a, uint16(8+uint64(len(rawEntries)))); err != nil {
			return err
		}
		if err := klv.WriteBatchHeader(f, uint32(numEntries), entrySize); err != nil {
			return err
		}
		if _, err := f.Write(rawEntries); err != nil {
			return err
		}
	}
	return nil
}

// ReadSegment decodes an index table segment whose KL has already been
// consumed.
func ReadSegment(f mxfio.File, length uint64) (*Segment, error) {
	s := &Segment{}
	var rawEntries []byte
	var numEntries, entryLen uint32

	remaining := int64(length)
	for remaining > 0 {
		tag, itemLen, err := klv.ReadLocalTL(f)
		if err != nil {
			return nil, err
		}
		remaining -= 4 + int64(itemLen)
		if remaining < 0 {
			return nil, fmt.Errorf("index: item 0x%04x overruns segment", tag)
		}

		switch tag {
		case 0x3c0a:
			if s.InstanceUID, err = klv.ReadUUID(f); err != nil {
				return nil, err
			}
		case 0x3f0b:
			if s.IndexEditRate.Numerator, err = klv.ReadInt32(f); err != nil {
				return nil, err
			}
			if s.IndexEditRate.Denominator, err = klv.ReadInt32(f); err != nil {
				return nil, err
			}
		case 0x3f0c:
			if s.IndexStartPosition, err = klv.ReadInt64(f); err != nil {
				return nil, err
			}
		case 0x3f0d:
			if s.IndexDuration, err = klv.ReadInt64(f); err != nil {
				return nil, err
			}
		case 0x3f05:
			if s.EditUnitByteCount, err = klv.ReadUint32(f); err != nil {
				return nil, err
			}
		case 0x3f06:
			if s.IndexSID, err = klv.ReadUint32(f); err != nil {
				return nil, err
			}
		case 0x3f07:
			if s.BodySID, err = klv.ReadUint32(f); err != nil {
				return nil, err
			}
		case 0x3f08:
			if s.SliceCount, err = klv.ReadUint8(f); err != nil {
				return nil, err
			}
		case 0x3f0e:
			if s.PosTableCount, err = klv.ReadUint8(f); err != nil {
				return nil, err
			}
		case 0x3f0f:
			if s.ExtStartOffset, err = klv.ReadUint64(f); err != nil {
				return nil, err
			}
		case 0x3f10:
			if s.VBEByteCount, err = klv.ReadUint64(f); err != nil {
				return nil, err
			}
		case 0x3f11, 0x3f12, 0x3f13:
			v, err := klv.ReadUint8(f)
			if err != nil {
				return nil, err
			}
			ob := OptBoolFalse
			if v != 0 {
				ob = OptBoolTrue
			}
			switch tag {
			case 0x3f11:
				s.SingleIndexLocation = ob
			case 0x3f12:
				s.SingleEssenceLocation = ob
			case 0x3f13:
				s.ForwardIndexDirection = ob
			}
		case 0x3f09:
			count, eleLen, err := klv.ReadBatchHeader(f)
			if err != nil {
				return nil, err
			}
			if eleLen != 6 || uint64(count)*6 != uint64(itemLen)-8 {
				return nil, fmt.Errorf("index: bad delta entry array (%d x %d in %d bytes)", count, eleLen, itemLen)
			}
			for i := uint32(0); i < count; i++ {
				var d DeltaEntry
				v, err := klv.ReadInt8(f)
				if err != nil {
					return nil, err
				}
				d.PosTableIndex = v
				if d.Slice, err = klv.ReadUint8(f); err != nil {
					return nil, err
				}
				if d.ElementDelta, err = klv.ReadUint32(f); err != nil {
					return nil, err
				}
				s.DeltaEntries = append(s.DeltaEntries, d)
			}
		case 0x3f0a:
			var err error
			if numEntries, entryLen, err = klv.ReadBatchHeader(f); err != nil {
				return nil, err
			}
			if entryLen == 0 || uint64(numEntries)*uint64(entryLen) > uint64(itemLen)-8 {
				return nil, fmt.Errorf("index: bad index entry array (%d x %d in %d bytes)", numEntries, entryLen, itemLen)
			}
			rawEntries = make([]byte, uint64(numEntries)*uint64(entryLen))
			if err := readFull(f, rawEntries); err != nil {
				return nil, err
			}
			// any padding after the declared entries
			if pad := uint64(itemLen) - 8 - uint64(len(rawEntries)); pad > 0 {
				if err := klv.Skip(f, pad); err != nil {
					return nil, err
				}
			}
		default:
			if err := klv.Skip(f, uint64(itemLen)); err != nil {
				return nil, err
			}
		}
	}

	if rawEntries != nil {
		if err := s.decodeEntries(rawEntries, numEntries, entryLen); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// decodeEntries parses the raw index entry array. Some sample files
// declare SliceCount 1 but write 11-byte entries without slice bytes;
// the declared entry length wins and a warning is logged.
func (s *Segment) decodeEntries(raw []byte, count, entryLen uint32) error {
	expected := s.entrySize()
	if entryLen != expected {
		log.Printf("index: entry length %d does not match slice count %d and pos table count %d (expected %d); trusting entry length",
			entryLen, s.SliceCount, s.PosTableCount, expected)
	}
	if entryLen < 11 {
		return fmt.Errorf("index: entry length %d below minimum 11", entryLen)
	}
	for i := uint32(0); i < count; i++ {
		b := raw[i*entryLen : (i+1)*entryLen]
		e := Entry{
			TemporalOffset: int8(b[0]),
			KeyFrameOffset: int8(b[1]),
			Flags:          b[2],
		}
		for _, bb := range b[3:11] {
			e.StreamOffset = e.StreamOffset<<8 | uint64(bb)
		}
		rest := b[11:]
		for sc := uint8(0); sc < s.SliceCount && len(rest) >= 4; sc++ {
			e.SliceOffsets = append(e.SliceOffsets, uint32(rest[0])<<24|uint32(rest[1])<<16|uint32(rest[2])<<8|uint32(rest[3]))
			rest = rest[4:]
		}
		for pc := uint8(0); pc < s.PosTableCount && len(rest) >= 8; pc++ {
			e.PosTable = append(e.PosTable, klv.Rational{
				Numerator:   int32(uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])),
				Denominator: int32(uint32(rest[4])<<24 | uint32(rest[5])<<16 | uint32(rest[6])<<8 | uint32(rest[7])),
			})
			rest = rest[8:]
		}
		s.Entries = append(s.Entries, e)
	}
	return nil
}

func readFull(f mxfio.File, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
	}
	return nil
}
