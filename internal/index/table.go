package index

import (
	"fmt"
	"sort"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/partition"
)

// MaxSegmentSize caps the index entry bytes per VBE segment so the
// 16-bit local item length can never overflow for any sane slice and
// pos table count.
const MaxSegmentSize = 65000

// maxGOPSizeGuess closes a VBE segment early when an entry that can
// start a partition arrives within a GOP's worth of the cap.
const maxGOPSizeGuess = 30

// maxCachedEntries bounds the per-element backlog of entries whose
// temporal offset is still unresolved.
const maxCachedEntries = 250

// ElementType orders content package elements canonically.
type ElementType int

const (
	SystemElement ElementType = iota
	PictureElement
	SoundElement
	DataElement
)

type cachedEntry struct {
	temporalOffset    int8
	keyFrameOffset    int8
	flags             uint8
	canStartPartition bool
}

// Element is one registered sub-element of the content package.
type Element struct {
	TrackIndex uint32
	Type       ElementType
	IsCBE      bool

	// ApplyTemporalReordering sets the delta entry's pos table index
	// to -1 for elements whose display order differs from coded order.
	ApplyTemporalReordering bool

	sliceOffset uint8
	elementSize uint32
	entryCache  map[int64]cachedEntry
}

func (e *Element) cacheEntry(position int64, entry cachedEntry) error {
	if len(e.entryCache) >= maxCachedEntries {
		return fmt.Errorf("%w: element %d has %d entries pending", ErrBacklog, e.TrackIndex, len(e.entryCache))
	}
	e.entryCache[position] = entry
	return nil
}

func (e *Element) canStartPartition(position int64) bool {
	entry, ok := e.entryCache[position]
	if !ok {
		return true
	}
	return entry.canStartPartition
}

// tableSegment accumulates index entries in wire form so they can be
// patched in place until flushed.
type tableSegment struct {
	segment   Segment
	entries   []byte
	entrySize uint32
}

func (ts *tableSegment) duration() int64 {
	if ts.entrySize == 0 {
		return ts.segment.IndexDuration
	}
	return int64(len(ts.entries)) / int64(ts.entrySize)
}

// requireNew reports whether the next entry must open a new segment.
func (ts *tableSegment) requireNew(canStartPartition bool) bool {
	return len(ts.entries) >= MaxSegmentSize ||
		(len(ts.entries) >= MaxSegmentSize-maxGOPSizeGuess*int(ts.entrySize) && canStartPartition)
}

func (ts *tableSegment) addEntry(e *cachedEntry, streamOffset int64, sliceCPOffsets []uint32) {
	buf := make([]byte, 11+len(sliceCPOffsets)*4)
	buf[0] = byte(e.temporalOffset)
	buf[1] = byte(e.keyFrameOffset)
	buf[2] = e.flags
	for i := 0; i < 8; i++ {
		buf[3+i] = byte(uint64(streamOffset) >> ((7 - i) * 8))
	}
	for i, so := range sliceCPOffsets {
		buf[11+i*4] = byte(so >> 24)
		buf[11+i*4+1] = byte(so >> 16)
		buf[11+i*4+2] = byte(so >> 8)
		buf[11+i*4+3] = byte(so)
	}
	ts.entries = append(ts.entries, buf...)
	ts.segment.IndexDuration = ts.duration()
}

// updateEntry patches the temporal offset of the entry at
// segmentPosition in place.
func (ts *tableSegment) updateEntry(segmentPosition int64, temporalOffset int8) {
	ts.entries[segmentPosition*int64(ts.entrySize)] = byte(temporalOffset)
}

// addCBEEntries extends a CBE segment.
func (ts *tableSegment) addCBEEntries(editUnitByteCount uint32, numEntries uint32) {
	ts.segment.EditUnitByteCount = editUnitByteCount
	ts.segment.IndexDuration += int64(numEntries)
}

// Table is the index table engine for one (BodySID, IndexSID) stream.
type Table struct {
	indexSID uint32
	bodySID  uint32
	editRate klv.Rational

	elements   []*Element
	elementMap map[uint32]*Element

	isCBE    bool
	haveAVCI bool

	sliceCount     uint8
	indexEntrySize uint32
	deltaEntries   []DeltaEntry

	segments         []*tableSegment
	avciFirstSegment *tableSegment

	duration      int64
	streamOffset  int64
	inputDuration int64

	forceWriteSliceCount bool

	singleIndexLocation   OptBool
	singleEssenceLocation OptBool
	forwardIndexDirection OptBool
}

// NewTable returns an index table engine for the stream.
func NewTable(indexSID, bodySID uint32, editRate klv.Rational, forceWriteSliceCount bool) *Table {
	return &Table{
		indexSID:             indexSID,
		bodySID:              bodySID,
		editRate:             editRate,
		elementMap:           make(map[uint32]*Element),
		isCBE:                true,
		inputDuration:        -1,
		forceWriteSliceCount: forceWriteSliceCount,
	}
}

// SetEditRate replaces the edit rate before writing begins.
func (t *Table) SetEditRate(editRate klv.Rational) { t.editRate = editRate }

// SetExtensions sets the optional ST 377-1 segment items.
func (t *Table) SetExtensions(singleIndexLocation, singleEssenceLocation, forwardIndexDirection OptBool) {
	t.singleIndexLocation = singleIndexLocation
	t.singleEssenceLocation = singleEssenceLocation
	t.forwardIndexDirection = forwardIndexDirection
}

// SetInputDuration supplies the total duration for single-pass CBE
// writes, letting the duration be written once rather than re-written
// at finalisation.
func (t *Table) SetInputDuration(duration int64) { t.inputDuration = duration }

// IndexSID returns the index stream identifier.
func (t *Table) IndexSID() uint32 { return t.indexSID }

// BodySID returns the essence stream identifier.
func (t *Table) BodySID() uint32 { return t.bodySID }

// RegisterSystemItem registers the fixed-size system item element.
func (t *Table) RegisterSystemItem() {
	t.register(&Element{Type: SystemElement, IsCBE: true, TrackIndex: systemItemTrackIndex})
}

// systemItemTrackIndex is the reserved track index of the system item.
const systemItemTrackIndex = 0xffffffff

// RegisterPictureElement registers a picture element.
func (t *Table) RegisterPictureElement(trackIndex uint32, isCBE, applyTemporalReordering bool) {
	t.register(&Element{
		TrackIndex:              trackIndex,
		Type:                    PictureElement,
		IsCBE:                   isCBE,
		ApplyTemporalReordering: applyTemporalReordering,
	})
	t.isCBE = t.isCBE && isCBE
}

// RegisterAVCIElement registers an AVCI picture element: CBE with a
// one-off larger first edit unit carrying the parameter sets.
func (t *Table) RegisterAVCIElement(trackIndex uint32) {
	t.register(&Element{TrackIndex: trackIndex, Type: PictureElement, IsCBE: true})
	t.haveAVCI = true
}

// RegisterSoundElement registers a sound element.
func (t *Table) RegisterSoundElement(trackIndex uint32) {
	t.register(&Element{TrackIndex: trackIndex, Type: SoundElement, IsCBE: true})
}

// RegisterDataElement registers a data element.
func (t *Table) RegisterDataElement(trackIndex uint32, isCBE bool) {
	t.register(&Element{TrackIndex: trackIndex, Type: DataElement, IsCBE: isCBE})
	t.isCBE = t.isCBE && isCBE
}

func (t *Table) register(e *Element) {
	e.entryCache = make(map[int64]cachedEntry)
	t.elements = append(t.elements, e)
	t.elementMap[e.TrackIndex] = e
}

// PrepareWrite sorts the elements into canonical order and computes
// slices and the index entry size.
func (t *Table) PrepareWrite() {
	sort.SliceStable(t.elements, func(i, j int) bool {
		return t.elements[i].Type < t.elements[j].Type
	})

	t.indexEntrySize = 11
	t.sliceCount = 0
	for i, e := range t.elements {
		if i > 0 && !t.elements[i-1].IsCBE {
			t.sliceCount++
			t.indexEntrySize += 4
		}
		e.sliceOffset = t.sliceCount
	}

	t.segments = append(t.segments, t.newSegment(0))
	if t.RequireSegmentPair() {
		t.avciFirstSegment = t.newSegment(0)
	}
}

func (t *Table) newSegment(startPosition int64) *tableSegment {
	ts := &tableSegment{
		segment: Segment{
			InstanceUID:            klv.GenerateUUID(),
			IndexEditRate:          t.editRate,
			IndexStartPosition:     startPosition,
			IndexSID:               t.indexSID,
			BodySID:                t.bodySID,
			SliceCount:             t.sliceCount,
			ForceWriteSliceCount:   t.forceWriteSliceCount,
			SingleIndexLocation:    t.singleIndexLocation,
			SingleEssenceLocation:  t.singleEssenceLocation,
			ForwardIndexDirection:  t.forwardIndexDirection,
			ForceWriteCBEDuration0: t.inputDuration < 0,
		},
	}
	if !t.isCBE {
		ts.entrySize = t.indexEntrySize
	}
	return ts
}

// RequireSegmentPair reports whether a first-edit-unit CBE segment is
// kept alongside the steady-state segment (AVCI parameter sets).
func (t *Table) RequireSegmentPair() bool { return t.haveAVCI }

// IsCBE reports whether every element has a constant edit-unit byte
// count.
func (t *Table) IsCBE() bool { return t.isCBE }

// IsVBE reports the opposite of IsCBE.
func (t *Table) IsVBE() bool { return !t.isCBE }

// Duration returns the number of indexed edit units.
func (t *Table) Duration() int64 { return t.duration }

// StreamOffset returns the running essence stream offset.
func (t *Table) StreamOffset() int64 { return t.streamOffset }

// AddIndexEntry caches a VBE index entry for the edit unit at position
// in coded order. The temporal offset may still be provisional; see
// UpdateIndexEntry.
func (t *Table) AddIndexEntry(trackIndex uint32, position int64, temporalOffset, keyFrameOffset int8, flags uint8, canStartPartition bool) error {
	if t.isCBE {
		return fmt.Errorf("index: index entries are computed for CBE streams")
	}
	if position < t.duration {
		return fmt.Errorf("index: entry position %d before duration %d", position, t.duration)
	}
	e, ok := t.elementMap[trackIndex]
	if !ok {
		return fmt.Errorf("index: unregistered track %d", trackIndex)
	}
	return e.cacheEntry(position, cachedEntry{
		temporalOffset:    temporalOffset,
		keyFrameOffset:    keyFrameOffset,
		flags:             flags,
		canStartPartition: canStartPartition,
	})
}

// UpdateIndexEntry back-fills the temporal offset of the entry at
// position: in the element cache when the edit unit is still pending,
// otherwise by patching the containing unflushed segment in place.
func (t *Table) UpdateIndexEntry(trackIndex uint32, position int64, temporalOffset int8) error {
	if t.isCBE {
		return fmt.Errorf("index: temporal offsets do not apply to CBE streams")
	}
	if position < 0 {
		return fmt.Errorf("index: invalid position %d", position)
	}
	if position >= t.duration {
		e, ok := t.elementMap[trackIndex]
		if !ok {
			return fmt.Errorf("index: unregistered track %d", trackIndex)
		}
		entry, ok := e.entryCache[position]
		if !ok {
			return fmt.Errorf("index: no pending entry at position %d", position)
		}
		entry.temporalOffset = temporalOffset
		e.entryCache[position] = entry
		return nil
	}

	endOffset := t.duration - position
	i := len(t.segments) - 1
	for endOffset > t.segments[i].duration() {
		endOffset -= t.segments[i].duration()
		i--
		if i < 0 {
			return fmt.Errorf("index: position %d is in a segment already written", position)
		}
	}
	t.segments[i].updateEntry(t.segments[i].duration()-endOffset, temporalOffset)
	return nil
}

// CanStartPartition reports whether a partition boundary may be placed
// before the next edit unit: always for CBE, and for VBE only when no
// element's pending entry forbids it (open-GOP B frames do).
func (t *Table) CanStartPartition() bool {
	if t.isCBE {
		return true
	}
	for _, e := range t.elements {
		if !e.canStartPartition(t.duration) {
			return false
		}
	}
	return true
}

// UpdateIndex records the content package at the current position:
// size is the whole package byte count and elementSizes the per
// sub-element sizes, in element order.
func (t *Table) UpdateIndex(size uint32, elementSizes []uint32) error {
	if len(elementSizes) != len(t.elements) {
		return fmt.Errorf("index: %d element sizes for %d elements", len(elementSizes), len(t.elements))
	}

	if t.duration == 0 || (t.avciFirstSegment != nil && t.duration == 1) {
		t.createDeltaEntries(elementSizes)
	} else if err := t.checkDeltaEntries(elementSizes); err != nil {
		return err
	}

	if t.isCBE {
		if err := t.updateCBEIndex(size, elementSizes); err != nil {
			return err
		}
	} else if err := t.updateVBEIndex(elementSizes); err != nil {
		return err
	}

	t.duration++
	t.streamOffset += int64(size)
	return nil
}

// UpdateIndexBatch records numSamples equally sized edit units written
// as one clip-wrapped block (single CBE element only).
func (t *Table) UpdateIndexBatch(size uint32, numSamples uint32) error {
	if numSamples == 1 {
		return t.UpdateIndex(size, []uint32{size})
	}
	if len(t.elements) != 1 || !t.isCBE {
		return fmt.Errorf("index: batched updates need a single CBE element")
	}
	if numSamples == 0 || size%numSamples != 0 {
		return fmt.Errorf("index: %d bytes is not a whole number of %d samples", size, numSamples)
	}
	t.segments[0].addCBEEntries(size/numSamples, numSamples)
	t.duration += int64(numSamples)
	t.streamOffset += int64(size)
	return nil
}

func (t *Table) createDeltaEntries(elementSizes []uint32) {
	t.deltaEntries = t.deltaEntries[:0]

	prevSliceOffset := uint8(0)
	elementDelta := uint32(0)
	for i, e := range t.elements {
		if e.sliceOffset != prevSliceOffset {
			elementDelta = 0
		}
		entry := DeltaEntry{Slice: e.sliceOffset, ElementDelta: elementDelta}
		if e.ApplyTemporalReordering {
			entry.PosTableIndex = -1
		}
		t.deltaEntries = append(t.deltaEntries, entry)

		prevSliceOffset = e.sliceOffset
		elementDelta += elementSizes[i]
		if e.IsCBE {
			e.elementSize = elementSizes[i]
		}
	}
	if len(t.deltaEntries) == 1 && t.deltaEntries[0] == (DeltaEntry{}) {
		// a single element starting at delta 0 needs no array
		t.deltaEntries = t.deltaEntries[:0]
	}

	if t.isCBE {
		target := t.segments[0]
		if t.avciFirstSegment != nil && t.duration == 0 {
			target = t.avciFirstSegment
		}
		target.segment.DeltaEntries = append([]DeltaEntry(nil), t.deltaEntries...)
	}
}

func (t *Table) checkDeltaEntries(elementSizes []uint32) error {
	for i, e := range t.elements {
		if e.IsCBE && e.elementSize != elementSizes[i] {
			return fmt.Errorf("%w: element %d was %d bytes, now %d", ErrCBESizeChanged, i, e.elementSize, elementSizes[i])
		}
	}
	return nil
}

func (t *Table) updateCBEIndex(size uint32, elementSizes []uint32) error {
	if t.duration == 0 && t.avciFirstSegment != nil {
		t.avciFirstSegment.addCBEEntries(size, 1)
		t.segments[0].segment.IndexStartPosition = 1
		return nil
	}
	// collapse the first AVCI segment if the steady-state edit unit
	// size turns out to be the same (parameter sets on every frame)
	if t.duration == 1 && t.avciFirstSegment != nil &&
		t.avciFirstSegment.segment.EditUnitByteCount == size && t.elementSizesUnchanged(elementSizes) {
		t.avciFirstSegment = nil
		t.segments[0].segment.IndexStartPosition = 0
		t.segments[0].addCBEEntries(size, 1)
	}
	t.segments[0].addCBEEntries(size, 1)
	return nil
}

func (t *Table) elementSizesUnchanged(elementSizes []uint32) bool {
	for i, e := range t.elements {
		if e.IsCBE && e.elementSize != elementSizes[i] {
			return false
		}
	}
	return true
}

func (t *Table) updateVBEIndex(elementSizes []uint32) error {
	var sliceCPOffsets []uint32
	cpOffset := uint32(0)
	prevSliceOffset := uint8(0)
	entry := cachedEntry{canStartPartition: true}
	haveEntry := false

	for i, e := range t.elements {
		if e.sliceOffset != prevSliceOffset {
			sliceCPOffsets = append(sliceCPOffsets, cpOffset)
			prevSliceOffset = e.sliceOffset
		}
		if cached, ok := e.entryCache[t.duration]; ok {
			if haveEntry {
				return fmt.Errorf("index: several elements supplied an entry for position %d", t.duration)
			}
			entry = cached
			haveEntry = true
			delete(e.entryCache, t.duration)
		}
		cpOffset += elementSizes[i]
	}

	current := t.segments[len(t.segments)-1]
	if current.requireNew(entry.canStartPartition) {
		current = t.newSegment(t.duration)
		t.segments = append(t.segments, current)
	}
	current.addEntry(&entry, t.streamOffset, sliceCPOffsets)
	return nil
}

// HaveSegments reports whether there is anything to write.
func (t *Table) HaveSegments() bool {
	if t.isCBE {
		return len(t.segments) > 0
	}
	return len(t.segments) > 0 && t.segments[0].duration() > 0
}

// PendingBacklog returns the number of cached entries whose edit units
// have not yet been indexed; it must be zero at finalisation.
func (t *Table) PendingBacklog() int {
	n := 0
	for _, e := range t.elements {
		n += len(e.entryCache)
	}
	return n
}

// GetCBEEditUnitSizes returns the first and steady-state edit unit
// byte counts of a CBE index.
func (t *Table) GetCBEEditUnitSizes() (first, nonFirst uint32) {
	if len(t.segments) > 0 {
		nonFirst = t.segments[0].segment.EditUnitByteCount
	}
	if t.avciFirstSegment != nil {
		first = t.avciFirstSegment.segment.EditUnitByteCount
	} else {
		first = nonFirst
	}
	return first, nonFirst
}

// WriteSegments emits the index segments into the given partition,
// recording the partition's index byte count and filling to the KAG.
// For VBE the written segments are discarded and a fresh one opened;
// for CBE the same segments are re-written at finalisation with the
// final duration.
func (t *Table) WriteSegments(f mxfio.File, p *partition.Partition, fillKey *klv.Key, finalWrite bool) error {
	if !t.HaveSegments() {
		return fmt.Errorf("index: no segments to write")
	}
	p.MarkIndexStart(f)

	if t.isCBE {
		if err := t.writeCBESegments(f, finalWrite); err != nil {
			return err
		}
	} else {
		if err := t.writeVBESegments(f); err != nil {
			return err
		}
	}

	if err := partition.FillToKAG(f, p, fillKey); err != nil {
		return err
	}
	return p.MarkIndexEnd(f)
}

func (t *Table) writeCBESegments(f mxfio.File, finalWrite bool) error {
	known := finalWrite || t.inputDuration >= 0
	if t.avciFirstSegment != nil {
		seg := &t.avciFirstSegment.segment
		seg.ForceWriteCBEDuration0 = !known
		if err := seg.Write(f); err != nil {
			return err
		}
	}
	seg := &t.segments[0].segment
	seg.ForceWriteCBEDuration0 = !known
	if err := seg.Write(f); err != nil {
		return err
	}
	return nil
}

func (t *Table) writeVBESegments(f mxfio.File) error {
	for _, ts := range t.segments {
		numEntries := int(ts.duration())
		ts.segment.DeltaEntries = append([]DeltaEntry(nil), t.deltaEntries...)
		ts.segment.IndexDuration = int64(numEntries)
		ts.segment.PosTableCount = 0
		if err := ts.segment.writeWithRawEntries(f, ts.entries, numEntries); err != nil {
			return err
		}
	}
	t.segments = t.segments[:0]
	t.segments = append(t.segments, t.newSegment(t.duration))
	return nil
}
