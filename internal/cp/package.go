package cp

import (
	"fmt"

	"github.com/distr1/mxf/internal/klv"
)

// elementData is the per-package accumulation state of one element.
type elementData struct {
	element    *Element
	buf        []byte
	numSamples uint32
	position   int64

	// assumed is the sample count that completes this element; zero
	// while a sound sequence phase is still being inferred, in which
	// case the first write call's count is assumed (and validated
	// against the sequence).
	assumed uint32
}

func (d *elementData) reset(position int64) {
	d.buf = d.buf[:0]
	d.numSamples = 0
	d.position = position
	d.assumed = d.initialAssumed()
}

func (d *elementData) initialAssumed() uint32 {
	e := d.element
	if e.Type != SoundElement {
		return 1
	}
	if !e.seqOffsetSet {
		return 0
	}
	return e.samplesAt(d.position)
}

// writeSamples appends as many of the offered samples as this package
// accepts and returns the number consumed.
func (d *elementData) writeSamples(data []byte, sampleSize, numSamples uint32) (uint32, error) {
	if d.assumed == 0 {
		if !d.element.validSampleCount(numSamples) {
			return 0, fmt.Errorf("%w: sample count %d not in sequence", ErrSequenceMismatch, numSamples)
		}
		d.assumed = numSamples
	}
	if d.numSamples >= d.assumed {
		return 0, nil
	}
	take := numSamples
	if d.numSamples+take > d.assumed {
		take = d.assumed - d.numSamples
	}
	d.buf = append(d.buf, data[:take*sampleSize]...)
	d.numSamples += take
	return take, nil
}

func (d *elementData) isComplete() bool {
	return d.assumed > 0 && d.numSamples >= d.assumed
}

// Package is one edit unit's worth of content, recycled via the
// manager's free list.
type Package struct {
	position int64
	data     []*elementData
	indexed  bool

	userTimecode    Timecode
	userTimecodeSet bool
}

func newPackage(m *Manager, position int64) *Package {
	p := &Package{position: position}
	for _, e := range m.elements {
		d := &elementData{element: e, position: position}
		d.assumed = d.initialAssumed()
		p.data = append(p.data, d)
	}
	return p
}

func (p *Package) reset(position int64) {
	p.position = position
	p.indexed = false
	p.userTimecodeSet = false
	for _, d := range p.data {
		d.reset(position)
	}
}

func (p *Package) dataFor(trackIndex uint32) *elementData {
	for _, d := range p.data {
		if d.element.TrackIndex == trackIndex {
			return d
		}
	}
	return nil
}

func (p *Package) isComplete(haveInputUserTimecode bool) bool {
	if haveInputUserTimecode && !p.userTimecodeSet {
		return false
	}
	for _, d := range p.data {
		if !d.isComplete() {
			return false
		}
	}
	return true
}

func (p *Package) isCompleteFor(trackIndex uint32) bool {
	d := p.dataFor(trackIndex)
	if d == nil {
		return true
	}
	return d.isComplete()
}

// soundSampleCount returns the smallest sound sample count across the
// package's sound elements, 0 when any has none.
func (p *Package) soundSampleCount() uint32 {
	var minCount uint32
	for _, d := range p.data {
		if d.element.Type != SoundElement {
			continue
		}
		if minCount == 0 || d.numSamples < minCount {
			minCount = d.numSamples
			if minCount == 0 {
				break
			}
		}
	}
	return minCount
}

// WriteUserTimecode supplies the user timecode for the system item of
// the current package.
func (m *Manager) WriteUserTimecode(tc Timecode) error {
	if !m.haveInputUserTimecode {
		return nil
	}
	idx := m.currentPackage(systemTimecodeTrack)
	if idx >= len(m.packages) {
		var err error
		if idx, err = m.createPackage(); err != nil {
			return err
		}
	}
	m.packages[idx].userTimecode = tc
	m.packages[idx].userTimecodeSet = true
	return nil
}

// systemTimecodeTrack addresses the system item when locating the
// current package for a user timecode.
const systemTimecodeTrack = 0xffffffff

// currentPackage returns the index of the first package still
// incomplete for the track.
func (m *Manager) currentPackage(trackIndex uint32) int {
	idx := 0
	for idx < len(m.packages) {
		p := m.packages[idx]
		if trackIndex == systemTimecodeTrack {
			if !p.userTimecodeSet {
				break
			}
		} else if !p.isCompleteFor(trackIndex) {
			break
		}
		idx++
	}
	return idx
}

func (m *Manager) createPackage() (int, error) {
	if !m.soundSeqSet {
		if err := m.inferSequenceOffset(false); err != nil {
			return -1, err
		}
	}
	idx := len(m.packages)
	if len(m.free) > 0 {
		p := m.free[len(m.free)-1]
		m.free = m.free[:len(m.free)-1]
		p.reset(m.position + int64(idx))
		m.packages = append(m.packages, p)
		return idx, nil
	}
	if len(m.packages) >= maxContentPackages {
		return -1, fmt.Errorf("%w: %d pending", ErrTooManyPending, len(m.packages))
	}
	m.packages = append(m.packages, newPackage(m, m.position+int64(idx)))
	return idx, nil
}

// WriteSamples routes sample data for a track into the pending
// packages, opening new packages as needed.
func (m *Manager) WriteSamples(trackIndex uint32, data []byte, numSamples uint32) error {
	if len(data) == 0 || numSamples == 0 {
		return nil
	}
	e, ok := m.elementMap[trackIndex]
	if !ok {
		return fmt.Errorf("cp: unregistered track %d", trackIndex)
	}
	sampleSize := e.SampleSize
	if sampleSize == 0 {
		sampleSize = uint32(len(data)) / numSamples
	}
	if uint32(len(data)) < sampleSize*numSamples {
		return fmt.Errorf("cp: %d bytes is short of %d samples of %d bytes", len(data), numSamples, sampleSize)
	}

	idx := m.currentPackage(trackIndex)
	rem := data[:sampleSize*numSamples]
	remSamples := numSamples
	for remSamples > 0 {
		if idx >= len(m.packages) {
			var err error
			if idx, err = m.createPackage(); err != nil {
				return err
			}
		}
		d := m.packages[idx].dataFor(trackIndex)
		written, err := d.writeSamples(rem, sampleSize, remSamples)
		if err != nil {
			return err
		}
		rem = rem[written*sampleSize:]
		remSamples -= written
		idx++
	}
	if !m.soundSeqSet {
		// commit the phase as soon as a full sequence has been seen
		return m.inferSequenceOffset(false)
	}
	return nil
}

// inferSequenceOffset observes the queued packages' sound sample
// counts and finds the unique sequence rotation that matches. The
// offset is committed once a full sequence has been observed, or
// unconditionally at final flush.
func (m *Manager) inferSequenceOffset(finalWrite bool) error {
	var input []uint32
	for _, p := range m.packages {
		count := p.soundSampleCount()
		if count == 0 {
			break
		}
		input = append(input, count)
	}

	n := len(m.soundSequence)
	offset := 0
	for ; offset < n; offset++ {
		matched := true
		for i, count := range input {
			if count != m.soundSequence[(offset+i)%n] {
				matched = false
				break
			}
		}
		if matched {
			break
		}
	}
	if offset >= n {
		return fmt.Errorf("%w: observed %v in sequence %v", ErrSequenceMismatch, input, m.soundSequence)
	}

	if finalWrite || len(input) >= n {
		m.soundSeqOffset = uint8(offset)
		m.soundSeqSet = true
		m.commitSequenceOffset()
	}
	return nil
}

// HaveContentPackage reports whether the head package is ready to be
// emitted. At final flush the sequence offset is committed from what
// has been seen.
func (m *Manager) HaveContentPackage(finalWrite bool) (bool, error) {
	if finalWrite && !m.soundSeqSet {
		if err := m.inferSequenceOffset(true); err != nil {
			return false, err
		}
	}
	if !m.soundSeqSet || len(m.packages) == 0 {
		return false, nil
	}
	return m.packages[0].isComplete(m.haveInputUserTimecode), nil
}

// HaveContentPackages reports whether at least num packages are
// complete.
func (m *Manager) HaveContentPackages(num int) bool {
	if !m.soundSeqSet || len(m.packages) < num {
		return false
	}
	for i := 0; i < num; i++ {
		if !m.packages[i].isComplete(m.haveInputUserTimecode) {
			return false
		}
	}
	return true
}

// alignedSlot grows used to the next KAG multiple that leaves either
// no remainder or room for a fill KLV.
func (m *Manager) alignedSlot(used uint32) uint32 {
	if m.kagSize <= 1 {
		return used
	}
	const minFill = klv.KeyExtlen + llen
	slot := used
	if r := slot % m.kagSize; r != 0 {
		slot += m.kagSize - r
	}
	for slot != used && slot-used < minFill {
		slot += m.kagSize
	}
	return slot
}

// elementSlot returns the on-disk byte count of an element's KLV
// including its fill.
func (m *Manager) elementSlot(d *elementData) uint32 {
	if d.element.fixedElementSize != 0 {
		return d.element.fixedElementSize
	}
	return m.alignedSlot(klv.KeyExtlen + llen + uint32(len(d.buf)))
}

// systemSlot returns the on-disk byte count of the system item.
func (m *Manager) systemSlot() uint32 {
	return m.alignedSlot(klv.KeyExtlen + llen + systemPackSize + klv.KeyExtlen + llen)
}

// UpdateIndexTable reports up to num queued packages' sizes to the
// index table without emitting them (used to size CBE segments before
// the first write).
func (m *Manager) UpdateIndexTable(num int) error {
	for i := 0; i < num && i < len(m.packages); i++ {
		if err := m.updateIndexForPackage(m.packages[i]); err != nil {
			return err
		}
	}
	return nil
}

// updateIndexForPackage reports the package's element sizes once.
func (m *Manager) updateIndexForPackage(p *Package) error {
	if p.indexed {
		return nil
	}
	var sizes []uint32
	var total uint32
	if m.haveSystemItem {
		slot := m.systemSlot()
		sizes = append(sizes, slot)
		total += slot
	}
	for _, d := range p.data {
		slot := m.elementSlot(d)
		sizes = append(sizes, slot)
		total += slot
	}
	if err := m.table.UpdateIndex(total, sizes); err != nil {
		return err
	}
	p.indexed = true
	return nil
}

// WriteNextContentPackage emits the head package and recycles it.
func (m *Manager) WriteNextContentPackage() error {
	if ready, err := m.HaveContentPackage(false); err != nil {
		return err
	} else if !ready {
		return fmt.Errorf("cp: no complete content package")
	}
	p := m.packages[0]

	// emission requires the inferred phase to match what was written
	for _, d := range p.data {
		if d.element.Type == SoundElement && d.numSamples != d.element.samplesAt(p.position) {
			return fmt.Errorf("%w: package %d has %d samples, sequence wants %d",
				ErrSequenceMismatch, p.position, d.numSamples, d.element.samplesAt(p.position))
		}
	}

	if err := m.updateIndexForPackage(p); err != nil {
		return err
	}
	if m.haveSystemItem {
		if err := m.writeSystemItem(p); err != nil {
			return err
		}
	}
	for _, d := range p.data {
		if err := m.writeElement(d); err != nil {
			return err
		}
	}

	m.packages = m.packages[1:]
	p.indexed = false
	if len(m.free) < maxContentPackages {
		m.free = append(m.free, p)
	}
	m.position++
	return nil
}

func (m *Manager) writeElement(d *elementData) error {
	slot := m.elementSlot(d)
	used := uint32(klv.KeyExtlen) + llen + uint32(len(d.buf))
	if err := klv.WriteFixedKL(m.f, &d.element.Key, llen, uint64(len(d.buf))); err != nil {
		return err
	}
	if len(d.buf) > 0 {
		if _, err := m.f.Write(d.buf); err != nil {
			return err
		}
	}
	if slot > used {
		return klv.WriteFill(m.f, &m.fillKey, uint64(slot-used))
	}
	return nil
}

func (m *Manager) writeSystemItem(p *Package) error {
	if err := klv.WriteFixedKL(m.f, &SystemPackKey, llen, systemPackSize); err != nil {
		return err
	}

	// system metadata bitmap: SMPTE UL present, user date/time stamp
	// present, plus the item flags
	if err := klv.WriteUint8(m.f, 0x50|m.sysMetaFlags); err != nil {
		return err
	}
	if err := klv.WriteUint8(m.f, m.rateCode); err != nil {
		return err
	}
	if err := klv.WriteUint8(m.f, 0x00); err != nil { // content package type
		return err
	}
	if err := klv.WriteUint16(m.f, 0x0000); err != nil { // channel handle
		return err
	}
	if err := klv.WriteUint16(m.f, uint16(p.position&0xffff)); err != nil { // continuity count
		return err
	}
	if err := klv.WriteKey(m.f, &klv.ECMultipleWrappings); err != nil {
		return err
	}

	// null package creation date/time stamp
	var stamp [17]byte
	if _, err := m.f.Write(stamp[:]); err != nil {
		return err
	}

	// user date/time stamp: SMPTE 12M timecode
	var tc Timecode
	switch {
	case p.userTimecodeSet:
		tc = p.userTimecode
	case m.startTimecode.IsValid():
		tc = m.startTimecode
		tc.AddOffset(p.position)
	default:
		tc = NewTimecode(RoundedTCBase(m.frameRate), false, p.position)
	}
	stamp[0] = 0x81 // SMPTE 12M timecode stamp
	enc := tc.Encode12M()
	copy(stamp[1:], enc[:])
	if _, err := m.f.Write(stamp[:]); err != nil {
		return err
	}

	if err := klv.WriteFixedKL(m.f, &EmptyPackageMetadataSetKey, llen, 0); err != nil {
		return err
	}

	used := uint32(klv.KeyExtlen+llen+systemPackSize) + klv.KeyExtlen + llen
	if slot := m.systemSlot(); slot > used {
		return klv.WriteFill(m.f, &m.fillKey, uint64(slot-used))
	}
	return nil
}
