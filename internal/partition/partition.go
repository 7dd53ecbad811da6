// Package partition implements the MXF partition model: the ordered
// list of partitions making up a file, the partition pack codec, the
// random index pack, and the fill/alignment writers.
package partition

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

var (
	ErrFooterNotFound = errors.New("partition: footer partition not found")
	ErrNotPartition   = errors.New("partition: key is not a partition pack")
)

// Partition pack keys share a 13-octet prefix; octet 13 encodes the
// kind (header/body/footer) and octet 14 the open/closed and
// complete/incomplete status.
var packPrefix = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01,
	0x0d, 0x01, 0x02, 0x01, 0x01, 0x00, 0x00, 0x00,
}

// Kind values (octet 13).
const (
	kindHeader = 0x02
	kindBody   = 0x03
	kindFooter = 0x04
)

// Status values (octet 14).
const (
	StatusOpenIncomplete   = 0x01
	StatusClosedIncomplete = 0x02
	StatusOpenComplete     = 0x03
	StatusClosedComplete   = 0x04
)

// packKey builds a partition pack key from a kind and status octet.
func packKey(kind, status byte) klv.Key {
	k := packPrefix
	k[13] = kind
	k[14] = status
	return k
}

// HeaderKey, BodyKey and FooterKey build the partition pack key for a
// kind with the given status octet.
func HeaderKey(status byte) klv.Key { return packKey(kindHeader, status) }
func BodyKey(status byte) klv.Key   { return packKey(kindBody, status) }
func FooterKey(status byte) klv.Key { return packKey(kindFooter, status) }

// GenericStreamKey is the generic stream partition pack key.
var GenericStreamKey = packKey(kindBody, 0x11)

// RandomIndexPackKey frames the RIP at the end of the file.
var RandomIndexPackKey = klv.Key{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01,
	0x0d, 0x01, 0x02, 0x01, 0x01, 0x11, 0x01, 0x00,
}

// IsHeader reports whether key is a header partition pack key.
func IsHeader(key *klv.Key) bool {
	return klv.EqualsKeyPrefix(key, &packPrefix, 13) && key[13] == kindHeader
}

// IsBody reports whether key is a body partition pack key.
func IsBody(key *klv.Key) bool {
	return klv.EqualsKeyPrefix(key, &packPrefix, 13) && key[13] == kindBody
}

// IsGenericStream reports whether key is a generic stream partition
// pack key.
func IsGenericStream(key *klv.Key) bool {
	return IsBody(key) && key[14] == 0x11
}

// IsFooter reports whether key is a footer partition pack key.
func IsFooter(key *klv.Key) bool {
	return klv.EqualsKeyPrefix(key, &packPrefix, 13) && key[13] == kindFooter
}

// IsPartitionPack reports whether key is any partition pack key.
func IsPartitionPack(key *klv.Key) bool {
	return klv.EqualsKeyPrefix(key, &packPrefix, 13) && key[13] >= kindHeader && key[13] <= kindFooter
}

// IsClosed reports whether the partition key has closed status.
func IsClosed(key *klv.Key) bool {
	return IsPartitionPack(key) && (key[14] == StatusClosedIncomplete || key[14] == StatusClosedComplete)
}

// IsComplete reports whether the partition key has complete status.
func IsComplete(key *klv.Key) bool {
	return IsPartitionPack(key) && (key[14] == StatusOpenComplete || key[14] == StatusClosedComplete)
}

// Partition is one partition of an MXF file.
type Partition struct {
	Key                klv.Key
	MajorVersion       uint16
	MinorVersion       uint16
	KAGSize            uint32
	ThisPartition      uint64
	PrevPartition      uint64
	FooterPartition    uint64
	HeaderByteCount    uint64
	IndexByteCount     uint64
	IndexSID           uint32
	BodyOffset         uint64
	BodySID            uint32
	OperationalPattern klv.UL
	EssenceContainers  []klv.UL

	headerMarkPos int64
	indexMarkPos  int64
}

// New returns a partition with the defaults the engine writes: KAG 1
// and SMPTE ST 377 version 1.2.
func New() *Partition {
	return &Partition{
		KAGSize:       1,
		MajorVersion:  0x0001,
		MinorVersion:  0x0002,
		headerMarkPos: -1,
		indexMarkPos:  -1,
	}
}

// NewFrom copies the fields append_like carries over: versions, KAG,
// operational pattern and the essence container label list.
func NewFrom(src *Partition) *Partition {
	p := New()
	p.MajorVersion = src.MajorVersion
	p.MinorVersion = src.MinorVersion
	p.KAGSize = src.KAGSize
	p.OperationalPattern = src.OperationalPattern
	p.EssenceContainers = append([]klv.UL(nil), src.EssenceContainers...)
	return p
}

// AppendEssenceContainer adds an essence container label.
func (p *Partition) AppendEssenceContainer(label *klv.UL) {
	p.EssenceContainers = append(p.EssenceContainers, *label)
}

// List is the ordered list of partitions owned by a writer.
type List struct {
	partitions []*Partition
}

// NewList returns an empty partition list.
func NewList() *List { return &List{} }

// AppendNew appends a fresh partition and returns it.
func (l *List) AppendNew() *Partition {
	p := New()
	l.partitions = append(l.partitions, p)
	return p
}

// AppendLike appends a partition copying src's operational pattern,
// KAG, versions and essence container labels.
func (l *List) AppendLike(src *Partition) *Partition {
	p := NewFrom(src)
	l.partitions = append(l.partitions, p)
	return p
}

// Append appends an existing partition (used on read).
func (l *List) Append(p *Partition) {
	l.partitions = append(l.partitions, p)
}

// Partitions returns the partitions in file order.
func (l *List) Partitions() []*Partition { return l.partitions }

// Len returns the number of partitions.
func (l *List) Len() int { return len(l.partitions) }

// Last returns the last partition, or nil.
func (l *List) Last() *Partition {
	if len(l.partitions) == 0 {
		return nil
	}
	return l.partitions[len(l.partitions)-1]
}

// packFixedLen is the fixed portion of a partition pack value.
const packFixedLen = 88

// Write emits the partition pack at the current file position,
// recording ThisPartition (and FooterPartition for a footer) from the
// position.
func (p *Partition) Write(f mxfio.File) error {
	packLen := uint64(packFixedLen + klv.KeyExtlen*len(p.EssenceContainers))

	p.ThisPartition = uint64(f.Tell() - int64(f.RunInLen()))
	if IsFooter(&p.Key) {
		p.FooterPartition = p.ThisPartition
	}

	if err := klv.WriteKL(f, &p.Key, packLen); err != nil {
		return err
	}
	if err := klv.WriteUint16(f, p.MajorVersion); err != nil {
		return err
	}
	if err := klv.WriteUint16(f, p.MinorVersion); err != nil {
		return err
	}
	if err := klv.WriteUint32(f, p.KAGSize); err != nil {
		return err
	}
	for _, v := range []uint64{p.ThisPartition, p.PrevPartition, p.FooterPartition, p.HeaderByteCount, p.IndexByteCount} {
		if err := klv.WriteUint64(f, v); err != nil {
			return err
		}
	}
	if err := klv.WriteUint32(f, p.IndexSID); err != nil {
		return err
	}
	if err := klv.WriteUint64(f, p.BodyOffset); err != nil {
		return err
	}
	if err := klv.WriteUint32(f, p.BodySID); err != nil {
		return err
	}
	if err := klv.WriteKey(f, &p.OperationalPattern); err != nil {
		return err
	}
	if err := klv.WriteBatchHeader(f, uint32(len(p.EssenceContainers)), klv.KeyExtlen); err != nil {
		return err
	}
	for i := range p.EssenceContainers {
		if err := klv.WriteKey(f, &p.EssenceContainers[i]); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes a partition pack whose KL has already been consumed.
// Packs longer than expected are tolerated: the excess is skipped with
// a warning.
func Read(f mxfio.File, key *klv.Key, length uint64) (*Partition, error) {
	if !IsPartitionPack(key) {
		return nil, fmt.Errorf("%w: %s", ErrNotPartition, key)
	}
	if length < packFixedLen {
		return nil, fmt.Errorf("partition: pack length %d below fixed size %d", length, packFixedLen)
	}

	p := New()
	p.Key = *key

	var err error
	if p.MajorVersion, err = klv.ReadUint16(f); err != nil {
		return nil, err
	}
	if p.MinorVersion, err = klv.ReadUint16(f); err != nil {
		return nil, err
	}
	if p.KAGSize, err = klv.ReadUint32(f); err != nil {
		return nil, err
	}
	if p.ThisPartition, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.PrevPartition, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.FooterPartition, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.HeaderByteCount, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.IndexByteCount, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.IndexSID, err = klv.ReadUint32(f); err != nil {
		return nil, err
	}
	if p.BodyOffset, err = klv.ReadUint64(f); err != nil {
		return nil, err
	}
	if p.BodySID, err = klv.ReadUint32(f); err != nil {
		return nil, err
	}
	if p.OperationalPattern, err = klv.ReadKey(f); err != nil {
		return nil, err
	}

	numLabels, labelLen, err := klv.ReadBatchHeader(f)
	if err != nil {
		return nil, err
	}
	if numLabels != 0 && labelLen != klv.KeyExtlen {
		return nil, fmt.Errorf("partition: essence container label length %d", labelLen)
	}
	expected := uint64(packFixedLen) + uint64(numLabels)*uint64(labelLen)
	if length < expected {
		return nil, fmt.Errorf("partition: pack length %d below expected %d", length, expected)
	}
	for i := uint32(0); i < numLabels; i++ {
		label, err := klv.ReadKey(f)
		if err != nil {
			return nil, err
		}
		p.EssenceContainers = append(p.EssenceContainers, label)
	}
	if length > expected {
		log.Printf("partition: pack len %d is larger than expected len %d", length, expected)
		if err := klv.Skip(f, length-expected); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// UpdateInMemory propagates PrevPartition down the chain and, when the
// last partition is a footer, FooterPartition into every pack.
func (l *List) UpdateInMemory() {
	if len(l.partitions) == 0 {
		return
	}
	last := l.partitions[len(l.partitions)-1]
	haveFooter := IsFooter(&last.Key)
	var prev *Partition
	for _, p := range l.partitions {
		if prev != nil {
			p.PrevPartition = prev.ThisPartition
		}
		if haveFooter {
			p.FooterPartition = last.ThisPartition
		}
		prev = p
	}
}

// Rewrite seeks to each partition and rewrites its pack bytes in place
// (the pack length never changes), leaving the file positioned at the
// end.
func (l *List) Rewrite(f mxfio.File) error {
	for _, p := range l.partitions {
		if _, err := f.Seek(int64(p.ThisPartition)+int64(f.RunInLen()), io.SeekStart); err != nil {
			return err
		}
		if err := p.Write(f); err != nil {
			return err
		}
	}
	_, err := f.Seek(0, io.SeekEnd)
	return err
}

// Update is UpdateInMemory followed by Rewrite.
func (l *List) Update(f mxfio.File) error {
	l.UpdateInMemory()
	return l.Rewrite(f)
}

// MarkHeaderStart records the position where header metadata begins.
func (p *Partition) MarkHeaderStart(f mxfio.File) {
	p.headerMarkPos = f.Tell()
}

// MarkHeaderEnd sets HeaderByteCount from the recorded start position.
func (p *Partition) MarkHeaderEnd(f mxfio.File) error {
	if p.headerMarkPos < 0 || f.Tell() < p.headerMarkPos {
		return fmt.Errorf("partition: header mark not set")
	}
	p.HeaderByteCount = uint64(f.Tell() - p.headerMarkPos)
	p.headerMarkPos = -1
	return nil
}

// MarkIndexStart records the position where index segments begin.
func (p *Partition) MarkIndexStart(f mxfio.File) {
	p.indexMarkPos = f.Tell()
}

// MarkIndexEnd sets IndexByteCount from the recorded start position.
func (p *Partition) MarkIndexEnd(f mxfio.File) error {
	if p.indexMarkPos < 0 || f.Tell() < p.indexMarkPos {
		return fmt.Errorf("partition: index mark not set")
	}
	p.IndexByteCount = uint64(f.Tell() - p.indexMarkPos)
	p.indexMarkPos = -1
	return nil
}
