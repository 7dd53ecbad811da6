// Package reader opens an MXF file and exposes its partitions, header
// metadata and index tables, letting callers random-access edit units.
package reader

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/distr1/mxf/internal/index"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/metadata"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/partition"
	"github.com/distr1/mxf/internal/schema"
)

var ErrNotIndexed = errors.New("reader: position is not covered by an index segment")

// Reader is an opened MXF file.
type Reader struct {
	f     mxfio.File
	model *schema.DataModel

	Partitions []*partition.Partition
	RIP        *partition.RIP
	Metadata   *metadata.HeaderMetadata
	Segments   []*index.Segment
}

// Open reads the file structure: the header partition (tolerating
// run-in), all further partitions via the RIP or, without one, by
// locating the footer and following the PreviousPartition chain, the
// header metadata, and every readable index table segment. A malformed
// index segment is skipped with a warning; malformed header metadata
// rejects the file.
func Open(f mxfio.File, model *schema.DataModel) (*Reader, error) {
	if model == nil {
		model = schema.BuiltIn()
	}
	r := &Reader{f: f, model: model}

	key, llen, length, err := partition.ReadHeaderPackKLWithRunIn(f)
	if err != nil {
		return nil, err
	}
	headerPack, err := partition.Read(f, &key, length)
	if err != nil {
		return nil, err
	}
	r.Partitions = append(r.Partitions, headerPack)
	afterHeaderPack := f.Tell()

	if rip, err := partition.ReadRIP(f); err == nil {
		r.RIP = rip
		for _, e := range rip.Entries[1:] {
			p, err := r.readPartitionAt(int64(e.ThisPartition))
			if err != nil {
				return nil, err
			}
			r.Partitions = append(r.Partitions, p)
		}
	} else if err := r.scanPartitions(headerPack); err != nil {
		return nil, err
	}

	if _, err := f.Seek(afterHeaderPack, io.SeekStart); err != nil {
		return nil, err
	}
	if err := r.readHeaderMetadata(headerPack, afterHeaderPack, llen, length); err != nil {
		return nil, err
	}
	if err := r.readIndexSegments(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readPartitionAt(offset int64) (*partition.Partition, error) {
	if _, err := r.f.Seek(offset+int64(r.f.RunInLen()), io.SeekStart); err != nil {
		return nil, err
	}
	key, _, length, err := klv.ReadKL(r.f)
	if err != nil {
		return nil, err
	}
	return partition.Read(r.f, &key, length)
}

// scanPartitions walks the partition chain without a RIP: the footer
// is located (by header pack field or backward scan) and the chain of
// PreviousPartition offsets is followed back to the header.
func (r *Reader) scanPartitions(headerPack *partition.Partition) error {
	if err := partition.FindFooter(r.f, headerPack); err != nil {
		if errors.Is(err, partition.ErrFooterNotFound) {
			log.Printf("reader: no footer partition; only the header partition is available")
			return nil
		}
		return err
	}
	footerPos := r.f.Tell()
	key, _, length, err := klv.ReadKL(r.f)
	if err != nil {
		return err
	}
	footer, err := partition.Read(r.f, &key, length)
	if err != nil {
		return err
	}

	// follow PreviousPartition offsets back to the header
	chain := []*partition.Partition{footer}
	pos := uint64(footerPos - int64(r.f.RunInLen()))
	for {
		p := chain[len(chain)-1]
		if p.PrevPartition == 0 || p.PrevPartition >= pos {
			break
		}
		pos = p.PrevPartition
		prev, err := r.readPartitionAt(int64(pos))
		if err != nil {
			return err
		}
		chain = append(chain, prev)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if partition.IsHeader(&chain[i].Key) {
			continue // already have the header partition
		}
		r.Partitions = append(r.Partitions, chain[i])
	}
	return nil
}

// readHeaderMetadata decodes the metadata from the header partition,
// or from the footer when the header is open and a closed footer
// carries a repeat.
func (r *Reader) readHeaderMetadata(headerPack *partition.Partition, afterHeaderPack int64, llen uint8, length uint64) error {
	source := headerPack
	sourcePos := afterHeaderPack
	if !partition.IsClosed(&headerPack.Key) || headerPack.HeaderByteCount == 0 {
		for _, p := range r.Partitions {
			if partition.IsFooter(&p.Key) && p.HeaderByteCount > 0 {
				source = p
				sourcePos = -1
				break
			}
		}
	}
	if source.HeaderByteCount == 0 {
		// a half-written open file has no usable metadata byte count;
		// partitions and index segments are still consumable
		log.Printf("reader: no header metadata byte count; skipping metadata")
		return nil
	}

	if sourcePos < 0 {
		if _, err := r.f.Seek(int64(source.ThisPartition)+int64(r.f.RunInLen()), io.SeekStart); err != nil {
			return err
		}
		key, _, packLen, err := klv.ReadKL(r.f)
		if err != nil {
			return err
		}
		if _, err := partition.Read(r.f, &key, packLen); err != nil {
			return err
		}
	} else if _, err := r.f.Seek(sourcePos, io.SeekStart); err != nil {
		return err
	}

	key, llen2, length2, err := partition.ReadNextNonFillerKL(r.f)
	if err != nil {
		return err
	}
	if !metadata.IsHeaderMetadata(&key) {
		return fmt.Errorf("reader: expected header metadata, found %s", &key)
	}
	hm, err := metadata.Read(r.f, r.model, source.HeaderByteCount, &key, llen2, length2, nil)
	if err != nil {
		return err
	}
	r.Metadata = hm
	return nil
}

// readIndexSegments decodes the index segments of every partition that
// declares an index byte count.
func (r *Reader) readIndexSegments() error {
	for _, p := range r.Partitions {
		if p.IndexByteCount == 0 {
			continue
		}
		if err := r.readPartitionIndex(p); err != nil {
			log.Printf("reader: skipping malformed index in partition at %d: %v", p.ThisPartition, err)
		}
	}
	return nil
}

func (r *Reader) readPartitionIndex(p *partition.Partition) error {
	if _, err := r.f.Seek(int64(p.ThisPartition)+int64(r.f.RunInLen()), io.SeekStart); err != nil {
		return err
	}
	key, _, length, err := klv.ReadKL(r.f)
	if err != nil {
		return err
	}
	if _, err := partition.Read(r.f, &key, length); err != nil {
		return err
	}

	// skip fill and any header metadata before the index
	if p.HeaderByteCount > 0 {
		key, llen, length, err := partition.ReadNextNonFillerKL(r.f)
		if err != nil {
			return err
		}
		if !metadata.IsHeaderMetadata(&key) {
			return fmt.Errorf("expected header metadata, found %s", &key)
		}
		remaining := int64(p.HeaderByteCount) - int64(klv.KeyExtlen) - int64(llen) - int64(length)
		if err := klv.Skip(r.f, length); err != nil {
			return err
		}
		if remaining > 0 {
			if err := klv.Skip(r.f, uint64(remaining)); err != nil {
				return err
			}
		}
	} else if _, err := partition.SkipFill(r.f); err != nil {
		return err
	}

	remaining := int64(p.IndexByteCount)
	for remaining > 0 {
		key, llen, length, err := klv.ReadKL(r.f)
		if err != nil {
			return err
		}
		remaining -= int64(klv.KeyExtlen) + int64(llen) + int64(length)
		if klv.IsFill(&key) {
			if err := klv.Skip(r.f, length); err != nil {
				return err
			}
			continue
		}
		if !index.IsSegment(&key) {
			return fmt.Errorf("unexpected key %s in index byte range", &key)
		}
		seg, err := index.ReadSegment(r.f, length)
		if err != nil {
			return err
		}
		r.Segments = append(r.Segments, seg)
	}
	return nil
}

// EditUnitOffset returns the essence stream offset of the edit unit at
// position in the stream (bodySID, indexSID).
func (r *Reader) EditUnitOffset(indexSID uint32, position int64) (uint64, error) {
	// CBE segments do not carry stream offsets, so the byte counts of
	// the preceding segments accumulate into a base offset; segments
	// appear in file order, which is position order per stream.
	var base uint64
	for _, seg := range r.Segments {
		if seg.IndexSID != indexSID {
			continue
		}
		end := seg.IndexStartPosition + seg.IndexDuration
		if seg.EditUnitByteCount > 0 {
			// a zero duration means the segment covers the rest of the
			// stream
			if position >= seg.IndexStartPosition && (seg.IndexDuration == 0 || position < end) {
				return base + uint64(position-seg.IndexStartPosition)*uint64(seg.EditUnitByteCount), nil
			}
			base += uint64(seg.IndexDuration) * uint64(seg.EditUnitByteCount)
			continue
		}
		if position >= seg.IndexStartPosition && position < end {
			return seg.Entries[position-seg.IndexStartPosition].StreamOffset, nil
		}
	}
	return 0, fmt.Errorf("%w: position %d in index stream %d", ErrNotIndexed, position, indexSID)
}

// Duration returns the total indexed duration of an index stream.
func (r *Reader) Duration(indexSID uint32) int64 {
	var total int64
	for _, seg := range r.Segments {
		if seg.IndexSID != indexSID {
			continue
		}
		if end := seg.IndexStartPosition + seg.IndexDuration; end > total {
			total = end
		}
	}
	return total
}
