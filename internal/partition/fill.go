package partition

import (
	"fmt"
	"io"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

// FillToKAG writes a fill KLV so that the next write begins at the next
// KAG-aligned offset relative to the partition start.
func FillToKAG(f mxfio.File, p *Partition, fillKey *klv.Key) error {
	return AllocateSpaceToKAG(f, p, fillKey, 0)
}

// AllocateSpaceToKAG writes a fill KLV reserving size additional bytes
// past the next KAG boundary. When the required remainder is shorter
// than the smallest representable fill, the fill grows one KAG at a
// time until it fits.
func AllocateSpaceToKAG(f mxfio.File, p *Partition, fillKey *klv.Key, size uint32) error {
	if p.KAGSize == 0 {
		return fmt.Errorf("partition: KAG size not set")
	}
	if size == 0 && p.KAGSize == 1 {
		return nil
	}

	filePos := f.Tell()
	if uint64(filePos) <= p.ThisPartition {
		return fmt.Errorf("partition: position %d not beyond partition start %d", filePos, p.ThisPartition)
	}
	relativePos := uint64(filePos) + uint64(size) - p.ThisPartition

	if size == 0 && relativePos%uint64(p.KAGSize) == 0 {
		return nil
	}

	if err := klv.WriteKey(f, fillKey); err != nil {
		return err
	}
	fillSize := int64(size) - klv.KeyExtlen
	if p.KAGSize > 1 {
		fillSize += int64(uint64(p.KAGSize) - relativePos%uint64(p.KAGSize))
	}
	var llen uint8
	if fillSize >= 0 {
		llen = klv.GetLLen(f, uint64(fillSize))
	}
	for fillSize < int64(llen) {
		fillSize += int64(p.KAGSize)
		if fillSize >= 0 {
			llen = klv.GetLLen(f, uint64(fillSize))
		} else {
			llen = 0
		}
	}
	fillSize -= int64(llen)

	if err := klv.WriteFixedL(f, llen, uint64(fillSize)); err != nil {
		return err
	}
	return klv.WriteZeros(f, uint64(fillSize))
}

// FillToPosition writes a fill KLV so the next write begins at the
// absolute file position given.
func FillToPosition(f mxfio.File, fillKey *klv.Key, position uint64) error {
	filePos := f.Tell()
	if uint64(filePos) == position {
		return nil
	}
	minLen := uint64(klv.KeyExtlen) + uint64(f.MinLLen())
	if uint64(filePos)+minLen > position {
		return fmt.Errorf("partition: %d bytes to position %d cannot hold a fill", position-uint64(filePos), position)
	}
	return klv.WriteFill(f, fillKey, position-uint64(filePos))
}

// AllocateSpace writes a fill KLV of exactly size bytes at the current
// position.
func AllocateSpace(f mxfio.File, fillKey *klv.Key, size uint32) error {
	return klv.WriteFill(f, fillKey, uint64(size))
}

// SkipFill positions the file after the fill KLV at the current
// position, if any, and returns whether one was skipped.
func SkipFill(f mxfio.File) (bool, error) {
	start := f.Tell()
	key, _, length, err := klv.ReadKL(f)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	if !klv.IsFill(&key) {
		_, err := f.Seek(start, io.SeekStart)
		return false, err
	}
	return true, klv.Skip(f, length)
}
