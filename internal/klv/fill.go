package klv

import (
	"fmt"

	"github.com/distr1/mxf/internal/mxfio"
)

// WriteFill writes a fill KLV occupying exactly totalSize bytes at the
// current position, using the given fill key. totalSize must cover the
// key and the length encoding.
func WriteFill(f mxfio.File, fillKey *Key, totalSize uint64) error {
	minSize := uint64(KeyExtlen) + uint64(f.MinLLen())
	if totalSize < minSize {
		return fmt.Errorf("klv: fill size %d below minimum %d", totalSize, minSize)
	}
	if err := WriteKey(f, fillKey); err != nil {
		return err
	}
	fillLen := totalSize - KeyExtlen
	llen := GetLLen(f, fillLen)
	fillLen -= uint64(llen)
	return writeFillL(f, llen, fillLen)
}

func writeFillL(f mxfio.File, llen uint8, fillLen uint64) error {
	if err := WriteFixedL(f, llen, fillLen); err != nil {
		return err
	}
	return WriteZeros(f, fillLen)
}
