package partition

import (
	"fmt"
	"io"
	"log"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

// MaxRunInLen bounds the run-in allowed before the header partition
// pack.
const MaxRunInLen = 65535

// ReadHeaderPackKL reads the first KLV and validates it is a header
// partition pack, returning its KL.
func ReadHeaderPackKL(f mxfio.File) (key klv.Key, llen uint8, length uint64, err error) {
	key, llen, length, err = klv.ReadKL(f)
	if err != nil {
		return key, 0, 0, err
	}
	if !IsHeader(&key) {
		return key, 0, 0, fmt.Errorf("%w: first key %s is not a header partition pack", ErrNotPartition, &key)
	}
	return key, llen, length, nil
}

// ReadHeaderPackKLWithRunIn scans past up to MaxRunInLen bytes of
// run-in for the first 11 octets of the partition pack key prefix,
// records the run-in length on the file, and returns the header pack's
// KL.
func ReadHeaderPackKLWithRunIn(f mxfio.File) (key klv.Key, llen uint8, length uint64, err error) {
	key = packPrefix
	compareByte := 0
	runInCount := 0
	for runInCount <= MaxRunInLen && compareByte < 11 {
		b, err := f.GetByte()
		if err != nil {
			return key, 0, 0, err
		}
		if b == packPrefix[compareByte] {
			compareByte++
		} else {
			runInCount += compareByte + 1
			compareByte = 0
		}
	}
	if runInCount > MaxRunInLen {
		return key, 0, 0, fmt.Errorf("partition: no header partition pack within %d bytes of run-in", MaxRunInLen)
	}
	if _, err := io.ReadFull(f, key[11:]); err != nil {
		return key, 0, 0, err
	}
	if !IsHeader(&key) {
		return key, 0, 0, fmt.Errorf("%w: %s", ErrNotPartition, &key)
	}
	if llen, length, err = klv.ReadL(f); err != nil {
		return key, 0, 0, err
	}
	f.SetRunInLen(uint16(runInCount))
	return key, llen, length, nil
}

// ReadNextNonFillerKL reads KLs, skipping fill items, and returns the
// first non-filler KL.
func ReadNextNonFillerKL(f mxfio.File) (key klv.Key, llen uint8, length uint64, err error) {
	for {
		key, llen, length, err = klv.ReadKL(f)
		if err != nil {
			return key, 0, 0, err
		}
		if !klv.IsFill(&key) {
			return key, llen, length, nil
		}
		if err = klv.Skip(f, length); err != nil {
			return key, 0, 0, err
		}
	}
}

// FindFooter positions the file at the footer partition pack. It tries
// the RIP first, then the header pack's FooterPartition field, and
// finally scans backwards from the end of the file in 32 KiB windows
// (250 windows, 8000 KiB, at most). headerPack may be nil when the header has not been
// read.
func FindFooter(f mxfio.File, headerPack *Partition) error {
	if rip, err := ReadRIP(f); err == nil && len(rip.Entries) > 0 {
		offset := int64(rip.Entries[len(rip.Entries)-1].ThisPartition) + int64(f.RunInLen())
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		key, _, _, err := klv.ReadKL(f)
		if err != nil {
			return err
		}
		if IsFooter(&key) {
			_, err := f.Seek(offset, io.SeekStart)
			return err
		}
		// the last RIP entry was not a footer; fall through
	}

	if headerPack != nil && headerPack.FooterPartition > 0 {
		offset := int64(headerPack.FooterPartition) + int64(f.RunInLen())
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		key, _, _, err := klv.ReadKL(f)
		if err == nil && IsFooter(&key) {
			_, err := f.Seek(offset, io.SeekStart)
			return err
		}
	}

	log.Printf("partition: missing RIP and footer partition offset; scanning backwards for the footer")
	return scanBackwardsForFooter(f)
}

func scanBackwardsForFooter(f mxfio.File) error {
	const maxIterations = 250 // search 8MB at most
	const windowSize = 32768
	buf := make([]byte, windowSize+15)

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	lastIteration := false
	for i := 0; i < maxIterations; i++ {
		if offset < 17 {
			// the file must start with a header partition pack
			break
		}
		numRead := int64(windowSize)
		if numRead > offset {
			numRead = offset
		}
		// the first 15 bytes of the previous window overlap this read
		if i > 0 {
			copy(buf[numRead:], buf[:15])
		}
		if _, err := f.Seek(offset-numRead, io.SeekStart); err != nil {
			return err
		}
		if _, err := io.ReadFull(f, buf[:numRead]); err != nil {
			return err
		}

		for j := int64(0); j < numRead; j++ {
			if buf[j] != packPrefix[0] || buf[j+1] != packPrefix[1] {
				continue
			}
			match := true
			for k := int64(2); k < 13; k++ {
				if buf[j+k] != packPrefix[k] {
					match = false
					break
				}
			}
			if !match {
				continue
			}
			switch buf[j+13] {
			case kindFooter:
				_, err := f.Seek(offset-numRead+j, io.SeekStart)
				return err
			case kindHeader, kindBody:
				// the footer would have come after this; finish the
				// current window and stop
				lastIteration = true
			}
		}
		if lastIteration {
			break
		}
		offset -= numRead
	}
	return ErrFooterNotFound
}
