package partition

import (
	"fmt"
	"io"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

// RIPEntry is one random index pack entry.
type RIPEntry struct {
	BodySID       uint32
	ThisPartition uint64
}

// RIP is the random index pack: a terminal table of partition offsets.
type RIP struct {
	Entries []RIPEntry
}

const ripEntrySize = 4 + 8

// ReadRIP locates and decodes the RIP from the end of the file. The
// last 4 bytes of the file give the total RIP length; the RIP key must
// be found that many bytes before the end.
func ReadRIP(f mxfio.File) (*RIP, error) {
	if _, err := f.Seek(-4, io.SeekEnd); err != nil {
		return nil, err
	}
	size, err := klv.ReadUint32(f)
	if err != nil {
		return nil, err
	}
	// minimum is key + 1-byte length + one entry + the length field
	if size < klv.KeyExtlen+1+ripEntrySize+4 {
		return nil, fmt.Errorf("partition: trailing RIP length %d too small", size)
	}
	if _, err := f.Seek(-int64(size), io.SeekCurrent); err != nil {
		return nil, err
	}
	key, _, length, err := klv.ReadKL(f)
	if err != nil {
		return nil, err
	}
	if !klv.EqualsKey(&key, &RandomIndexPackKey) {
		return nil, fmt.Errorf("partition: no RIP key at end of file")
	}
	if length < 4 || (length-4)%ripEntrySize != 0 {
		return nil, fmt.Errorf("partition: RIP length %d is not a whole number of entries", length)
	}

	rip := &RIP{}
	numEntries := (length - 4) / ripEntrySize
	for i := uint64(0); i < numEntries; i++ {
		var e RIPEntry
		if e.BodySID, err = klv.ReadUint32(f); err != nil {
			return nil, err
		}
		if e.ThisPartition, err = klv.ReadUint64(f); err != nil {
			return nil, err
		}
		rip.Entries = append(rip.Entries, e)
	}
	return rip, nil
}

// WriteRIP emits the RIP for the partition list at the current
// position. The final uint32 is the byte length of the whole RIP KLV
// including itself.
func (l *List) WriteRIP(f mxfio.File) error {
	length := uint64(ripEntrySize*len(l.partitions) + 4)
	if err := klv.WriteKey(f, &RandomIndexPackKey); err != nil {
		return err
	}
	llen, err := klv.WriteL(f, length)
	if err != nil {
		return err
	}
	for _, p := range l.partitions {
		if err := klv.WriteUint32(f, p.BodySID); err != nil {
			return err
		}
		if err := klv.WriteUint64(f, p.ThisPartition); err != nil {
			return err
		}
	}
	return klv.WriteUint32(f, uint32(klv.KeyExtlen+uint64(llen)+length))
}
