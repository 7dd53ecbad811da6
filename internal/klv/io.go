package klv

import (
	"fmt"
	"io"

	"github.com/distr1/mxf/internal/mxfio"
)

// read/write of integers and identifiers over a mxfio.File. Reads that
// hit the end of the stream return io.EOF (first byte) or
// io.ErrUnexpectedEOF (mid-value), matching io.ReadFull.

func readFull(f mxfio.File, buf []byte) error {
	_, err := io.ReadFull(f, buf)
	return err
}

func writeFull(f mxfio.File, buf []byte) error {
	n, err := f.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func ReadUint8(f mxfio.File) (uint8, error) {
	b, err := f.GetByte()
	return b, err
}

func ReadUint16(f mxfio.File) (uint16, error) {
	var buf [2]byte
	if err := readFull(f, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func ReadUint32(f mxfio.File) (uint32, error) {
	var buf [4]byte
	if err := readFull(f, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func ReadUint64(f mxfio.File) (uint64, error) {
	var buf [8]byte
	if err := readFull(f, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func ReadInt8(f mxfio.File) (int8, error)   { v, err := ReadUint8(f); return int8(v), err }
func ReadInt16(f mxfio.File) (int16, error) { v, err := ReadUint16(f); return int16(v), err }
func ReadInt32(f mxfio.File) (int32, error) { v, err := ReadUint32(f); return int32(v), err }
func ReadInt64(f mxfio.File) (int64, error) { v, err := ReadUint64(f); return int64(v), err }

func WriteUint8(f mxfio.File, v uint8) error { return f.PutByte(v) }

func WriteUint16(f mxfio.File, v uint16) error {
	return writeFull(f, []byte{byte(v >> 8), byte(v)})
}

func WriteUint32(f mxfio.File, v uint32) error {
	return writeFull(f, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func WriteUint64(f mxfio.File, v uint64) error {
	return writeFull(f, []byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}

func WriteInt8(f mxfio.File, v int8) error   { return WriteUint8(f, uint8(v)) }
func WriteInt16(f mxfio.File, v int16) error { return WriteUint16(f, uint16(v)) }
func WriteInt32(f mxfio.File, v int32) error { return WriteUint32(f, uint32(v)) }
func WriteInt64(f mxfio.File, v int64) error { return WriteUint64(f, uint64(v)) }

func ReadKey(f mxfio.File) (Key, error) {
	var k Key
	err := readFull(f, k[:])
	return k, err
}

func WriteKey(f mxfio.File, k *Key) error { return writeFull(f, k[:]) }

func ReadUUID(f mxfio.File) (UUID, error) {
	var u UUID
	err := readFull(f, u[:])
	return u, err
}

func WriteUUID(f mxfio.File, u *UUID) error { return writeFull(f, u[:]) }

func ReadUMID(f mxfio.File) (UMID, error) {
	var u UMID
	err := readFull(f, u[:])
	return u, err
}

func WriteUMID(f mxfio.File, u *UMID) error { return writeFull(f, u[:]) }

// ReadL reads a BER length, returning the encoded size and the value.
// Continuation counts above 8 fail with ErrBadBER.
func ReadL(f mxfio.File) (llen uint8, length uint64, err error) {
	c, err := f.GetByte()
	if err != nil {
		return 0, 0, err
	}
	if c < 0x80 {
		return 1, uint64(c), nil
	}
	n := c & 0x7f
	if n > 8 {
		return 0, 0, fmt.Errorf("%w: %d continuation octets", ErrBadBER, n)
	}
	var v uint64
	for i := uint8(0); i < n; i++ {
		b, err := f.GetByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		v = v<<8 | uint64(b)
	}
	return n + 1, v, nil
}

// WriteL writes length with the minimum BER size allowed by the file's
// configured minimum llen, growing as needed. It returns the llen used.
func WriteL(f mxfio.File, length uint64) (uint8, error) {
	llen := GetLLen(f, length)
	if err := WriteFixedL(f, llen, length); err != nil {
		return 0, err
	}
	return llen, nil
}

// WriteFixedL writes length using exactly llen bytes.
func WriteFixedL(f mxfio.File, llen uint8, length uint64) error {
	buf, err := EncodeBER(length, llen)
	if err != nil {
		return err
	}
	return writeFull(f, buf)
}

// GetLLen returns the BER size that WriteL would use for length on f:
// the minimum encoding size, raised to the file's minimum llen.
func GetLLen(f mxfio.File, length uint64) uint8 {
	llen := LLenFor(length)
	if f != nil && llen < f.MinLLen() {
		llen = f.MinLLen()
	}
	return llen
}

func ReadKL(f mxfio.File) (key Key, llen uint8, length uint64, err error) {
	if key, err = ReadKey(f); err != nil {
		return key, 0, 0, err
	}
	llen, length, err = ReadL(f)
	return key, llen, length, err
}

func WriteKL(f mxfio.File, key *Key, length uint64) error {
	if err := WriteKey(f, key); err != nil {
		return err
	}
	_, err := WriteL(f, length)
	return err
}

func WriteFixedKL(f mxfio.File, key *Key, llen uint8, length uint64) error {
	if err := WriteKey(f, key); err != nil {
		return err
	}
	return WriteFixedL(f, llen, length)
}

func ReadLocalTL(f mxfio.File) (tag uint16, length uint16, err error) {
	if tag, err = ReadUint16(f); err != nil {
		return 0, 0, err
	}
	length, err = ReadUint16(f)
	return tag, length, err
}

func WriteLocalTL(f mxfio.File, tag uint16, length uint16) error {
	if err := WriteUint16(f, tag); err != nil {
		return err
	}
	return WriteUint16(f, length)
}

// Batch and array headers are a count followed by an element length.

func ReadBatchHeader(f mxfio.File) (count uint32, eleLen uint32, err error) {
	if count, err = ReadUint32(f); err != nil {
		return 0, 0, err
	}
	eleLen, err = ReadUint32(f)
	return count, eleLen, err
}

func WriteBatchHeader(f mxfio.File, count uint32, eleLen uint32) error {
	if err := WriteUint32(f, count); err != nil {
		return err
	}
	return WriteUint32(f, eleLen)
}

const zerosChunk = 8192

var zeros [zerosChunk]byte

// WriteZeros writes length zero bytes.
func WriteZeros(f mxfio.File, length uint64) error {
	for length > 0 {
		n := length
		if n > zerosChunk {
			n = zerosChunk
		}
		if err := writeFull(f, zeros[:n]); err != nil {
			return err
		}
		length -= n
	}
	return nil
}

// Skip advances past length bytes, seeking when the file supports it
// and reading-and-discarding otherwise.
func Skip(f mxfio.File, length uint64) error {
	if f.IsSeekable() {
		_, err := f.Seek(int64(length), io.SeekCurrent)
		return err
	}
	_, err := io.CopyN(io.Discard, f, int64(length))
	return err
}
