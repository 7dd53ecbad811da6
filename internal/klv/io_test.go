package klv

import (
	"bytes"
	"io"
	"testing"

	"github.com/distr1/mxf/internal/mxfio"
)

func TestIntegerRoundTrip(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	if err := WriteUint8(f, 0xab); err != nil {
		t.Fatal(err)
	}
	if err := WriteUint16(f, 0x1234); err != nil {
		t.Fatal(err)
	}
	if err := WriteUint32(f, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if err := WriteUint64(f, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := WriteInt32(f, -25); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if v, err := ReadUint8(f); err != nil || v != 0xab {
		t.Fatalf("ReadUint8 = %#x, %v", v, err)
	}
	if v, err := ReadUint16(f); err != nil || v != 0x1234 {
		t.Fatalf("ReadUint16 = %#x, %v", v, err)
	}
	if v, err := ReadUint32(f); err != nil || v != 0xdeadbeef {
		t.Fatalf("ReadUint32 = %#x, %v", v, err)
	}
	if v, err := ReadUint64(f); err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadUint64 = %#x, %v", v, err)
	}
	if v, err := ReadInt32(f); err != nil || v != -25 {
		t.Fatalf("ReadInt32 = %d, %v", v, err)
	}
}

func TestWriteLHonoursMinLLen(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	llen, err := WriteL(f, 0x68)
	if err != nil {
		t.Fatal(err)
	}
	if llen != 4 {
		t.Fatalf("WriteL used llen %d, want 4", llen)
	}
	if got, want := f.Bytes(), []byte{0x83, 0x00, 0x00, 0x68}; !bytes.Equal(got, want) {
		t.Fatalf("WriteL wrote %x, want %x", got, want)
	}
}

func TestKLRoundTrip(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	key := FillKeyCompliant
	if err := WriteKL(f, &key, 0x12345); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	gotKey, llen, length, err := ReadKL(f)
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != key || length != 0x12345 {
		t.Fatalf("ReadKL = %s, %d", gotKey, length)
	}
	if llen != 4 {
		t.Fatalf("llen = %d, want 4", llen)
	}
}

func TestWriteFill(t *testing.T) {
	t.Parallel()

	for _, total := range []uint64{17, 20, 64, 0x100, 0x10000} {
		f := mxfio.NewMemoryFile()
		if err := WriteFill(f, &FillKeyCompliant, total); err != nil {
			t.Fatalf("WriteFill(%d): %v", total, err)
		}
		if got := uint64(f.Size()); got != total {
			t.Fatalf("WriteFill(%d) wrote %d bytes", total, got)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			t.Fatal(err)
		}
		key, _, length, err := ReadKL(f)
		if err != nil {
			t.Fatal(err)
		}
		if !IsFill(&key) {
			t.Fatalf("WriteFill(%d) wrote key %s", total, key)
		}
		if err := Skip(f, length); err != nil {
			t.Fatal(err)
		}
		if f.Tell() != int64(total) {
			t.Fatalf("fill KLV occupies %d bytes, want %d", f.Tell(), total)
		}
	}
}

func TestWriteFillTooSmall(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	if err := WriteFill(f, &FillKeyCompliant, 16); err == nil {
		t.Fatal("WriteFill(16) succeeded, want error")
	}
}

func TestSkipNonSeekable(t *testing.T) {
	t.Parallel()

	src := bytes.NewReader(append(make([]byte, 100), 0x42))
	f := mxfio.NewStreamReader(src)
	if err := Skip(f, 100); err != nil {
		t.Fatal(err)
	}
	b, err := f.GetByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x42 {
		t.Fatalf("byte after skip = %#x, want 0x42", b)
	}
}
