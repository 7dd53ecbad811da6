package klv

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeBERShortForm(t *testing.T) {
	t.Parallel()

	got, err := EncodeBER(0x7f, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x7f}; !bytes.Equal(got, want) {
		t.Fatalf("EncodeBER(0x7f, 1) = %x, want %x", got, want)
	}
}

func TestEncodeBERShortFormOverflow(t *testing.T) {
	t.Parallel()

	if _, err := EncodeBER(0x80, 1); err == nil {
		t.Fatal("EncodeBER(0x80, 1) succeeded, want error")
	}
}

func TestEncodeBERFixedLLen(t *testing.T) {
	t.Parallel()

	got, err := EncodeBER(0x1234, 4)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x83, 0x00, 0x12, 0x34}; !bytes.Equal(got, want) {
		t.Fatalf("EncodeBER(0x1234, 4) = %x, want %x", got, want)
	}
}

func TestBERRoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint64{0, 1, 0x7f, 0x80, 0xff, 0x100, 0xffff, 0x10000,
		0xffffffff, 0x100000000, 0xffffffffffffffff}
	for llen := uint8(1); llen <= 9; llen++ {
		for _, v := range values {
			if llen == 1 && v >= 0x80 {
				continue
			}
			if llen != 9 && llen > 1 && v>>((llen-1)*8) > 0 {
				continue
			}
			buf, err := EncodeBER(v, llen)
			if err != nil {
				t.Fatalf("EncodeBER(%#x, %d): %v", v, llen, err)
			}
			if len(buf) != int(llen) {
				t.Fatalf("EncodeBER(%#x, %d) used %d bytes", v, llen, len(buf))
			}
			got, n, err := DecodeBER(buf)
			if err != nil {
				t.Fatalf("DecodeBER(%x): %v", buf, err)
			}
			if got != v || n != int(llen) {
				t.Fatalf("DecodeBER(%x) = %#x (%d bytes), want %#x (%d bytes)", buf, got, n, v, llen)
			}

			// deterministic
			buf2, err := EncodeBER(v, llen)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, buf2) {
				t.Fatalf("EncodeBER(%#x, %d) is not deterministic", v, llen)
			}
		}
	}
}

func TestDecodeBERTooManyOctets(t *testing.T) {
	t.Parallel()

	if _, _, err := DecodeBER([]byte{0x89, 0, 0, 0, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Fatal("DecodeBER accepted 9 continuation octets")
	}
}

func TestLLenFor(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		v    uint64
		want uint8
	}{
		{0, 1}, {0x7f, 1}, {0x80, 2}, {0xff, 2}, {0x100, 3},
		{0xffff, 3}, {0x10000, 4}, {0xffffffff, 5}, {0xffffffffffffffff, 9},
	} {
		if got := LLenFor(test.v); got != test.want {
			t.Errorf("LLenFor(%#x) = %d, want %d", test.v, got, test.want)
		}
	}
}

func TestKeyEquality(t *testing.T) {
	t.Parallel()

	a := FillKeyLegacy
	b := FillKeyCompliant
	if EqualsKey(&a, &b) {
		t.Error("fill keys with different registry versions compare equal")
	}
	if !EqualsKeyModRegVer(&a, &b) {
		t.Error("fill keys do not compare equal mod registry version")
	}
	if !IsFill(&a) || !IsFill(&b) {
		t.Error("fill keys not recognised")
	}
}

func TestHalfSwap(t *testing.T) {
	t.Parallel()

	id := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	swapped := HalfSwap(id)
	want := [16]byte{8, 9, 10, 11, 12, 13, 14, 15, 0, 1, 2, 3, 4, 5, 6, 7}
	if diff := cmp.Diff(want, swapped); diff != "" {
		t.Fatalf("HalfSwap: diff (-want +got):\n%s", diff)
	}
	if HalfSwap(swapped) != id {
		t.Fatal("HalfSwap is not an involution")
	}
}

func TestGenerateUUID(t *testing.T) {
	t.Parallel()

	a, b := GenerateUUID(), GenerateUUID()
	if a == b {
		t.Fatal("two generated UUIDs compare equal")
	}
	if a[6]>>4 != 4 {
		t.Errorf("UUID version nibble = %d, want 4", a[6]>>4)
	}
}

func TestGenerateUMID(t *testing.T) {
	t.Parallel()

	umid := GenerateUMID()
	wantPrefix := []byte{0x06, 0x0a, 0x2b, 0x34}
	if !bytes.Equal(umid[:4], wantPrefix) {
		t.Errorf("UMID prefix = %x, want %x", umid[:4], wantPrefix)
	}
	if umid[12] != 0x13 {
		t.Errorf("UMID length octet = %#x, want 0x13", umid[12])
	}
}
