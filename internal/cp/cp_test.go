package cp

import (
	"errors"
	"io"
	"testing"

	"github.com/distr1/mxf/internal/index"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

var (
	rate2997 = klv.Rational{Numerator: 30000, Denominator: 1001}
	rate25   = klv.Rational{Numerator: 25, Denominator: 1}
	seq2997  = []uint32{1602, 1601, 1602, 1601, 1602}
)

func newTestManager(t *testing.T, rate klv.Rational, kag uint32) (*Manager, *index.Table, *mxfio.MemoryFile) {
	t.Helper()
	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	table := index.NewTable(2, 1, rate, false)
	m := NewManager(f, table, rate, kag, &klv.FillKeyCompliant)
	return m, table, f
}

func soundKey(num uint8) klv.Key {
	return klv.GCElementKey(klv.GCItemTypeGCSound, 1, klv.GCElementTypeBWFFrameWrapped, num)
}

func pictureKey(num uint8) klv.Key {
	return klv.GCElementKey(klv.GCItemTypeGCPicture, 1, klv.GCElementTypeMPEGFrameWrapped, num)
}

func samples(n uint32) []byte {
	return make([]byte, n*2)
}

func TestSequenceOffsetInference(t *testing.T) {
	t.Parallel()

	m, table, _ := newTestManager(t, rate2997, 1)
	m.RegisterSound(0, soundKey(1), seq2997, 2)
	table.RegisterSoundElement(0)
	if err := m.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	table.PrepareWrite()

	if _, set := m.SoundSequenceOffset(); set {
		t.Fatal("sequence offset known before any samples")
	}

	// five writes starting at phase 0
	for _, count := range seq2997 {
		if err := m.WriteSamples(0, samples(count), count); err != nil {
			t.Fatal(err)
		}
	}
	offset, set := m.SoundSequenceOffset()
	if !set {
		t.Fatal("sequence offset not inferred after a full sequence")
	}
	if offset != 0 {
		t.Fatalf("inferred offset = %d, want 0", offset)
	}

	// the queued packages carry the sequence's sample counts in order
	for i, p := range m.packages {
		if got := p.soundSampleCount(); got != seq2997[i] {
			t.Errorf("package %d has %d samples, want %d", i, got, seq2997[i])
		}
	}
}

func TestSequenceOffsetInferenceRotated(t *testing.T) {
	t.Parallel()

	m, table, _ := newTestManager(t, rate2997, 1)
	m.RegisterSound(0, soundKey(1), seq2997, 2)
	table.RegisterSoundElement(0)
	if err := m.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	table.PrepareWrite()

	// input starts one frame into the sequence
	rotated := []uint32{1601, 1602, 1601, 1602, 1602}
	for _, count := range rotated {
		if err := m.WriteSamples(0, samples(count), count); err != nil {
			t.Fatal(err)
		}
	}
	offset, set := m.SoundSequenceOffset()
	if !set {
		t.Fatal("sequence offset not inferred")
	}
	if offset != 1 {
		t.Fatalf("inferred offset = %d, want 1", offset)
	}
}

func TestSequenceMismatch(t *testing.T) {
	t.Parallel()

	m, table, _ := newTestManager(t, rate2997, 1)
	m.RegisterSound(0, soundKey(1), seq2997, 2)
	table.RegisterSoundElement(0)
	if err := m.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	table.PrepareWrite()

	// 1600 never appears in the sequence
	err := m.WriteSamples(0, samples(1600), 1600)
	if !errors.Is(err, ErrSequenceMismatch) {
		t.Fatalf("WriteSamples = %v, want ErrSequenceMismatch", err)
	}
}

func TestContentPackageEmission(t *testing.T) {
	t.Parallel()

	const kag = 0x200
	m, table, f := newTestManager(t, rate25, kag)
	m.RegisterSystemItem()
	table.RegisterSystemItem()
	m.RegisterPicture(0, pictureKey(1))
	table.RegisterPictureElement(0, true, false)
	m.RegisterSound(1, soundKey(1), []uint32{1920}, 2)
	table.RegisterSoundElement(1)
	if err := m.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	table.PrepareWrite()

	const frameSize = 150000
	for i := 0; i < 3; i++ {
		if err := m.WriteSamples(0, make([]byte, frameSize), 1); err != nil {
			t.Fatal(err)
		}
		if err := m.WriteSamples(1, samples(1920), 1920); err != nil {
			t.Fatal(err)
		}
		ready, err := m.HaveContentPackage(false)
		if err != nil {
			t.Fatal(err)
		}
		if !ready {
			t.Fatalf("package %d not ready", i)
		}
		if err := m.WriteNextContentPackage(); err != nil {
			t.Fatal(err)
		}
	}

	// every emitted package is KAG aligned and the byte total matches
	// the index stream offset
	if f.Size()%kag != 0 {
		t.Errorf("file size %d is not a KAG multiple", f.Size())
	}
	if table.StreamOffset() != f.Size() {
		t.Errorf("index stream offset %d, file has %d bytes", table.StreamOffset(), f.Size())
	}
	if m.Position() != 3 {
		t.Errorf("position = %d, want 3", m.Position())
	}

	// the first element of the first package is the system item
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	key, _, length, err := klv.ReadKL(f)
	if err != nil {
		t.Fatal(err)
	}
	if key != SystemPackKey {
		t.Fatalf("first element key = %s, want system pack", key)
	}
	if length != systemPackSize {
		t.Fatalf("system pack length = %d, want %d", length, systemPackSize)
	}

	// continuity count and rate code
	var pack [systemPackSize]byte
	if _, err := io.ReadFull(f, pack[:]); err != nil {
		t.Fatal(err)
	}
	if pack[0] != 0x50|sysMetaPictureFlag|sysMetaSoundFlag {
		t.Errorf("system bitmap = %#x", pack[0])
	}
	if pack[1] != 2<<1 {
		t.Errorf("rate code = %#x, want %#x", pack[1], 2<<1)
	}
	if cc := uint16(pack[5])<<8 | uint16(pack[6]); cc != 0 {
		t.Errorf("continuity count = %d, want 0", cc)
	}
}

func TestSystemItemRateCode(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		rate klv.Rational
		want uint8
	}{
		{rate25, 2 << 1},
		{rate2997, 3<<1 | 1},
		{klv.Rational{Numerator: 24, Denominator: 1}, 1 << 1},
		{klv.Rational{Numerator: 50, Denominator: 1}, 5 << 1},
		{klv.Rational{Numerator: 60000, Denominator: 1001}, 6<<1 | 1},
	} {
		got, err := systemItemRateCode(test.rate)
		if err != nil {
			t.Errorf("systemItemRateCode(%v): %v", test.rate, err)
			continue
		}
		if got != test.want {
			t.Errorf("systemItemRateCode(%v) = %#x, want %#x", test.rate, got, test.want)
		}
	}
	if _, err := systemItemRateCode(klv.Rational{Numerator: 13, Denominator: 1}); err == nil {
		t.Error("rate code for 13 Hz succeeded")
	}
}

func TestTimecode(t *testing.T) {
	t.Parallel()

	tc := NewTimecode(25, false, 90000+250+7) // 01:00:10:07 at 25 fps
	h, m, s, fr := tc.HMSF()
	if h != 1 || m != 0 || s != 10 || fr != 7 {
		t.Fatalf("HMSF = %02d:%02d:%02d:%02d", h, m, s, fr)
	}

	enc := tc.Encode12M()
	if enc[0] != 0x07 || enc[1] != 0x10 || enc[2] != 0x00 || enc[3] != 0x01 {
		t.Fatalf("Encode12M = % x", enc[:4])
	}
}

func TestTimecodeDropFrame(t *testing.T) {
	t.Parallel()

	// ten minutes of 29.97 drop frame: 17982 frames is exactly 00:10:00;00
	tc := NewTimecode(30, true, 17982)
	h, m, s, fr := tc.HMSF()
	if h != 0 || m != 10 || s != 0 || fr != 0 {
		t.Fatalf("HMSF = %02d:%02d:%02d;%02d", h, m, s, fr)
	}

	// one minute in: frame numbers 0 and 1 are dropped
	tc = NewTimecode(30, true, 1800)
	h, m, s, fr = tc.HMSF()
	if h != 0 || m != 1 || s != 0 || fr != 2 {
		t.Fatalf("HMSF = %02d:%02d:%02d;%02d", h, m, s, fr)
	}

	enc := tc.Encode12M()
	if enc[0]&0x40 == 0 {
		t.Fatal("drop frame flag not set")
	}
}

func TestRoundedTCBase(t *testing.T) {
	t.Parallel()

	if got := RoundedTCBase(rate2997); got != 30 {
		t.Fatalf("RoundedTCBase(29.97) = %d", got)
	}
	if got := RoundedTCBase(rate25); got != 25 {
		t.Fatalf("RoundedTCBase(25) = %d", got)
	}
}
