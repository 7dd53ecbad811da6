package partition

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
)

func TestWriteHeaderPartitionPack(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)

	p := New()
	p.Key = HeaderKey(StatusOpenComplete)
	p.KAGSize = 0x100
	p.OperationalPattern = klv.OPAtomNTracks1SourceClip
	p.AppendEssenceContainer(&klv.ECDVBased50_625_50_ClipWrapped)

	if err := p.Write(f); err != nil {
		t.Fatal(err)
	}

	buf := f.Bytes()
	wantKey := []byte{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01,
		0x0d, 0x01, 0x02, 0x01, 0x01, 0x02, 0x03, 0x00}
	if diff := cmp.Diff(wantKey, buf[:16]); diff != "" {
		t.Fatalf("partition pack key differs (-want +got):\n%s", diff)
	}
	// BER length 88+16 = 104 with llen 4
	wantLen := []byte{0x83, 0x00, 0x00, 0x68}
	if diff := cmp.Diff(wantLen, buf[16:20]); diff != "" {
		t.Fatalf("partition pack length differs (-want +got):\n%s", diff)
	}
	if got := len(buf); got != 20+104 {
		t.Fatalf("pack occupies %d bytes, want %d", got, 20+104)
	}
	if p.ThisPartition != 0 {
		t.Fatalf("ThisPartition = %d, want 0", p.ThisPartition)
	}
}

func TestPartitionRoundTrip(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)

	p := New()
	p.Key = BodyKey(StatusClosedComplete)
	p.KAGSize = 512
	p.PrevPartition = 0x1000
	p.FooterPartition = 0x20000
	p.HeaderByteCount = 0x4000
	p.IndexByteCount = 0x200
	p.IndexSID = 2
	p.BodySID = 1
	p.BodyOffset = 0x8000
	p.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	p.AppendEssenceContainer(&klv.ECDVBased50_625_50_FrameWrapped)
	p.AppendEssenceContainer(&klv.ECBWFFrameWrapped)

	if err := p.Write(f); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	key, _, length, err := klv.ReadKL(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Read(f, &key, length)
	if err != nil {
		t.Fatal(err)
	}

	opts := cmpopts.IgnoreUnexported(Partition{})
	if diff := cmp.Diff(p, got, opts); diff != "" {
		t.Fatalf("partition round trip differs (-want +got):\n%s", diff)
	}
}

func TestPartitionKeyClassification(t *testing.T) {
	t.Parallel()

	header := HeaderKey(StatusOpenIncomplete)
	body := BodyKey(StatusClosedIncomplete)
	footer := FooterKey(StatusClosedComplete)

	if !IsHeader(&header) || IsBody(&header) || IsFooter(&header) {
		t.Error("header key misclassified")
	}
	if !IsBody(&body) || IsHeader(&body) {
		t.Error("body key misclassified")
	}
	if !IsFooter(&footer) || !IsPartitionPack(&footer) {
		t.Error("footer key misclassified")
	}
	if IsClosed(&header) || IsComplete(&body) {
		t.Error("status bits misclassified")
	}
	if !IsClosed(&footer) || !IsComplete(&footer) {
		t.Error("closed complete footer misclassified")
	}
	if !IsGenericStream(&GenericStreamKey) {
		t.Error("generic stream key not recognised")
	}
}

func TestUpdatePartitions(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	l := NewList()

	hp := l.AppendNew()
	hp.Key = HeaderKey(StatusOpenIncomplete)
	hp.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := hp.Write(f); err != nil {
		t.Fatal(err)
	}

	bp := l.AppendLike(hp)
	bp.Key = BodyKey(StatusOpenIncomplete)
	bp.BodySID = 1
	if err := bp.Write(f); err != nil {
		t.Fatal(err)
	}

	fp := l.AppendLike(hp)
	fp.Key = FooterKey(StatusClosedComplete)
	if err := fp.Write(f); err != nil {
		t.Fatal(err)
	}

	hp.Key = HeaderKey(StatusClosedComplete)
	if err := l.Update(f); err != nil {
		t.Fatal(err)
	}

	// read all three packs back and check the propagated offsets
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	var got []*Partition
	for i := 0; i < 3; i++ {
		key, _, length, err := klv.ReadKL(f)
		if err != nil {
			t.Fatal(err)
		}
		p, err := Read(f, &key, length)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, p)
	}

	if got[1].PrevPartition != got[0].ThisPartition {
		t.Errorf("body PrevPartition = %d, want %d", got[1].PrevPartition, got[0].ThisPartition)
	}
	if got[2].PrevPartition != got[1].ThisPartition {
		t.Errorf("footer PrevPartition = %d, want %d", got[2].PrevPartition, got[1].ThisPartition)
	}
	for i, p := range got {
		if p.FooterPartition != got[2].ThisPartition {
			t.Errorf("partition %d FooterPartition = %d, want %d", i, p.FooterPartition, got[2].ThisPartition)
		}
	}
	if !IsClosed(&got[0].Key) || !IsComplete(&got[0].Key) {
		t.Error("header partition key was not updated in place")
	}
}

func TestRIPRoundTrip(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	l := NewList()
	hp := l.AppendNew()
	hp.Key = HeaderKey(StatusClosedComplete)
	hp.ThisPartition = 0
	hp.BodySID = 0
	bp := l.AppendNew()
	bp.Key = BodyKey(StatusClosedComplete)
	bp.ThisPartition = 0x8000
	bp.BodySID = 1
	fp := l.AppendNew()
	fp.Key = FooterKey(StatusClosedComplete)
	fp.ThisPartition = 0x90000
	fp.BodySID = 0

	if err := l.WriteRIP(f); err != nil {
		t.Fatal(err)
	}

	// the last 4 bytes hold the byte length of the whole RIP
	buf := f.Bytes()
	trailer := uint32(buf[len(buf)-4])<<24 | uint32(buf[len(buf)-3])<<16 |
		uint32(buf[len(buf)-2])<<8 | uint32(buf[len(buf)-1])
	if int(trailer) != len(buf) {
		t.Fatalf("RIP trailer length = %d, file has %d bytes", trailer, len(buf))
	}

	rip, err := ReadRIP(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []RIPEntry{
		{BodySID: 0, ThisPartition: 0},
		{BodySID: 1, ThisPartition: 0x8000},
		{BodySID: 0, ThisPartition: 0x90000},
	}
	if diff := cmp.Diff(want, rip.Entries); diff != "" {
		t.Fatalf("RIP entries differ (-want +got):\n%s", diff)
	}
}

func TestFillToKAG(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	p := New()
	p.Key = HeaderKey(StatusOpenIncomplete)
	p.KAGSize = 0x200
	p.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := p.Write(f); err != nil {
		t.Fatal(err)
	}

	if err := FillToKAG(f, p, &klv.FillKeyCompliant); err != nil {
		t.Fatal(err)
	}
	if f.Tell()%0x200 != 0 {
		t.Fatalf("position %d is not KAG aligned", f.Tell())
	}

	// a remainder too small for a fill KLV grows by one KAG
	if _, err := f.Write(make([]byte, 0x200-10)); err != nil {
		t.Fatal(err)
	}
	if err := FillToKAG(f, p, &klv.FillKeyCompliant); err != nil {
		t.Fatal(err)
	}
	if f.Tell()%0x200 != 0 {
		t.Fatalf("position %d is not KAG aligned after grow", f.Tell())
	}
}

func TestFillToPosition(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	if _, err := f.Write(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if err := FillToPosition(f, &klv.FillKeyCompliant, 0x1000); err != nil {
		t.Fatal(err)
	}
	if f.Tell() != 0x1000 {
		t.Fatalf("position = %d, want 0x1000", f.Tell())
	}

	// filling to the current position is a no-op
	if err := FillToPosition(f, &klv.FillKeyCompliant, 0x1000); err != nil {
		t.Fatal(err)
	}
	if f.Tell() != 0x1000 {
		t.Fatalf("position moved to %d", f.Tell())
	}

	// too small a gap for a fill KLV fails
	if err := FillToPosition(f, &klv.FillKeyCompliant, 0x1005); err == nil {
		t.Fatal("FillToPosition squeezed a fill into 5 bytes")
	}
}

func TestFindFooterByBackwardScan(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)

	hp := New()
	hp.Key = HeaderKey(StatusClosedComplete)
	hp.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := hp.Write(f); err != nil {
		t.Fatal(err)
	}
	// essence-like junk between header and footer
	if _, err := f.Write(make([]byte, 70000)); err != nil {
		t.Fatal(err)
	}

	footerPos := f.Tell()
	fp := New()
	fp.Key = FooterKey(StatusClosedComplete)
	fp.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := fp.Write(f); err != nil {
		t.Fatal(err)
	}

	// the header pack records no footer offset and there is no RIP, so
	// the footer is found by scanning backwards
	hp.FooterPartition = 0
	if err := FindFooter(f, hp); err != nil {
		t.Fatal(err)
	}
	if f.Tell() != footerPos {
		t.Fatalf("FindFooter stopped at %d, footer is at %d", f.Tell(), footerPos)
	}
}

func TestFindFooterAbsent(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	hp := New()
	hp.Key = HeaderKey(StatusOpenIncomplete)
	hp.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := hp.Write(f); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	if err := FindFooter(f, hp); !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("FindFooter = %v, want ErrFooterNotFound", err)
	}
}

func TestReadHeaderPackWithRunIn(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)

	runIn := make([]byte, 123)
	for i := range runIn {
		runIn[i] = 0x55
	}
	if _, err := f.Write(runIn); err != nil {
		t.Fatal(err)
	}

	hp := New()
	hp.Key = HeaderKey(StatusOpenComplete)
	hp.OperationalPattern = klv.OP1aMultiTrackStreamInternal
	if err := hp.Write(f); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	key, _, _, err := ReadHeaderPackKLWithRunIn(f)
	if err != nil {
		t.Fatal(err)
	}
	if !IsHeader(&key) {
		t.Fatalf("found key %s", key)
	}
	if f.RunInLen() != 123 {
		t.Fatalf("run-in length = %d, want 123", f.RunInLen())
	}
}
