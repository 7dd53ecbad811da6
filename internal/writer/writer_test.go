package writer

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/mxf/internal/cp"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/partition"
	"github.com/distr1/mxf/internal/reader"
	"github.com/distr1/mxf/internal/schema"
)

const dv50FrameSize = 288000

var rate25 = klv.Rational{Numerator: 25, Denominator: 1}

func dv50Config() Config {
	return Config{
		FrameRate:     rate25,
		StartTimecode: cp.NewTimecode(25, false, 0),
		ClipName:      "test clip",
		CompanyName:   "distri",
		ProductName:   "mxf writer test",
		VersionString: "0.1",
		ProductUID:    klv.UUID{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}
}

func dv50Track() TrackConfig {
	return TrackConfig{
		Type:             PictureTrack,
		EssenceContainer: klv.ECDVBased50_625_50_FrameWrapped,
		GCItemType:       klv.GCItemTypeCompound,
		GCElementType:    klv.GCElementTypeDVFrameWrapped,
		CBE:              true,
		StoredWidth:      720,
		StoredHeight:     288,
		AspectRatio:      klv.Rational{Numerator: 4, Denominator: 3},
		ComponentDepth:   8,
	}
}

func writeDV50File(t *testing.T, cfg Config, frames int) *mxfio.MemoryFile {
	t.Helper()
	f := mxfio.NewMemoryFile()
	w, err := New(f, cfg)
	if err != nil {
		t.Fatal(err)
	}
	track, err := w.AddTrack(dv50Track())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	frame := make([]byte, dv50FrameSize)
	for i := 0; i < frames; i++ {
		if err := w.WriteSamples(track.Index, frame, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return f
}

// the frame-wrapped edit unit covers the element KLV as well as the
// frame payload
const dv50EditUnitSize = klv.KeyExtlen + 4 + dv50FrameSize

func TestWriteDV50MinimalPartitions(t *testing.T) {
	t.Parallel()

	cfg := dv50Config()
	cfg.Flavour = FlavourMinPartitions
	f := writeDV50File(t, cfg, 4)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	r, err := reader.Open(f, nil)
	if err != nil {
		t.Fatal(err)
	}

	// single body layout: header and footer only
	if len(r.Partitions) != 2 {
		t.Fatalf("%d partitions, want 2", len(r.Partitions))
	}
	if r.RIP == nil || len(r.RIP.Entries) != 2 {
		t.Fatalf("RIP = %+v, want 2 entries", r.RIP)
	}
	header := r.Partitions[0]
	if !partition.IsHeader(&header.Key) || !partition.IsClosed(&header.Key) || !partition.IsComplete(&header.Key) {
		t.Fatalf("header partition key = %s after close", header.Key)
	}
	if header.BodySID != DefaultBodySID || header.IndexSID != DefaultIndexSID {
		t.Fatalf("header partition SIDs = %d/%d", header.BodySID, header.IndexSID)
	}
	footer := r.Partitions[1]
	if !partition.IsFooter(&footer.Key) {
		t.Fatalf("second partition key = %s, want footer", footer.Key)
	}
	if footer.FooterPartition != footer.ThisPartition {
		t.Fatalf("footer FooterPartition = %d at offset %d", footer.FooterPartition, footer.ThisPartition)
	}
	if header.FooterPartition != footer.ThisPartition {
		t.Fatalf("header FooterPartition = %d, footer at %d", header.FooterPartition, footer.ThisPartition)
	}

	// one CBE segment with the final duration
	if len(r.Segments) != 1 {
		t.Fatalf("%d index segments, want 1", len(r.Segments))
	}
	seg := r.Segments[0]
	if seg.EditUnitByteCount != dv50EditUnitSize {
		t.Errorf("edit unit byte count = %d, want %d", seg.EditUnitByteCount, dv50EditUnitSize)
	}
	if seg.IndexDuration != 4 {
		t.Errorf("index duration = %d, want 4", seg.IndexDuration)
	}
	if seg.BodySID != DefaultBodySID || seg.IndexSID != DefaultIndexSID {
		t.Errorf("segment SIDs = %d/%d", seg.BodySID, seg.IndexSID)
	}

	// CBE random access
	for n := int64(0); n < 4; n++ {
		off, err := r.EditUnitOffset(DefaultIndexSID, n)
		if err != nil {
			t.Fatal(err)
		}
		if off != uint64(n)*dv50EditUnitSize {
			t.Errorf("edit unit %d offset = %d, want %d", n, off, uint64(n)*dv50EditUnitSize)
		}
	}

	// durations were filled in on the in-place metadata rewrite
	mp, err := r.Metadata.FindSingularSet(&schema.SetMaterialPackage)
	if err != nil {
		t.Fatal(err)
	}
	tracks, err := mp.GetStrongRefArrayItem(&schema.ItemTracks)
	if err != nil {
		t.Fatal(err)
	}
	for _, track := range tracks {
		sequence, err := track.GetStrongRefItem(&schema.ItemSequenceRef)
		if err != nil {
			t.Fatal(err)
		}
		d, err := sequence.GetLengthItem(&schema.ItemDuration)
		if err != nil {
			t.Fatal(err)
		}
		if d != 4 {
			t.Errorf("sequence duration = %d, want 4", d)
		}
	}
}

func TestWriteDV50BodyPartitions(t *testing.T) {
	t.Parallel()

	cfg := dv50Config()
	cfg.Flavour = Flavour512KAG
	f := writeDV50File(t, cfg, 4)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	r, err := reader.Open(f, nil)
	if err != nil {
		t.Fatal(err)
	}

	// header, CBE index partition, essence partition, footer
	if len(r.Partitions) != 4 {
		t.Fatalf("%d partitions, want 4", len(r.Partitions))
	}
	if len(r.RIP.Entries) != 4 {
		t.Fatalf("%d RIP entries, want 4", len(r.RIP.Entries))
	}

	// the essence body partition carries the body stream from offset 0
	var essence *partition.Partition
	for _, p := range r.Partitions {
		if p.BodySID == DefaultBodySID && partition.IsBody(&p.Key) {
			essence = p
		}
	}
	if essence == nil {
		t.Fatal("no essence body partition")
	}
	if essence.BodyOffset != 0 {
		t.Errorf("essence partition body offset = %d, want 0", essence.BodyOffset)
	}

	if r.Duration(DefaultIndexSID) != 4 {
		t.Fatalf("indexed duration = %d, want 4", r.Duration(DefaultIndexSID))
	}
}

func TestWriteTrimOffsets(t *testing.T) {
	t.Parallel()

	cfg := dv50Config()
	cfg.OutputStartOffset = 1
	f := writeDV50File(t, cfg, 4)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	r, err := reader.Open(f, nil)
	if err != nil {
		t.Fatal(err)
	}

	mp, err := r.Metadata.FindSingularSet(&schema.SetMaterialPackage)
	if err != nil {
		t.Fatal(err)
	}
	tracks, err := mp.GetStrongRefArrayItem(&schema.ItemTracks)
	if err != nil {
		t.Fatal(err)
	}
	sequence, err := tracks[0].GetStrongRefItem(&schema.ItemSequenceRef)
	if err != nil {
		t.Fatal(err)
	}
	d, err := sequence.GetLengthItem(&schema.ItemDuration)
	if err != nil {
		t.Fatal(err)
	}
	if d != 3 {
		t.Fatalf("trimmed duration = %d, want 3", d)
	}
}

func TestWriterStateErrors(t *testing.T) {
	t.Parallel()

	f := mxfio.NewMemoryFile()
	w, err := New(f, dv50Config())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddTrack(dv50Track()); err != nil {
		t.Fatal(err)
	}

	if err := w.WriteSamples(0, make([]byte, 16), 1); !errors.Is(err, ErrState) {
		t.Fatalf("WriteSamples before PrepareWrite = %v, want ErrState", err)
	}
	if err := w.Close(); !errors.Is(err, ErrState) {
		t.Fatalf("Close before PrepareWrite = %v, want ErrState", err)
	}

	if err := w.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddTrack(dv50Track()); !errors.Is(err, ErrState) {
		t.Fatalf("AddTrack after PrepareWrite = %v, want ErrState", err)
	}
	if err := w.PrepareWrite(); !errors.Is(err, ErrState) {
		t.Fatalf("second PrepareWrite = %v, want ErrState", err)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); !errors.Is(err, ErrState) {
		t.Fatalf("second Close = %v, want ErrState", err)
	}
}

func TestWriteMD5Sidecar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "out.mxf")
	sidecar := filepath.Join(dir, "out.mxf.md5")

	f, err := mxfio.OpenNew(name)
	if err != nil {
		t.Fatal(err)
	}
	cfg := dv50Config()
	cfg.Flavour = FlavourMD5
	cfg.MD5SidecarPath = sidecar

	w, err := New(f, cfg)
	if err != nil {
		t.Fatal(err)
	}
	track, err := w.AddTrack(dv50Track())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareWrite(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSamples(track.Index, make([]byte, dv50FrameSize), 1); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	contents, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	sum := md5.Sum(contents)
	want := hex.EncodeToString(sum[:])
	if w.MD5Digest() != want {
		t.Fatalf("digest = %s, file hashes to %s", w.MD5Digest(), want)
	}
	got, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want+"\n" {
		t.Fatalf("sidecar = %q", got)
	}
}

func TestSoundSequencePhaseEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := dv50Config()
	cfg.FrameRate = klv.Rational{Numerator: 30000, Denominator: 1001}
	cfg.StartTimecode = cp.NewTimecode(30, true, 0)

	f := mxfio.NewMemoryFile()
	w, err := New(f, cfg)
	if err != nil {
		t.Fatal(err)
	}
	sound, err := w.AddTrack(TrackConfig{
		Type:             SoundTrack,
		EssenceContainer: klv.ECBWFFrameWrapped,
		GCItemType:       klv.GCItemTypeGCSound,
		GCElementType:    klv.GCElementTypeBWFFrameWrapped,
		CBE:              true,
		SamplingRate:     klv.Rational{Numerator: 48000, Denominator: 1},
		ChannelCount:     1,
		QuantizationBits: 16,
		SampleSequence:   []uint32{1602, 1601, 1602, 1601, 1602},
		SampleSize:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.PrepareWrite(); err != nil {
		t.Fatal(err)
	}

	for _, count := range []uint32{1602, 1601, 1602, 1601, 1602, 1602} {
		if err := w.WriteSamples(sound.Index, make([]byte, count*2), count); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if w.Duration() != 6 {
		t.Fatalf("duration = %d, want 6", w.Duration())
	}
}
