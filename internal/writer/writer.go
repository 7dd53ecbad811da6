// Package writer drives the MXF engine end-to-end for one output file:
// it places the header, body and footer partitions, multiplexes content
// packages, triggers index segment writes and finalises durations.
package writer

import (
	"errors"
	"fmt"

	"github.com/distr1/mxf/internal/cp"
	"github.com/distr1/mxf/internal/index"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/metadata"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/partition"
	"github.com/distr1/mxf/internal/schema"
)

// ErrState flags API misuse such as writing samples before
// PrepareWrite or closing twice.
var ErrState = errors.New("writer: invalid state for operation")

// Flavour selects output file variations.
type Flavour uint32

const (
	// Flavour3772004 writes SMPTE ST 377-2004 files: minor version 2,
	// Preface version 258 and the legacy fill key.
	Flavour3772004 Flavour = 1 << iota

	// FlavourMinPartitions keeps essence in the header partition's
	// stream: CBE index segments live in the header partition and VBE
	// segments in the footer.
	FlavourMinPartitions

	// Flavour512KAG uses a 512-byte KLV alignment grid.
	Flavour512KAG

	// FlavourSinglePass writes CBE durations once, from the input
	// duration hint, instead of re-writing segments at finalisation.
	FlavourSinglePass

	// FlavourMD5 computes an MD5 of the finished file and writes it to
	// the sidecar path.
	FlavourMD5

	// FlavourNoBodyPartitionUpdate leaves body partition packs with
	// their open/incomplete keys at finalisation.
	FlavourNoBodyPartitionUpdate
)

// Default stream identifiers.
const (
	DefaultBodySID  = 1
	DefaultIndexSID = 2
)

// minLLen is the minimum BER length size used throughout a written
// file so lengths can be rewritten in place.
const minLLen = 4

const (
	timecodeTrackName = "TC1"
	timecodeTrackID   = 901
	firstTrackID      = 1001
)

// Config carries the writer configuration.
type Config struct {
	FrameRate     klv.Rational
	StartTimecode cp.Timecode
	ClipName      string

	CompanyName   string
	ProductName   string
	VersionString string
	ProductInfo   klv.ProductVersion
	ProductUID    klv.UUID

	CreationDate         *klv.Timestamp
	MaterialPackageUID   klv.UMID
	FileSourcePackageUID klv.UMID

	// ReserveMinBytes reserves space for the header metadata so it can
	// be re-written in place at finalisation.
	ReserveMinBytes uint32

	// PartitionInterval opens a new body partition every so many edit
	// units (0 keeps a single body partition).
	PartitionInterval int64

	// OutputStartOffset and OutputEndOffset trim the output duration.
	OutputStartOffset int64
	OutputEndOffset   int64

	// InputDuration is the total duration hint for single-pass writes
	// (-1 when unknown).
	InputDuration int64

	Flavour Flavour

	// MD5SidecarPath receives the hex digest when FlavourMD5 is set.
	MD5SidecarPath string

	BodySID  uint32
	IndexSID uint32

	// SystemItem adds the system metadata pack with user timecode to
	// every content package.
	SystemItem bool

	// HaveInputUserTimecode makes each content package wait for a
	// caller-supplied user timecode.
	HaveInputUserTimecode bool

	// SoundSequenceOffset supplies the sample sequence phase; when nil
	// it is inferred from the first observed run.
	SoundSequenceOffset *uint8
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReserveMinBytes == 0 {
		out.ReserveMinBytes = 8192
	}
	if out.BodySID == 0 {
		out.BodySID = DefaultBodySID
	}
	if out.IndexSID == 0 {
		out.IndexSID = DefaultIndexSID
	}
	if out.InputDuration == 0 && out.Flavour&FlavourSinglePass == 0 {
		out.InputDuration = -1
	}
	return out
}

// TrackType selects the essence kind of a track.
type TrackType int

const (
	PictureTrack TrackType = iota
	SoundTrack
	DataTrack
)

// TrackConfig describes one essence track.
type TrackConfig struct {
	Type             TrackType
	EssenceContainer klv.UL

	// GCItemType and GCElementType are the generic container element
	// key octets; the element count and number are assigned per track.
	GCItemType    uint8
	GCElementType uint8

	// CBE marks a constant edit-unit byte count; AVCI additionally
	// keeps a one-off first-frame segment for the parameter sets.
	CBE  bool
	AVCI bool

	// TemporalReordering marks coded order differing from display
	// order.
	TemporalReordering bool

	// Picture descriptor fields.
	StoredWidth          uint32
	StoredHeight         uint32
	AspectRatio          klv.Rational
	FrameLayout          uint8
	ComponentDepth       uint32
	HorizSubsampling     uint32
	VertSubsampling      uint32
	PictureEssenceCoding klv.UL

	// Sound descriptor fields and the per-edit-unit sample sequence.
	SamplingRate     klv.Rational
	ChannelCount     uint32
	QuantizationBits uint32
	SampleSequence   []uint32
	SampleSize       uint32

	// Data element sizes: constant essence length or maximum length.
	ConstantDataLen uint32
	MaxDataLen      uint32
}

// Track is a registered track of the output file.
type Track struct {
	Index       uint32
	Config      TrackConfig
	ElementKey  klv.Key
	TrackNumber uint32
	TrackID     uint32

	descriptor *metadata.Set
}

type state int

const (
	stateInit state = iota
	statePrepared
	stateWriting
	stateDone
)

// Writer writes one MXF file.
type Writer struct {
	cfg     Config
	f       mxfio.File
	fillKey klv.Key
	kagSize uint32

	partitions *partition.List
	table      *index.Table
	cpm        *cp.Manager

	model *schema.DataModel
	hm    *metadata.HeaderMetadata

	tracks   []*Track
	trackMap map[uint32]*Track

	essenceContainers []klv.UL

	state               state
	firstWrite          bool
	partitionFrameCount int64

	headerMetadataStartPos int64
	headerMetadataEndPos   int64
	cbeIndexStartPos       int64

	materialPackage   *metadata.Set
	fileSourcePackage *metadata.Set

	creationDate klv.Timestamp
	md5Digest    string
}

// New returns a writer over an open file. The file must be seekable
// unless the configuration avoids every rewrite (single-pass CBE with
// minimal partitions).
func New(f mxfio.File, cfg Config) (*Writer, error) {
	if cfg.FrameRate.Numerator <= 0 || cfg.FrameRate.Denominator <= 0 {
		return nil, fmt.Errorf("writer: invalid frame rate %d/%d", cfg.FrameRate.Numerator, cfg.FrameRate.Denominator)
	}
	c := cfg.withDefaults()

	w := &Writer{
		cfg:        c,
		f:          f,
		kagSize:    1,
		partitions: partition.NewList(),
		trackMap:   make(map[uint32]*Track),
		state:      stateInit,
		firstWrite: true,
	}
	if c.Flavour&Flavour512KAG != 0 {
		w.kagSize = 512
	}
	if c.Flavour&Flavour3772004 != 0 {
		w.fillKey = klv.FillKeyLegacy
	} else {
		w.fillKey = klv.FillKeyCompliant
	}
	if c.CreationDate != nil {
		w.creationDate = *c.CreationDate
	} else {
		w.creationDate = klv.TimestampNow()
	}
	if c.MaterialPackageUID == klv.NullUMID {
		w.cfg.MaterialPackageUID = klv.GenerateUMID()
	}
	if c.FileSourcePackageUID == klv.NullUMID {
		w.cfg.FileSourcePackageUID = klv.GenerateUMID()
	}

	f.SetMinLLen(minLLen)

	w.table = index.NewTable(w.cfg.IndexSID, w.cfg.BodySID, w.cfg.FrameRate, false)
	if w.cfg.InputDuration >= 0 {
		w.table.SetInputDuration(w.cfg.InputDuration)
	}
	w.cpm = cp.NewManager(f, w.table, w.cfg.FrameRate, w.kagSize, &w.fillKey)
	w.cpm.SetHaveInputUserTimecode(w.cfg.HaveInputUserTimecode)
	if w.cfg.StartTimecode.IsValid() {
		w.cpm.SetStartTimecode(w.cfg.StartTimecode)
	}
	if w.cfg.SoundSequenceOffset != nil {
		w.cpm.SetSoundSequenceOffset(*w.cfg.SoundSequenceOffset)
	}
	return w, nil
}

// AddTrack registers an essence track; all tracks are added before
// PrepareWrite.
func (w *Writer) AddTrack(cfg TrackConfig) (*Track, error) {
	if w.state != stateInit {
		return nil, fmt.Errorf("%w: tracks are added before PrepareWrite", ErrState)
	}
	t := &Track{
		Index:  uint32(len(w.tracks)),
		Config: cfg,
	}
	w.tracks = append(w.tracks, t)
	w.trackMap[t.Index] = t
	return t, nil
}

// Tracks returns the registered tracks.
func (w *Writer) Tracks() []*Track { return w.tracks }

// Duration returns the output duration written so far, with the
// configured trim offsets applied.
func (w *Writer) Duration() int64 {
	return w.table.Duration() - w.cfg.OutputStartOffset + w.cfg.OutputEndOffset
}

// MD5Digest returns the hex digest computed at Close for FlavourMD5.
func (w *Writer) MD5Digest() string { return w.md5Digest }

// prepareTracks assigns element keys and track numbers and registers
// every track with the content package manager and the index table.
func (w *Writer) prepareTracks() error {
	var pictureCount, soundCount, dataCount uint8
	for _, t := range w.tracks {
		switch t.Config.Type {
		case PictureTrack:
			pictureCount++
		case SoundTrack:
			soundCount++
		case DataTrack:
			dataCount++
		}
	}

	var pictureNum, soundNum, dataNum uint8
	for _, t := range w.tracks {
		cfg := &t.Config
		switch cfg.Type {
		case PictureTrack:
			pictureNum++
			t.ElementKey = klv.GCElementKey(cfg.GCItemType, pictureCount, cfg.GCElementType, pictureNum)
			t.TrackNumber = klv.GCTrackNumber(cfg.GCItemType, pictureCount, cfg.GCElementType, pictureNum)
			w.cpm.RegisterPicture(t.Index, t.ElementKey)
			if cfg.AVCI {
				w.table.RegisterAVCIElement(t.Index)
			} else {
				w.table.RegisterPictureElement(t.Index, cfg.CBE, cfg.TemporalReordering)
			}
		case SoundTrack:
			soundNum++
			t.ElementKey = klv.GCElementKey(cfg.GCItemType, soundCount, cfg.GCElementType, soundNum)
			t.TrackNumber = klv.GCTrackNumber(cfg.GCItemType, soundCount, cfg.GCElementType, soundNum)
			w.cpm.RegisterSound(t.Index, t.ElementKey, cfg.SampleSequence, cfg.SampleSize)
			w.table.RegisterSoundElement(t.Index)
		case DataTrack:
			dataNum++
			t.ElementKey = klv.GCElementKey(cfg.GCItemType, dataCount, cfg.GCElementType, dataNum)
			t.TrackNumber = klv.GCTrackNumber(cfg.GCItemType, dataCount, cfg.GCElementType, dataNum)
			w.cpm.RegisterData(t.Index, t.ElementKey, cfg.ConstantDataLen, cfg.MaxDataLen)
			w.table.RegisterDataElement(t.Index, cfg.CBE)
		}
		t.TrackID = firstTrackID + t.Index
	}

	if w.cfg.SystemItem {
		w.cpm.RegisterSystemItem()
		w.table.RegisterSystemItem()
	}
	return nil
}

func (w *Writer) collectEssenceContainers() {
	seen := make(map[klv.UL]bool)
	add := func(ul klv.UL) {
		if !seen[ul] {
			seen[ul] = true
			w.essenceContainers = append(w.essenceContainers, ul)
		}
	}
	if len(w.tracks) > 1 {
		add(klv.ECMultipleWrappings)
	}
	for _, t := range w.tracks {
		add(t.Config.EssenceContainer)
	}
}

// PrepareWrite finalises the track layout, builds the header metadata
// and writes the header partition. It must be called once, after all
// tracks are added and before WriteSamples.
func (w *Writer) PrepareWrite() error {
	if w.state != stateInit {
		return fmt.Errorf("%w: PrepareWrite called twice", ErrState)
	}
	if len(w.tracks) == 0 {
		return fmt.Errorf("writer: no tracks registered")
	}

	if err := w.prepareTracks(); err != nil {
		return err
	}
	if err := w.cpm.PrepareWrite(); err != nil {
		return err
	}
	w.table.PrepareWrite()
	w.collectEssenceContainers()

	w.model = schema.BuiltIn()
	if err := w.createHeaderMetadata(); err != nil {
		return err
	}
	if err := w.createFile(); err != nil {
		return err
	}
	w.state = statePrepared
	return nil
}

// operationalPattern returns the OP label for the file layout.
func (w *Writer) operationalPattern() klv.UL {
	return klv.OP1aMultiTrackStreamInternal
}

// createFile opens the header partition and writes the header
// metadata with its reserved space.
func (w *Writer) createFile() error {
	hp := w.partitions.AppendNew()
	if w.cfg.Flavour&FlavourSinglePass != 0 {
		// a single pass write knows the durations up front and never
		// re-opens the header
		hp.Key = partition.HeaderKey(partition.StatusClosedComplete)
	} else {
		hp.Key = partition.HeaderKey(partition.StatusOpenIncomplete)
	}
	hp.MajorVersion = 1
	if w.cfg.Flavour&Flavour3772004 != 0 {
		hp.MinorVersion = 2
	} else {
		hp.MinorVersion = 3
	}
	hp.KAGSize = w.kagSize
	hp.OperationalPattern = w.operationalPattern()
	hp.EssenceContainers = append([]klv.UL(nil), w.essenceContainers...)
	if w.cfg.Flavour&FlavourMinPartitions != 0 {
		hp.BodySID = w.cfg.BodySID
		if w.table.IsCBE() {
			hp.IndexSID = w.cfg.IndexSID
		}
	}
	if err := hp.Write(w.f); err != nil {
		return err
	}
	if err := partition.FillToKAG(w.f, hp, &w.fillKey); err != nil {
		return err
	}

	hp.MarkHeaderStart(w.f)
	w.headerMetadataStartPos = w.f.Tell()
	if err := w.hm.Write(w.f, &w.fillKey); err != nil {
		return err
	}
	used := w.f.Tell() - w.headerMetadataStartPos
	var reserve uint32
	if used < int64(w.cfg.ReserveMinBytes) {
		reserve = w.cfg.ReserveMinBytes - uint32(used)
	}
	if err := partition.AllocateSpaceToKAG(w.f, hp, &w.fillKey, reserve); err != nil {
		return err
	}
	if err := hp.MarkHeaderEnd(w.f); err != nil {
		return err
	}
	w.headerMetadataEndPos = w.f.Tell()
	return nil
}
