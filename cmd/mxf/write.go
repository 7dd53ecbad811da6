package main

import (
	"flag"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/distr1/mxf/internal/cp"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/writer"
)

// dv50FrameSize is the 625/50 DV-based 50Mbps frame size.
const dv50FrameSize = 288000

func write(args []string) error {
	fset := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		output    = fset.String("o", "", "output file (with -page-size, a name with %d for the page number)")
		frames    = fset.Int("frames", 25, "number of frames to write")
		audio     = fset.Int("audio", 1, "number of audio tracks")
		kag512    = fset.Bool("kag512", false, "use a 512-byte KAG")
		minPart   = fset.Bool("minp", false, "minimal partitions")
		md5Out    = fset.String("md5", "", "write an MD5 sidecar to this path")
		interval  = fset.Int64("partition-interval", 0, "body partition interval in frames")
		pageSize  = fset.Int64("page-size", 0, "page size for paged output")
		startTC   = fset.Int64("tc", 36000000, "start timecode frame offset")
		clipName  = fset.String("clip", "mxf test clip", "clip name")
	)
	fset.Parse(args)
	if *output == "" {
		return xerrors.New("syntax: mxf write -o <file> [options]")
	}

	var f mxfio.File
	var err error
	if *pageSize > 0 {
		f, err = mxfio.OpenPaged(*output, *pageSize, mxfio.PageNew)
	} else {
		f, err = mxfio.OpenNew(*output)
	}
	if err != nil {
		return err
	}

	cfg := writer.Config{
		FrameRate:         klv.Rational{Numerator: 25, Denominator: 1},
		StartTimecode:     cp.NewTimecode(25, false, *startTC),
		ClipName:          *clipName,
		CompanyName:       "distri",
		ProductName:       "mxf",
		VersionString:     version,
		ProductUID:        productUID,
		PartitionInterval: *interval,
		MD5SidecarPath:    *md5Out,
	}
	if *kag512 {
		cfg.Flavour |= writer.Flavour512KAG
	}
	if *minPart {
		cfg.Flavour |= writer.FlavourMinPartitions
	}
	if *md5Out != "" {
		cfg.Flavour |= writer.FlavourMD5
	}

	w, err := writer.New(f, cfg)
	if err != nil {
		return err
	}

	video, err := w.AddTrack(writer.TrackConfig{
		Type:             writer.PictureTrack,
		EssenceContainer: klv.ECDVBased50_625_50_FrameWrapped,
		GCItemType:       klv.GCItemTypeCompound,
		GCElementType:    klv.GCElementTypeDVFrameWrapped,
		CBE:              true,
		StoredWidth:      720,
		StoredHeight:     288,
		AspectRatio:      klv.Rational{Numerator: 4, Denominator: 3},
		FrameLayout:      1, // separate fields
		ComponentDepth:   8,
	})
	if err != nil {
		return err
	}

	var audioTracks []*writer.Track
	for i := 0; i < *audio; i++ {
		t, err := w.AddTrack(writer.TrackConfig{
			Type:             writer.SoundTrack,
			EssenceContainer: klv.ECBWFFrameWrapped,
			GCItemType:       klv.GCItemTypeGCSound,
			GCElementType:    klv.GCElementTypeBWFFrameWrapped,
			CBE:              true,
			SamplingRate:     klv.Rational{Numerator: 48000, Denominator: 1},
			ChannelCount:     1,
			QuantizationBits: 16,
			SampleSequence:   []uint32{1920},
			SampleSize:       2,
		})
		if err != nil {
			return err
		}
		audioTracks = append(audioTracks, t)
	}

	if err := w.PrepareWrite(); err != nil {
		return err
	}

	videoFrame := testFrame(dv50FrameSize, 0xb0)
	audioFrame := testFrame(1920*2, 0xa0)
	for i := 0; i < *frames; i++ {
		if err := w.WriteSamples(video.Index, videoFrame, 1); err != nil {
			return err
		}
		for _, t := range audioTracks {
			if err := w.WriteSamples(t.Index, audioFrame, 1920); err != nil {
				return err
			}
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	if digest := w.MD5Digest(); digest != "" {
		fmt.Printf("%s  %s\n", digest, *output)
	}
	fmt.Printf("wrote %d frames to %s\n", w.Duration(), *output)
	return nil
}

// testFrame fills a frame with a repeating pattern so frames are
// distinguishable in a hex dump.
func testFrame(size int, seed byte) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i%16)
	}
	return buf
}

const version = "0.1.0"

var productUID = klv.UUID{
	0x54, 0x1f, 0xba, 0x6e, 0x42, 0xd1, 0x48, 0x27,
	0x9c, 0x1a, 0x92, 0x5d, 0x3c, 0x8a, 0x10, 0x7f,
}
