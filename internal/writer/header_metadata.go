package writer

import (
	"fmt"

	"github.com/distr1/mxf/internal/cp"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/metadata"
	"github.com/distr1/mxf/internal/schema"
)

// createHeaderMetadata builds the structural metadata tree: Preface,
// Identification, ContentStorage with EssenceContainerData, a material
// package and a file source package with a timecode track and one
// track per essence track, and per-track descriptors.
func (w *Writer) createHeaderMetadata() error {
	w.hm = metadata.New(w.model)

	preface, err := w.hm.NewSet(&schema.SetPreface)
	if err != nil {
		return err
	}
	preface.SetTimestampItem(&schema.ItemLastModifiedDate, w.creationDate)
	if w.cfg.Flavour&Flavour3772004 != 0 {
		preface.SetVersionTypeItem(&schema.ItemVersion, 258)
	} else {
		preface.SetVersionTypeItem(&schema.ItemVersion, 259)
	}
	op := w.operationalPattern()
	preface.SetULItem(&schema.ItemOperationalPattern, &op)
	preface.SetULArrayItem(&schema.ItemEssenceContainers, w.essenceContainers)
	preface.SetULArrayItem(&schema.ItemDMSchemes, nil)

	ident, err := w.hm.NewSet(&schema.SetIdentification)
	if err != nil {
		return err
	}
	preface.SetStrongRefArrayItem(&schema.ItemIdentifications, []*metadata.Set{ident})
	generationUID := klv.GenerateUUID()
	ident.SetUUIDItem(&schema.ItemThisGenerationUID, &generationUID)
	ident.SetUTF16StringItem(&schema.ItemCompanyName, w.cfg.CompanyName)
	ident.SetUTF16StringItem(&schema.ItemProductName, w.cfg.ProductName)
	ident.SetProductVersionItem(&schema.ItemProductVersion, w.cfg.ProductInfo)
	ident.SetUTF16StringItem(&schema.ItemVersionString, w.cfg.VersionString)
	ident.SetUUIDItem(&schema.ItemProductUID, &w.cfg.ProductUID)
	ident.SetTimestampItem(&schema.ItemModificationDate, w.creationDate)

	storage, err := w.hm.NewSet(&schema.SetContentStorage)
	if err != nil {
		return err
	}
	preface.SetStrongRefItem(&schema.ItemContentStorageRef, storage)

	ecd, err := w.hm.NewSet(&schema.SetEssenceContainerData)
	if err != nil {
		return err
	}
	storage.SetStrongRefArrayItem(&schema.ItemEssenceContainerDataRef, []*metadata.Set{ecd})
	ecd.SetUMIDItem(&schema.ItemLinkedPackageUID, &w.cfg.FileSourcePackageUID)
	ecd.SetUInt32Item(&schema.ItemIndexSID, w.cfg.IndexSID)
	ecd.SetUInt32Item(&schema.ItemBodySID, w.cfg.BodySID)

	if w.materialPackage, err = w.createPackage(&schema.SetMaterialPackage, w.cfg.MaterialPackageUID, true); err != nil {
		return err
	}
	if w.fileSourcePackage, err = w.createPackage(&schema.SetSourcePackage, w.cfg.FileSourcePackageUID, false); err != nil {
		return err
	}
	storage.SetStrongRefArrayItem(&schema.ItemPackages, []*metadata.Set{w.materialPackage, w.fileSourcePackage})

	if err := w.createDescriptors(); err != nil {
		return err
	}
	return nil
}

// createPackage builds a material or file source package with its
// timecode track and one track per essence track.
func (w *Writer) createPackage(classKey *klv.UL, packageUID klv.UMID, isMaterial bool) (*metadata.Set, error) {
	pkg, err := w.hm.NewSet(classKey)
	if err != nil {
		return nil, err
	}
	pkg.SetUMIDItem(&schema.ItemPackageUID, &packageUID)
	pkg.SetTimestampItem(&schema.ItemPackageCreationDate, w.creationDate)
	pkg.SetTimestampItem(&schema.ItemPackageModifiedDate, w.creationDate)
	if isMaterial && w.cfg.ClipName != "" {
		pkg.SetUTF16StringItem(&schema.ItemPackageName, w.cfg.ClipName)
	}

	tracks := make([]*metadata.Set, 0, len(w.tracks)+1)

	tcTrack, err := w.createTimecodeTrack(isMaterial)
	if err != nil {
		return nil, err
	}
	tracks = append(tracks, tcTrack)

	for _, t := range w.tracks {
		track, err := w.createEssenceTrack(t, isMaterial)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	pkg.SetStrongRefArrayItem(&schema.ItemTracks, tracks)
	return pkg, nil
}

func (w *Writer) createTimecodeTrack(isMaterial bool) (*metadata.Set, error) {
	track, err := w.hm.NewSet(&schema.SetTrack)
	if err != nil {
		return nil, err
	}
	track.SetUTF16StringItem(&schema.ItemTrackName, timecodeTrackName)
	track.SetUInt32Item(&schema.ItemTrackID, timecodeTrackID)
	track.SetUInt32Item(&schema.ItemTrackNumber, 0)
	track.SetRationalItem(&schema.ItemEditRate, w.cfg.FrameRate)
	track.SetPositionItem(&schema.ItemOrigin, 0)

	sequence, err := w.hm.NewSet(&schema.SetSequence)
	if err != nil {
		return nil, err
	}
	track.SetStrongRefItem(&schema.ItemSequenceRef, sequence)
	sequence.SetULItem(&schema.ItemDataDefinition, &klv.DDefTimecode)
	sequence.SetLengthItem(&schema.ItemDuration, -1) // updated when writing completed

	component, err := w.hm.NewSet(&schema.SetTimecodeComponent)
	if err != nil {
		return nil, err
	}
	sequence.SetStrongRefArrayItem(&schema.ItemStructuralComponents, []*metadata.Set{component})
	component.SetULItem(&schema.ItemDataDefinition, &klv.DDefTimecode)
	component.SetLengthItem(&schema.ItemDuration, -1)

	tc := w.cfg.StartTimecode
	if !tc.IsValid() {
		tc = cp.NewTimecode(cp.RoundedTCBase(w.cfg.FrameRate), false, 0)
	}
	if !isMaterial {
		tc.AddOffset(-w.cfg.OutputStartOffset)
	}
	component.SetUInt16Item(&schema.ItemRoundedTimecodeBase, tc.Base)
	component.SetBooleanItem(&schema.ItemDropFrame, tc.DropFrame)
	component.SetPositionItem(&schema.ItemStartTimecode, tc.Offset)
	return track, nil
}

func (w *Writer) createEssenceTrack(t *Track, isMaterial bool) (*metadata.Set, error) {
	track, err := w.hm.NewSet(&schema.SetTrack)
	if err != nil {
		return nil, err
	}
	track.SetUInt32Item(&schema.ItemTrackID, t.TrackID)
	if isMaterial {
		track.SetUInt32Item(&schema.ItemTrackNumber, 0)
	} else {
		track.SetUInt32Item(&schema.ItemTrackNumber, t.TrackNumber)
	}
	track.SetRationalItem(&schema.ItemEditRate, w.cfg.FrameRate)
	track.SetPositionItem(&schema.ItemOrigin, 0)

	sequence, err := w.hm.NewSet(&schema.SetSequence)
	if err != nil {
		return nil, err
	}
	track.SetStrongRefItem(&schema.ItemSequenceRef, sequence)
	ddef := t.dataDefinition()
	sequence.SetULItem(&schema.ItemDataDefinition, &ddef)
	sequence.SetLengthItem(&schema.ItemDuration, -1)

	clip, err := w.hm.NewSet(&schema.SetSourceClip)
	if err != nil {
		return nil, err
	}
	sequence.SetStrongRefArrayItem(&schema.ItemStructuralComponents, []*metadata.Set{clip})
	clip.SetULItem(&schema.ItemDataDefinition, &ddef)
	clip.SetLengthItem(&schema.ItemDuration, -1)
	if isMaterial {
		clip.SetPositionItem(&schema.ItemStartPosition, w.cfg.OutputStartOffset)
		clip.SetUMIDItem(&schema.ItemSourcePackageID, &w.cfg.FileSourcePackageUID)
		clip.SetUInt32Item(&schema.ItemSourceTrackID, t.TrackID)
	} else {
		clip.SetPositionItem(&schema.ItemStartPosition, 0)
		clip.SetUMIDItem(&schema.ItemSourcePackageID, &klv.NullUMID)
		clip.SetUInt32Item(&schema.ItemSourceTrackID, 0)
	}
	return track, nil
}

func (t *Track) dataDefinition() klv.UL {
	switch t.Config.Type {
	case PictureTrack:
		return klv.DDefPicture
	case SoundTrack:
		return klv.DDefSound
	default:
		return klv.DDefData
	}
}

// createDescriptors attaches the file descriptor (or multiple
// descriptor tree) to the file source package.
func (w *Writer) createDescriptors() error {
	descriptors := make([]*metadata.Set, 0, len(w.tracks))
	for _, t := range w.tracks {
		desc, err := w.createTrackDescriptor(t)
		if err != nil {
			return err
		}
		t.descriptor = desc
		descriptors = append(descriptors, desc)
	}

	if len(descriptors) == 1 {
		w.fileSourcePackage.SetStrongRefItem(&schema.ItemDescriptorRef, descriptors[0])
		return nil
	}

	mult, err := w.hm.NewSet(&schema.SetMultipleDescriptor)
	if err != nil {
		return err
	}
	w.fileSourcePackage.SetStrongRefItem(&schema.ItemDescriptorRef, mult)
	mult.SetRationalItem(&schema.ItemSampleRate, w.cfg.FrameRate)
	mult.SetLengthItem(&schema.ItemContainerDuration, -1)
	mult.SetULItem(&schema.ItemEssenceContainer, &klv.ECMultipleWrappings)
	mult.SetStrongRefArrayItem(&schema.ItemSubDescriptors, descriptors)
	return nil
}

func (w *Writer) createTrackDescriptor(t *Track) (*metadata.Set, error) {
	cfg := &t.Config
	switch cfg.Type {
	case PictureTrack:
		desc, err := w.hm.NewSet(&schema.SetCDCIDescriptor)
		if err != nil {
			return nil, err
		}
		desc.SetUInt32Item(&schema.ItemLinkedTrackID, t.TrackID)
		desc.SetRationalItem(&schema.ItemSampleRate, w.cfg.FrameRate)
		desc.SetLengthItem(&schema.ItemContainerDuration, -1)
		desc.SetULItem(&schema.ItemEssenceContainer, &cfg.EssenceContainer)
		if cfg.StoredWidth != 0 {
			desc.SetUInt32Item(&schema.ItemStoredWidth, cfg.StoredWidth)
		}
		if cfg.StoredHeight != 0 {
			desc.SetUInt32Item(&schema.ItemStoredHeight, cfg.StoredHeight)
		}
		if cfg.AspectRatio.Denominator != 0 {
			desc.SetRationalItem(&schema.ItemAspectRatio, cfg.AspectRatio)
		}
		desc.SetUInt8Item(&schema.ItemFrameLayout, cfg.FrameLayout)
		if cfg.ComponentDepth != 0 {
			desc.SetUInt32Item(&schema.ItemComponentDepth, cfg.ComponentDepth)
		}
		if cfg.HorizSubsampling != 0 {
			desc.SetUInt32Item(&schema.ItemHorizontalSubsampling, cfg.HorizSubsampling)
		}
		if cfg.VertSubsampling != 0 {
			desc.SetUInt32Item(&schema.ItemVerticalSubsampling, cfg.VertSubsampling)
		}
		if cfg.PictureEssenceCoding != (klv.UL{}) {
			desc.SetULItem(&schema.ItemPictureEssenceCoding, &cfg.PictureEssenceCoding)
		}
		return desc, nil

	case SoundTrack:
		desc, err := w.hm.NewSet(&schema.SetWaveAudioDescriptor)
		if err != nil {
			return nil, err
		}
		desc.SetUInt32Item(&schema.ItemLinkedTrackID, t.TrackID)
		desc.SetRationalItem(&schema.ItemSampleRate, w.cfg.FrameRate)
		desc.SetLengthItem(&schema.ItemContainerDuration, -1)
		desc.SetULItem(&schema.ItemEssenceContainer, &cfg.EssenceContainer)
		desc.SetRationalItem(&schema.ItemAudioSamplingRate, cfg.SamplingRate)
		desc.SetBooleanItem(&schema.ItemLocked, true)
		desc.SetUInt32Item(&schema.ItemChannelCount, cfg.ChannelCount)
		desc.SetUInt32Item(&schema.ItemQuantizationBits, cfg.QuantizationBits)
		if cfg.ChannelCount != 0 && cfg.QuantizationBits != 0 {
			blockAlign := uint16(cfg.ChannelCount * ((cfg.QuantizationBits + 7) / 8))
			desc.SetUInt16Item(&schema.ItemBlockAlign, blockAlign)
			if cfg.SamplingRate.Denominator != 0 {
				avgBps := uint32(int64(blockAlign) * int64(cfg.SamplingRate.Numerator) / int64(cfg.SamplingRate.Denominator))
				desc.SetUInt32Item(&schema.ItemAvgBps, avgBps)
			}
		}
		return desc, nil

	case DataTrack:
		desc, err := w.hm.NewSet(&schema.SetGenericDataDesc)
		if err != nil {
			return nil, err
		}
		desc.SetUInt32Item(&schema.ItemLinkedTrackID, t.TrackID)
		desc.SetRationalItem(&schema.ItemSampleRate, w.cfg.FrameRate)
		desc.SetLengthItem(&schema.ItemContainerDuration, -1)
		desc.SetULItem(&schema.ItemEssenceContainer, &cfg.EssenceContainer)
		return desc, nil
	}
	return nil, fmt.Errorf("writer: unknown track type %d", cfg.Type)
}

// updatePackageMetadata fills in the durations once writing has
// completed.
func (w *Writer) updatePackageMetadata() error {
	outputDuration := w.Duration()
	if outputDuration < 0 {
		return fmt.Errorf("writer: output start %d / end %d offsets give negative duration %d",
			w.cfg.OutputStartOffset, w.cfg.OutputEndOffset, outputDuration)
	}
	containerDuration := w.table.Duration() - w.cfg.OutputStartOffset

	if err := w.updatePackageDurations(w.materialPackage, outputDuration); err != nil {
		return err
	}
	if err := w.updatePackageDurations(w.fileSourcePackage, containerDuration); err != nil {
		return err
	}

	for _, t := range w.tracks {
		t.descriptor.SetLengthItem(&schema.ItemContainerDuration, containerDuration)
	}
	if mult, err := w.fileSourcePackage.GetStrongRefItem(&schema.ItemDescriptorRef); err == nil {
		if w.model.IsSubclassOf(&mult.Key, &schema.SetMultipleDescriptor) {
			mult.SetLengthItem(&schema.ItemContainerDuration, containerDuration)
		}
	}
	return nil
}

func (w *Writer) updatePackageDurations(pkg *metadata.Set, duration int64) error {
	tracks, err := pkg.GetStrongRefArrayItem(&schema.ItemTracks)
	if err != nil {
		return err
	}
	for _, track := range tracks {
		sequence, err := track.GetStrongRefItem(&schema.ItemSequenceRef)
		if err != nil {
			return err
		}
		sequence.SetLengthItem(&schema.ItemDuration, duration)
		components, err := sequence.GetStrongRefArrayItem(&schema.ItemStructuralComponents)
		if err != nil {
			return err
		}
		for _, c := range components {
			c.SetLengthItem(&schema.ItemDuration, duration)
		}
	}
	return nil
}
