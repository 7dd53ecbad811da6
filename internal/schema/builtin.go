package schema

import (
	"github.com/distr1/mxf/internal/klv"
)

// setKey returns a SMPTE ST 377 structural metadata set class UL for
// the given class byte.
func setKey(class byte) klv.UL {
	return klv.UL{
		0x06, 0x0e, 0x2b, 0x34, 0x02, 0x53, 0x01, 0x01,
		0x0d, 0x01, 0x01, 0x01, 0x01, 0x01, class, 0x00,
	}
}

func itemKey(b ...byte) klv.UL {
	k := klv.UL{0x06, 0x0e, 0x2b, 0x34}
	copy(k[4:], b)
	return k
}

// Baseline set class keys.
var (
	SetInterchangeObject    = setKey(0x01)
	SetStructuralComponent  = setKey(0x02)
	SetSequence             = setKey(0x0f)
	SetSourceClip           = setKey(0x11)
	SetTimecodeComponent    = setKey(0x14)
	SetContentStorage       = setKey(0x18)
	SetEssenceContainerData = setKey(0x23)
	SetGenericDescriptor    = setKey(0x24)
	SetFileDescriptor       = setKey(0x25)
	SetGenericPictureDesc   = setKey(0x27)
	SetCDCIDescriptor       = setKey(0x28)
	SetPreface              = setKey(0x2f)
	SetIdentification       = setKey(0x30)
	SetGenericPackage       = setKey(0x34)
	SetMaterialPackage      = setKey(0x36)
	SetSourcePackage        = setKey(0x37)
	SetGenericTrack         = setKey(0x38)
	SetTrack                = setKey(0x3b)
	SetGenericSoundDesc     = setKey(0x42)
	SetGenericDataDesc      = setKey(0x43)
	SetMultipleDescriptor   = setKey(0x44)
	SetWaveAudioDescriptor  = setKey(0x48)
)

// Item ULs referenced directly by the engine and the writer.
var (
	ItemInstanceUID   = itemKey(0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x15, 0x02, 0x00, 0x00, 0x00, 0x00)
	ItemGenerationUID = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x08, 0x00, 0x00, 0x00)

	ItemLastModifiedDate   = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x10, 0x02, 0x04, 0x00, 0x00)
	ItemVersion            = itemKey(0x01, 0x01, 0x01, 0x02, 0x03, 0x01, 0x02, 0x01, 0x05, 0x00, 0x00, 0x00)
	ItemIdentifications    = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x06, 0x04, 0x00, 0x00)
	ItemContentStorageRef  = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x02, 0x01, 0x00, 0x00)
	ItemOperationalPattern = itemKey(0x01, 0x01, 0x01, 0x05, 0x01, 0x02, 0x02, 0x03, 0x00, 0x00, 0x00, 0x00)
	ItemEssenceContainers  = itemKey(0x01, 0x01, 0x01, 0x05, 0x01, 0x02, 0x02, 0x10, 0x02, 0x01, 0x00, 0x00)
	ItemDMSchemes          = itemKey(0x01, 0x01, 0x01, 0x05, 0x01, 0x02, 0x02, 0x10, 0x02, 0x02, 0x00, 0x00)

	ItemThisGenerationUID = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x01, 0x00, 0x00, 0x00)
	ItemCompanyName       = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x02, 0x01, 0x00, 0x00)
	ItemProductName       = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x03, 0x01, 0x00, 0x00)
	ItemProductVersion    = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x04, 0x00, 0x00, 0x00)
	ItemVersionString     = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x05, 0x01, 0x00, 0x00)
	ItemProductUID        = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x07, 0x00, 0x00, 0x00)
	ItemModificationDate  = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x10, 0x02, 0x03, 0x00, 0x00)
	ItemToolkitVersion    = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x0a, 0x00, 0x00, 0x00)
	ItemPlatform          = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x20, 0x07, 0x01, 0x06, 0x01, 0x00, 0x00)

	ItemPackages                = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x05, 0x01, 0x00, 0x00)
	ItemEssenceContainerDataRef = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x05, 0x02, 0x00, 0x00)

	ItemLinkedPackageUID = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x06, 0x01, 0x00, 0x00, 0x00)
	ItemIndexSID         = itemKey(0x01, 0x01, 0x01, 0x04, 0x01, 0x03, 0x04, 0x05, 0x00, 0x00, 0x00, 0x00)
	ItemBodySID          = itemKey(0x01, 0x01, 0x01, 0x04, 0x01, 0x03, 0x04, 0x04, 0x00, 0x00, 0x00, 0x00)

	ItemPackageUID          = itemKey(0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x15, 0x10, 0x00, 0x00, 0x00, 0x00)
	ItemPackageName         = itemKey(0x01, 0x01, 0x01, 0x01, 0x01, 0x03, 0x03, 0x02, 0x01, 0x00, 0x00, 0x00)
	ItemPackageCreationDate = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x10, 0x01, 0x03, 0x00, 0x00)
	ItemPackageModifiedDate = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x10, 0x02, 0x05, 0x00, 0x00)
	ItemTracks              = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x06, 0x05, 0x00, 0x00)

	ItemDescriptorRef = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x02, 0x03, 0x00, 0x00)

	ItemTrackID     = itemKey(0x01, 0x01, 0x01, 0x02, 0x01, 0x07, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00)
	ItemTrackNumber = itemKey(0x01, 0x01, 0x01, 0x02, 0x01, 0x04, 0x01, 0x03, 0x00, 0x00, 0x00, 0x00)
	ItemTrackName   = itemKey(0x01, 0x01, 0x01, 0x02, 0x01, 0x07, 0x01, 0x02, 0x01, 0x00, 0x00, 0x00)
	ItemSequenceRef = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x02, 0x04, 0x00, 0x00)
	ItemEditRate    = itemKey(0x01, 0x01, 0x01, 0x02, 0x05, 0x30, 0x04, 0x05, 0x00, 0x00, 0x00, 0x00)
	ItemOrigin      = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x03, 0x01, 0x03, 0x00, 0x00)

	ItemDataDefinition = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x07, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00)
	ItemDuration       = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x02, 0x01, 0x01, 0x03, 0x00, 0x00)

	ItemStructuralComponents = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x06, 0x09, 0x00, 0x00)

	ItemStartPosition   = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x03, 0x01, 0x04, 0x00, 0x00)
	ItemSourcePackageID = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x03, 0x01, 0x00, 0x00, 0x00)
	ItemSourceTrackID   = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x03, 0x02, 0x00, 0x00, 0x00)

	ItemRoundedTimecodeBase = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x04, 0x01, 0x01, 0x02, 0x06, 0x00, 0x00)
	ItemStartTimecode       = itemKey(0x01, 0x01, 0x01, 0x02, 0x07, 0x02, 0x01, 0x03, 0x01, 0x05, 0x00, 0x00)
	ItemDropFrame           = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x04, 0x01, 0x01, 0x05, 0x00, 0x00, 0x00)

	ItemLocators = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x06, 0x03, 0x00, 0x00)

	ItemLinkedTrackID     = itemKey(0x01, 0x01, 0x01, 0x05, 0x06, 0x01, 0x01, 0x03, 0x05, 0x00, 0x00, 0x00)
	ItemSampleRate        = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00)
	ItemContainerDuration = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x06, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00)
	ItemEssenceContainer  = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x01, 0x02, 0x00, 0x00)
	ItemCodec             = itemKey(0x01, 0x01, 0x01, 0x02, 0x06, 0x01, 0x01, 0x04, 0x01, 0x03, 0x00, 0x00)

	ItemFrameLayout          = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x01, 0x03, 0x01, 0x04, 0x00, 0x00, 0x00)
	ItemStoredWidth          = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x01, 0x05, 0x02, 0x02, 0x00, 0x00, 0x00)
	ItemStoredHeight         = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x01, 0x05, 0x02, 0x01, 0x00, 0x00, 0x00)
	ItemAspectRatio          = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x01, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00)
	ItemVideoLineMap         = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x01, 0x03, 0x02, 0x05, 0x00, 0x00, 0x00)
	ItemPictureEssenceCoding = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x01, 0x06, 0x01, 0x00, 0x00, 0x00, 0x00)

	ItemComponentDepth        = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x01, 0x05, 0x03, 0x0a, 0x00, 0x00, 0x00)
	ItemHorizontalSubsampling = itemKey(0x01, 0x01, 0x01, 0x01, 0x04, 0x01, 0x05, 0x01, 0x05, 0x00, 0x00, 0x00)
	ItemVerticalSubsampling   = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x01, 0x05, 0x01, 0x10, 0x00, 0x00, 0x00)

	ItemAudioSamplingRate       = itemKey(0x01, 0x01, 0x01, 0x05, 0x04, 0x02, 0x03, 0x01, 0x01, 0x01, 0x00, 0x00)
	ItemLocked                  = itemKey(0x01, 0x01, 0x01, 0x04, 0x04, 0x02, 0x03, 0x01, 0x04, 0x00, 0x00, 0x00)
	ItemChannelCount            = itemKey(0x01, 0x01, 0x01, 0x05, 0x04, 0x02, 0x01, 0x01, 0x04, 0x00, 0x00, 0x00)
	ItemQuantizationBits        = itemKey(0x01, 0x01, 0x01, 0x04, 0x04, 0x02, 0x03, 0x03, 0x04, 0x00, 0x00, 0x00)
	ItemSoundEssenceCompression = itemKey(0x01, 0x01, 0x01, 0x02, 0x04, 0x02, 0x04, 0x02, 0x00, 0x00, 0x00, 0x00)

	ItemBlockAlign = itemKey(0x01, 0x01, 0x01, 0x05, 0x04, 0x02, 0x03, 0x02, 0x01, 0x00, 0x00, 0x00)
	ItemAvgBps     = itemKey(0x01, 0x01, 0x01, 0x05, 0x04, 0x02, 0x03, 0x03, 0x05, 0x00, 0x00, 0x00)

	ItemSubDescriptors = itemKey(0x01, 0x01, 0x01, 0x04, 0x06, 0x01, 0x01, 0x04, 0x06, 0x0b, 0x00, 0x00)

	ItemDataEssenceCoding = itemKey(0x01, 0x01, 0x01, 0x05, 0x04, 0x03, 0x03, 0x02, 0x00, 0x00, 0x00, 0x00)
)

// BuiltIn returns the finalised SMPTE ST 377 baseline data model used
// by the writer. Callers extending the model register their sets and
// items on a fresh model via Baseline before finalising.
func BuiltIn() *DataModel {
	m := Baseline()
	if err := m.Finalise(); err != nil {
		panic(err)
	}
	return m
}

// Baseline returns the unfinalised baseline model so extension
// dictionaries can be registered before Finalise.
func Baseline() *DataModel {
	m := New()

	type setDef struct {
		name   string
		key    klv.UL
		parent *klv.UL
	}
	sets := []setDef{
		{"InterchangeObject", SetInterchangeObject, nil},
		{"StructuralComponent", SetStructuralComponent, &SetInterchangeObject},
		{"Sequence", SetSequence, &SetStructuralComponent},
		{"SourceClip", SetSourceClip, &SetStructuralComponent},
		{"TimecodeComponent", SetTimecodeComponent, &SetStructuralComponent},
		{"ContentStorage", SetContentStorage, &SetInterchangeObject},
		{"EssenceContainerData", SetEssenceContainerData, &SetInterchangeObject},
		{"GenericDescriptor", SetGenericDescriptor, &SetInterchangeObject},
		{"FileDescriptor", SetFileDescriptor, &SetGenericDescriptor},
		{"GenericPictureEssenceDescriptor", SetGenericPictureDesc, &SetFileDescriptor},
		{"CDCIEssenceDescriptor", SetCDCIDescriptor, &SetGenericPictureDesc},
		{"Preface", SetPreface, &SetInterchangeObject},
		{"Identification", SetIdentification, &SetInterchangeObject},
		{"GenericPackage", SetGenericPackage, &SetInterchangeObject},
		{"MaterialPackage", SetMaterialPackage, &SetGenericPackage},
		{"SourcePackage", SetSourcePackage, &SetGenericPackage},
		{"GenericTrack", SetGenericTrack, &SetInterchangeObject},
		{"Track", SetTrack, &SetGenericTrack},
		{"GenericSoundEssenceDescriptor", SetGenericSoundDesc, &SetFileDescriptor},
		{"GenericDataEssenceDescriptor", SetGenericDataDesc, &SetFileDescriptor},
		{"MultipleDescriptor", SetMultipleDescriptor, &SetFileDescriptor},
		{"WaveAudioDescriptor", SetWaveAudioDescriptor, &SetGenericSoundDesc},
	}
	for _, s := range sets {
		if err := m.RegisterSetDef(s.name, &s.key, s.parent); err != nil {
			panic(err)
		}
	}

	type itemDef struct {
		name     string
		set      klv.UL
		key      klv.UL
		tag      uint16
		typ      TypeID
		required bool
	}
	items := []itemDef{
		{"InstanceUID", SetInterchangeObject, ItemInstanceUID, 0x3c0a, TypeUUID, true},
		{"GenerationUID", SetInterchangeObject, ItemGenerationUID, 0x0102, TypeUUID, false},

		{"LastModifiedDate", SetPreface, ItemLastModifiedDate, 0x3b02, TypeTimestamp, true},
		{"Version", SetPreface, ItemVersion, 0x3b05, TypeVersionType, true},
		{"Identifications", SetPreface, ItemIdentifications, 0x3b06, TypeStrongRefArray, true},
		{"ContentStorage", SetPreface, ItemContentStorageRef, 0x3b03, TypeStrongRef, true},
		{"OperationalPattern", SetPreface, ItemOperationalPattern, 0x3b09, TypeUL, true},
		{"EssenceContainers", SetPreface, ItemEssenceContainers, 0x3b0a, TypeULBatch, true},
		{"DMSchemes", SetPreface, ItemDMSchemes, 0x3b0b, TypeULBatch, true},

		{"ThisGenerationUID", SetIdentification, ItemThisGenerationUID, 0x3c09, TypeUUID, true},
		{"CompanyName", SetIdentification, ItemCompanyName, 0x3c01, TypeUTF16String, true},
		{"ProductName", SetIdentification, ItemProductName, 0x3c02, TypeUTF16String, true},
		{"ProductVersion", SetIdentification, ItemProductVersion, 0x3c03, TypeProductVersion, false},
		{"VersionString", SetIdentification, ItemVersionString, 0x3c04, TypeUTF16String, true},
		{"ProductUID", SetIdentification, ItemProductUID, 0x3c05, TypeUUID, true},
		{"ModificationDate", SetIdentification, ItemModificationDate, 0x3c06, TypeTimestamp, true},
		{"ToolkitVersion", SetIdentification, ItemToolkitVersion, 0x3c07, TypeProductVersion, false},
		{"Platform", SetIdentification, ItemPlatform, 0x3c08, TypeUTF16String, false},

		{"Packages", SetContentStorage, ItemPackages, 0x1901, TypeStrongRefBatch, true},
		{"EssenceContainerData", SetContentStorage, ItemEssenceContainerDataRef, 0x1902, TypeStrongRefBatch, false},

		{"LinkedPackageUID", SetEssenceContainerData, ItemLinkedPackageUID, 0x2701, TypeUMID, true},
		{"IndexSID", SetEssenceContainerData, ItemIndexSID, 0x3f06, TypeUInt32, false},
		{"BodySID", SetEssenceContainerData, ItemBodySID, 0x3f07, TypeUInt32, true},

		{"PackageUID", SetGenericPackage, ItemPackageUID, 0x4401, TypeUMID, true},
		{"Name", SetGenericPackage, ItemPackageName, 0x4402, TypeUTF16String, false},
		{"PackageCreationDate", SetGenericPackage, ItemPackageCreationDate, 0x4405, TypeTimestamp, true},
		{"PackageModifiedDate", SetGenericPackage, ItemPackageModifiedDate, 0x4404, TypeTimestamp, true},
		{"Tracks", SetGenericPackage, ItemTracks, 0x4403, TypeStrongRefArray, true},

		{"Descriptor", SetSourcePackage, ItemDescriptorRef, 0x4701, TypeStrongRef, false},

		{"TrackID", SetGenericTrack, ItemTrackID, 0x4801, TypeUInt32, false},
		{"TrackNumber", SetGenericTrack, ItemTrackNumber, 0x4804, TypeUInt32, true},
		{"TrackName", SetGenericTrack, ItemTrackName, 0x4802, TypeUTF16String, false},
		{"Sequence", SetGenericTrack, ItemSequenceRef, 0x4803, TypeStrongRef, true},

		{"EditRate", SetTrack, ItemEditRate, 0x4b01, TypeRational, true},
		{"Origin", SetTrack, ItemOrigin, 0x4b02, TypePosition, true},

		{"DataDefinition", SetStructuralComponent, ItemDataDefinition, 0x0201, TypeUL, true},
		{"Duration", SetStructuralComponent, ItemDuration, 0x0202, TypeLength, false},

		{"StructuralComponents", SetSequence, ItemStructuralComponents, 0x1001, TypeStrongRefArray, true},

		{"StartPosition", SetSourceClip, ItemStartPosition, 0x1201, TypePosition, true},
		{"SourcePackageID", SetSourceClip, ItemSourcePackageID, 0x1101, TypeUMID, true},
		{"SourceTrackID", SetSourceClip, ItemSourceTrackID, 0x1102, TypeUInt32, true},

		{"RoundedTimecodeBase", SetTimecodeComponent, ItemRoundedTimecodeBase, 0x1502, TypeUInt16, true},
		{"StartTimecode", SetTimecodeComponent, ItemStartTimecode, 0x1501, TypePosition, true},
		{"DropFrame", SetTimecodeComponent, ItemDropFrame, 0x1503, TypeBoolean, true},

		{"Locators", SetGenericDescriptor, ItemLocators, 0x2f01, TypeStrongRefArray, false},

		{"LinkedTrackID", SetFileDescriptor, ItemLinkedTrackID, 0x3006, TypeUInt32, false},
		{"SampleRate", SetFileDescriptor, ItemSampleRate, 0x3001, TypeRational, true},
		{"ContainerDuration", SetFileDescriptor, ItemContainerDuration, 0x3002, TypeLength, false},
		{"EssenceContainer", SetFileDescriptor, ItemEssenceContainer, 0x3004, TypeUL, true},
		{"Codec", SetFileDescriptor, ItemCodec, 0x3005, TypeUL, false},

		{"FrameLayout", SetGenericPictureDesc, ItemFrameLayout, 0x320c, TypeUInt8, false},
		{"StoredWidth", SetGenericPictureDesc, ItemStoredWidth, 0x3203, TypeUInt32, false},
		{"StoredHeight", SetGenericPictureDesc, ItemStoredHeight, 0x3202, TypeUInt32, false},
		{"AspectRatio", SetGenericPictureDesc, ItemAspectRatio, 0x320e, TypeRational, false},
		{"VideoLineMap", SetGenericPictureDesc, ItemVideoLineMap, 0x320d, TypeRaw, false},
		{"PictureEssenceCoding", SetGenericPictureDesc, ItemPictureEssenceCoding, 0x3201, TypeUL, false},

		{"ComponentDepth", SetCDCIDescriptor, ItemComponentDepth, 0x3301, TypeUInt32, false},
		{"HorizontalSubsampling", SetCDCIDescriptor, ItemHorizontalSubsampling, 0x3302, TypeUInt32, false},
		{"VerticalSubsampling", SetCDCIDescriptor, ItemVerticalSubsampling, 0x3308, TypeUInt32, false},

		{"AudioSamplingRate", SetGenericSoundDesc, ItemAudioSamplingRate, 0x3d03, TypeRational, false},
		{"Locked", SetGenericSoundDesc, ItemLocked, 0x3d02, TypeBoolean, false},
		{"ChannelCount", SetGenericSoundDesc, ItemChannelCount, 0x3d07, TypeUInt32, false},
		{"QuantizationBits", SetGenericSoundDesc, ItemQuantizationBits, 0x3d01, TypeUInt32, false},
		{"SoundEssenceCompression", SetGenericSoundDesc, ItemSoundEssenceCompression, 0x3d06, TypeUL, false},

		{"BlockAlign", SetWaveAudioDescriptor, ItemBlockAlign, 0x3d0a, TypeUInt16, false},
		{"AvgBps", SetWaveAudioDescriptor, ItemAvgBps, 0x3d09, TypeUInt32, false},

		{"FileDescriptors", SetMultipleDescriptor, ItemSubDescriptors, 0x3f01, TypeStrongRefArray, true},

		{"DataEssenceCoding", SetGenericDataDesc, ItemDataEssenceCoding, 0x3e01, TypeUL, false},
	}
	for _, it := range items {
		if err := m.RegisterItemDef(it.name, &it.set, &it.key, it.tag, it.typ, it.required); err != nil {
			panic(err)
		}
	}

	return m
}
