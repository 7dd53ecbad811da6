package klv

// Operational pattern labels.
var (
	// OP1a multi-track, stream file, internal essence.
	OP1aMultiTrackStreamInternal = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x02, 0x01, 0x01, 0x01, 0x09, 0x00,
	}

	// OP-Atom, any number of tracks with one source clip each.
	OPAtomNTracks1SourceClip = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x02,
		0x0d, 0x01, 0x02, 0x01, 0x10, 0x03, 0x00, 0x00,
	}
)

// Essence container labels.
var (
	ECMultipleWrappings = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x03,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x7f, 0x01, 0x00,
	}

	ECDVBased25_625_50_FrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x02, 0x41, 0x01,
	}
	ECDVBased25_625_50_ClipWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x02, 0x41, 0x02,
	}
	ECDVBased50_625_50_FrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x02, 0x51, 0x01,
	}
	ECDVBased50_625_50_ClipWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x02, 0x51, 0x02,
	}
	ECDVBased50_525_60_FrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x02, 0x50, 0x01,
	}

	ECBWFFrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x06, 0x01, 0x00,
	}
	ECBWFClipWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x06, 0x02, 0x00,
	}

	ECMPEGES0FrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x02,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x04, 0x60, 0x01,
	}

	ECAVCIFrameWrapped = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x0a,
		0x0d, 0x01, 0x03, 0x01, 0x02, 0x10, 0x60, 0x01,
	}
)

// Data definition labels for track kinds.
var (
	DDefTimecode = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x01, 0x03, 0x02, 0x01, 0x01, 0x00, 0x00, 0x00,
	}
	DDefPicture = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x01, 0x03, 0x02, 0x02, 0x01, 0x00, 0x00, 0x00,
	}
	DDefSound = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x01, 0x03, 0x02, 0x02, 0x02, 0x00, 0x00, 0x00,
	}
	DDefData = UL{
		0x06, 0x0e, 0x2b, 0x34, 0x04, 0x01, 0x01, 0x01,
		0x01, 0x03, 0x02, 0x02, 0x03, 0x00, 0x00, 0x00,
	}
)

// Generic container item types used in essence element keys and track
// numbers.
const (
	GCItemTypeCPPicture = 0x05
	GCItemTypeCPSound   = 0x06
	GCItemTypeCPData    = 0x07
	GCItemTypeGCPicture = 0x15
	GCItemTypeGCSound   = 0x16
	GCItemTypeGCData    = 0x17
	GCItemTypeCompound  = 0x18
)

// Generic container element types for the item types above.
const (
	GCElementTypeMPEGFrameWrapped = 0x05
	GCElementTypeMPEGClipWrapped  = 0x06
	GCElementTypeAVCIFrameWrapped = 0x06
	GCElementTypeBWFFrameWrapped  = 0x01
	GCElementTypeBWFClipWrapped   = 0x02
	GCElementTypeAES3FrameWrapped = 0x03
	GCElementTypeDVFrameWrapped   = 0x01
	GCElementTypeDVClipWrapped    = 0x02
	GCElementTypeVBIFrameWrapped  = 0x01
)

// GCElementKey constructs a generic container essence element key from
// the item type, element count, element type and element number.
func GCElementKey(itemType, count, elementType, number uint8) Key {
	return Key{
		0x06, 0x0e, 0x2b, 0x34, 0x01, 0x02, 0x01, 0x01,
		0x0d, 0x01, 0x03, 0x01, itemType, count, elementType, number,
	}
}

// GCTrackNumber returns the 32-bit track number matching an element key
// built from the same four octets.
func GCTrackNumber(itemType, count, elementType, number uint8) uint32 {
	return uint32(itemType)<<24 | uint32(count)<<16 | uint32(elementType)<<8 | uint32(number)
}
