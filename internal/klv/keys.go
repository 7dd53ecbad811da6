package klv

// FillKeyLegacy is the KLV fill key with the pre-377-1 registry
// version octet.
var FillKeyLegacy = Key{
	0x06, 0x0e, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x01,
	0x03, 0x01, 0x02, 0x10, 0x01, 0x00, 0x00, 0x00,
}

// FillKeyCompliant is the SMPTE ST 377-1 compliant KLV fill key.
var FillKeyCompliant = Key{
	0x06, 0x0e, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x02,
	0x03, 0x01, 0x02, 0x10, 0x01, 0x00, 0x00, 0x00,
}

// IsFill reports whether key is a KLV fill key, accepting either
// registry version.
func IsFill(key *Key) bool {
	return EqualsKeyModRegVer(key, &FillKeyCompliant)
}
