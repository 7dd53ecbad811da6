package klv

import (
	"crypto/rand"
	"time"
)

// GenerateUUID returns a new version-4 UUID.
func GenerateUUID() UUID {
	var u UUID
	if _, err := rand.Read(u[:]); err != nil {
		panic(err)
	}
	u[6] = (u[6] & 0x0f) | 0x40 // version 4
	u[8] = (u[8] & 0x3f) | 0x80 // variant
	return u
}

// GenerateUMID returns a new SMPTE ST 330 UMID with a UUID material
// number and no defined instance generation method.
func GenerateUMID() UMID {
	var umid UMID
	copy(umid[0:12], []byte{
		0x06, 0x0a, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x05,
		0x01, 0x01, 0x0f, 0x20,
	})
	umid[12] = 0x13 // length of remaining bytes
	// octets 13..15: instance number = 0
	material := GenerateUUID()
	copy(umid[16:32], material[:])
	return umid
}

// TimestampFromTime converts t (in UTC) to an MXF timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		Year:  int16(t.Year()),
		Month: uint8(t.Month()),
		Day:   uint8(t.Day()),
		Hour:  uint8(t.Hour()),
		Min:   uint8(t.Minute()),
		Sec:   uint8(t.Second()),
		QMSec: uint8(t.Nanosecond() / 4000000), // units of 4 ms
	}
}

// TimestampNow returns the current time as an MXF timestamp.
func TimestampNow() Timestamp {
	return TimestampFromTime(time.Now())
}
