package metadata

import (
	"fmt"
	"unicode/utf16"

	"github.com/distr1/mxf/internal/klv"
)

// Typed item accessors. Each value is stored as its raw serialised
// bytes; the accessors encode and decode per the item's wire format.

func (s *Set) value(itemKey *klv.UL, wantLen int) ([]byte, error) {
	v, err := s.RawItem(itemKey)
	if err != nil {
		return nil, err
	}
	if wantLen >= 0 && len(v) != wantLen {
		return nil, fmt.Errorf("%w: item %s has length %d, want %d", ErrTypeMismatch, itemKey, len(v), wantLen)
	}
	return v, nil
}

func beUint(v []byte) uint64 {
	var out uint64
	for _, b := range v {
		out = out<<8 | uint64(b)
	}
	return out
}

func putBEUint(v uint64, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func (s *Set) GetUInt8Item(itemKey *klv.UL) (uint8, error) {
	v, err := s.value(itemKey, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (s *Set) GetUInt16Item(itemKey *klv.UL) (uint16, error) {
	v, err := s.value(itemKey, 2)
	if err != nil {
		return 0, err
	}
	return uint16(beUint(v)), nil
}

func (s *Set) GetUInt32Item(itemKey *klv.UL) (uint32, error) {
	v, err := s.value(itemKey, 4)
	if err != nil {
		return 0, err
	}
	return uint32(beUint(v)), nil
}

func (s *Set) GetUInt64Item(itemKey *klv.UL) (uint64, error) {
	v, err := s.value(itemKey, 8)
	if err != nil {
		return 0, err
	}
	return beUint(v), nil
}

func (s *Set) GetInt8Item(itemKey *klv.UL) (int8, error) {
	v, err := s.GetUInt8Item(itemKey)
	return int8(v), err
}

func (s *Set) GetInt16Item(itemKey *klv.UL) (int16, error) {
	v, err := s.GetUInt16Item(itemKey)
	return int16(v), err
}

func (s *Set) GetInt32Item(itemKey *klv.UL) (int32, error) {
	v, err := s.GetUInt32Item(itemKey)
	return int32(v), err
}

func (s *Set) GetInt64Item(itemKey *klv.UL) (int64, error) {
	v, err := s.GetUInt64Item(itemKey)
	return int64(v), err
}

func (s *Set) SetUInt8Item(itemKey *klv.UL, v uint8)   { s.setRaw(itemKey, []byte{v}) }
func (s *Set) SetUInt16Item(itemKey *klv.UL, v uint16) { s.setRaw(itemKey, putBEUint(uint64(v), 2)) }
func (s *Set) SetUInt32Item(itemKey *klv.UL, v uint32) { s.setRaw(itemKey, putBEUint(uint64(v), 4)) }
func (s *Set) SetUInt64Item(itemKey *klv.UL, v uint64) { s.setRaw(itemKey, putBEUint(v, 8)) }
func (s *Set) SetInt8Item(itemKey *klv.UL, v int8)     { s.SetUInt8Item(itemKey, uint8(v)) }
func (s *Set) SetInt16Item(itemKey *klv.UL, v int16)   { s.SetUInt16Item(itemKey, uint16(v)) }
func (s *Set) SetInt32Item(itemKey *klv.UL, v int32)   { s.SetUInt32Item(itemKey, uint32(v)) }
func (s *Set) SetInt64Item(itemKey *klv.UL, v int64)   { s.SetUInt64Item(itemKey, uint64(v)) }

// Position and Length items are signed 64-bit edit unit counts.

func (s *Set) GetPositionItem(itemKey *klv.UL) (int64, error) { return s.GetInt64Item(itemKey) }
func (s *Set) SetPositionItem(itemKey *klv.UL, v int64)       { s.SetInt64Item(itemKey, v) }
func (s *Set) GetLengthItem(itemKey *klv.UL) (int64, error)   { return s.GetInt64Item(itemKey) }
func (s *Set) SetLengthItem(itemKey *klv.UL, v int64)         { s.SetInt64Item(itemKey, v) }

func (s *Set) GetVersionTypeItem(itemKey *klv.UL) (klv.VersionType, error) {
	v, err := s.GetUInt16Item(itemKey)
	return klv.VersionType(v), err
}

func (s *Set) SetVersionTypeItem(itemKey *klv.UL, v klv.VersionType) {
	s.SetUInt16Item(itemKey, uint16(v))
}

// GetBooleanItem reads permissively: any nonzero byte is true.
func (s *Set) GetBooleanItem(itemKey *klv.UL) (bool, error) {
	v, err := s.value(itemKey, 1)
	if err != nil {
		return false, err
	}
	return v[0] != 0, nil
}

func (s *Set) SetBooleanItem(itemKey *klv.UL, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	s.setRaw(itemKey, []byte{b})
}

func (s *Set) GetRationalItem(itemKey *klv.UL) (klv.Rational, error) {
	v, err := s.value(itemKey, 8)
	if err != nil {
		return klv.Rational{}, err
	}
	return klv.Rational{
		Numerator:   int32(beUint(v[0:4])),
		Denominator: int32(beUint(v[4:8])),
	}, nil
}

func (s *Set) SetRationalItem(itemKey *klv.UL, v klv.Rational) {
	buf := append(putBEUint(uint64(uint32(v.Numerator)), 4), putBEUint(uint64(uint32(v.Denominator)), 4)...)
	s.setRaw(itemKey, buf)
}

func (s *Set) GetTimestampItem(itemKey *klv.UL) (klv.Timestamp, error) {
	v, err := s.value(itemKey, 8)
	if err != nil {
		return klv.Timestamp{}, err
	}
	return klv.Timestamp{
		Year:  int16(beUint(v[0:2])),
		Month: v[2], Day: v[3], Hour: v[4], Min: v[5], Sec: v[6], QMSec: v[7],
	}, nil
}

func (s *Set) SetTimestampItem(itemKey *klv.UL, v klv.Timestamp) {
	buf := putBEUint(uint64(uint16(v.Year)), 2)
	buf = append(buf, v.Month, v.Day, v.Hour, v.Min, v.Sec, v.QMSec)
	s.setRaw(itemKey, buf)
}

func (s *Set) GetProductVersionItem(itemKey *klv.UL) (klv.ProductVersion, error) {
	v, err := s.value(itemKey, 10)
	if err != nil {
		return klv.ProductVersion{}, err
	}
	return klv.ProductVersion{
		Major:   uint16(beUint(v[0:2])),
		Minor:   uint16(beUint(v[2:4])),
		Patch:   uint16(beUint(v[4:6])),
		Build:   uint16(beUint(v[6:8])),
		Release: uint16(beUint(v[8:10])),
	}, nil
}

func (s *Set) SetProductVersionItem(itemKey *klv.UL, v klv.ProductVersion) {
	var buf []byte
	for _, f := range []uint16{v.Major, v.Minor, v.Patch, v.Build, v.Release} {
		buf = append(buf, putBEUint(uint64(f), 2)...)
	}
	s.setRaw(itemKey, buf)
}

func (s *Set) GetULItem(itemKey *klv.UL) (klv.UL, error) {
	var out klv.UL
	v, err := s.value(itemKey, klv.KeyExtlen)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func (s *Set) SetULItem(itemKey *klv.UL, v *klv.UL) { s.setRaw(itemKey, v[:]) }

func (s *Set) GetUUIDItem(itemKey *klv.UL) (klv.UUID, error) {
	var out klv.UUID
	v, err := s.value(itemKey, klv.UUIDExtlen)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func (s *Set) SetUUIDItem(itemKey *klv.UL, v *klv.UUID) { s.setRaw(itemKey, v[:]) }

func (s *Set) GetUMIDItem(itemKey *klv.UL) (klv.UMID, error) {
	var out klv.UMID
	v, err := s.value(itemKey, klv.UMIDExtlen)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func (s *Set) SetUMIDItem(itemKey *klv.UL, v *klv.UMID) { s.setRaw(itemKey, v[:]) }

// UTF-16 BE strings are unterminated on the wire. The getter trims any
// trailing NUL padding left by fixed-size setters.

func (s *Set) GetUTF16StringItem(itemKey *klv.UL) (string, error) {
	v, err := s.RawItem(itemKey)
	if err != nil {
		return "", err
	}
	if len(v)%2 != 0 {
		return "", fmt.Errorf("%w: odd UTF-16 length %d", ErrTypeMismatch, len(v))
	}
	units := make([]uint16, 0, len(v)/2)
	for i := 0; i+1 < len(v); i += 2 {
		units = append(units, uint16(v[i])<<8|uint16(v[i+1]))
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), nil
}

func encodeUTF16BE(v string) []byte {
	units := utf16.Encode([]rune(v))
	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return buf
}

// SetUTF16StringItem stores the string with exactly the bytes it needs.
func (s *Set) SetUTF16StringItem(itemKey *klv.UL, v string) {
	s.setRaw(itemKey, encodeUTF16BE(v))
}

// SetFixedSizeUTF16StringItem pads the encoded string with NULs to
// size bytes, so the item length never changes on rewrite.
func (s *Set) SetFixedSizeUTF16StringItem(itemKey *klv.UL, v string, size int) error {
	buf := encodeUTF16BE(v)
	if len(buf) > size {
		return fmt.Errorf("metadata: string needs %d bytes, fixed size is %d", len(buf), size)
	}
	padded := make([]byte, size)
	copy(padded, buf)
	s.setRaw(itemKey, padded)
	return nil
}

func (s *Set) GetUTF8StringItem(itemKey *klv.UL) (string, error) {
	v, err := s.RawItem(itemKey)
	if err != nil {
		return "", err
	}
	for len(v) > 0 && v[len(v)-1] == 0 {
		v = v[:len(v)-1]
	}
	return string(v), nil
}

func (s *Set) SetUTF8StringItem(itemKey *klv.UL, v string) {
	s.setRaw(itemKey, []byte(v))
}

// ISO-7 strings share the byte-per-character encoding.

func (s *Set) GetISO7StringItem(itemKey *klv.UL) (string, error) {
	return s.GetUTF8StringItem(itemKey)
}

func (s *Set) SetISO7StringItem(itemKey *klv.UL, v string) {
	s.SetUTF8StringItem(itemKey, v)
}

// Strong and weak references are serialised as the target's
// InstanceUID.

func (s *Set) GetStrongRefUID(itemKey *klv.UL) (klv.UUID, error) {
	return s.GetUUIDItem(itemKey)
}

// GetStrongRefItem dereferences a strong reference.
func (s *Set) GetStrongRefItem(itemKey *klv.UL) (*Set, error) {
	uid, err := s.GetUUIDItem(itemKey)
	if err != nil {
		return nil, err
	}
	target, ok := s.hm.FindSet(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDanglingStrongRef, uid)
	}
	return target, nil
}

// SetStrongRefItem stores a strong reference to target.
func (s *Set) SetStrongRefItem(itemKey *klv.UL, target *Set) {
	uid := target.InstanceUID()
	s.setRaw(itemKey, uid[:])
}

// GetWeakRefItem dereferences a weak reference; a null UUID resolves to
// nil.
func (s *Set) GetWeakRefItem(itemKey *klv.UL) (*Set, error) {
	uid, err := s.GetUUIDItem(itemKey)
	if err != nil {
		return nil, err
	}
	if uid == klv.NullUUID {
		return nil, nil
	}
	target, ok := s.hm.FindSet(uid)
	if !ok {
		return nil, fmt.Errorf("metadata: weak reference %s does not resolve", uid)
	}
	return target, nil
}

func (s *Set) SetWeakRefItem(itemKey *klv.UL, target *Set) {
	if target == nil {
		s.setRaw(itemKey, klv.NullUUID[:])
		return
	}
	uid := target.InstanceUID()
	s.setRaw(itemKey, uid[:])
}

// Arrays and batches are encoded as count:uint32, element_len:uint32
// followed by the elements.

func arrayHeader(v []byte) (count, eleLen uint32, err error) {
	if len(v) < 8 {
		return 0, 0, fmt.Errorf("%w: array header too short", ErrTypeMismatch)
	}
	return uint32(beUint(v[0:4])), uint32(beUint(v[4:8])), nil
}

// GetArrayItem returns the elements of an array or batch item as raw
// slices.
func (s *Set) GetArrayItem(itemKey *klv.UL) ([][]byte, error) {
	v, err := s.RawItem(itemKey)
	if err != nil {
		return nil, err
	}
	count, eleLen, err := arrayHeader(v)
	if err != nil {
		return nil, err
	}
	if eleLen == 0 || count == 0 {
		return nil, nil
	}
	if uint64(len(v)-8) < uint64(count)*uint64(eleLen) {
		return nil, fmt.Errorf("%w: array of %d x %d exceeds item length %d", ErrTypeMismatch, count, eleLen, len(v))
	}
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		off := 8 + i*eleLen
		out = append(out, v[off:off+eleLen])
	}
	return out, nil
}

// GetArrayItemCount returns the element count of an array item.
func (s *Set) GetArrayItemCount(itemKey *klv.UL) (uint32, error) {
	v, err := s.RawItem(itemKey)
	if err != nil {
		return 0, err
	}
	count, _, err := arrayHeader(v)
	return count, err
}

// SetArrayItem stores elements of fixed size eleLen.
func (s *Set) SetArrayItem(itemKey *klv.UL, eleLen uint32, elements [][]byte) error {
	buf := make([]byte, 0, 8+len(elements)*int(eleLen))
	buf = append(buf, putBEUint(uint64(len(elements)), 4)...)
	buf = append(buf, putBEUint(uint64(eleLen), 4)...)
	for _, e := range elements {
		if uint32(len(e)) != eleLen {
			return fmt.Errorf("%w: element length %d, want %d", ErrTypeMismatch, len(e), eleLen)
		}
		buf = append(buf, e...)
	}
	s.setRaw(itemKey, buf)
	return nil
}

// GetUUIDArrayItem decodes an array of UUIDs (strong or weak reference
// arrays and batches).
func (s *Set) GetUUIDArrayItem(itemKey *klv.UL) ([]klv.UUID, error) {
	elements, err := s.GetArrayItem(itemKey)
	if err != nil {
		return nil, err
	}
	out := make([]klv.UUID, 0, len(elements))
	for _, e := range elements {
		if len(e) != klv.UUIDExtlen {
			return nil, fmt.Errorf("%w: reference element length %d", ErrTypeMismatch, len(e))
		}
		var uid klv.UUID
		copy(uid[:], e)
		out = append(out, uid)
	}
	return out, nil
}

// GetULArrayItem decodes an array or batch of ULs.
func (s *Set) GetULArrayItem(itemKey *klv.UL) ([]klv.UL, error) {
	elements, err := s.GetArrayItem(itemKey)
	if err != nil {
		return nil, err
	}
	out := make([]klv.UL, 0, len(elements))
	for _, e := range elements {
		if len(e) != klv.KeyExtlen {
			return nil, fmt.Errorf("%w: label element length %d", ErrTypeMismatch, len(e))
		}
		var ul klv.UL
		copy(ul[:], e)
		out = append(out, ul)
	}
	return out, nil
}

// SetULArrayItem stores an array or batch of ULs.
func (s *Set) SetULArrayItem(itemKey *klv.UL, uls []klv.UL) {
	elements := make([][]byte, 0, len(uls))
	for i := range uls {
		elements = append(elements, uls[i][:])
	}
	if err := s.SetArrayItem(itemKey, klv.KeyExtlen, elements); err != nil {
		panic(err) // element lengths are fixed above
	}
}

// SetStrongRefArrayItem stores an ordered owning list of references.
func (s *Set) SetStrongRefArrayItem(itemKey *klv.UL, targets []*Set) {
	elements := make([][]byte, 0, len(targets))
	for _, t := range targets {
		uid := t.InstanceUID()
		e := make([]byte, klv.UUIDExtlen)
		copy(e, uid[:])
		elements = append(elements, e)
	}
	if err := s.SetArrayItem(itemKey, klv.UUIDExtlen, elements); err != nil {
		panic(err)
	}
}

// AppendStrongRefArrayItem appends target to a strong reference array,
// creating the item if absent.
func (s *Set) AppendStrongRefArrayItem(itemKey *klv.UL, target *Set) error {
	var uids []klv.UUID
	if s.HaveItem(itemKey) {
		var err error
		if uids, err = s.GetUUIDArrayItem(itemKey); err != nil {
			return err
		}
	}
	uids = append(uids, target.InstanceUID())
	elements := make([][]byte, 0, len(uids))
	for i := range uids {
		elements = append(elements, uids[i][:])
	}
	return s.SetArrayItem(itemKey, klv.UUIDExtlen, elements)
}

// GetStrongRefArrayItem dereferences every element of a strong
// reference array or batch.
func (s *Set) GetStrongRefArrayItem(itemKey *klv.UL) ([]*Set, error) {
	uids, err := s.GetUUIDArrayItem(itemKey)
	if err != nil {
		return nil, err
	}
	out := make([]*Set, 0, len(uids))
	for _, uid := range uids {
		target, ok := s.hm.FindSet(uid)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingStrongRef, uid)
		}
		out = append(out, target)
	}
	return out, nil
}
