package metadata

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/mxfio"
	"github.com/distr1/mxf/internal/schema"
)

// buildTestMetadata creates a small but representative graph: Preface
// with an Identification, a ContentStorage and both packages.
func buildTestMetadata(t *testing.T) *HeaderMetadata {
	t.Helper()
	hm := New(schema.BuiltIn())

	preface, err := hm.NewSet(&schema.SetPreface)
	if err != nil {
		t.Fatal(err)
	}
	preface.SetTimestampItem(&schema.ItemLastModifiedDate, klv.Timestamp{Year: 2008, Month: 6, Day: 1})
	preface.SetVersionTypeItem(&schema.ItemVersion, 259)
	op := klv.OP1aMultiTrackStreamInternal
	preface.SetULItem(&schema.ItemOperationalPattern, &op)
	preface.SetULArrayItem(&schema.ItemEssenceContainers, []klv.UL{klv.ECDVBased50_625_50_ClipWrapped})
	preface.SetULArrayItem(&schema.ItemDMSchemes, nil)

	ident, err := hm.NewSet(&schema.SetIdentification)
	if err != nil {
		t.Fatal(err)
	}
	preface.SetStrongRefArrayItem(&schema.ItemIdentifications, []*Set{ident})
	uid := klv.UUID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	ident.SetUUIDItem(&schema.ItemThisGenerationUID, &uid)
	ident.SetUTF16StringItem(&schema.ItemCompanyName, "BBC")
	ident.SetUTF16StringItem(&schema.ItemProductName, "mxf test")
	ident.SetUTF16StringItem(&schema.ItemVersionString, "0.1")
	ident.SetUUIDItem(&schema.ItemProductUID, &uid)
	ident.SetTimestampItem(&schema.ItemModificationDate, klv.Timestamp{Year: 2008, Month: 6, Day: 1})
	ident.SetProductVersionItem(&schema.ItemProductVersion, klv.ProductVersion{Major: 1, Minor: 2, Patch: 3, Build: 4, Release: 5})

	storage, err := hm.NewSet(&schema.SetContentStorage)
	if err != nil {
		t.Fatal(err)
	}
	preface.SetStrongRefItem(&schema.ItemContentStorageRef, storage)
	storage.SetStrongRefArrayItem(&schema.ItemPackages, nil)
	return hm
}

func writeMetadata(t *testing.T, hm *HeaderMetadata) (*mxfio.MemoryFile, uint64) {
	t.Helper()
	f := mxfio.NewMemoryFile()
	f.SetMinLLen(4)
	if err := hm.Write(f, &klv.FillKeyCompliant); err != nil {
		t.Fatal(err)
	}
	return f, uint64(f.Size())
}

func readMetadata(t *testing.T, f *mxfio.MemoryFile, byteCount uint64, filter *ReadFilter) *HeaderMetadata {
	t.Helper()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	key, llen, length, err := klv.ReadKL(f)
	if err != nil {
		t.Fatal(err)
	}
	if !IsHeaderMetadata(&key) {
		t.Fatalf("first key %s is not a primer pack", key)
	}
	got, err := Read(f, schema.BuiltIn(), byteCount, &key, llen, length, filter)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	f, byteCount := writeMetadata(t, hm)
	got := readMetadata(t, f, byteCount, nil)

	if len(got.Sets()) != len(hm.Sets()) {
		t.Fatalf("read %d sets, wrote %d", len(got.Sets()), len(hm.Sets()))
	}

	// every set and item round-trips byte for byte
	for _, src := range hm.Sets() {
		dst, ok := got.FindSet(src.InstanceUID())
		if !ok {
			t.Fatalf("set %s missing after round trip", src.InstanceUID())
		}
		if dst.Key != src.Key {
			t.Fatalf("set class %s became %s", src.Key, dst.Key)
		}
		for _, k := range src.order {
			k := k
			want, _ := src.RawItem(&k)
			gotV, err := dst.RawItem(&k)
			if err != nil {
				t.Fatalf("item %s: %v", &k, err)
			}
			if diff := cmp.Diff(want, gotV); diff != "" {
				t.Fatalf("item %s differs (-want +got):\n%s", &k, diff)
			}
		}
	}

	// typed access on the read side
	preface, err := got.Preface()
	if err != nil {
		t.Fatal(err)
	}
	ident, err := preface.GetStrongRefArrayItem(&schema.ItemIdentifications)
	if err != nil {
		t.Fatal(err)
	}
	if len(ident) != 1 {
		t.Fatalf("got %d identifications", len(ident))
	}
	name, err := ident[0].GetUTF16StringItem(&schema.ItemCompanyName)
	if err != nil {
		t.Fatal(err)
	}
	if name != "BBC" {
		t.Fatalf("company name = %q", name)
	}
	pv, err := ident[0].GetProductVersionItem(&schema.ItemProductVersion)
	if err != nil {
		t.Fatal(err)
	}
	if (pv != klv.ProductVersion{Major: 1, Minor: 2, Patch: 3, Build: 4, Release: 5}) {
		t.Fatalf("product version = %+v", pv)
	}
}

func TestRewriteSameLength(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	_, firstLen := writeMetadata(t, hm)

	// mutating fixed-width values must not change the serialised size
	preface, err := hm.Preface()
	if err != nil {
		t.Fatal(err)
	}
	preface.SetTimestampItem(&schema.ItemLastModifiedDate, klv.Timestamp{Year: 2026, Month: 1, Day: 31})
	_, secondLen := writeMetadata(t, hm)
	if firstLen != secondLen {
		t.Fatalf("rewrite changed length from %d to %d", firstLen, secondLen)
	}
}

func TestFixedSetSpace(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	_, baseline := writeMetadata(t, hm)

	preface, err := hm.Preface()
	if err != nil {
		t.Fatal(err)
	}
	preface.FixedSpace = 1024

	f, byteCount := writeMetadata(t, hm)
	if byteCount <= baseline {
		t.Fatalf("fixed space write is %d bytes, baseline %d", byteCount, baseline)
	}
	got := readMetadata(t, f, byteCount, nil)
	if len(got.Sets()) != len(hm.Sets()) {
		t.Fatalf("read %d sets, wrote %d", len(got.Sets()), len(hm.Sets()))
	}

	// the padded set can grow within its budget without moving the
	// sets that follow it
	preface.SetULArrayItem(&schema.ItemDMSchemes, []klv.UL{klv.ECMultipleWrappings})
	_, secondCount := writeMetadata(t, hm)
	if byteCount != secondCount {
		t.Fatalf("fixed space write changed length from %d to %d", byteCount, secondCount)
	}
}

func TestReadFilter(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	f, byteCount := writeMetadata(t, hm)

	var before, after int
	filter := &ReadFilter{
		BeforeSet: func(key *klv.Key, llen uint8, length uint64) (bool, error) {
			before++
			return klv.EqualsKey(key, &schema.SetIdentification), nil
		},
		AfterSet: func(set *Set) (bool, error) {
			after++
			return set.Key == schema.SetContentStorage, nil
		},
	}
	got := readMetadata(t, f, byteCount, filter)

	if before != len(hm.Sets()) {
		t.Errorf("BeforeSet called %d times, want %d", before, len(hm.Sets()))
	}
	if after != len(hm.Sets())-1 {
		t.Errorf("AfterSet called %d times, want %d", after, len(hm.Sets())-1)
	}
	if got := len(got.Sets()); got != len(hm.Sets())-2 {
		t.Errorf("%d sets retained, want %d", got, len(hm.Sets())-2)
	}
}

func TestCloneSet(t *testing.T) {
	t.Parallel()

	src := buildTestMetadata(t)
	preface, err := src.Preface()
	if err != nil {
		t.Fatal(err)
	}

	dst := New(schema.BuiltIn())
	clone, err := CloneSet(preface, dst)
	if err != nil {
		t.Fatal(err)
	}

	// the strong reference subtree came along
	if len(dst.Sets()) != len(src.Sets()) {
		t.Fatalf("clone copied %d sets, want %d", len(dst.Sets()), len(src.Sets()))
	}
	storage, err := clone.GetStrongRefItem(&schema.ItemContentStorageRef)
	if err != nil {
		t.Fatal(err)
	}
	if storage.Key != schema.SetContentStorage {
		t.Fatalf("cloned storage has class %s", storage.Key)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	if err := hm.Validate(); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}

	// a dangling strong reference is caught
	preface, err := hm.Preface()
	if err != nil {
		t.Fatal(err)
	}
	storage, err := preface.GetStrongRefItem(&schema.ItemContentStorageRef)
	if err != nil {
		t.Fatal(err)
	}
	hm.RemoveSet(storage)
	if err := hm.Validate(); !errors.Is(err, ErrDanglingStrongRef) {
		t.Fatalf("Validate = %v, want ErrDanglingStrongRef", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	preface, err := hm.Preface()
	if err != nil {
		t.Fatal(err)
	}
	preface.RemoveItem(&schema.ItemOperationalPattern)
	if err := hm.Validate(); !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("Validate = %v, want ErrMissingRequired", err)
	}
}

func TestDerefStrongHint(t *testing.T) {
	t.Parallel()

	hm := buildTestMetadata(t)
	it := hm.Iterate()
	for _, want := range hm.Sets() {
		got, err := hm.DerefStrongHint(it, want.InstanceUID())
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatal("hinted dereference returned the wrong set")
		}
	}

	// out-of-order lookups fall back to the map
	it2 := hm.Iterate()
	last := hm.Sets()[len(hm.Sets())-1]
	got, err := hm.DerefStrongHint(it2, last.InstanceUID())
	if err != nil {
		t.Fatal(err)
	}
	if got != last {
		t.Fatal("map fallback returned the wrong set")
	}
}

func TestDuplicateInstanceUID(t *testing.T) {
	t.Parallel()

	hm := New(schema.BuiltIn())
	uid := klv.GenerateUUID()
	if _, err := hm.addSet(&schema.SetPreface, uid); err != nil {
		t.Fatal(err)
	}
	if _, err := hm.addSet(&schema.SetIdentification, uid); !errors.Is(err, ErrDuplicateInstance) {
		t.Fatalf("addSet = %v, want ErrDuplicateInstance", err)
	}
}
