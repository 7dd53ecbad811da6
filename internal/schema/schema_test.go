package schema

import (
	"errors"
	"testing"

	"github.com/distr1/mxf/internal/klv"
)

func testUL(last byte) klv.UL {
	return klv.UL{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x53, 0x01, 0x7f,
		0x7f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, last}
}

func TestRegisterAndQuery(t *testing.T) {
	t.Parallel()

	m := New()
	parent := testUL(1)
	child := testUL(2)
	item := testUL(3)
	if err := m.RegisterSetDef("Parent", &parent, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterSetDef("Child", &child, &parent); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterItemDef("Item", &parent, &item, 0x1234, TypeUInt32, true); err != nil {
		t.Fatal(err)
	}

	// queries before finalise fail
	if _, err := m.FindSetDef(&child); !errors.Is(err, ErrNotFinalised) {
		t.Fatalf("FindSetDef before finalise = %v, want ErrNotFinalised", err)
	}

	if err := m.Finalise(); err != nil {
		t.Fatal(err)
	}

	// item defined on the parent is found via the child
	def, err := m.FindItemDef(&child, &item)
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "Item" || def.LocalTag != 0x1234 || !def.Required {
		t.Fatalf("FindItemDef = %+v", def)
	}
	byTag, err := m.FindItemDefByTag(&child, 0x1234)
	if err != nil {
		t.Fatal(err)
	}
	if byTag != def {
		t.Fatal("FindItemDefByTag returned a different definition")
	}

	if !m.IsSubclassOf(&child, &parent) {
		t.Error("child is not a subclass of parent")
	}
	if !m.IsSubclassOf(&parent, &parent) {
		t.Error("class is not a subclass of itself")
	}
	if m.IsSubclassOf(&parent, &child) {
		t.Error("parent is a subclass of child")
	}
}

func TestUnknownParent(t *testing.T) {
	t.Parallel()

	m := New()
	child := testUL(2)
	missing := testUL(9)
	if err := m.RegisterSetDef("Child", &child, &missing); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(); !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("Finalise = %v, want ErrUnknownParent", err)
	}
}

func TestDuplicateDefinitions(t *testing.T) {
	t.Parallel()

	m := New()
	set := testUL(1)
	item := testUL(2)
	if err := m.RegisterSetDef("Set", &set, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterSetDef("Set", &set, nil); !errors.Is(err, ErrDuplicateDefinition) {
		t.Fatalf("duplicate set = %v, want ErrDuplicateDefinition", err)
	}
	if err := m.RegisterItemDef("Item", &set, &item, 0, TypeRaw, false); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterItemDef("Item", &set, &item, 0, TypeRaw, false); !errors.Is(err, ErrDuplicateDefinition) {
		t.Fatalf("duplicate item = %v, want ErrDuplicateDefinition", err)
	}
}

func TestBuiltInModel(t *testing.T) {
	t.Parallel()

	m := BuiltIn()
	if !m.IsSubclassOf(&SetCDCIDescriptor, &SetFileDescriptor) {
		t.Error("CDCIEssenceDescriptor is not a FileDescriptor")
	}
	if !m.IsSubclassOf(&SetMaterialPackage, &SetGenericPackage) {
		t.Error("MaterialPackage is not a GenericPackage")
	}

	// InstanceUID is inherited by every set from InterchangeObject
	def, err := m.FindItemDef(&SetPreface, &ItemInstanceUID)
	if err != nil {
		t.Fatal(err)
	}
	if def.LocalTag != 0x3c0a {
		t.Fatalf("InstanceUID local tag = %#x, want 0x3c0a", def.LocalTag)
	}

	if _, err := m.FindItemDefByTag(&SetTrack, 0x4b01); err != nil {
		t.Errorf("EditRate tag lookup on Track: %v", err)
	}
}
