package resolver

import (
	"testing"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
	"github.com/benoitkugler/pdfcore/xref"
)

func newTestResolver(t *testing.T, data []byte, entries map[uint32]xref.Entry) *Resolver {
	t.Helper()
	opts := config.Default()
	table := &xref.Table{Entries: entries, Trailer: object.Dictionary{}}
	return New(bytesource.FromBytes(data), table, &opts, warnings.NewLog(nil))
}

func TestResolveSimpleInUse(t *testing.T) {
	data := []byte("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.InUse, Offset: 0},
	}
	r := newTestResolver(t, data, entries)

	o, err := r.Resolve(object.Reference{ObjNum: 1})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := o.(object.Dictionary)
	if !ok || !d.IsTyped("Catalog") {
		t.Errorf("got %v", o)
	}
}

func TestResolveMissingObjectNumber(t *testing.T) {
	r := newTestResolver(t, nil, map[uint32]xref.Entry{})
	if _, err := r.Resolve(object.Reference{ObjNum: 99}); err == nil {
		t.Fatal("expected ObjectNotFound")
	}
}

func TestResolveFreeEntryFails(t *testing.T) {
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.Free, NextFree: 0},
	}
	r := newTestResolver(t, nil, entries)
	if _, err := r.Resolve(object.Reference{ObjNum: 1}); err == nil {
		t.Fatal("expected error resolving a free entry")
	}
}

// A reference chain 1 -> 2 -> 3 within MaxRefChain must resolve to the
// terminal value.
func TestResolveChasesReferenceChain(t *testing.T) {
	data := []byte(
		"1 0 obj\n2 0 R\nendobj\n" +
			"2 0 obj\n3 0 R\nendobj\n" +
			"3 0 obj\n42\nendobj\n",
	)
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.InUse, Offset: 0},
		2: {Kind: xref.InUse, Offset: 21},
		3: {Kind: xref.InUse, Offset: 42},
	}
	r := newTestResolver(t, data, entries)
	o, err := r.Resolve(object.Reference{ObjNum: 1})
	if err != nil {
		t.Fatal(err)
	}
	if o != object.Integer(42) {
		t.Errorf("got %v", o)
	}
}

// Object 1 whose value is "1 0 R" (pointing at itself) is a one-hop
// self-cycle and must fail with CircularReference, not hang.
func TestResolveSelfCycleFails(t *testing.T) {
	data := []byte("1 0 obj\n1 0 R\nendobj\n")
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.InUse, Offset: 0},
	}
	r := newTestResolver(t, data, entries)
	if _, err := r.Resolve(object.Reference{ObjNum: 1}); err == nil {
		t.Fatal("expected CircularReference")
	}
}

// A chain longer than MaxRefChain must fail rather than resolve.
func TestResolveChainExceedsMaxRefChain(t *testing.T) {
	// 1 -> 2 -> 3 -> 4, with MaxRefChain set to 1.
	data := []byte(
		"1 0 obj\n2 0 R\nendobj\n" +
			"2 0 obj\n3 0 R\nendobj\n" +
			"3 0 obj\n4 0 R\nendobj\n" +
			"4 0 obj\n99\nendobj\n",
	)
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.InUse, Offset: 0},
		2: {Kind: xref.InUse, Offset: 21},
		3: {Kind: xref.InUse, Offset: 42},
		4: {Kind: xref.InUse, Offset: 63},
	}
	opts := config.Default()
	opts.MaxRefChain = 1
	table := &xref.Table{Entries: entries, Trailer: object.Dictionary{}}
	r := New(bytesource.FromBytes(data), table, &opts, warnings.NewLog(nil))

	if _, err := r.Resolve(object.Reference{ObjNum: 1}); err == nil {
		t.Fatal("expected CircularReference from exceeding MaxRefChain")
	}
}

func TestResolveShallowPassesThroughNonReference(t *testing.T) {
	r := newTestResolver(t, nil, map[uint32]xref.Entry{})
	o, err := r.ResolveShallow(object.Integer(7))
	if err != nil {
		t.Fatal(err)
	}
	if o != object.Integer(7) {
		t.Errorf("got %v", o)
	}
}

// A compressed object whose object number (1) differs from its slot
// ordinal within the stream (0) must still resolve to the right
// member: the container's prolog maps slot 0 to object number 1, and
// the resolver is handed a Compressed entry carrying both container
// object 7 and slot index 0. Looking the member up by slot index
// instead of by object number would miss it entirely.
func TestResolveCompressedObject(t *testing.T) {
	const objStm = "7 0 obj\n<< /Type /ObjStm /N 1 /First 4 /Length 6 >>\nstream\n1 0\n42\nendstream\nendobj\n"
	data := []byte(objStm)
	entries := map[uint32]xref.Entry{
		7: {Kind: xref.InUse, Offset: 0},
		1: {Kind: xref.Compressed, ContainerObj: 7, Index: 0},
	}
	r := newTestResolver(t, data, entries)

	o, err := r.Resolve(object.Reference{ObjNum: 1})
	if err != nil {
		t.Fatal(err)
	}
	if o != object.Integer(42) {
		t.Errorf("got %v, want Integer(42)", o)
	}
}

// Two distinct objects sharing one container, where neither object
// number equals its slot ordinal, must each resolve independently
// from a single decode of the container.
func TestResolveCompressedObjectMultipleMembers(t *testing.T) {
	// Prolog: "5 0\n3 3\n" (8 bytes) maps slot 0 -> object 5 at
	// relative offset 0, slot 1 -> object 3 at relative offset 3.
	// Bodies from First=8: "10 20", the space separating the two
	// numeric tokens so each parses as a distinct object.
	const objStm = "9 0 obj\n<< /Type /ObjStm /N 2 /First 8 /Length 13 >>\nstream\n5 0\n3 3\n10 20\nendstream\nendobj\n"
	data := []byte(objStm)
	entries := map[uint32]xref.Entry{
		9: {Kind: xref.InUse, Offset: 0},
		5: {Kind: xref.Compressed, ContainerObj: 9, Index: 0},
		3: {Kind: xref.Compressed, ContainerObj: 9, Index: 1},
	}
	r := newTestResolver(t, data, entries)

	o5, err := r.Resolve(object.Reference{ObjNum: 5})
	if err != nil {
		t.Fatal(err)
	}
	if o5 != object.Integer(10) {
		t.Errorf("object 5: got %v, want Integer(10)", o5)
	}

	o3, err := r.Resolve(object.Reference{ObjNum: 3})
	if err != nil {
		t.Fatal(err)
	}
	if o3 != object.Integer(20) {
		t.Errorf("object 3: got %v, want Integer(20)", o3)
	}
}

func TestResolveIsRepeatable(t *testing.T) {
	data := []byte("1 0 obj\n123\nendobj\n")
	entries := map[uint32]xref.Entry{
		1: {Kind: xref.InUse, Offset: 0},
	}
	r := newTestResolver(t, data, entries)

	first, err := r.Resolve(object.Reference{ObjNum: 1})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(object.Reference{ObjNum: 1})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("expected identical cached result, got %v and %v", first, second)
	}
}
