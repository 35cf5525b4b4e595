package xref

import (
	"testing"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

// baseFixture is a minimal, well-formed classic-xref single-revision
// document: a /Catalog, a /Pages node and one /Page, offsets computed
// by hand once and kept fixed.
const baseFixture = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\n" +
	"startxref\n186\n%%EOF\n"

func TestBuildClassicTable(t *testing.T) {
	opts := config.Default()
	table, err := Build(bytesource.FromBytes([]byte(baseFixture)), &opts, warnings.NewLog(nil))
	if err != nil {
		t.Fatal(err)
	}
	if table.Recovered {
		t.Error("a well-formed classic table should not be marked Recovered")
	}
	if n, ok := table.Trailer.IntOf("Size"); !ok || n != 4 {
		t.Errorf("got Size=%v", n)
	}
	root, ok := table.Trailer.Lookup("Root")
	if !ok || root != (object.Reference{ObjNum: 1, Gen: 0}) {
		t.Errorf("got Root=%v", root)
	}

	e1, ok := table.Lookup(1)
	if !ok || e1.Kind != InUse || e1.Offset != 9 {
		t.Errorf("got entry 1: %+v", e1)
	}
	e2, ok := table.Lookup(2)
	if !ok || e2.Offset != 58 {
		t.Errorf("got entry 2: %+v", e2)
	}
	e3, ok := table.Lookup(3)
	if !ok || e3.Offset != 115 {
		t.Errorf("got entry 3: %+v", e3)
	}
	free0, ok := table.Lookup(0)
	if !ok || free0.Kind != Free {
		t.Errorf("got entry 0: %+v", free0)
	}
}

// An incremental update revises object 3 via a second xref section
// chained by /Prev; the revised offset must win, while objects untouched
// by the update (1 and 2) keep coming from the older table.
func TestBuildFollowsPrevChainNewestWins(t *testing.T) {
	const updated = baseFixture +
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 300] >>\nendobj\n" +
		"xref\n3 1\n0000000329 00000 n \n" +
		"trailer\n<< /Size 4 /Root 1 0 R /Prev 186 >>\n" +
		"startxref\n400\n%%EOF\n"

	opts := config.Default()
	table, err := Build(bytesource.FromBytes([]byte(updated)), &opts, warnings.NewLog(nil))
	if err != nil {
		t.Fatal(err)
	}
	if table.PrevHops != 2 {
		t.Errorf("expected 2 hops across the /Prev chain, got %d", table.PrevHops)
	}

	e1, ok := table.Lookup(1)
	if !ok || e1.Offset != 9 {
		t.Errorf("object 1 should still come from the base table, got %+v", e1)
	}
	e3, ok := table.Lookup(3)
	if !ok || e3.Offset != 329 {
		t.Errorf("object 3 should be shadowed by the incremental update, got %+v", e3)
	}
}

func TestBuildDetectsXrefCycle(t *testing.T) {
	// A /Prev pointing right back at the same xref section's own offset
	// (58, the byte offset of the "xref" keyword below).
	const cyclic = "%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 1 0 R >>\nendobj\n" +
		"xref\n0 2\n0000000000 65535 f \n0000000009 00000 n \n" +
		"trailer\n<< /Size 2 /Root 1 0 R /Prev 58 >>\n" +
		"startxref\n58\n%%EOF\n"

	opts := config.Default()
	opts.AllowXrefRecovery = false
	if _, err := Build(bytesource.FromBytes([]byte(cyclic)), &opts, warnings.NewLog(nil)); err == nil {
		t.Fatal("expected an XrefCycle error")
	}
}

// With no startxref/xref section at all but recognisable "N G obj"
// headers and a trailer keyword, Build must fall back to recovery.
func TestBuildFallsBackToRecovery(t *testing.T) {
	const noXref = "%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n" +
		"trailer\n<< /Size 4 /Root 1 0 R >>\n"

	opts := config.Default()
	log := warnings.NewLog(nil)
	table, err := Build(bytesource.FromBytes([]byte(noXref)), &opts, log)
	if err != nil {
		t.Fatal(err)
	}
	if !table.Recovered {
		t.Error("expected the table to be marked Recovered")
	}
	e1, ok := table.Lookup(1)
	if !ok || e1.Offset != 9 {
		t.Errorf("got entry 1: %+v", e1)
	}
	if log.Len() == 0 {
		t.Error("expected an XrefRecovered warning")
	}
}

func TestBuildRejectsRecoveryWhenDisallowed(t *testing.T) {
	const noXref = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 1 0 R >>\nendobj\ntrailer\n<< /Size 1 /Root 1 0 R >>\n"

	opts := config.Default()
	opts.AllowXrefRecovery = false
	if _, err := Build(bytesource.FromBytes([]byte(noXref)), &opts, warnings.NewLog(nil)); err == nil {
		t.Fatal("expected Build to fail when recovery is disallowed")
	}
}

func TestTableSizeFallsBackToHighestEntry(t *testing.T) {
	table := &Table{
		Entries: map[uint32]Entry{0: {Kind: Free}, 1: {Kind: InUse, Offset: 9}, 5: {Kind: InUse, Offset: 40}},
		Trailer: object.Dictionary{},
	}
	if got := table.Size(); got != 6 {
		t.Errorf("got %d", got)
	}
}
