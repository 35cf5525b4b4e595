// Package xref builds the xref index: classic table, xref stream,
// hybrid merge, /Prev chain walk, and falls back to a linear recovery
// scan when the declared xref cannot be trusted.
package xref

import "github.com/benoitkugler/pdfcore/object"

// EntryKind tags which variant an Entry holds.
type EntryKind uint8

const (
	Free EntryKind = iota
	InUse
	Compressed
)

// Entry is the tagged xref-entry variant: free, in-use at a byte
// offset, or compressed inside an object stream.
type Entry struct {
	Kind EntryKind
	Gen  uint16

	// InUse
	Offset int64
	// Free
	NextFree uint32
	// Compressed
	ContainerObj uint32
	Index        uint32
}

// Table is the effective, flattened (obj_num -> Entry) mapping plus
// the trailer. Once built it is immutable: the chain that produced it
// (via /Prev) is discarded, kept only as a diagnostic count.
type Table struct {
	Entries  map[uint32]Entry
	Trailer  object.Dictionary
	PrevHops int // number of /Prev tables merged, for diagnostics only
	Recovered bool
}

// Lookup returns the effective entry for objNum, if any.
func (t *Table) Lookup(objNum uint32) (Entry, bool) {
	e, ok := t.Entries[objNum]
	return e, ok
}

// Size returns the trailer's declared /Size, or the highest object
// number plus one when /Size is absent or implausible.
func (t *Table) Size() int64 {
	if n, ok := t.Trailer.IntOf("Size"); ok && n > 0 {
		return n
	}
	var max uint32
	for n := range t.Entries {
		if n > max {
			max = n
		}
	}
	return int64(max) + 1
}
