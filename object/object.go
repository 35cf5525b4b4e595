// Package object defines the PdfObject data model: the tagged variant
// every other component parses into, resolves, or decodes. It is
// intentionally independent of any particular byte source or lexer so
// that objparser, xref and resolver can all share it.
package object

import "fmt"

// Object is any PDF value. The concrete types below are the only
// implementations; a type switch on Object is exhaustive over them.
type Object interface {
	isObject()
}

// Null represents the PDF null object, and also a dictionary entry
// whose value was omitted (the two are equivalent per the spec).
type Null struct{}

// Bool is a PDF boolean.
type Bool bool

// Integer is a PDF integer numeric object.
type Integer int64

// Real is a PDF real numeric object.
type Real float64

// Name is a PDF name, with #xx escapes already decoded; it is
// written as e.g. /Type in PDF syntax but stored without the slash.
type Name string

// StringLiteral holds the raw, unescaped bytes of a (…) string.
type StringLiteral []byte

// HexString holds the decoded bytes of a <…> string.
type HexString []byte

// Array is an ordered sequence of objects; duplicates are allowed.
type Array []Object

// Dictionary maps unique Names to objects. Key order is not
// semantically meaningful; iteration order of a Go map is not relied
// upon anywhere outside of debug formatting.
type Dictionary map[Name]Object

// StreamBody is either an on-disk span not yet read (Offset/Length
// valid, Bytes nil) or already-decoded bytes (Bytes non-nil).
type StreamBody struct {
	Offset int64
	Length int64
	Bytes  []byte // non-nil once decoded and cached
}

func (b StreamBody) Decoded() bool { return b.Bytes != nil }

// Stream is a Dictionary plus a payload whose filters (declared by
// /Filter and /DecodeParms in Dict) have not necessarily been applied
// yet; see package filters.
type Stream struct {
	Dict    Dictionary
	Payload StreamBody
}

// Reference is an unresolved indirect reference "ObjNum Gen R". It
// never appears inside a Stream's payload, only inside dictionaries
// and arrays (an invariant enforced by construction: objparser never
// emits a Reference while parsing stream bytes).
type Reference struct {
	ObjNum uint32
	Gen    uint16
}

func (Null) isObject()          {}
func (Bool) isObject()          {}
func (Integer) isObject()       {}
func (Real) isObject()          {}
func (Name) isObject()          {}
func (StringLiteral) isObject() {}
func (HexString) isObject()     {}
func (Array) isObject()         {}
func (Dictionary) isObject()    {}
func (Stream) isObject()        {}
func (Reference) isObject()     {}

func (r Reference) String() string { return fmt.Sprintf("%d %d R", r.ObjNum, r.Gen) }

// Lookup returns d[key] with ok=false if absent, distinguishing a
// missing key from a present Null (callers that care about the
// distinction can check the returned Object's type themselves).
func (d Dictionary) Lookup(key Name) (Object, bool) {
	v, ok := d[key]
	return v, ok
}

// NameOf returns d[key] as a Name, the boolean reporting both
// presence and type match.
func (d Dictionary) NameOf(key Name) (Name, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	n, ok := v.(Name)
	return n, ok
}

// IntOf returns d[key] as an int64, accepting Integer only (Reference
// values must be resolved by the caller first).
func (d Dictionary) IntOf(key Name) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	i, ok := v.(Integer)
	return int64(i), ok
}

// ArrayOf returns d[key] as an Array.
func (d Dictionary) ArrayOf(key Name) (Array, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	a, ok := v.(Array)
	return a, ok
}

// IsTyped reports whether d's /Type entry equals name. Missing /Type
// returns false; callers needing a lenient "infer by shape" fallback
// implement that separately.
func (d Dictionary) IsTyped(name Name) bool {
	n, ok := d.NameOf("Type")
	return ok && n == name
}
