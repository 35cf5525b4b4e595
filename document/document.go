// Package document is the public entry point collaborators (page/text/
// font/form extractors) use to open a PDF and walk its object graph.
// It wires the byte source, lexer, parser, xref index and resolver
// behind a small surface: Open, Trailer, Catalog, PageCount, Resolve,
// Pages, Warnings, Version.
package document

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/resolver"
	"github.com/benoitkugler/pdfcore/warnings"
	"github.com/benoitkugler/pdfcore/xref"
)

// Version is the PDF header version, e.g. {1, 7} for "%PDF-1.7".
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Document is the opened, addressable object graph of one PDF input.
// Everything but the resolver's object cache and the warning log is
// immutable once Open returns, so concurrent readers never need to
// synchronize on anything but those two pieces of mutable state.
type Document struct {
	src     bytesource.Source
	opts    config.ParseOptions
	log     *warnings.Log
	table   *xref.Table
	res     *resolver.Resolver
	version Version

	pagesOnce  pagesState
	pagesCache []object.Dictionary
	pagesErr   error
}

// pagesState guards the lazily-computed page list with a plain mutex
// rather than sync.Once, so a failed first attempt can be retried by
// a later caller instead of being cached as a permanent error forever
// (Open itself never fails because of a bad page tree). The mutex is
// held across the whole compute-once in allPages, not just the
// done/cache read, so two goroutines calling Pages concurrently on a
// fresh Document never race on pagesCache/pagesErr.
type pagesState struct {
	mu   sync.Mutex
	done bool
}

// Open parses opts (filling in defaults/validating bounds), locates
// the header and xref, and constructs the resolver. It never panics:
// any internal invariant violation is recovered and reported as an
// errs.Error instead of propagating as a native Go panic, mirroring
// the corpus's "belt and suspenders" top-level recover in a format
// parser's entry point.
func Open(src bytesource.Source, opts config.ParseOptions) (doc *Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, errs.New(errs.InvalidHeader, -1, fmt.Sprintf("internal error while opening document: %v", rec))
		}
	}()

	if verr := opts.Validate(); verr != nil {
		return nil, errs.Wrap(errs.InvalidHeader, -1, "invalid ParseOptions", verr)
	}

	version, err := detectVersion(src)
	if err != nil {
		return nil, err
	}

	log := warnings.NewLog(opts.Logger)

	table, err := xref.Build(src, &opts, log)
	if err != nil {
		return nil, err
	}

	if _, encrypted := table.Trailer.Lookup("Encrypt"); encrypted {
		return nil, errs.New(errs.UnsupportedEncryption, -1, "document trailer declares /Encrypt; decryption is out of scope for this core")
	}

	res := resolver.New(src, table, &opts, log)

	return &Document{
		src:     src,
		opts:    opts,
		log:     log,
		table:   table,
		res:     res,
		version: version,
	}, nil
}

// maxHeaderScan bounds the leading junk (shebang, BOM, …) tolerated
// before "%PDF-X.Y".
const maxHeaderScan = 1024

var pdfMagic = []byte("%PDF-")

// detectVersion finds "%PDF-X.Y" within the first maxHeaderScan+len(magic)
// bytes and parses its version digits.
func detectVersion(src bytesource.Source) (Version, error) {
	window := int64(maxHeaderScan) + 16
	if window > src.Len() {
		window = src.Len()
	}
	if window <= 0 {
		return Version{}, errs.New(errs.InvalidHeader, -1, "empty input")
	}
	head, err := src.ReadAt(0, window)
	if err != nil {
		return Version{}, errs.New(errs.InvalidHeader, -1, "unreadable header")
	}

	idx := bytes.Index(head, pdfMagic)
	if idx < 0 || idx > maxHeaderScan {
		return Version{}, errs.New(errs.InvalidHeader, -1, "PDF signature not found within the first 1024 bytes")
	}

	rest := head[idx+len(pdfMagic):]
	major, minor, ok := parseVersionDigits(rest)
	if !ok {
		return Version{}, errs.New(errs.InvalidHeader, -1, "malformed PDF version in header")
	}
	if major != 1 && major != 2 {
		return Version{}, errs.New(errs.InvalidHeader, -1, fmt.Sprintf("unsupported PDF major version %d", major))
	}
	return Version{Major: major, Minor: minor}, nil
}

func parseVersionDigits(rest []byte) (major, minor int, ok bool) {
	if len(rest) < 3 || rest[0] < '0' || rest[0] > '9' || rest[1] != '.' || rest[2] < '0' || rest[2] > '9' {
		return 0, 0, false
	}
	return int(rest[0] - '0'), int(rest[2] - '0'), true
}

// Version returns the declared header version.
func (d *Document) Version() Version { return d.version }

// Trailer returns the effective (merged) trailer dictionary.
func (d *Document) Trailer() object.Dictionary { return d.table.Trailer }

// Warnings returns every recoverable condition absorbed while opening
// and while resolving objects so far, in append order.
func (d *Document) Warnings() []warnings.Warning { return d.log.All() }

// Resolve dereferences a Reference through the document's resolver.
func (d *Document) Resolve(ref object.Reference) (object.Object, error) {
	return d.res.Resolve(ref)
}

// resolveValue resolves o if it is a Reference, returning it unchanged
// otherwise; used internally wherever a dictionary value may or may
// not be indirect.
func (d *Document) resolveValue(o object.Object) (object.Object, error) {
	return d.res.ResolveShallow(o)
}

// Catalog resolves the trailer's /Root into the document's root
// catalog dictionary.
func (d *Document) Catalog() (object.Dictionary, error) {
	rootObj, ok := d.table.Trailer.Lookup("Root")
	if !ok {
		return nil, errs.New(errs.ObjectNotFound, -1, "trailer has no /Root")
	}
	resolved, err := d.resolveValue(rootObj)
	if err != nil {
		return nil, err
	}
	dict, ok := resolved.(object.Dictionary)
	if !ok {
		return nil, errs.New(errs.ObjectNotFound, -1, "/Root does not resolve to a dictionary")
	}
	return dict, nil
}

// PageCount returns the number of leaf pages actually reachable by
// walking the page tree, rather than merely trusting /Count (which a
// malformed or malicious document can misstate).
func (d *Document) PageCount() (int, error) {
	pages, err := d.allPages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}
