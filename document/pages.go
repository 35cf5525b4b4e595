package document

import (
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

// inherited carries the four page attributes that flow down from
// ancestor /Pages nodes to each leaf: /Resources, /MediaBox, /CropBox,
// /Rotate. A nil entry means "not yet set by any ancestor".
type inherited struct {
	resources object.Object
	mediaBox  object.Object
	cropBox   object.Object
	rotate    object.Object
}

func (in inherited) overlay(dict object.Dictionary) inherited {
	out := in
	if v, ok := dict.Lookup("Resources"); ok {
		out.resources = v
	}
	if v, ok := dict.Lookup("MediaBox"); ok {
		out.mediaBox = v
	}
	if v, ok := dict.Lookup("CropBox"); ok {
		out.cropBox = v
	}
	if v, ok := dict.Lookup("Rotate"); ok {
		out.rotate = v
	}
	return out
}

// applyTo returns a copy of leaf with any of the four inheritable keys
// filled in from in where leaf itself doesn't already define them.
func (in inherited) applyTo(leaf object.Dictionary) object.Dictionary {
	out := make(object.Dictionary, len(leaf)+4)
	for k, v := range leaf {
		out[k] = v
	}
	fill := func(key object.Name, v object.Object) {
		if v == nil {
			return
		}
		if _, already := out[key]; !already {
			out[key] = v
		}
	}
	fill("Resources", in.resources)
	fill("MediaBox", in.mediaBox)
	fill("CropBox", in.cropBox)
	fill("Rotate", in.rotate)
	return out
}

// PageIterator yields resolved, inheritance-merged page dictionaries
// in document order. It is lazy only in the sense that Document
// computes the underlying slice once (on first use) and caches it;
// each call to Document.Pages returns a fresh, independent cursor over
// that same immutable slice, so concurrent iterations never interfere
// and always see the same order.
type PageIterator struct {
	pages []object.Dictionary
	pos   int
}

// Next returns the next page dictionary, or ok=false once exhausted.
func (it *PageIterator) Next() (object.Dictionary, bool) {
	if it.pos >= len(it.pages) {
		return nil, false
	}
	p := it.pages[it.pos]
	it.pos++
	return p, true
}

// Len reports the total number of pages this iterator will yield.
func (it *PageIterator) Len() int { return len(it.pages) }

// Pages walks the catalog's /Pages tree and returns a fresh iterator
// over the (cached, after the first call) ordered leaf list.
func (d *Document) Pages() (*PageIterator, error) {
	pages, err := d.allPages()
	if err != nil {
		return nil, err
	}
	cp := make([]object.Dictionary, len(pages))
	copy(cp, pages)
	return &PageIterator{pages: cp}, nil
}

// allPages computes (once) the full, ordered, inheritance-merged leaf
// list: descend the whole /Kids tree to completion, bounding cycles
// with a visited set, before any page is considered "yielded". The
// compute-once is guarded by pagesOnce.mu for the whole call, so
// concurrent first calls from separate goroutines still only walk the
// tree once and always observe the same finished result.
func (d *Document) allPages() ([]object.Dictionary, error) {
	d.pagesOnce.mu.Lock()
	defer d.pagesOnce.mu.Unlock()

	if d.pagesOnce.done {
		return d.pagesCache, d.pagesErr
	}

	cat, err := d.Catalog()
	if err != nil {
		d.pagesErr = err
		return nil, err
	}

	rootObj, ok := cat.Lookup("Pages")
	if !ok {
		d.pagesErr = errs.New(errs.ObjectNotFound, -1, "catalog has no /Pages")
		return nil, d.pagesErr
	}
	root, err := d.resolveValue(rootObj)
	if err != nil {
		d.pagesErr = err
		return nil, err
	}
	rootDict, ok := root.(object.Dictionary)
	if !ok {
		d.pagesErr = errs.New(errs.ObjectNotFound, -1, "/Pages does not resolve to a dictionary")
		return nil, d.pagesErr
	}

	w := &pageWalker{doc: d, visited: map[uint32]bool{}}
	if err := w.walk(rootDict, inherited{}); err != nil {
		d.pagesErr = err
		return nil, err
	}

	d.pagesCache = w.out
	d.pagesErr = nil
	d.pagesOnce.done = true
	return d.pagesCache, nil
}

type pageWalker struct {
	doc     *Document
	visited map[uint32]bool
	out     []object.Dictionary
}

// walk classifies node as an internal /Pages node or a leaf /Page.
// When /Type is absent the type is inferred from the presence of /Kids
// alone (a node without /Kids is a leaf whether or not it has
// /Contents), recording a warning each time; strict mode infers the
// same way and raises no error.
func (w *pageWalker) walk(node object.Dictionary, inh inherited) error {
	merged := inh.overlay(node)

	kids, hasKids := node.ArrayOf("Kids")
	isPages := node.IsTyped("Pages")
	isPage := node.IsTyped("Page")

	switch {
	case isPages, !isPage && hasKids:
		if !isPages && !isPage {
			w.doc.log.Add(warnings.PageTypeInferred, -1, "page-tree node missing /Type classified as /Pages by presence of /Kids")
		}
		for _, kidObj := range kids {
			if err := w.walkKid(kidObj, merged); err != nil {
				return err
			}
		}
		return nil

	default:
		if !isPage && !isPages {
			w.doc.log.Add(warnings.PageTypeInferred, -1, "page-tree node missing /Type classified as /Page by absence of /Kids")
		}
		w.out = append(w.out, merged.applyTo(node))
		return nil
	}
}

func (w *pageWalker) walkKid(kidObj object.Object, inh inherited) error {
	ref, isRef := kidObj.(object.Reference)
	if isRef {
		if w.visited[ref.ObjNum] {
			return nil // cyclic /Kids tree; already visited, skip silently
		}
		w.visited[ref.ObjNum] = true
	}

	resolved, err := w.doc.resolveValue(kidObj)
	if err != nil {
		if errKind, ok := errs.As(err); ok && (errKind.Kind == errs.ObjectNotFound || errKind.Kind == errs.CircularReference) {
			return nil // a malformed kid reference doesn't sink the whole tree
		}
		return err
	}
	kidDict, ok := resolved.(object.Dictionary)
	if !ok {
		return nil // non-dictionary kid is skipped, not fatal
	}
	return w.walk(kidDict, inh)
}
