// Package bytesource provides a random-access, length-known view over
// the input PDF bytes. It owns nothing beyond the handle it is given
// and never mutates it.
package bytesource

import (
	"bytes"
	"io"

	"github.com/benoitkugler/pdfcore/errs"
)

// Source is the read-only contract every other component uses to
// touch file bytes. It is safe for concurrent use by multiple readers.
type Source interface {
	// Len reports the total byte length of the input.
	Len() int64
	// ReadAt returns the len bytes starting at offset, failing with
	// errs.OutOfRange if offset+len exceeds Len().
	ReadAt(offset, length int64) ([]byte, error)
	// FindBackwards returns the offset of the last occurrence of
	// needle within [max(0,from-maxWindow), from), or -1 if absent.
	FindBackwards(needle []byte, from, maxWindow int64) int64
}

// memSource is a Source backed by an in-memory buffer, the common
// case once the whole file has been read (or was handed in as bytes).
type memSource struct {
	data []byte
}

// FromBytes wraps b directly; b must not be mutated afterwards.
func FromBytes(b []byte) Source {
	return memSource{data: b}
}

func (m memSource) Len() int64 { return int64(len(m.data)) }

func (m memSource) ReadAt(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil, errs.New(errs.OutOfRange, offset, "read past end of input")
	}
	return m.data[offset : offset+length], nil
}

func (m memSource) FindBackwards(needle []byte, from, maxWindow int64) int64 {
	if from > int64(len(m.data)) {
		from = int64(len(m.data))
	}
	start := from - maxWindow
	if start < 0 {
		start = 0
	}
	idx := bytes.LastIndex(m.data[start:from], needle)
	if idx < 0 {
		return -1
	}
	return start + int64(idx)
}

// readerAtSource adapts an io.ReaderAt of known total length, avoiding
// loading the whole file into memory up front for large inputs;
// FindBackwards still materialises its bounded window only.
type readerAtSource struct {
	r   io.ReaderAt
	len int64
}

// FromReaderAt wraps r, which must support concurrent ReadAt calls
// (as io.ReaderAt requires) and have exactly size bytes available.
func FromReaderAt(r io.ReaderAt, size int64) Source {
	return readerAtSource{r: r, len: size}
}

func (s readerAtSource) Len() int64 { return s.len }

func (s readerAtSource) ReadAt(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > s.len {
		return nil, errs.New(errs.OutOfRange, offset, "read past end of input")
	}
	buf := make([]byte, length)
	_, err := io.ReadFull(io.NewSectionReader(s.r, offset, length), buf)
	if err != nil {
		return nil, errs.Wrap(errs.OutOfRange, offset, "short read", err)
	}
	return buf, nil
}

func (s readerAtSource) FindBackwards(needle []byte, from, maxWindow int64) int64 {
	if from > s.len {
		from = s.len
	}
	start := from - maxWindow
	if start < 0 {
		start = 0
	}
	if start >= from {
		return -1
	}
	window, err := s.ReadAt(start, from-start)
	if err != nil {
		return -1
	}
	idx := bytes.LastIndex(window, needle)
	if idx < 0 {
		return -1
	}
	return start + int64(idx)
}
