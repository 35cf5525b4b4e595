package bytesource

import (
	"bytes"
	"testing"

	"github.com/benoitkugler/pdfcore/errs"
)

func TestMemSourceReadAt(t *testing.T) {
	s := FromBytes([]byte("hello world"))
	b, err := s.ReadAt(6, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "world" {
		t.Errorf("got %q", b)
	}
}

func TestMemSourceOutOfRange(t *testing.T) {
	s := FromBytes([]byte("short"))
	_, err := s.ReadAt(0, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.OutOfRange {
		t.Errorf("expected OutOfRange, got %v", err)
	}
}

func TestFindBackwards(t *testing.T) {
	data := []byte("startxref\n123\n%%EOF")
	s := FromBytes(data)
	idx := s.FindBackwards([]byte("startxref"), int64(len(data)), 1024)
	if idx != 0 {
		t.Errorf("expected 0, got %d", idx)
	}
}

func TestFindBackwardsBoundedWindow(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 2000)
	data = append([]byte("needle"), data...)
	s := FromBytes(data)
	idx := s.FindBackwards([]byte("needle"), int64(len(data)), 100)
	if idx != -1 {
		t.Errorf("expected -1 (outside window), got %d", idx)
	}
}

func TestReaderAtSource(t *testing.T) {
	data := []byte("0123456789")
	s := FromReaderAt(bytes.NewReader(data), int64(len(data)))
	b, err := s.ReadAt(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "234" {
		t.Errorf("got %q", b)
	}
}
