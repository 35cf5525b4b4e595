package objparser

import (
	"testing"

	"github.com/benoitkugler/pdfcore/bytesource"
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

func parseOne(t *testing.T, src string) object.Object {
	t.Helper()
	opts := config.Default()
	p := New([]byte(src), &opts, warnings.NewLog(nil))
	o, err := p.ParseObject()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return o
}

func TestParseScalars(t *testing.T) {
	if o := parseOne(t, "123"); o != object.Integer(123) {
		t.Errorf("got %v", o)
	}
	if o := parseOne(t, "1.5"); o != object.Real(1.5) {
		t.Errorf("got %v", o)
	}
	if o := parseOne(t, "true"); o != object.Bool(true) {
		t.Errorf("got %v", o)
	}
	if _, ok := parseOne(t, "null").(object.Null); !ok {
		t.Errorf("expected Null")
	}
}

func TestParseIndirectReference(t *testing.T) {
	o := parseOne(t, "12 0 R")
	ref, ok := o.(object.Reference)
	if !ok || ref.ObjNum != 12 || ref.Gen != 0 {
		t.Errorf("got %v", o)
	}
}

func TestParseIntegerNotFollowedByR(t *testing.T) {
	o := parseOne(t, "12 0")
	if o != object.Integer(12) {
		t.Errorf("expected bare Integer(12), got %v", o)
	}
}

func TestParseArray(t *testing.T) {
	o := parseOne(t, "[0 0 612 792]")
	arr, ok := o.(object.Array)
	if !ok || len(arr) != 4 {
		t.Fatalf("got %v", o)
	}
	if arr[3] != object.Integer(792) {
		t.Errorf("got %v", arr[3])
	}
}

func TestParseDict(t *testing.T) {
	o := parseOne(t, "<< /Type /Catalog /Pages 2 0 R >>")
	d, ok := o.(object.Dictionary)
	if !ok {
		t.Fatalf("got %v", o)
	}
	if n, _ := d.NameOf("Type"); n != "Catalog" {
		t.Errorf("got %v", n)
	}
	if r, ok := d["Pages"].(object.Reference); !ok || r.ObjNum != 2 {
		t.Errorf("got %v", d["Pages"])
	}
}

func TestParseDictDuplicateKeyFails(t *testing.T) {
	opts := config.Default()
	p := New([]byte("<< /A 1 /A 2 >>"), &opts, warnings.NewLog(nil))
	if _, err := p.ParseObject(); err == nil {
		t.Fatal("expected duplicate-key error")
	}
}

func TestDepthExceeded(t *testing.T) {
	opts := config.Default()
	opts.MaxObjectDepth = 3
	src := "[[[[1]]]]"
	p := New([]byte(src), &opts, warnings.NewLog(nil))
	if _, err := p.ParseObject(); err == nil {
		t.Fatal("expected DepthExceeded")
	}
}

func TestIndirectObjectSimple(t *testing.T) {
	data := []byte("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	opts := config.Default()
	io, err := ParseIndirectObjectAt(bytesource.FromBytes(data), 0, &opts, warnings.NewLog(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if io.ObjNum != 1 || io.Gen != 0 {
		t.Errorf("got %d %d", io.ObjNum, io.Gen)
	}
	d, ok := io.Value.(object.Dictionary)
	if !ok || !d.IsTyped("Catalog") {
		t.Errorf("got %v", io.Value)
	}
}

func TestIndirectObjectStreamWithDeclaredLength(t *testing.T) {
	body := "hello world"
	data := []byte("5 0 obj\n<< /Length 11 >>\nstream\n" + body + "\nendstream\nendobj\n")
	opts := config.Default()
	io, err := ParseIndirectObjectAt(bytesource.FromBytes(data), 0, &opts, warnings.NewLog(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := io.Value.(object.Stream)
	if !ok {
		t.Fatalf("got %v", io.Value)
	}
	if st.Payload.Length != int64(len(body)) {
		t.Errorf("expected length %d, got %d", len(body), st.Payload.Length)
	}
}

func TestIndirectObjectStreamLengthMismatchLenient(t *testing.T) {
	body := "this payload is much longer than five"
	data := []byte("5 0 obj\n<< /Length 5 >>\nstream\n" + body + "\nendstream\nendobj\n")
	opts := config.Default()
	log := warnings.NewLog(nil)
	io, err := ParseIndirectObjectAt(bytesource.FromBytes(data), 0, &opts, log, nil)
	if err != nil {
		t.Fatal(err)
	}
	st := io.Value.(object.Stream)
	if st.Payload.Length != int64(len(body)) {
		t.Errorf("expected recovered length %d, got %d", len(body), st.Payload.Length)
	}
	if log.Len() == 0 {
		t.Error("expected a StreamLengthMismatch warning")
	}
}

func TestIndirectObjectStreamLengthMismatchStrict(t *testing.T) {
	body := "this payload is much longer than five"
	data := []byte("5 0 obj\n<< /Length 5 >>\nstream\n" + body + "\nendstream\nendobj\n")
	opts := config.Default()
	opts.Strictness = config.Strict
	_, err := ParseIndirectObjectAt(bytesource.FromBytes(data), 0, &opts, warnings.NewLog(nil), nil)
	if err == nil {
		t.Fatal("expected StreamLengthMismatch error in strict mode")
	}
}
