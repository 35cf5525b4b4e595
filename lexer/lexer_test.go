package lexer

import (
	"testing"

	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/warnings"
)

func TestNextTokenBasic(t *testing.T) {
	opts := config.Default()
	l := New([]byte("/Name1 123 1.5"), &opts, warnings.NewLog(nil))

	tok, err := l.NextToken()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KName || string(tok.Value) != "Name1" {
		t.Errorf("unexpected token %+v", tok)
	}

	tok, err = l.NextToken()
	if err != nil || tok.Kind != KInteger {
		t.Errorf("expected integer, got %+v %v", tok, err)
	}

	tok, err = l.NextToken()
	if err != nil || tok.Kind != KFloat {
		t.Errorf("expected float, got %+v %v", tok, err)
	}
}

func TestCheckpointRestore(t *testing.T) {
	opts := config.Default()
	l := New([]byte("1 2 3"), &opts, warnings.NewLog(nil))

	save := l.CurrentPosition()
	first, _ := l.NextToken()
	l.SetPosition(save)
	again, _ := l.NextToken()

	if string(first.Value) != string(again.Value) {
		t.Errorf("restore did not replay same token: %+v vs %+v", first, again)
	}
}
