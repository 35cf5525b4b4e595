// Package config holds the single ParseOptions value threaded through
// an opened document, replacing what would otherwise be a long list of
// ad-hoc tolerance booleans with a Strictness enum plus a handful of
// numeric bounds (see the source's own design notes on this point).
package config

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Strictness collapses the "many small booleans" pattern into one
// switch: Strict fails fast on anything recoverable, Lenient absorbs
// it and records a warning.
type Strictness uint8

const (
	Lenient Strictness = iota
	Strict
)

// HybridPrecedence resolves the open question of which table wins
// when a hybrid xref's classic table and xref stream disagree.
type HybridPrecedence uint8

const (
	XrefStreamWins HybridPrecedence = iota
	ClassicWins
)

// ParseOptions is the single value collaborators pass to Open. The
// zero value is invalid; use Default() and override fields.
type ParseOptions struct {
	Strictness Strictness

	MaxObjectDepth     int           `validate:"min=1,max=10000"`
	MaxRefChain        int           `validate:"min=1,max=10000"`
	MaxXrefPrevChain   int           `validate:"min=1,max=10000"`
	MaxStreamDecoded   int64         `validate:"min=1"`
	EndstreamScanLimit int64         `validate:"min=0"` // 0 = unbounded
	OperationTimeout   time.Duration `validate:"min=0"`

	AllowXrefRecovery   bool
	NormalizeLineEndings bool
	TolerateMinorErrors  bool

	HybridPrecedence HybridPrecedence

	// Logger receives structured records mirroring every recorded
	// warning. A nil Logger is replaced with a discarding logger by
	// Default()/Validate().
	Logger *slog.Logger
}

// Default returns the spec's documented defaults.
func Default() ParseOptions {
	return ParseOptions{
		Strictness:           Lenient,
		MaxObjectDepth:       50,
		MaxRefChain:          10,
		MaxXrefPrevChain:     32,
		MaxStreamDecoded:     100 * 1024 * 1024,
		EndstreamScanLimit:   10 * 1024 * 1024,
		OperationTimeout:     5 * time.Second,
		AllowXrefRecovery:    true,
		NormalizeLineEndings: true,
		TolerateMinorErrors:  true,
		HybridPrecedence:     XrefStreamWins,
		Logger:               discardLogger(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

var validate = validator.New()

// Validate checks the numeric bounds via struct tags and fills in a
// discarding Logger when none was supplied. It never rejects a
// ParseOptions purely for carrying a nil Logger.
func (o *ParseOptions) Validate() error {
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	return validate.Struct(o)
}

func (s Strictness) IsStrict() bool { return s == Strict }
