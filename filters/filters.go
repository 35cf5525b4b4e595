// Package filters implements the stream-decoder filter pipeline, with
// the multiple recovery strategies FlateDecode needs expressed as a
// prioritised list of pure functions rather than scattered branches.
package filters

import (
	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
	"github.com/benoitkugler/pdfcore/object"
	"github.com/benoitkugler/pdfcore/warnings"
)

// Name constants for the /Filter values this package recognizes.
const (
	ASCII85   object.Name = "ASCII85Decode"
	ASCIIHex  object.Name = "ASCIIHexDecode"
	RunLength object.Name = "RunLengthDecode"
	LZW       object.Name = "LZWDecode"
	Flate     object.Name = "FlateDecode"
	DCT       object.Name = "DCTDecode"
	CCITTFax  object.Name = "CCITTFaxDecode"
	JBIG2     object.Name = "JBIG2Decode"
)

// Params is one filter's /DecodeParms, with values already coerced
// from object.Object down to plain Go numerics/bools for convenience.
type Params map[string]int

// Decode applies dict's full /Filter chain (a single Name or an Array
// of Names, with parallel /DecodeParms) to raw. Filter failures in
// strict mode propagate errs.FilterError; in lenient mode the partial
// output accumulated so far is returned alongside a warning.
func Decode(dict object.Dictionary, raw []byte, opts *config.ParseOptions, log *warnings.Log) ([]byte, error) {
	names, paramsList := filterChain(dict)
	data := raw
	for i, name := range names {
		var params Params
		if i < len(paramsList) {
			params = paramsList[i]
		}
		out, err := decodeOne(name, params, data, opts)
		if err == nil && opts.MaxStreamDecoded > 0 && int64(len(out)) > opts.MaxStreamDecoded {
			err = errs.New(errs.FilterError, -1, "decoded stream exceeds max_stream_decoded_bytes")
		}
		if err != nil {
			if opts.Strictness.IsStrict() {
				return nil, errs.Wrap(errs.FilterError, -1, string(name), err)
			}
			if log != nil {
				log.Add(warnings.FilterRecovered, -1, "filter "+string(name)+" failed: "+err.Error())
			}
			return data, nil
		}
		data = out
	}
	return data, nil
}

func decodeOne(name object.Name, params Params, data []byte, opts *config.ParseOptions) ([]byte, error) {
	switch name {
	case Flate:
		return decodeFlate(data, params, opts)
	case LZW:
		return decodeLZW(data, params)
	case ASCIIHex:
		return decodeASCIIHex(data)
	case ASCII85:
		return decodeASCII85(data)
	case RunLength:
		return decodeRunLength(data)
	case CCITTFax:
		if err := validateCCITTParams(params); err != nil {
			return nil, err
		}
		return data, nil // opaque pass-through; payload isn't decoded
	case DCT, JBIG2:
		return data, nil // opaque pass-through; payload isn't decoded
	default:
		return nil, errs.New(errs.FilterError, -1, "unsupported filter "+string(name))
	}
}

// filterChain normalizes dict's /Filter + /DecodeParms (either a
// single value or a parallel array) into ordered slices.
func filterChain(dict object.Dictionary) ([]object.Name, []Params) {
	var names []object.Name
	switch f := dict["Filter"].(type) {
	case object.Name:
		names = []object.Name{f}
	case object.Array:
		for _, o := range f {
			if n, ok := o.(object.Name); ok {
				names = append(names, n)
			}
		}
	}

	var paramsList []Params
	switch p := dict["DecodeParms"].(type) {
	case object.Dictionary:
		paramsList = []Params{toParams(p)}
	case object.Array:
		for _, o := range p {
			if d, ok := o.(object.Dictionary); ok {
				paramsList = append(paramsList, toParams(d))
			} else {
				paramsList = append(paramsList, nil)
			}
		}
	}

	return names, paramsList
}

func toParams(d object.Dictionary) Params {
	out := make(Params, len(d))
	for k, v := range d {
		switch n := v.(type) {
		case object.Integer:
			out[string(k)] = int(n)
		case object.Bool:
			if n {
				out[string(k)] = 1
			} else {
				out[string(k)] = 0
			}
		}
	}
	return out
}
