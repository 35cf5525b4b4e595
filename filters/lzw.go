package filters

import (
	"bytes"
	"io"

	"github.com/hhrutter/lzw"
)

// decodeLZW decodes an LZWDecode stream. The stdlib compress/lzw
// package has no way to express PDF's EarlyChange=0 variant, so this
// relies on github.com/hhrutter/lzw instead, which supports both.
func decodeLZW(data []byte, params Params) ([]byte, error) {
	earlyChange := true
	if v, ok := params["EarlyChange"]; ok && v == 0 {
		earlyChange = false
	}
	r := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}
