package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/benoitkugler/pdfcore/config"
	"github.com/benoitkugler/pdfcore/errs"
)

// decodeFlate tries each recovery strategy in order, stopping at the
// first one that produces usable output.
func decodeFlate(data []byte, params Params, opts *config.ParseOptions) ([]byte, error) {
	expected := expectedSize(params, len(data))

	strategies := []func([]byte) ([]byte, error){
		flateStandardZlib,
		flateRawDeflate,
		flateSkipHeaderBytes,
		flateIgnoreChecksum,
	}

	var lastErr error
	for _, try := range strategies {
		out, err := try(data)
		if err == nil || (len(out) > 0 && int64(len(out)) >= expected) {
			return applyPredictor(out, params)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("flate: all recovery strategies failed: %w", lastErr)
}

func expectedSize(params Params, fallback int) int64 {
	if params == nil {
		return int64(fallback)
	}
	return 0 // no declared plain-text size is available from DecodeParms alone
}

func flateStandardZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	return out, err
}

// flateRawDeflate tries the payload as raw DEFLATE, no zlib wrapper —
// some encoders omit it even though PDF requires it.
func flateRawDeflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if len(out) == 0 {
		return nil, err
	}
	return out, nil
}

// flateSkipHeaderBytes retries with 1-4 leading bytes dropped, in case
// a prepended stray byte corrupted the zlib header.
func flateSkipHeaderBytes(data []byte) ([]byte, error) {
	var lastErr error
	for skip := 1; skip <= 4 && skip < len(data); skip++ {
		r, err := zlib.NewReader(bytes.NewReader(data[skip:]))
		if err != nil {
			lastErr = err
			continue
		}
		out, err := io.ReadAll(r)
		r.Close()
		if len(out) > 0 {
			return out, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// flateIgnoreChecksum decompresses via the raw deflate stream embedded
// after the 2-byte zlib header, discarding the trailing Adler-32 that
// a truncated or corrupted file may have lost.
func flateIgnoreChecksum(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, errs.New(errs.FilterError, -1, "flate payload too short")
	}
	r := flate.NewReader(bytes.NewReader(data[2:]))
	defer r.Close()
	out, err := io.ReadAll(r)
	if len(out) == 0 {
		return nil, err
	}
	return out, nil
}

// --- predictors (PNG Up/Sub/Average/Paeth, TIFF horizontal) ---

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func parsePredictorParams(p Params) (predictorParams, error) {
	pred := p["Predictor"]
	switch pred {
	case 0, 1, 2, 10, 11, 12, 13, 14, 15:
	default:
		return predictorParams{}, fmt.Errorf("unexpected Predictor %d", pred)
	}

	colors := p["Colors"]
	if colors == 0 {
		colors = 1
	}
	bpc := p["BitsPerComponent"]
	if bpc == 0 {
		bpc = 8
	}
	columns := p["Columns"]
	if columns == 0 {
		columns = 1
	}
	return predictorParams{predictor: pred, colors: colors, bpc: bpc, columns: columns}, nil
}

func (pp predictorParams) rowSize() int { return pp.bpc * pp.colors * pp.columns / 8 }

func applyPredictor(decoded []byte, params Params) ([]byte, error) {
	if params == nil {
		return decoded, nil
	}
	pp, err := parsePredictorParams(params)
	if err != nil {
		return nil, err
	}
	if pp.predictor == 0 || pp.predictor == 1 {
		return decoded, nil
	}

	bytesPerPixel := (pp.bpc*pp.colors + 7) / 8
	rowSize := pp.rowSize()
	if pp.predictor != 2 {
		rowSize++ // PNG rows are prefixed by a filter-type byte
	}
	if rowSize <= 0 {
		return nil, fmt.Errorf("predictor: invalid row size")
	}

	r := bytes.NewReader(decoded)
	cr := make([]byte, rowSize)
	pr := make([]byte, rowSize)
	var out []byte

	for {
		_, err := io.ReadFull(r, cr)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}
		row, err := predictRow(pr, cr, pp.predictor, pp.colors, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, row...)
		pr, cr = cr, pr
	}
	return out, nil
}

func predictRow(pr, cr []byte, predictor, colors, bpp int) ([]byte, error) {
	if predictor == 2 {
		return applyHorizontalDiff(cr, colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	switch int(cr[0]) {
	case 0: // None
	case 1: // Sub
		for i := bpp; i < len(cdat); i++ {
			cdat[i] += cdat[i-bpp]
		}
	case 2: // Up
		for i, p := range pdat {
			cdat[i] += p
		}
	case 3: // Average
		for i := 0; i < bpp; i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bpp; i < len(cdat); i++ {
			cdat[i] += byte((int(cdat[i-bpp]) + int(pdat[i])) / 2)
		}
	case 4: // Paeth
		filterPaeth(cdat, pdat, bpp)
	default:
		return nil, fmt.Errorf("predictor: unknown row filter %d", cr[0])
	}
	return cdat, nil
}

func applyHorizontalDiff(row []byte, colors int) []byte {
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func filterPaeth(cdat, pdat []byte, bpp int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bpp; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bpp {
			b = int32(pdat[j])
			pa, pb, pc = b-c, a-c, abs32((b-c)+(a-c))
			pa, pb = abs32(pa), abs32(pb)
			switch {
			case pa <= pb && pa <= pc:
			case pb <= pc:
				a = b
			default:
				a = c
			}
			a = (a + int32(cdat[j])) & 0xff
			cdat[j] = byte(a)
			c = b
		}
	}
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
