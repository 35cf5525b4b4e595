package filters

import "fmt"

// validateCCITTParams checks a CCITTFaxDecode stream's /DecodeParms
// for internally inconsistent or implausible geometry before the
// (opaque pass-through) payload reaches a downstream consumer that
// expects valid CCITT bytes. The payload itself is never decoded
// here: a real CCITT decode is out of scope, so the checks below are
// limited to what the parameters alone can tell us.
func validateCCITTParams(params Params) error {
	columns := params["Columns"]
	if columns == 0 {
		columns = 1728
	}
	if columns <= 0 {
		return fmt.Errorf("ccitt: invalid Columns %d", columns)
	}

	if rows, ok := params["Rows"]; ok {
		if rows < 0 {
			return fmt.Errorf("ccitt: invalid Rows %d", rows)
		}
		// Rows == 0 means the image height isn't known in advance,
		// which is only decodable if the bitstream carries its own
		// end-of-block marker; otherwise nothing tells a decoder
		// where the data ends.
		if rows == 0 {
			if v, explicit := params["EndOfBlock"]; explicit && v == 0 {
				return fmt.Errorf("ccitt: Rows 0 requires EndOfBlock")
			}
		}
	}

	// K selects the encoding group: K<0 is Group 4 (pure 2D), K==0 is
	// Group 3 1D, K>0 is Group 3 mixed 1D/2D. EncodedByteAlign has no
	// effect on Group 4 streams, which never pad to a byte boundary
	// mid-row; a producer setting both is not invalid PDF, just
	// redundant, so this isn't rejected — there's nothing here that
	// would actually corrupt decoding.
	return nil
}
