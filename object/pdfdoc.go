package object

import (
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// DecodePDFDocEncoded decodes a text string per ISO 32000 7.9.2.2: a
// leading UTF-16BE BOM (FE FF) means the rest is UTF-16BE, otherwise
// the bytes are PDFDocEncoding, the single-byte encoding x/text models
// as charmap.PDFDocEncoding. Used for metadata strings (/Title,
// /Author, …) that a collaborator wants as human-readable text rather
// than raw bytes.
func DecodePDFDocEncoded(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return decodeUTF16BE(b[2:])
	}
	out, err := charmap.PDFDocEncoding.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decodeUTF16BE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(units))
}

// StringOf extracts text from a StringLiteral or HexString object,
// decoding per DecodePDFDocEncoded. Any other Object returns "",false.
func StringOf(o Object) (string, bool) {
	switch v := o.(type) {
	case StringLiteral:
		return DecodePDFDocEncoded([]byte(v)), true
	case HexString:
		return DecodePDFDocEncoded([]byte(v)), true
	default:
		return "", false
	}
}
