// ABOUTME: Best-effort text decoding for attachment payloads
// ABOUTME: Honors a UTF-8/UTF-16 byte order mark and replaces invalid bytes instead of failing
package ingest

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText decodes raw as UTF-8 unless a BOM selects UTF-16. Invalid
// sequences become U+FFFD; the BOM itself is stripped.
func decodeText(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
