package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fallbackCharmaps is the single-byte decoder chain tried after UTF-8,
// in order: latin-1, then cp1252.
var fallbackCharmaps = []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252}

// DecodeFileContent turns raw file bytes into a string using the
// fallback chain utf-8 → utf-8-sig → latin-1 → cp1252, finally
// replacing undecodable bytes outright.
func DecodeFileContent(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	for _, cm := range fallbackCharmaps {
		if decoded, err := cm.NewDecoder().Bytes(data); err == nil {
			return string(decoded)
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
