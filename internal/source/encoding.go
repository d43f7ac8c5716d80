package source

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DefaultFallback decodes extracts that are neither marked nor valid UTF-8.
// Registry exports from Russian-locale desktops are Windows-1251.
var DefaultFallback encoding.Encoding = charmap.Windows1251

// Fallbacks maps the charset names accepted in configuration.
var Fallbacks = map[string]encoding.Encoding{
	"windows-1251": charmap.Windows1251,
	"cp1251":       charmap.Windows1251,
	"koi8-r":       charmap.KOI8R,
	"latin-1":      charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
}

// LookupFallback resolves a configured charset name. Empty means
// DefaultFallback.
func LookupFallback(name string) (encoding.Encoding, error) {
	if name == "" {
		return DefaultFallback, nil
	}
	enc, ok := Fallbacks[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown fallback charset %q", name)
	}
	return enc, nil
}

// Decode detects the encoding of data, strips any byte order mark and
// returns UTF-8 along with the detected encoding name.
//
// Detection order: UTF-8 BOM, UTF-16 LE BOM, UTF-16 BE BOM, valid UTF-8,
// then fallback.
func Decode(data []byte, fallback encoding.Encoding) ([]byte, string, error) {
	if fallback == nil {
		fallback = DefaultFallback
	}

	switch {
	case len(data) == 0:
		return data, "utf-8", nil
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("utf-16le decode: %w", err)
		}
		return out, "utf-16le", nil
	case bytes.HasPrefix(data, bomUTF16BE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("utf-16be decode: %w", err)
		}
		return out, "utf-16be", nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	}

	out, err := fallback.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("fallback decode: %w", err)
	}
	return out, fmt.Sprint(fallback), nil
}
