package fetch

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/leaktk/sysvolscan/pkg/kind"
)

var fallbackEncodings = map[string]encoding.Encoding{
	"windows1252": charmap.Windows1252,
	"cp1252":      charmap.Windows1252,
	"windows1251": charmap.Windows1251,
	"cp1251":      charmap.Windows1251,
	"ibm437":      charmap.CodePage437,
	"cp437":       charmap.CodePage437,
	"ibm850":      charmap.CodePage850,
	"cp850":       charmap.CodePage850,
	"iso88591":    charmap.ISO8859_1,
	"latin1":      charmap.ISO8859_1,
}

// ValidEncoding reports whether name is empty or a known fallback encoding
func ValidEncoding(name string) bool {
	if len(name) == 0 {
		return true
	}

	_, ok := kind.Lookup(name, fallbackEncodings)
	return ok
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode turns raw file bytes into text. Files with a byte order mark are
// decoded accordingly. Anything else is expected to be UTF-8; when it isn't,
// the fallback encoding is used if set, otherwise invalid bytes become
// U+FFFD. The second result is true when the text was recovered through a
// fallback.
func Decode(data []byte, fallback string) (string, bool) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return decodeUTF8(data[len(bomUTF8):], fallback)
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	case looksLikeUTF16LE(data):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), data)
	default:
		return decodeUTF8(data, fallback)
	}
}

func decodeUTF8(data []byte, fallback string) (string, bool) {
	if utf8.Valid(data) {
		return string(data), false
	}

	if enc, ok := kind.Lookup(fallback, fallbackEncodings); ok {
		if text, err := enc.NewDecoder().String(string(data)); err == nil {
			return text, true
		}
	}

	return strings.ToValidUTF8(string(data), "\uFFFD"), true
}

func decodeWith(enc encoding.Encoding, data []byte) (string, bool) {
	text, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD"), true
	}

	return string(text), !utf8.Valid(text) || bytes.Contains(text, []byte("\uFFFD"))
}

// Truncate cuts data to at most size bytes without splitting a character, so
// a truncated file decodes as cleanly as the whole one would
func Truncate(data []byte, size int) []byte {
	if len(data) <= size {
		return data
	}

	switch {
	case bytes.HasPrefix(data, bomUTF16BE):
		return truncateUTF16(data, size, 0)
	case bytes.HasPrefix(data, bomUTF16LE), looksLikeUTF16LE(data):
		return truncateUTF16(data, size, 1)
	}

	cut := size
	for i := 0; i < utf8.UTFMax && cut > 0 && !utf8.RuneStart(data[cut]); i++ {
		cut--
	}

	return data[:cut]
}

// truncateUTF16 keeps whole code units and drops a trailing high surrogate.
// hi is the offset of the high byte within a code unit.
func truncateUTF16(data []byte, size, hi int) []byte {
	cut := size &^ 1
	if cut >= 2 && data[cut-2+hi]&0xFC == 0xD8 {
		cut -= 2
	}

	return data[:cut]
}

// looksLikeUTF16LE catches BOM-less UTF-16 which Windows tools write for
// .ini files. Mostly ASCII text in UTF-16LE has a zero in every odd byte.
func looksLikeUTF16LE(data []byte) bool {
	if len(data) < 4 {
		return false
	}

	sample := data[:len(data)&^1]
	if len(sample) > 512 {
		sample = sample[:512]
	}

	zeros := 0
	for i := 1; i < len(sample); i += 2 {
		if sample[i] == 0 && sample[i-1] != 0 {
			zeros++
		}
	}

	return zeros*10 >= (len(sample)/2)*9
}
