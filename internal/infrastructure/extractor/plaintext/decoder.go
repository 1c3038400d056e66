// Package plaintext decodes uploaded text files into UTF-8.
package plaintext

import (
	"bytes"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var cleaner = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Decoder recognises a UTF-8 or UTF-16 byte order mark, accepts valid UTF-8
// and reads anything else as Windows-1252, then ISO-8859-1.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeText never fails. Output uses LF line breaks and carries no NUL bytes.
func (d *Decoder) DecodeText(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	return cleaner.Replace(decode(content))
}

func decode(content []byte) string {
	switch {
	case bytes.HasPrefix(content, bomUTF8):
		return string(content[len(bomUTF8):])
	case bytes.HasPrefix(content, bomUTF16LE):
		if text, ok := transcode(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), content); ok {
			return text
		}
	case bytes.HasPrefix(content, bomUTF16BE):
		if text, ok := transcode(unicode.UTF16(unicode.BigEndian, unicode.UseBOM), content); ok {
			return text
		}
	}

	if utf8.Valid(content) {
		return string(content)
	}
	for _, fallback := range []encoding.Encoding{charmap.Windows1252, charmap.ISO8859_1} {
		if text, ok := transcode(fallback, content); ok {
			return text
		}
	}
	slog.Warn("plaintext_decode_failed", "bytes", len(content))
	return strings.ToValidUTF8(string(content), "")
}

func transcode(enc encoding.Encoding, content []byte) (string, bool) {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), content)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
