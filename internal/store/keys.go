// ABOUTME: Reversible storage key sanitization
// ABOUTME: Escapes characters backends reject and bounds key length

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrKeyTruncated is returned by UnescapeKey for keys that were shortened to
// fit a length limit. Their logical key must be stored alongside.
var ErrKeyTruncated = errors.New("key was truncated and cannot be unescaped")

// MaxKeyLength is the default limit on escaped key length.
const MaxKeyLength = 255

const (
	escapeChar     = '*'
	truncateMarker = "**"
	hashLen        = 16
)

// EscapeKey makes key safe for storage backends: '\', '?', '/', '#', '%',
// '*' and control characters become "*xx" (hex). If the escaped key exceeds
// maxLen (0 means MaxKeyLength) it is cut and suffixed with "**" plus a
// SHA-256 fragment of the original key, which keeps it unique.
func EscapeKey(key string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxKeyLength
	}

	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if needsEscape(c) {
			b.WriteByte(escapeChar)
			b.WriteString(hex.EncodeToString([]byte{c}))
			continue
		}
		b.WriteByte(c)
	}

	escaped := b.String()
	if len(escaped) <= maxLen {
		return escaped
	}

	sum := sha256.Sum256([]byte(key))
	suffix := truncateMarker + hex.EncodeToString(sum[:])[:hashLen]
	keep := maxLen - len(suffix)
	if keep < 0 {
		keep = 0
	}
	// Never cut a multi-byte rune or an escape sequence in half.
	for keep > 0 && !utf8.RuneStart(escaped[keep]) {
		keep--
	}
	switch {
	case keep >= 1 && escaped[keep-1] == escapeChar:
		keep--
	case keep >= 2 && escaped[keep-2] == escapeChar:
		keep -= 2
	}
	return escaped[:keep] + suffix
}

// UnescapeKey reverses EscapeKey for keys that were not truncated.
func UnescapeKey(escaped string) (string, error) {
	if strings.Contains(escaped, truncateMarker) {
		return "", ErrKeyTruncated
	}

	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != escapeChar {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(escaped) {
			return "", errors.New("invalid escape sequence at end of key")
		}
		v, err := strconv.ParseUint(escaped[i+1:i+3], 16, 8)
		if err != nil {
			return "", errors.New("invalid escape sequence: " + escaped[i:i+3])
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

func needsEscape(c byte) bool {
	switch c {
	case '\\', '?', '/', '#', '%', escapeChar:
		return true
	}
	return c < 0x20 || c == 0x7f
}
