package device

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// EncodeMessage converts text to bytes one character at a time, keeping the
// low 8 bits of each UTF-16 code unit. Characters above U+FFFF send the low
// byte of their high surrogate.
func EncodeMessage(msg string) []byte {
	out := make([]byte, 0, len(msg))
	for _, r := range msg {
		if hi, _ := utf16.EncodeRune(r); hi != utf8.RuneError {
			r = hi
		}
		out = append(out, byte(r))
	}
	return out
}

// DecodeMessage maps every byte to the character with the same code point.
func DecodeMessage(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}
