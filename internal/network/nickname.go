package network

import (
	"strings"
	"unicode"

	"github.com/siohaza/slither/internal/protocol"

	"golang.org/x/text/unicode/norm"
)

// SanitizeNickname normalises to NFC, drops non-printable runes, trims
// surrounding space and caps the result at protocol.MaxNicknameLen runes.
// An empty result is allowed.
func SanitizeNickname(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(name) {
		if !unicode.IsPrint(r) {
			continue
		}
		if n == protocol.MaxNicknameLen {
			break
		}
		b.WriteRune(r)
		n++
	}

	return strings.TrimSpace(b.String())
}
