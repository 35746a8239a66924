package invoice

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var typographic = strings.NewReplacer(
	"–", "-", "—", "-", "−", "-",
	"‘", "'", "’", "'", "‚", "'",
	"“", `"`, "”", `"`, "„", `"`,
	"…", "...", "€", "EUR",
)

// Latin1 returns s encoded as ISO-8859-1 bytes, the encoding of the core
// PDF fonts. Common typographic characters are folded to ASCII first; any
// other rune outside Latin-1 becomes '?'.
func Latin1(s string) string {
	s = typographic.Replace(s)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return string(out)
}
