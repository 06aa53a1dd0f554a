package similarity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold normalizes a name for comparison: NFC composition, Unicode case
// folding, trimmed and with inner whitespace collapsed.
func Fold(s string) string {
	s = norm.NFC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// EqualFold reports whether two names are equal after Fold.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}
