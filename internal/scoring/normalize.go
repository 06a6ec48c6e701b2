package scoring

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Prefix tokens that platforms prepend to neighborhood and street names.
// They carry no identity signal and inflate edit distances.
var noisePrefixes = map[string]bool{
	"col":      true,
	"col.":     true,
	"colonia":  true,
	"fracc":    true,
	"fracc.":   true,
	"frac":     true,
	"frac.":    true,
	"u":        true,
	"unidad":   true,
	"av":       true,
	"av.":      true,
	"avenida":  true,
	"calle":    true,
	"c.":       true,
	"blvd":     true,
	"blvd.":    true,
	"priv":     true,
	"priv.":    true,
	"privada":  true,
	"residencial": true,
	"res":      true,
	"res.":     true,
}

var accentStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeText lowercases, strips accents and drops noise prefix tokens so
// "Col. Américas" and "americas" compare as equal.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if stripped, _, err := transform.String(accentStripper, s); err == nil {
		s = stripped
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if noisePrefixes[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// similarity returns Levenshtein distance normalized into [0,1], where 1 is
// an exact match after normalization.
func similarity(a, b string) float64 {
	a = normalizeText(a)
	b = normalizeText(b)
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
