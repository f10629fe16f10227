package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// letters that do not decompose into a base letter plus combining marks.
var letterReplacer = strings.NewReplacer(
	"ı", "i", "ß", "ss", "æ", "ae", "œ", "oe", "ø", "o",
	"đ", "d", "ð", "d", "ł", "l", "þ", "th",
)

// Generate creates a URL-friendly slug from the given name.
// Accented letters are folded to their ASCII base letter.
//
// Examples:
//   - "Kadın Giyim" → "kadin-giyim"
//   - "Crème Brûlée" → "creme-brulee"
//   - "Hello   World!" → "hello-world"
func Generate(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = letterReplacer.Replace(slug)
	slug = foldDiacritics(slug)

	// Replace any non-alphanumeric characters with hyphens
	slug = slugRegexp.ReplaceAllString(slug, "-")

	// Trim leading and trailing hyphens
	slug = strings.Trim(slug, "-")

	// Collapse consecutive hyphens into single hyphens
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	return slug
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
