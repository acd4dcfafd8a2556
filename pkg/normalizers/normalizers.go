// Package normalizers provides field normalization functions used by the
// similarity scorer and the importer's identity lookups.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("naddress", NormalizeAddress)
	Register("strip_diacritics", StripDiacritics)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone removes all non-digit characters from a phone number. A
// leading international prefix collapses to its digits, so "+33 1 42..." and
// "0033 1 42..." stay distinct only in digits actually present.
func NormalizePhone(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// StripDiacritics removes combining marks so accented and unaccented
// spellings compare equal ("Théâtre" vs "Theatre").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName normalizes a person or organization name for matching:
// lowercase, diacritics stripped, punctuation dropped, whitespace collapsed.
func NormalizeName(s string) string {
	s = StripDiacritics(strings.ToLower(s))

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '\'' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeAddress normalizes an address string for fuzzy comparison:
// lowercase, diacritics stripped, common abbreviations expanded, whitespace
// collapsed.
func NormalizeAddress(s string) string {
	s = StripDiacritics(strings.ToLower(s))

	replacements := map[string]string{
		" avenue":    " av",
		" boulevard": " bd",
		" bld":       " bd",
		" place":     " pl",
		" saint-":    " st-",
		" sainte-":   " ste-",
	}
	for full, abbr := range replacements {
		s = strings.ReplaceAll(s, full, abbr)
	}

	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
