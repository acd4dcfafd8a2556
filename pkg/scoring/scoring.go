// Package scoring implements the field-weighted similarity model used for
// duplicate detection over structures and persons.
package scoring

import (
	"strings"

	"github.com/venuelink/rolodex/pkg/models"
	"github.com/venuelink/rolodex/pkg/normalizers"
)

// Comparison methods recorded in match reasons.
const (
	MethodExact       = "exact"
	MethodLevenshtein = "levenshtein"
	MethodSoundex     = "soundex"
	MethodPhone       = "phone"
)

// DefaultThreshold is the group admission threshold for detection runs.
const DefaultThreshold = 0.8

// Per-field evidence cutoffs. A field comparison only becomes a recorded
// reason when its score strictly exceeds the cutoff for its entity kind.
const (
	structureEvidenceCutoff = 0.7
	personEvidenceCutoff    = 0.6
)

// soundexSameScore is the fixed similarity granted when two values share a
// phonetic code but are not textually identical.
const soundexSameScore = 0.8

// Similarity is the outcome of comparing two entities.
type Similarity struct {
	Score   float64
	Reasons []models.MatchReason
}

// Scorer provides the string comparison algorithms and the entity-level
// weighted scoring built on them.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// fieldComparison is one weighted field pair inside an entity comparison.
type fieldComparison struct {
	field  string
	weight float64
	a, b   string
	method string
}

// StructureSimilarity scores two structures. Field weights: legal name 40,
// email 30, phone 20, address 10. Fields empty on either side contribute
// nothing to the score or the weight sum.
func (s *Scorer) StructureSimilarity(a, b *models.Structure) Similarity {
	comparisons := []fieldComparison{
		{field: "legalName", weight: 40, a: a.LegalName, b: b.LegalName, method: MethodLevenshtein},
		{field: "email", weight: 30, a: a.Email, b: b.Email, method: MethodExact},
		{field: "phone", weight: 20, a: a.Phone, b: b.Phone, method: MethodPhone},
		{field: "address", weight: 10, a: a.Address, b: b.Address, method: MethodLevenshtein},
	}
	return s.weighted(comparisons, structureEvidenceCutoff)
}

// PersonSimilarity scores two persons. Field weights: email 40, last name 25,
// first name 25, phone 10. Names compare phonetically first and fall back to
// edit distance; the phone slot prefers the landline and falls back to mobile.
func (s *Scorer) PersonSimilarity(a, b *models.Person) Similarity {
	comparisons := []fieldComparison{
		{field: "email", weight: 40, a: a.Email, b: b.Email, method: MethodExact},
		{field: "lastName", weight: 25, a: a.LastName, b: b.LastName, method: MethodSoundex},
		{field: "firstName", weight: 25, a: a.FirstName, b: b.FirstName, method: MethodSoundex},
		{field: "phone", weight: 10, a: a.BestPhone(), b: b.BestPhone(), method: MethodPhone},
	}
	return s.weighted(comparisons, personEvidenceCutoff)
}

func (s *Scorer) weighted(comparisons []fieldComparison, evidenceCutoff float64) Similarity {
	var result Similarity
	var totalScore, weightSum float64

	for _, comp := range comparisons {
		if comp.a == "" || comp.b == "" {
			continue
		}

		var score float64
		switch comp.method {
		case MethodExact:
			score = s.ExactMatch(comp.a, comp.b)
		case MethodLevenshtein:
			score = s.Levenshtein(comp.a, comp.b)
		case MethodSoundex:
			if s.Soundex(comp.a) == s.Soundex(comp.b) {
				score = soundexSameScore
			} else {
				score = s.Levenshtein(comp.a, comp.b)
			}
		case MethodPhone:
			score = s.PhoneMatch(comp.a, comp.b)
		}

		if score > evidenceCutoff {
			result.Reasons = append(result.Reasons, models.MatchReason{
				Field:     comp.field,
				Score:     score,
				Algorithm: comp.method,
			})
		}

		totalScore += score * comp.weight
		weightSum += comp.weight
	}

	if weightSum > 0 {
		result.Score = totalScore / weightSum
	}
	return result
}

// ExactMatch returns 1.0 when the values match case-insensitively.
func (s *Scorer) ExactMatch(a, b string) float64 {
	if strings.EqualFold(a, b) {
		return 1.0
	}
	return 0.0
}

// PhoneMatch returns 1.0 when the values match after aggressive
// normalization (lowercase, diacritics stripped, non-alphanumerics dropped).
func (s *Scorer) PhoneMatch(a, b string) float64 {
	na := normalizers.ApplyChain(a, "lowercase", "strip_diacritics", "alphanumeric")
	nb := normalizers.ApplyChain(b, "lowercase", "strip_diacritics", "alphanumeric")
	if na != "" && na == nb {
		return 1.0
	}
	return 0.0
}

// Levenshtein returns a similarity in [0, 1] derived from edit distance over
// the lowercased values. Two empty strings are identical; empty input on one
// side scores 0.
func (s *Scorer) Levenshtein(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	la := []rune(strings.ToLower(a))
	lb := []rune(strings.ToLower(b))
	if string(la) == string(lb) {
		return 1.0
	}

	distance := levenshteinDistance(la, lb)
	maxLen := max(len(la), len(lb))
	return 1.0 - float64(distance)/float64(maxLen)
}

// levenshteinDistance computes the edit distance with two rolling rows.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Soundex computes the phonetic code used for name comparison. Every letter
// maps to a digit class, vowels included; the code is the first mapped
// character followed by the next three non-vowel codes, zero-padded to four.
func (s *Scorer) Soundex(str string) string {
	var mapped []byte
	for _, r := range strings.ToLower(str) {
		if r < 'a' || r > 'z' {
			continue
		}
		mapped = append(mapped, soundexClass(byte(r)))
	}
	if len(mapped) == 0 {
		return ""
	}

	rest := make([]byte, 0, 3)
	for _, c := range mapped[1:] {
		if c == '0' {
			continue
		}
		rest = append(rest, c)
		if len(rest) == 3 {
			break
		}
	}
	for len(rest) < 3 {
		rest = append(rest, '0')
	}

	return string(mapped[0]) + string(rest)
}

func soundexClass(c byte) byte {
	switch c {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return '0'
	case 'b', 'f', 'p', 'v':
		return '1'
	case 'c', 'g', 'j', 'k', 'q', 's', 'x', 'z':
		return '2'
	case 'd', 't':
		return '3'
	case 'l':
		return '4'
	case 'm', 'n':
		return '5'
	case 'r':
		return '6'
	default:
		// h and w have no class and carry through literally.
		return c
	}
}
