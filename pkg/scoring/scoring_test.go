package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venuelink/rolodex/pkg/models"
)

func TestLevenshteinIdentity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Levenshtein("Olympia", "Olympia"))
	assert.Equal(t, 1.0, s.Levenshtein("Olympia", "olympia"))
}

func TestLevenshteinSymmetry(t *testing.T) {
	s := NewScorer()

	pairs := [][2]string{
		{"Zenith Paris", "Zenith de Paris"},
		{"La Cigale", "La Cigalle"},
		{"abc", "xyz"},
	}
	for _, p := range pairs {
		assert.Equal(t, s.Levenshtein(p[0], p[1]), s.Levenshtein(p[1], p[0]),
			"similarity(%q, %q) must be symmetric", p[0], p[1])
	}
}

func TestLevenshteinEmptyInputs(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 0.0, s.Levenshtein("", "Olympia"))
	assert.Equal(t, 0.0, s.Levenshtein("Olympia", ""))
	assert.Equal(t, 1.0, s.Levenshtein("", ""))
}

func TestLevenshteinBounds(t *testing.T) {
	s := NewScorer()

	score := s.Levenshtein("La Cigale", "La Cigalle")
	assert.Greater(t, score, 0.8)
	assert.Less(t, score, 1.0)
}

func TestSoundexKnownCodes(t *testing.T) {
	s := NewScorer()

	// Every letter maps to a class, the first mapped character leads.
	assert.Equal(t, "3153", s.Soundex("Dupont"))
	assert.Equal(t, s.Soundex("Dupont"), s.Soundex("Dupond"))
	assert.Equal(t, "", s.Soundex(""))
	assert.Equal(t, "", s.Soundex("123"))
}

func TestSoundexVowelLeading(t *testing.T) {
	s := NewScorer()

	// A vowel-initial name leads with the vowel class, not the letter.
	code := s.Soundex("Aubert")
	assert.Equal(t, "0163", code)
}

func TestExactMatchCaseInsensitive(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.ExactMatch("Jane@Venue.FR", "jane@venue.fr"))
	assert.Equal(t, 0.0, s.ExactMatch("jane@venue.fr", "john@venue.fr"))
}

func TestPhoneMatchNormalizes(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.PhoneMatch("01 42 33 44 55", "01-42-33-44-55"))
	assert.Equal(t, 0.0, s.PhoneMatch("01 42 33 44 55", "01 42 33 44 56"))
	assert.Equal(t, 0.0, s.PhoneMatch("", ""))
}

func TestStructureSimilarityIdentical(t *testing.T) {
	s := NewScorer()

	a := &models.Structure{LegalName: "Le Trianon", Email: "contact@trianon.fr", Phone: "0144928877", Address: "80 bd de Rochechouart"}
	sim := s.StructureSimilarity(a, a)

	assert.Equal(t, 1.0, sim.Score)
	assert.Len(t, sim.Reasons, 4)
}

func TestStructureSimilarityMissingFieldsExcluded(t *testing.T) {
	s := NewScorer()

	// Only legal names present on both sides: the weight sum shrinks to that
	// field, so a perfect name match alone scores 1.0.
	a := &models.Structure{LegalName: "Le Trianon"}
	b := &models.Structure{LegalName: "Le Trianon", Email: "contact@trianon.fr"}
	sim := s.StructureSimilarity(a, b)

	assert.Equal(t, 1.0, sim.Score)
	assert.Len(t, sim.Reasons, 1)
	assert.Equal(t, "legalName", sim.Reasons[0].Field)
}

func TestStructureSimilarityNoComparableFields(t *testing.T) {
	s := NewScorer()

	sim := s.StructureSimilarity(&models.Structure{}, &models.Structure{LegalName: "X"})
	assert.Equal(t, 0.0, sim.Score)
	assert.Empty(t, sim.Reasons)
}

func TestPersonSimilaritySameEmailDifferentCasing(t *testing.T) {
	s := NewScorer()

	a := &models.Person{FirstName: "Jeanne", LastName: "Moreau", Email: "JMoreau@agence.fr"}
	b := &models.Person{FirstName: "Jeanne", LastName: "Moreau", Email: "jmoreau@agence.fr"}
	sim := s.PersonSimilarity(a, b)

	assert.GreaterOrEqual(t, sim.Score, DefaultThreshold)

	var emailReason *models.MatchReason
	for i := range sim.Reasons {
		if sim.Reasons[i].Field == "email" {
			emailReason = &sim.Reasons[i]
		}
	}
	if assert.NotNil(t, emailReason) {
		assert.Equal(t, 1.0, emailReason.Score)
	}
}

func TestPersonSimilarityPhoneticLastName(t *testing.T) {
	s := NewScorer()

	a := &models.Person{LastName: "Dupont"}
	b := &models.Person{LastName: "Dupond"}
	sim := s.PersonSimilarity(a, b)

	// Same phonetic code, different spelling: fixed 0.8 on the only
	// comparable field.
	assert.InDelta(t, 0.8, sim.Score, 1e-9)
	assert.Len(t, sim.Reasons, 1)
	assert.Equal(t, MethodSoundex, sim.Reasons[0].Algorithm)
}

func TestPersonSimilarityPhoneFallsBackToMobile(t *testing.T) {
	s := NewScorer()

	a := &models.Person{Mobile: "06 11 22 33 44"}
	b := &models.Person{Phone: "0611223344"}
	sim := s.PersonSimilarity(a, b)

	assert.Equal(t, 1.0, sim.Score)
}

func TestSimilarityIsSymmetric(t *testing.T) {
	s := NewScorer()

	a := &models.Person{FirstName: "Jean", LastName: "Valjean", Email: "jv@theatre.fr"}
	b := &models.Person{FirstName: "Jeanne", LastName: "Valjean", Email: "jv@theatre.fr"}

	assert.Equal(t, s.PersonSimilarity(a, b).Score, s.PersonSimilarity(b, a).Score)
}
