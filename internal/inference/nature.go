package inference

import (
	"strings"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultSimilarityThreshold is the minimum ratio for a caller nature to be
// accepted as a catalogue entry.
const DefaultSimilarityThreshold = 0.7

// NatureMatcher resolves free-form nature strings to catalogue entries.
type NatureMatcher struct {
	catalogue []string
	threshold float64
}

// NewNatureMatcher creates a matcher over catalogue.
func NewNatureMatcher(catalogue []string, threshold float64) *NatureMatcher {
	return &NatureMatcher{
		catalogue: append([]string(nil), catalogue...),
		threshold: threshold,
	}
}

// Resolve returns the catalogue entry most similar to nature. On equal
// similarity the earlier catalogue entry wins. A best ratio below the
// threshold is an ErrValidation error.
func (m *NatureMatcher) Resolve(nature string) (string, error) {
	best, bestRatio := "", -1.0
	for _, candidate := range m.catalogue {
		if r := similarity(nature, candidate); r > bestRatio {
			best, bestRatio = candidate, r
		}
	}
	if best == "" || bestRatio < m.threshold {
		return "", domain.NewValidationError("nature", nature, "does not match any known road nature")
	}
	return best, nil
}

// similarity is the Ratcliff/Obershelp ratio 2*M/T over the characters of a
// and b, where M is the number of matched characters and T the total length.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
