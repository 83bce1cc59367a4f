// Package selecter picks a poem that is not yet in the stored corpus.
package selecter

import (
	"iter"
	"math/rand/v2"

	"github.com/hyperifyio/poemscout/internal/extract"
)

// NewPoems drains candidates and returns the ones whose text is not in
// existing, in first-seen order. Duplicates within the batch are kept, so a
// text found by two rules weighs twice in a random pick.
func NewPoems(candidates iter.Seq[extract.Candidate], existing map[string]struct{}) []extract.Candidate {
	var out []extract.Candidate
	if candidates == nil {
		return out
	}
	for c := range candidates {
		if _, seen := existing[c.Text]; seen {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Selector chooses uniformly among new candidates.
type Selector struct {
	// Rand is optional; nil uses the global generator.
	Rand *rand.Rand
}

// Pick returns a random candidate not in existing, or false when there is none.
func (s Selector) Pick(candidates iter.Seq[extract.Candidate], existing map[string]struct{}) (extract.Candidate, bool) {
	fresh := NewPoems(candidates, existing)
	if len(fresh) == 0 {
		return extract.Candidate{}, false
	}
	return fresh[s.intN(len(fresh))], true
}

func (s Selector) intN(n int) int {
	if s.Rand != nil {
		return s.Rand.IntN(n)
	}
	return rand.IntN(n)
}
