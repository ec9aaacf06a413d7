package identity

import (
	"fmt"
	"math"
)

// tieEpsilon is the score margin within which two identities are
// considered indistinguishable. Inside it the previously held identity
// wins, so near-duplicate enrollments cannot make the lock oscillate.
const tieEpsilon = 1e-3

// Match is the result of comparing one embedding against the enrollment set.
type Match struct {
	Identity *Identity
	Score    float64
	OK       bool // false when the best score is below the threshold
}

// Matcher scores detection embeddings against enrolled identities.
// It is a pure function of its inputs; safe for concurrent use.
type Matcher struct {
	identities []Identity
	threshold  float64
}

// NewMatcher creates a matcher over the given enrollment set.
func NewMatcher(identities []Identity, threshold float64) *Matcher {
	return &Matcher{identities: identities, threshold: threshold}
}

// Match returns the best-matching identity for the embedding, or OK=false
// if nothing scores above the threshold. heldID is the currently locked
// identity ("" when none); within tieEpsilon of the best score it is
// preferred for stability.
func (m *Matcher) Match(embedding []float32, heldID string) (Match, error) {
	norm, err := normalize(embedding)
	if err != nil {
		return Match{}, err
	}

	best := Match{Score: -1}
	var heldScore float64
	var held *Identity

	for i := range m.identities {
		id := &m.identities[i]
		score := m.bestScore(norm, id)
		if score > best.Score {
			best = Match{Identity: id, Score: score}
		}
		if id.ID == heldID {
			heldScore = score
			held = id
		}
	}

	if best.Identity == nil || best.Score < m.threshold {
		return Match{Score: best.Score}, nil
	}

	// Tie-break toward the held identity
	if held != nil && held != best.Identity &&
		heldScore >= m.threshold && best.Score-heldScore <= tieEpsilon {
		return Match{Identity: held, Score: heldScore, OK: true}, nil
	}

	best.OK = true
	return best, nil
}

// bestScore returns the highest similarity across an identity's
// reference embeddings.
func (m *Matcher) bestScore(norm []float32, id *Identity) float64 {
	best := -1.0
	for _, ref := range id.Embeddings {
		refNorm, err := normalize(ref)
		if err != nil {
			continue // a bad reference embedding never matches
		}
		if s := dot(norm, refNorm); s > best {
			best = s
		}
	}
	return best
}

// normalize returns the L2-normalized copy of v.
func normalize(v []float32) ([]float32, error) {
	if len(v) != EmbeddingDim {
		return nil, fmt.Errorf("%w: dimension %d, want %d", ErrInvalidEmbedding, len(v), EmbeddingDim)
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, nil
}

// dot computes the cosine similarity of two unit vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
