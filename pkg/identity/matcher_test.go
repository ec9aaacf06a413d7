package identity

import (
	"errors"
	"math"
	"testing"
)

// axisEmbedding returns a unit vector along the given axis.
func axisEmbedding(axis int) []float32 {
	v := make([]float32, EmbeddingDim)
	v[axis] = 1
	return v
}

// blendEmbedding returns a vector with the given components on axes 0
// and 1. Cosine similarity against axisEmbedding(0) is a/|v|.
func blendEmbedding(a, b float32) []float32 {
	v := make([]float32, EmbeddingDim)
	v[0] = a
	v[1] = b
	return v
}

func TestMatcherMatch(t *testing.T) {
	identities := []Identity{
		{ID: "alice", Embeddings: [][]float32{axisEmbedding(0)}},
		{ID: "bob", Embeddings: [][]float32{axisEmbedding(1)}},
	}
	m := NewMatcher(identities, 0.5)

	// Mostly off-axis probe: cosine 0.3/sqrt(1.09) ~ 0.29 against alice,
	// 0 against bob.
	weak := make([]float32, EmbeddingDim)
	weak[0] = 0.3
	weak[2] = 1

	tests := []struct {
		name      string
		embedding []float32
		heldID    string
		wantID    string
		wantOK    bool
		wantScore float64
	}{
		{
			name:      "exact match",
			embedding: axisEmbedding(0),
			wantID:    "alice",
			wantOK:    true,
			wantScore: 1.0,
		},
		{
			name:      "close match above threshold",
			embedding: blendEmbedding(0.8, 0.6),
			wantID:    "alice",
			wantOK:    true,
			wantScore: 0.8,
		},
		{
			name:      "best below threshold",
			embedding: weak,
			wantOK:    false,
		},
		{
			name:      "orthogonal to everything",
			embedding: axisEmbedding(2),
			wantOK:    false,
		},
		{
			name:      "scale invariant",
			embedding: blendEmbedding(80, 60),
			wantID:    "alice",
			wantOK:    true,
			wantScore: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(tt.embedding, tt.heldID)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got.OK != tt.wantOK {
				t.Fatalf("Match() OK = %v, want %v", got.OK, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if got.Identity.ID != tt.wantID {
				t.Errorf("Match() identity = %q, want %q", got.Identity.ID, tt.wantID)
			}
			if math.Abs(got.Score-tt.wantScore) > 1e-6 {
				t.Errorf("Match() score = %f, want %f", got.Score, tt.wantScore)
			}
		})
	}
}

func TestMatcherTieBreakTowardHeld(t *testing.T) {
	// Two identities enrolled with the same reference embedding score
	// identically against any probe. The held identity must win.
	ref := axisEmbedding(0)
	identities := []Identity{
		{ID: "first", Embeddings: [][]float32{ref}},
		{ID: "second", Embeddings: [][]float32{ref}},
	}
	m := NewMatcher(identities, 0.5)

	got, err := m.Match(axisEmbedding(0), "second")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !got.OK {
		t.Fatal("Match() OK = false, want true")
	}
	if got.Identity.ID != "second" {
		t.Errorf("Match() identity = %q, want held identity %q", got.Identity.ID, "second")
	}

	// Without a held identity the first enrolled wins.
	got, err = m.Match(axisEmbedding(0), "")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got.Identity.ID != "first" {
		t.Errorf("Match() identity = %q, want %q", got.Identity.ID, "first")
	}
}

func TestMatcherInvalidEmbedding(t *testing.T) {
	m := NewMatcher([]Identity{
		{ID: "alice", Embeddings: [][]float32{axisEmbedding(0)}},
	}, 0.5)

	tests := []struct {
		name      string
		embedding []float32
	}{
		{"zero vector", make([]float32, EmbeddingDim)},
		{"wrong dimension", make([]float32, 128)},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Match(tt.embedding, "")
			if !errors.Is(err, ErrInvalidEmbedding) {
				t.Errorf("Match() error = %v, want ErrInvalidEmbedding", err)
			}
		})
	}
}

func TestMatcherSkipsBadReferenceEmbeddings(t *testing.T) {
	// A corrupt reference must never match; a good sibling still does.
	identities := []Identity{
		{ID: "alice", Embeddings: [][]float32{
			make([]float32, EmbeddingDim), // zero vector
			axisEmbedding(0),
		}},
	}
	m := NewMatcher(identities, 0.5)

	got, err := m.Match(axisEmbedding(0), "")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if !got.OK || got.Identity.ID != "alice" {
		t.Errorf("Match() = %+v, want OK match on alice", got)
	}
}
