// Package identity matches face embeddings against enrolled identities.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// EmbeddingDim is the expected face embedding dimension.
const EmbeddingDim = 512

// ErrInvalidEmbedding is returned for embeddings that cannot be
// L2-normalized (zero vectors) or have the wrong dimension.
var ErrInvalidEmbedding = errors.New("identity: invalid embedding")

// Identity is an enrolled subject. Immutable once loaded for a session.
type Identity struct {
	ID         string      `json:"id"`
	Name       string      `json:"name,omitempty"`
	Embeddings [][]float32 `json:"embeddings"`
}

// LoadFile reads enrolled identities from a JSON file.
// The enrollment store is an external collaborator; this is a one-shot
// read at startup, hot-reload is not supported.
func LoadFile(path string) ([]Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read enrollment: %w", err)
	}
	var ids []Identity
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("identity: parse enrollment: %w", err)
	}
	for i := range ids {
		if ids[i].ID == "" {
			return nil, fmt.Errorf("identity: enrollment entry %d has no id", i)
		}
		if len(ids[i].Embeddings) == 0 {
			return nil, fmt.Errorf("identity: %s has no reference embeddings", ids[i].ID)
		}
		for _, e := range ids[i].Embeddings {
			if len(e) != EmbeddingDim {
				return nil, fmt.Errorf("identity: %s has an embedding of dimension %d, want %d",
					ids[i].ID, len(e), EmbeddingDim)
			}
		}
	}
	return ids, nil
}
