// Package vector keeps an append-only similarity index of memory embeddings.
//
// Vectors are unit-normalized on the way in so that inner product equals
// cosine similarity. Storage and scoring are delegated to an embedded
// chromem-go collection; this package owns ordinal bookkeeping, the fixed
// dimensionality and the two-file on-disk format.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const (
	// IndexFile holds the exported chromem collection.
	IndexFile = "memory_index.gob"
	// MetadataFile holds dimension and ordered entries.
	MetadataFile = "memory_metadata.json"

	// MinSimilarity is the lowest score a search hit may have.
	MinSimilarity float32 = 0.3

	collectionName = "memories"
)

var (
	// ErrDimensionMismatch means a vector does not match the index dimension.
	// It is a configuration error and is never retried.
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	// ErrZeroVector means a vector has zero magnitude and cannot be normalized.
	ErrZeroVector = errors.New("vector: zero vector")
)

// Entry is the metadata attached to one indexed vector.
type Entry struct {
	ID       int64             `json:"id"`
	Content  string            `json:"content"`
	Category string            `json:"category"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Hit is a search result.
type Hit struct {
	Entry
	Ordinal    int
	Similarity float32
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	dir     string
	db      *chromem.DB
	col     *chromem.Collection
	dim     int
	entries []Entry
}

func newIndex(dir string) (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{dir: dir, db: db, col: col}, nil
}

// Dimension returns 0 until the first vector is added or loaded.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Entry returns the entry at ordinal i.
func (x *Index) Entry(i int) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.entries) {
		return Entry{}, false
	}
	return x.entries[i], true
}

// Dir returns the directory the index persists to.
func (x *Index) Dir() string {
	return x.dir
}

// Add normalizes vec and appends it with entry at the next ordinal.
// The first vector fixes the dimension of the index.
func (x *Index) Add(ctx context.Context, entry Entry, vec []float32) error {
	unit, err := Normalize(vec)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim != 0 && len(unit) != x.dim {
		return fmt.Errorf("%w: index has %d, got %d", ErrDimensionMismatch, x.dim, len(unit))
	}

	ordinal := len(x.entries)
	doc := chromem.Document{
		ID:        strconv.Itoa(ordinal),
		Content:   entry.Content,
		Embedding: unit,
		Metadata:  map[string]string{"category": entry.Category},
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	x.dim = len(unit)
	x.entries = append(x.entries, entry)
	return nil
}

// Search returns up to k hits ordered by similarity, highest first, with
// ties broken by insertion order. Hits below MinSimilarity are dropped.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	unit, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return nil, nil
	}
	if len(unit) != x.dim {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, x.dim, len(unit))
	}

	// Score everything so ties at the cut are resolved by ordinal rather
	// than by heap order. chromem rejects nResults larger than the collection.
	results, err := x.col.QueryEmbedding(ctx, unit, x.col.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < MinSimilarity {
			continue
		}
		ord, err := strconv.Atoi(r.ID)
		if err != nil || ord < 0 || ord >= len(x.entries) {
			continue
		}
		hits = append(hits, Hit{Entry: x.entries[ord], Ordinal: ord, Similarity: r.Similarity})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Normalize returns a unit-length copy of vec.
func Normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if len(vec) == 0 || sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}
