// Package chromem adapts chromem-go, a pure Go embedded vector database, to
// the memory.VectorIndex interface. Collections are created on demand: one
// for intent exemplars, one per long-term memory owner.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ChallaYogeswar/agentforge/memory"
)

// Index is a chromem-backed memory.VectorIndex.
type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// New creates an in-memory chromem index.
func New() (*Index, error) {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// NewPersistent creates a chromem index persisted under dir.
func NewPersistent(dir string) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent chromem db: %w", err)
	}
	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (i *Index) collection(name string) (*chromem.Collection, error) {
	i.mu.RLock()
	col, ok := i.collections[name]
	i.mu.RUnlock()
	if ok {
		return col, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if col, ok := i.collections[name]; ok {
		return col, nil
	}

	// Embeddings are provided by the caller, so no embedding func and the
	// default cosine distance.
	col, err := i.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	i.collections[name] = col
	return col, nil
}

// Upsert stores a vector under id in the named collection.
func (i *Index) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error {
	col, err := i.collection(collection)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: vector,
		Metadata:  metadata,
		// chromem requires non-empty content; the authoritative text lives
		// in the structured store.
		Content: id,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to k nearest neighbors ordered by similarity. Unknown or
// empty collections yield no hits.
func (i *Index) Query(ctx context.Context, collection string, vector []float32, k int) ([]memory.Hit, error) {
	col, err := i.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.Hit{
			ID:         r.ID,
			Similarity: float64(r.Similarity),
			Metadata:   r.Metadata,
		})
	}
	return hits, nil
}

// Delete removes a vector by id. Deleting from an unknown collection is a
// no-op.
func (i *Index) Delete(ctx context.Context, collection, id string) error {
	col, err := i.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close releases resources. Chromem keeps state in memory (or flushed to
// disk already), so nothing is held open.
func (i *Index) Close() error {
	return nil
}
