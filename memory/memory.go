package memory

import (
	"context"
	"time"

	"github.com/ChallaYogeswar/agentforge/core"
)

// Embedder converts text to a fixed-length vector.
// Implementations: mock (testing), cache (ristretto decorator), onnx (local
// all-MiniLM-L6-v2, build tag onnx). Embeddings must be deterministic for
// identical input within a model version; failures are typed errors, never a
// silent zero vector.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Hit is one nearest-neighbor result from a vector index query, ordered by
// similarity (highest first).
type Hit struct {
	ID         string
	Similarity float64
	Metadata   map[string]string
}

// VectorIndex stores vectors by identifier within named collections and
// answers nearest-neighbor queries. It backs both intent exemplars and
// long-term memory retrieval.
// Implementations: chromem (embedded, pure Go).
type VectorIndex interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error

	// Query returns up to k hits ordered by similarity. An empty or unknown
	// collection yields no hits, not an error.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error)

	Delete(ctx context.Context, collection, id string) error

	Close() error
}

// SessionState is the session tier record: the bounded turn window plus the
// working memory scoped to this session. Working memory living inside the
// session record is what guarantees it can never outlive or orphan its
// session.
type SessionState struct {
	SessionID string            `json:"session_id"`
	OwnerID   string            `json:"owner_id"`
	Turns     []core.Turn       `json:"turns"`
	Working   map[string]string `json:"working,omitempty"`
	Artifacts []string          `json:"artifacts,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// SessionStore holds session-tier state in fast storage. Sessions may survive
// process restarts (redis) but are not required to (inmem).
// Get returns core.ErrSessionNotFound for unknown sessions.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*SessionState, error)
	Put(ctx context.Context, state *SessionState) error
	Delete(ctx context.Context, sessionID string) error

	// SessionIDs lists known sessions for expiry scans.
	SessionIDs(ctx context.Context) ([]string, error)

	Close() error
}

// LongTermStore persists the non-vector half of long-term entries. The SQLite
// store implements it alongside the route decision log.
type LongTermStore interface {
	InsertEntry(ctx context.Context, entry core.LongTermEntry) error
	DeleteEntry(ctx context.Context, id string) error

	// GetEntries resolves index hits back to full records. Missing ids are
	// skipped, not errors: the index may briefly lead the store during
	// compensation.
	GetEntries(ctx context.Context, ids []string) ([]core.LongTermEntry, error)

	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// EvictionCandidates returns up to n entries for ownerID ordered
	// least-recently-retrieved first, ties broken by oldest created_at.
	EvictionCandidates(ctx context.Context, ownerID string, n int) ([]core.LongTermEntry, error)

	// MarkRetrieved bumps last_retrieved_at for the given entries.
	MarkRetrieved(ctx context.Context, ids []string, at time.Time) error
}

// Config holds memory manager configuration.
type Config struct {
	// SessionWindow is the number of recent turns retained per session.
	SessionWindow int

	// SessionIdleTimeout is how long a session may stay idle before
	// ExpireSessions removes it together with its working memory.
	SessionIdleTimeout time.Duration

	// RetrievalTopM is how many long-term entries GetContext retrieves.
	RetrievalTopM int

	// MaxEntriesPerOwner caps long-term entries per owner. 0 = unbounded.
	MaxEntriesPerOwner int
}

// DefaultConfig returns sensible defaults for local use.
var DefaultConfig = &Config{
	SessionWindow:      20,
	SessionIdleTimeout: 30 * time.Minute,
	RetrievalTopM:      5,
	MaxEntriesPerOwner: 0,
}
