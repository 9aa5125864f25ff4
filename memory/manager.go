package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ChallaYogeswar/agentforge/core"
)

// Manager coordinates the three memory tiers. It is the single mutation path
// for each tier: reads go through GetContext, writes go through the named
// operations below.
type Manager struct {
	sessions SessionStore
	store    LongTermStore
	index    VectorIndex
	embedder Embedder
	config   *Config
	logger   *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a memory manager over the given backends.
func NewManager(sessions SessionStore, store LongTermStore, index VectorIndex, embedder Embedder, config *Config, logger *log.Logger) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		sessions: sessions,
		store:    store,
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing operations for one session.
// Entries are dropped again when ExpireSessions removes the session, so the
// map tracks live sessions rather than every session ever seen.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// EnsureSession creates the session record if missing and binds its owner.
func (m *Manager) EnsureSession(ctx context.Context, sessionID, ownerID string) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, core.ErrSessionNotFound) {
			return fmt.Errorf("%w: get session: %v", core.ErrMemoryStoreUnavailable, err)
		}
		now := time.Now().UTC()
		st = &SessionState{
			SessionID:    sessionID,
			OwnerID:      ownerID,
			Working:      make(map[string]string),
			CreatedAt:    now,
			LastActiveAt: now,
		}
		return m.sessions.Put(ctx, st)
	}
	if st.OwnerID == "" && ownerID != "" {
		st.OwnerID = ownerID
		return m.sessions.Put(ctx, st)
	}
	return nil
}

// GetContext returns the merged memory snapshot for one request: the most
// recent session turns, the active working memory, and the top-M long-term
// entries most relevant to query. It is read-only and side-effect free; when
// the embedder or vector index is unavailable it degrades to session and
// working memory instead of blocking the handler.
func (m *Manager) GetContext(ctx context.Context, sessionID, ownerID, query string) (*core.ContextBundle, error) {
	bundle := &core.ContextBundle{SessionID: sessionID}

	l := m.sessionLock(sessionID)
	l.Lock()
	st, err := m.sessions.Get(ctx, sessionID)
	if err == nil {
		bundle.Turns = append([]core.Turn(nil), st.Turns...)
		if len(st.Working) > 0 {
			bundle.Working = make(map[string]string, len(st.Working))
			for k, v := range st.Working {
				bundle.Working[k] = v
			}
		}
		bundle.Artifacts = append([]string(nil), st.Artifacts...)
		if ownerID == "" {
			ownerID = st.OwnerID
		}
	}
	l.Unlock()

	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: get session: %v", core.ErrMemoryStoreUnavailable, err)
	}

	if query == "" || ownerID == "" || m.embedder == nil || m.index == nil {
		return bundle, nil
	}

	entries, err := m.retrieveLongTerm(ctx, ownerID, query)
	if err != nil {
		m.logger.Warn("long-term retrieval degraded", "session", sessionID, "error", err)
		bundle.Degraded = true
		return bundle, nil
	}
	bundle.LongTerm = entries
	return bundle, nil
}

// retrieveLongTerm embeds query and resolves the nearest long-term entries
// for ownerID back to full records.
func (m *Manager) retrieveLongTerm(ctx context.Context, ownerID, query string) ([]core.RetrievedEntry, error) {
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	hits, err := m.index.Query(ctx, longTermCollection(ownerID), vector, m.config.RetrievalTopM)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %v", core.ErrMemoryStoreUnavailable, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	similarity := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		similarity[h.ID] = h.Similarity
	}

	records, err := m.store.GetEntries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: get entries: %v", core.ErrMemoryStoreUnavailable, err)
	}
	byID := make(map[string]core.LongTermEntry, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	// Preserve similarity order from the index.
	out := make([]core.RetrievedEntry, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, core.RetrievedEntry{Entry: rec, Similarity: h.Similarity})
	}
	return out, nil
}

// AppendTurn appends a turn to the session window. The window is bounded to
// SessionWindow turns, oldest evicted first. Timestamps are made strictly
// monotonic within the session so submission order is observable even under
// concurrent dispatch.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn core.Turn) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.getOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if n := len(st.Turns); n > 0 {
		if last := st.Turns[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}
	turn.Timestamp = ts

	st.Turns = append(st.Turns, turn)
	if w := m.config.SessionWindow; w > 0 && len(st.Turns) > w {
		st.Turns = append([]core.Turn(nil), st.Turns[len(st.Turns)-w:]...)
	}
	st.LastActiveAt = time.Now().UTC()

	return m.putSession(ctx, st)
}

// UpdateWorking sets one key in the session's working memory.
func (m *Manager) UpdateWorking(ctx context.Context, sessionID, key, value string) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.getOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.Working == nil {
		st.Working = make(map[string]string)
	}
	st.Working[key] = value
	st.LastActiveAt = time.Now().UTC()
	return m.putSession(ctx, st)
}

// AddArtifact appends an intermediate artifact to the session's working
// memory.
func (m *Manager) AddArtifact(ctx context.Context, sessionID, artifact string) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.getOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	st.Artifacts = append(st.Artifacts, artifact)
	st.LastActiveAt = time.Now().UTC()
	return m.putSession(ctx, st)
}

// ClearWorking resets working memory. Mandatory when a task completes or a
// session is closed.
func (m *Manager) ClearWorking(ctx context.Context, sessionID string) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	st, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: get session: %v", core.ErrMemoryStoreUnavailable, err)
	}
	st.Working = make(map[string]string)
	st.Artifacts = nil
	st.LastActiveAt = time.Now().UTC()
	return m.putSession(ctx, st)
}

// PromoteToLongTerm embeds text and writes a long-term entry to both the
// structured store and the vector index. The pair is atomic from the
// caller's point of view: if the vector write fails the structured row is
// deleted again and the error is core.ErrPromotionPartialFailure.
//
// Promotion is a cross-session operation and takes no session lock; the
// embedding call never happens under one.
func (m *Manager) PromoteToLongTerm(ctx context.Context, ownerID string, p core.Promotion) (string, error) {
	vector, err := m.embedder.Embed(ctx, p.Text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	now := time.Now().UTC()
	entry := core.LongTermEntry{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Text:            p.Text,
		HandlerID:       p.HandlerID,
		Tags:            p.Tags,
		Metadata:        p.Metadata,
		CreatedAt:       now,
		LastRetrievedAt: now,
	}

	if err := m.store.InsertEntry(ctx, entry); err != nil {
		return "", fmt.Errorf("%w: insert entry: %v", core.ErrMemoryStoreUnavailable, err)
	}

	meta := map[string]string{
		"owner_id":   ownerID,
		"handler_id": p.HandlerID,
		"created_at": now.Format(time.RFC3339Nano),
	}
	if err := m.index.Upsert(ctx, longTermCollection(ownerID), entry.ID, vector, meta); err != nil {
		// Compensate: remove the structured row so no half-written entry is
		// ever visible.
		if delErr := m.store.DeleteEntry(ctx, entry.ID); delErr != nil {
			m.logger.Error("compensating delete failed", "entry", entry.ID, "error", delErr)
		}
		return "", fmt.Errorf("%w: upsert vector: %v", core.ErrPromotionPartialFailure, err)
	}

	m.logger.Info("promoted to long-term memory", "entry", entry.ID, "owner", ownerID)

	if m.config.MaxEntriesPerOwner > 0 {
		if _, err := m.EnforceRetention(ctx, ownerID); err != nil {
			m.logger.Warn("retention enforcement failed", "owner", ownerID, "error", err)
		}
	}

	return entry.ID, nil
}

// MarkRetrieved records that the given long-term entries were served to a
// handler. Kept separate from GetContext so reads stay side-effect free; the
// dispatcher calls it after a successful request.
func (m *Manager) MarkRetrieved(ctx context.Context, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	if err := m.store.MarkRetrieved(ctx, entryIDs, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: mark retrieved: %v", core.ErrMemoryStoreUnavailable, err)
	}
	return nil
}

// ExpireSessions removes every session idle longer than SessionIdleTimeout,
// together with its working memory. Long-term entries are never touched.
// Returns the number of sessions removed.
func (m *Manager) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.sessions.SessionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %v", core.ErrMemoryStoreUnavailable, err)
	}

	removed := 0
	for _, id := range ids {
		l := m.sessionLock(id)
		l.Lock()
		st, err := m.sessions.Get(ctx, id)
		if err != nil {
			l.Unlock()
			continue
		}
		if now.Sub(st.LastActiveAt) <= m.config.SessionIdleTimeout {
			l.Unlock()
			continue
		}
		if err := m.sessions.Delete(ctx, id); err != nil {
			l.Unlock()
			return removed, fmt.Errorf("%w: delete session: %v", core.ErrMemoryStoreUnavailable, err)
		}
		// Drop the lock entry with the session. A writer racing the sweep
		// recreates the session under a fresh lock, which is the same as a
		// brand-new session.
		m.mu.Lock()
		delete(m.locks, id)
		m.mu.Unlock()
		l.Unlock()
		removed++
		m.logger.Info("expired idle session", "session", id, "idle", now.Sub(st.LastActiveAt))
	}
	return removed, nil
}

// EnforceRetention evicts long-term entries for ownerID beyond
// MaxEntriesPerOwner, least-recently-retrieved first, ties broken by oldest
// created_at. Returns the number of entries evicted.
func (m *Manager) EnforceRetention(ctx context.Context, ownerID string) (int, error) {
	max := m.config.MaxEntriesPerOwner
	if max <= 0 {
		return 0, nil
	}

	count, err := m.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: count entries: %v", core.ErrMemoryStoreUnavailable, err)
	}
	if count <= max {
		return 0, nil
	}

	candidates, err := m.store.EvictionCandidates(ctx, ownerID, count-max)
	if err != nil {
		return 0, fmt.Errorf("%w: eviction candidates: %v", core.ErrMemoryStoreUnavailable, err)
	}

	evicted := 0
	for _, entry := range candidates {
		// Vector first: a row without a vector is unreachable by retrieval,
		// the reverse would leave a dangling hit.
		if err := m.index.Delete(ctx, longTermCollection(ownerID), entry.ID); err != nil {
			m.logger.Warn("vector delete failed during eviction", "entry", entry.ID, "error", err)
		}
		if err := m.store.DeleteEntry(ctx, entry.ID); err != nil {
			return evicted, fmt.Errorf("%w: delete entry: %v", core.ErrMemoryStoreUnavailable, err)
		}
		evicted++
	}
	if evicted > 0 {
		m.logger.Info("evicted long-term entries", "owner", ownerID, "count", evicted)
	}
	return evicted, nil
}

// ApplyDelta applies a handler's memory delta through the named write
// operations, in a fixed order: turns, working-set updates, artifacts,
// clear, promotions.
func (m *Manager) ApplyDelta(ctx context.Context, sessionID, ownerID string, delta *core.MemoryDelta) error {
	if delta == nil {
		return nil
	}

	for _, turn := range delta.Turns {
		if err := m.AppendTurn(ctx, sessionID, turn); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(delta.WorkingSet))
	for k := range delta.WorkingSet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.UpdateWorking(ctx, sessionID, k, delta.WorkingSet[k]); err != nil {
			return err
		}
	}

	for _, a := range delta.Artifacts {
		if err := m.AddArtifact(ctx, sessionID, a); err != nil {
			return err
		}
	}

	if delta.ClearWorking {
		if err := m.ClearWorking(ctx, sessionID); err != nil {
			return err
		}
	}

	for _, p := range delta.Promotions {
		if _, err := m.PromoteToLongTerm(ctx, ownerID, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the session store and vector index.
func (m *Manager) Close() error {
	var first error
	if m.sessions != nil {
		if err := m.sessions.Close(); err != nil {
			first = err
		}
	}
	if m.index != nil {
		if err := m.index.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// getOrCreate must be called with the session lock held.
func (m *Manager) getOrCreate(ctx context.Context, sessionID string) (*SessionState, error) {
	st, err := m.sessions.Get(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: get session: %v", core.ErrMemoryStoreUnavailable, err)
	}
	now := time.Now().UTC()
	return &SessionState{
		SessionID:    sessionID,
		Working:      make(map[string]string),
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

func (m *Manager) putSession(ctx context.Context, st *SessionState) error {
	if err := m.sessions.Put(ctx, st); err != nil {
		return fmt.Errorf("%w: put session: %v", core.ErrMemoryStoreUnavailable, err)
	}
	return nil
}

// longTermCollection names the per-owner vector collection.
func longTermCollection(ownerID string) string {
	if ownerID == "" {
		return "ltm_global"
	}
	return "ltm_" + ownerID
}
