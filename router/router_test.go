package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChallaYogeswar/agentforge/core"
	"github.com/ChallaYogeswar/agentforge/memory"
	"github.com/ChallaYogeswar/agentforge/router"
)

type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

type stubIndex struct {
	mu       sync.Mutex
	hits     []memory.Hit
	upserted []string
}

func (s *stubIndex) Upsert(_ context.Context, _, id string, _ []float32, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, id)
	return nil
}

func (s *stubIndex) Query(_ context.Context, _ string, _ []float32, k int) ([]memory.Hit, error) {
	if k < len(s.hits) {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

func (s *stubIndex) Delete(_ context.Context, _, _ string) error { return nil }
func (s *stubIndex) Close() error                                { return nil }

type stubLog struct {
	mu        sync.Mutex
	decisions []core.RouteDecision
	last      string
}

func (s *stubLog) InsertDecision(_ context.Context, d core.RouteDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *stubLog) LastHandlerForSession(_ context.Context, _ string) (string, error) {
	return s.last, nil
}

type stubClassifier struct {
	reply string
	err   error
	calls int
}

func (s *stubClassifier) Classify(_ context.Context, _ string, _ []core.CatalogEntry) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type noopHandler struct{ id string }

func (h *noopHandler) ID() string          { return h.id }
func (h *noopHandler) Description() string { return h.id + " handler" }
func (h *noopHandler) Handle(_ context.Context, _ *core.Request, _ *core.ContextBundle) (*core.Response, *core.MemoryDelta, error) {
	return &core.Response{Text: "ok", HandlerID: h.id}, nil, nil
}

func newRegistry(t *testing.T, ids ...string) *core.Registry {
	t.Helper()
	reg := core.NewRegistry()
	for _, id := range ids {
		require.NoError(t, reg.Register(&noopHandler{id: id}))
	}
	return reg
}

func TestRoute_DirectPathSkipsClassifier(t *testing.T) {
	reg := newRegistry(t, "content", "email", "prompt")
	index := &stubIndex{hits: []memory.Hit{
		{ID: "x1", Similarity: 0.93, Metadata: map[string]string{"handler_id": "content"}},
		{ID: "x2", Similarity: 0.88, Metadata: map[string]string{"handler_id": "content"}},
		{ID: "x3", Similarity: 0.41, Metadata: map[string]string{"handler_id": "email"}},
	}}
	decisions := &stubLog{}
	classifier := &stubClassifier{reply: "email"}

	r := router.New(reg, &stubEmbedder{}, index, decisions, classifier)
	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "tailor my resume"})

	require.NoError(t, err)
	assert.Equal(t, "content", d.HandlerID)
	assert.Equal(t, core.RouteDirect, d.Method)
	assert.GreaterOrEqual(t, d.Confidence, 0.80)
	assert.Zero(t, classifier.calls, "direct path must not call generation")
	require.Len(t, decisions.decisions, 1, "decision must be persisted")
}

func TestRoute_LowSimilarityFallsBack(t *testing.T) {
	reg := newRegistry(t, "content", "email", "prompt")
	index := &stubIndex{hits: []memory.Hit{
		{ID: "x1", Similarity: 0.22, Metadata: map[string]string{"handler_id": "content"}},
		{ID: "x2", Similarity: 0.18, Metadata: map[string]string{"handler_id": "prompt"}},
	}}
	decisions := &stubLog{}
	classifier := &stubClassifier{reply: "email"}

	r := router.New(reg, &stubEmbedder{}, index, decisions, classifier)
	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "do something clever with my files"})

	require.NoError(t, err)
	assert.Equal(t, "email", d.HandlerID)
	assert.Equal(t, core.RouteFallback, d.Method)
	assert.Equal(t, 1, classifier.calls)
}

func TestRoute_UnknownClassifierReply(t *testing.T) {
	reg := newRegistry(t, "content", "email")
	decisions := &stubLog{}
	classifier := &stubClassifier{reply: "unknown_tool"}

	r := router.New(reg, &stubEmbedder{}, &stubIndex{}, decisions, classifier)
	_, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "???"})

	require.ErrorIs(t, err, core.ErrUnknownHandler)
	assert.Empty(t, decisions.decisions, "failed routes are not persisted")
}

func TestRoute_EmbedderDownSurfacesTypedError(t *testing.T) {
	reg := newRegistry(t, "content")
	classifier := &stubClassifier{reply: "content"}

	r := router.New(reg, &stubEmbedder{fail: true}, &stubIndex{}, &stubLog{}, classifier)
	_, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "hi"})

	require.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Zero(t, classifier.calls, "the caller decides whether to fall back")
}

func TestRoute_TieBreakPrefersSessionContinuity(t *testing.T) {
	reg := newRegistry(t, "content", "email")
	index := &stubIndex{hits: []memory.Hit{
		{ID: "x1", Similarity: 0.90, Metadata: map[string]string{"handler_id": "content"}},
		{ID: "x2", Similarity: 0.89, Metadata: map[string]string{"handler_id": "email"}},
	}}
	decisions := &stubLog{last: "email"}

	r := router.New(reg, &stubEmbedder{}, index, decisions, &stubClassifier{})
	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "check this"})

	require.NoError(t, err)
	assert.Equal(t, "email", d.HandlerID, "continuity should win within epsilon")
	assert.Equal(t, core.RouteDirect, d.Method)
}

func TestRoute_TieBreakFallsBackToLexicalOrder(t *testing.T) {
	reg := newRegistry(t, "content", "email")
	index := &stubIndex{hits: []memory.Hit{
		{ID: "x1", Similarity: 0.90, Metadata: map[string]string{"handler_id": "email"}},
		{ID: "x2", Similarity: 0.89, Metadata: map[string]string{"handler_id": "content"}},
	}}
	decisions := &stubLog{} // fresh session, no continuity

	r := router.New(reg, &stubEmbedder{}, index, decisions, &stubClassifier{})
	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "check this"})

	require.NoError(t, err)
	assert.Equal(t, "content", d.HandlerID)
}

func TestRoute_StaleExemplarsIgnored(t *testing.T) {
	reg := newRegistry(t, "email")
	index := &stubIndex{hits: []memory.Hit{
		{ID: "x1", Similarity: 0.95, Metadata: map[string]string{"handler_id": "removed"}},
		{ID: "x2", Similarity: 0.85, Metadata: map[string]string{"handler_id": "email"}},
	}}

	r := router.New(reg, &stubEmbedder{}, index, &stubLog{}, &stubClassifier{reply: "email"})
	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "triage inbox"})

	require.NoError(t, err)
	assert.Equal(t, "email", d.HandlerID)
	assert.Equal(t, core.RouteDirect, d.Method)
}

func TestRouteFallback_LearnsExemplarWhenEnabled(t *testing.T) {
	reg := newRegistry(t, "email")
	index := &stubIndex{}
	classifier := &stubClassifier{reply: "email"}

	cfg := *router.DefaultConfig
	cfg.LearnFromFallback = true
	r := router.New(reg, &stubEmbedder{}, index, &stubLog{}, classifier, router.WithConfig(&cfg))

	d, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "sort my messages"})

	require.NoError(t, err)
	assert.Equal(t, core.RouteFallback, d.Method)
	assert.Len(t, index.upserted, 1, "confirmed fallback should be learned as an exemplar")
}

func TestRouteFallback_NoClassifierConfigured(t *testing.T) {
	reg := newRegistry(t, "email")

	r := router.New(reg, &stubEmbedder{}, &stubIndex{}, &stubLog{}, nil)
	_, err := r.Route(context.Background(), &core.Request{ID: "r1", SessionID: "s1", Text: "anything"})

	require.ErrorIs(t, err, core.ErrRoutingUndecided)
}

func TestSeedExemplars_StableIDs(t *testing.T) {
	index := &stubIndex{}
	exemplars := []router.IntentExemplar{
		{HandlerID: "email", Text: "inbox"},
		{HandlerID: "email", Text: "urgent"},
	}

	require.NoError(t, router.SeedExemplars(context.Background(), index, &stubEmbedder{}, exemplars))
	require.NoError(t, router.SeedExemplars(context.Background(), index, &stubEmbedder{}, exemplars))

	require.Len(t, index.upserted, 4)
	assert.Equal(t, index.upserted[0], index.upserted[2], "reseeding must reuse ids")
	assert.Equal(t, index.upserted[1], index.upserted[3])
}
