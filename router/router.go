// Package router implements semantic intent routing: a similarity fast path
// over seeded intent exemplars, with a generation-backed classifier fallback
// when similarity alone cannot decide.
package router

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ChallaYogeswar/agentforge/core"
	"github.com/ChallaYogeswar/agentforge/memory"
)

// DecisionLog persists route decisions and answers the continuity tie-break.
// The SQLite store implements it.
type DecisionLog interface {
	InsertDecision(ctx context.Context, d core.RouteDecision) error

	// LastHandlerForSession returns the handler of the session's most recent
	// decision, or "" when the session has none.
	LastHandlerForSession(ctx context.Context, sessionID string) (string, error)
}

// Config holds router tuning knobs.
type Config struct {
	// TopK is how many exemplar neighbors the fast path considers.
	TopK int

	// DirectThreshold is the minimum confidence for a direct decision.
	DirectThreshold float64

	// TieBreakEpsilon is how close two handlers' scores must be to count as
	// tied.
	TieBreakEpsilon float64

	// LearnFromFallback appends the request text as a new exemplar for the
	// handler a fallback decision chose. Off by default: exemplar growth is
	// an explicit policy, not an inferred behavior.
	LearnFromFallback bool
}

// DefaultConfig returns the default router tuning.
var DefaultConfig = &Config{
	TopK:            5,
	DirectThreshold: 0.80,
	TieBreakEpsilon: 0.02,
}

// Router decides which handler serves a request.
type Router struct {
	registry   *core.Registry
	embedder   memory.Embedder
	index      memory.VectorIndex
	decisions  DecisionLog
	classifier Classifier
	config     *Config
	logger     *log.Logger
}

// Option configures the router.
type Option func(*Router)

// WithConfig overrides the default tuning.
func WithConfig(cfg *Config) Option {
	return func(r *Router) {
		if cfg != nil {
			r.config = cfg
		}
	}
}

// WithLogger sets the router's logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router. classifier may be nil, in which case every request
// that misses the direct threshold fails with core.ErrRoutingUndecided.
func New(registry *core.Registry, embedder memory.Embedder, index memory.VectorIndex, decisions DecisionLog, classifier Classifier, opts ...Option) *Router {
	r := &Router{
		registry:   registry,
		embedder:   embedder,
		index:      index,
		decisions:  decisions,
		classifier: classifier,
		config:     DefaultConfig,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decides a handler for the request. The direct path runs on vector
// math alone; only when its confidence misses the threshold does the
// generation classifier get called. Every returned decision has already been
// persisted to the decision log.
//
// Embedding failure surfaces core.ErrEmbeddingUnavailable without trying the
// classifier: the caller owns that degradation choice (RouteFallback still
// works without embeddings).
func (r *Router) Route(ctx context.Context, req *core.Request) (*core.RouteDecision, error) {
	vec, err := r.embedder.Embed(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingUnavailable, err)
	}

	hits, err := r.index.Query(ctx, ExemplarCollection, vec, r.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: query exemplars: %v", core.ErrMemoryStoreUnavailable, err)
	}

	handlerID, confidence := r.tally(ctx, req.SessionID, hits)
	if handlerID != "" && confidence >= r.config.DirectThreshold {
		decision := &core.RouteDecision{
			RequestID:  req.ID,
			SessionID:  req.SessionID,
			HandlerID:  handlerID,
			Confidence: confidence,
			Method:     core.RouteDirect,
			Timestamp:  time.Now().UTC(),
		}
		if err := r.persist(ctx, decision); err != nil {
			return nil, err
		}
		r.logger.Debug("routed direct", "request_id", req.ID, "handler", handlerID, "confidence", confidence)
		return decision, nil
	}

	r.logger.Debug("below direct threshold, falling back",
		"request_id", req.ID, "best", handlerID, "confidence", confidence)
	return r.RouteFallback(ctx, req, vec)
}

// RouteFallback classifies with the generation capability, skipping the
// similarity path. Callers invoke it directly when embeddings are down.
// vec is the request embedding when available, nil otherwise; it is only
// used for exemplar learning.
func (r *Router) RouteFallback(ctx context.Context, req *core.Request, vec []float32) (*core.RouteDecision, error) {
	if r.classifier == nil {
		return nil, fmt.Errorf("%w: no fallback classifier configured", core.ErrRoutingUndecided)
	}

	handlerID, err := r.classifier.Classify(ctx, req.Text, r.registry.Catalog())
	if err != nil {
		return nil, err
	}
	if !r.registry.Known(handlerID) {
		return nil, fmt.Errorf("%w: classifier chose %q", core.ErrUnknownHandler, handlerID)
	}

	decision := &core.RouteDecision{
		RequestID: req.ID,
		SessionID: req.SessionID,
		HandlerID: handlerID,
		Method:    core.RouteFallback,
		Timestamp: time.Now().UTC(),
	}
	if err := r.persist(ctx, decision); err != nil {
		return nil, err
	}
	r.logger.Debug("routed via fallback", "request_id", req.ID, "handler", handlerID)

	if r.config.LearnFromFallback && vec != nil {
		r.learnExemplar(ctx, handlerID, req.Text, vec)
	}
	return decision, nil
}

// tally aggregates exemplar neighbor votes weighted by similarity. The
// handler with the highest vote sum wins; its confidence is its best single
// exemplar similarity. Handlers whose vote sums are within epsilon of the
// top are tied, broken by session continuity, then lexical order.
func (r *Router) tally(ctx context.Context, sessionID string, hits []memory.Hit) (string, float64) {
	votes := make(map[string]float64)
	best := make(map[string]float64)
	for _, hit := range hits {
		handlerID := hit.Metadata["handler_id"]
		if !r.registry.Known(handlerID) {
			// Stale exemplar from a removed handler.
			continue
		}
		votes[handlerID] += hit.Similarity
		if hit.Similarity > best[handlerID] {
			best[handlerID] = hit.Similarity
		}
	}
	if len(votes) == 0 {
		return "", 0
	}

	top := 0.0
	for _, v := range votes {
		if v > top {
			top = v
		}
	}

	tied := make([]string, 0, len(votes))
	for id, v := range votes {
		if top-v <= r.config.TieBreakEpsilon {
			tied = append(tied, id)
		}
	}
	sort.Strings(tied)

	winner := tied[0]
	if len(tied) > 1 {
		if last, err := r.decisions.LastHandlerForSession(ctx, sessionID); err == nil && last != "" {
			for _, id := range tied {
				if id == last {
					winner = id
					break
				}
			}
		}
	}
	return winner, best[winner]
}

func (r *Router) persist(ctx context.Context, d *core.RouteDecision) error {
	if err := r.decisions.InsertDecision(ctx, *d); err != nil {
		return fmt.Errorf("persist route decision: %w", err)
	}
	return nil
}

// learnExemplar records a fallback-confirmed phrasing as a new exemplar.
// Failures only log: routing already succeeded.
func (r *Router) learnExemplar(ctx context.Context, handlerID, text string, vec []float32) {
	meta := map[string]string{"handler_id": handlerID}
	if err := r.index.Upsert(ctx, ExemplarCollection, exemplarID(handlerID, text), vec, meta); err != nil {
		r.logger.Warn("failed to learn exemplar from fallback", "handler", handlerID, "err", err)
	}
}
