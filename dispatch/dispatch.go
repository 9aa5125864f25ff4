// Package dispatch runs the full request path: route, load context, invoke
// the handler, write memory back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ChallaYogeswar/agentforge/core"
	"github.com/ChallaYogeswar/agentforge/memory"
	"github.com/ChallaYogeswar/agentforge/router"
)

// Dispatcher wires the router, the memory manager, and the handler registry
// into a single request entrypoint.
type Dispatcher struct {
	registry *core.Registry
	router   *router.Router
	memory   *memory.Manager
	logger   *log.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a dispatcher.
func New(registry *core.Registry, rtr *router.Router, mgr *memory.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		router:   rtr,
		memory:   mgr,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is the outcome of one dispatched request.
type Result struct {
	Response *core.Response
	Decision *core.RouteDecision

	// Degraded is set when the request was served without long-term
	// retrieval or by the default handler after routing failed.
	Degraded bool
}

// Handle processes one request end to end:
//
//  1. Route it (direct, fallback, or degraded to the default handler).
//  2. Ensure the session exists and load the context bundle.
//  3. Invoke the chosen handler.
//  4. Append the user and assistant turns, apply the handler's memory delta,
//     and mark the retrieved long-term entries.
//
// Memory write-back failures after a successful handler run log and degrade
// rather than discard the response.
func (d *Dispatcher) Handle(ctx context.Context, req *core.Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("dispatch: missing session id")
	}

	decision, degraded, err := d.route(ctx, req)
	if err != nil {
		return nil, err
	}

	handler, ok := d.registry.Get(decision.HandlerID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownHandler, decision.HandlerID)
	}

	if err := d.memory.EnsureSession(ctx, req.SessionID, req.OwnerID); err != nil {
		return nil, err
	}

	bundle, err := d.memory.GetContext(ctx, req.SessionID, req.OwnerID, req.Text)
	if err != nil {
		// Serve the request on an empty bundle rather than failing it.
		d.logger.Warn("context load failed, serving without memory", "request_id", req.ID, "err", err)
		bundle = &core.ContextBundle{SessionID: req.SessionID, Degraded: true}
	}

	resp, delta, err := handler.Handle(ctx, req, bundle)
	if err != nil {
		return nil, fmt.Errorf("handler %s: %w", decision.HandlerID, err)
	}
	if resp.HandlerID == "" {
		resp.HandlerID = decision.HandlerID
	}

	d.writeBack(ctx, req, resp, delta, bundle)

	return &Result{
		Response: resp,
		Decision: decision,
		Degraded: degraded || bundle.Degraded,
	}, nil
}

// route runs the router with the degradation policy: embedding outage goes
// straight to the fallback classifier; an undecided or unknown outcome falls
// back to the default handler when one is registered.
func (d *Dispatcher) route(ctx context.Context, req *core.Request) (*core.RouteDecision, bool, error) {
	decision, err := d.router.Route(ctx, req)
	if err == nil {
		return decision, false, nil
	}

	if errors.Is(err, core.ErrEmbeddingUnavailable) {
		d.logger.Warn("embeddings unavailable, classifying directly", "request_id", req.ID)
		decision, err = d.router.RouteFallback(ctx, req, nil)
		if err == nil {
			return decision, true, nil
		}
	}

	if errors.Is(err, core.ErrRoutingUndecided) || errors.Is(err, core.ErrUnknownHandler) {
		def := d.registry.Default()
		if def == nil {
			return nil, false, err
		}
		d.logger.Warn("routing failed, using default handler",
			"request_id", req.ID, "handler", def.ID(), "err", err)
		return &core.RouteDecision{
			RequestID: req.ID,
			SessionID: req.SessionID,
			HandlerID: def.ID(),
			Method:    core.RouteFallback,
			Timestamp: time.Now().UTC(),
		}, true, nil
	}

	return nil, false, err
}

// writeBack records the interaction in memory. Failures here log rather than
// fail the request: the handler already produced its response.
func (d *Dispatcher) writeBack(ctx context.Context, req *core.Request, resp *core.Response, delta *core.MemoryDelta, bundle *core.ContextBundle) {
	if err := d.memory.AppendTurn(ctx, req.SessionID, core.Turn{Role: core.RoleUser, Content: req.Text}); err != nil {
		d.logger.Warn("failed to record user turn", "request_id", req.ID, "err", err)
	}
	if err := d.memory.AppendTurn(ctx, req.SessionID, core.Turn{Role: core.RoleAssistant, Content: resp.Text}); err != nil {
		d.logger.Warn("failed to record assistant turn", "request_id", req.ID, "err", err)
	}

	if err := d.memory.ApplyDelta(ctx, req.SessionID, req.OwnerID, delta); err != nil {
		d.logger.Warn("failed to apply memory delta", "request_id", req.ID, "err", err)
	}

	if len(bundle.LongTerm) > 0 {
		ids := make([]string, 0, len(bundle.LongTerm))
		for _, e := range bundle.LongTerm {
			ids = append(ids, e.Entry.ID)
		}
		if err := d.memory.MarkRetrieved(ctx, ids); err != nil {
			d.logger.Warn("failed to mark entries retrieved", "request_id", req.ID, "err", err)
		}
	}
}
