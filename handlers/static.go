package handlers

import (
	"context"

	"github.com/ChallaYogeswar/agentforge/core"
)

// Static is a handler that replies with a fixed text and no memory delta.
// Useful as a cheap default or in tests.
type Static struct {
	HandlerID string
	Desc      string
	Reply     string
}

// ID implements core.Handler.
func (s *Static) ID() string { return s.HandlerID }

// Description implements core.Handler.
func (s *Static) Description() string { return s.Desc }

// Handle implements core.Handler.
func (s *Static) Handle(_ context.Context, _ *core.Request, _ *core.ContextBundle) (*core.Response, *core.MemoryDelta, error) {
	return &core.Response{Text: s.Reply, HandlerID: s.HandlerID}, nil, nil
}
