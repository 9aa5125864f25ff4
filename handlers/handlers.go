// Package handlers provides the built-in handler set: resume/content
// rewriting, email prioritization, prompt optimization, and a general-purpose
// default.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ChallaYogeswar/agentforge/core"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
)

// Generation is a handler that answers with one generation call. Each
// instance carries its own system prompt; the context bundle is prepended to
// the user's request.
type Generation struct {
	id           string
	description  string
	systemPrompt string
	workingKey   string

	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// ID implements core.Handler.
func (g *Generation) ID() string { return g.id }

// Description implements core.Handler.
func (g *Generation) Description() string { return g.description }

// Handle implements core.Handler.
func (g *Generation) Handle(ctx context.Context, req *core.Request, bundle *core.ContextBundle) (*core.Response, *core.MemoryDelta, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var user strings.Builder
	if !bundle.Empty() {
		user.WriteString(bundle.Format())
		user.WriteString("\n\n")
	}
	user.WriteString(req.Text)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user.String())),
		},
		System: []anthropic.TextBlockParam{
			{Text: g.systemPrompt},
		},
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %s generation: %v", core.ErrTimeout, g.id, err)
		}
		return nil, nil, fmt.Errorf("%s generation: %w", g.id, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	delta := &core.MemoryDelta{
		WorkingSet: map[string]string{g.workingKey: req.Text},
	}
	return &core.Response{Text: text.String(), HandlerID: g.id}, delta, nil
}

// Definitions returns the built-in generation handlers backed by client.
func Definitions(client *anthropic.Client) []core.Handler {
	defs := []struct {
		id           string
		description  string
		systemPrompt string
		workingKey   string
	}{
		{
			id:          "content",
			description: "Rewrites and tailors resumes, CVs, LinkedIn profiles, and other career content against a target role.",
			systemPrompt: "You rewrite career content. Given a resume, CV, or profile text and " +
				"optionally a target job description, produce a tailored rewrite that leads with " +
				"measurable achievements and strong action verbs. Keep the candidate's facts; never invent experience.",
			workingKey: "content_source",
		},
		{
			id:          "email",
			description: "Triages and prioritizes email and inbox content, surfacing what is urgent and what can wait.",
			systemPrompt: "You triage email. Given one or more messages or an inbox summary, rank them by " +
				"urgency and importance, flag anything time-sensitive, and suggest a short action for each.",
			workingKey: "email_batch",
		},
		{
			id:          "prompt",
			description: "Improves and optimizes prompts for language models: clearer instructions, better structure, fewer ambiguities.",
			systemPrompt: "You optimize prompts. Given a prompt, return an improved version: explicit about " +
				"the task, the constraints, and the output format. Explain the key changes in one short paragraph after the prompt.",
			workingKey: "prompt_draft",
		},
		{
			id:          "general",
			description: "Handles any request that does not fit a specialized handler.",
			systemPrompt: "You are a capable general assistant. Answer the request directly and concisely, " +
				"using the provided conversation context where relevant.",
			workingKey: "last_request",
		},
	}

	out := make([]core.Handler, 0, len(defs))
	for _, d := range defs {
		out = append(out, &Generation{
			id:           d.id,
			description:  d.description,
			systemPrompt: d.systemPrompt,
			workingKey:   d.workingKey,
			client:       client,
			model:        defaultModel,
			maxTokens:    defaultMaxTokens,
			timeout:      defaultTimeout,
		})
	}
	return out
}

// Register registers the built-in handlers and marks "general" as the
// default.
func Register(registry *core.Registry, client *anthropic.Client) error {
	for _, h := range Definitions(client) {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return registry.SetDefault("general")
}
