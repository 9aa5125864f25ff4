package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/charmbracelet/log"

	"github.com/ChallaYogeswar/agentforge/core"
)

// Classifier decides a handler identifier for request text when the
// similarity fast path cannot. Implementations must return exactly one
// identifier from the catalog, or a typed error.
type Classifier interface {
	Classify(ctx context.Context, text string, catalog []core.CatalogEntry) (string, error)
}

const (
	defaultClassifierModel   = "claude-3-5-haiku-latest"
	defaultClassifierTokens  = 32
	defaultClassifierTimeout = 10 * time.Second
)

// AnthropicClassifier is the generation-backed fallback classifier. It sends
// the handler catalog plus the request text and expects the model to answer
// with a bare handler identifier.
type AnthropicClassifier struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *log.Logger
}

// ClassifierOption configures an AnthropicClassifier.
type ClassifierOption func(*AnthropicClassifier)

// WithModel overrides the classifier model.
func WithModel(model string) ClassifierOption {
	return func(c *AnthropicClassifier) {
		c.model = model
	}
}

// WithMaxTokens caps the classifier reply length.
func WithMaxTokens(n int64) ClassifierOption {
	return func(c *AnthropicClassifier) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTimeout bounds each classification call.
func WithTimeout(d time.Duration) ClassifierOption {
	return func(c *AnthropicClassifier) {
		c.timeout = d
	}
}

// WithClassifierLogger sets the classifier's logger.
func WithClassifierLogger(logger *log.Logger) ClassifierOption {
	return func(c *AnthropicClassifier) {
		c.logger = logger
	}
}

// NewAnthropicClassifier creates a classifier backed by the given client.
func NewAnthropicClassifier(client *anthropic.Client, opts ...ClassifierOption) *AnthropicClassifier {
	c := &AnthropicClassifier{
		client:    client,
		model:     defaultClassifierModel,
		maxTokens: defaultClassifierTokens,
		timeout:   defaultClassifierTimeout,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify asks the model to pick one handler from the catalog. The reply
// must parse as a single bare identifier, returned as-is; set membership is
// the router's call, so a clean reply naming an unregistered handler comes
// back without error and fails there as unknown rather than unparseable.
func (c *AnthropicClassifier) Classify(ctx context.Context, text string, catalog []core.CatalogEntry) (string, error) {
	if len(catalog) == 0 {
		return "", fmt.Errorf("%w: empty handler catalog", core.ErrRoutingUndecided)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
		System: []anthropic.TextBlockParam{
			{Text: classifierPrompt(catalog)},
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: classifier call: %v", core.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: classifier call: %v", core.ErrRoutingUndecided, err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	id, err := parseClassifierReply(reply.String())
	if err != nil {
		c.logger.Warn("classifier reply did not parse as an identifier", "reply", reply.String())
		return "", err
	}
	return id, nil
}

// parseClassifierReply extracts a single handler identifier from a model
// reply. Empty or multi-token replies are unparseable.
func parseClassifierReply(reply string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(reply))
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		return "", fmt.Errorf("%w: unparseable classifier reply %q", core.ErrRoutingUndecided, id)
	}
	return id, nil
}

func classifierPrompt(catalog []core.CatalogEntry) string {
	var b strings.Builder
	b.WriteString("You route user requests to exactly one handler.\n\nHandlers:\n")
	for _, entry := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", entry.ID, entry.Description)
	}
	b.WriteString("\nRespond with ONLY the handler identifier, nothing else.")
	return b.String()
}
