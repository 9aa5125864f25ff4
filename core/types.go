package core

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one utterance in a conversation. Turns live in the session tier
// and are the unit of the bounded recency window.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Request is one user request entering the system.
type Request struct {
	// ID identifies the request for decision auditing and idempotent retry.
	ID string `json:"id"`

	// SessionID scopes the request to a conversation.
	SessionID string `json:"session_id"`

	// OwnerID is the long-term memory owner (user) behind the session.
	OwnerID string `json:"owner_id"`

	// Text is the free-form request text.
	Text string `json:"text"`
}

// Response is a handler's answer to a routed request.
type Response struct {
	Text      string `json:"text"`
	HandlerID string `json:"handler_id"`
}

// RouteMethod records which routing path produced a decision.
type RouteMethod string

const (
	// RouteDirect means the similarity fast path decided without any
	// generation call.
	RouteDirect RouteMethod = "direct"

	// RouteFallback means the generation classifier decided.
	RouteFallback RouteMethod = "fallback"
)

// RouteDecision is the immutable record of one routing outcome. Created once
// per request and retained for auditing and exemplar promotion.
type RouteDecision struct {
	RequestID  string      `json:"request_id"`
	SessionID  string      `json:"session_id"`
	HandlerID  string      `json:"handler_id"`
	Confidence float64     `json:"confidence"`
	Method     RouteMethod `json:"method"`
	Timestamp  time.Time   `json:"timestamp"`
}

// LongTermEntry is a durable memory record. The text and vector are written
// together; the vector is re-embedded on write and never goes stale.
type LongTermEntry struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Text            string            `json:"text"`
	HandlerID       string            `json:"handler_id,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	LastRetrievedAt time.Time         `json:"last_retrieved_at"`
}

// RetrievedEntry pairs a long-term entry with its similarity to the query
// that surfaced it.
type RetrievedEntry struct {
	Entry      LongTermEntry `json:"entry"`
	Similarity float64       `json:"similarity"`
}

// Promotion asks the memory manager to move text into long-term storage.
type Promotion struct {
	Text      string            `json:"text"`
	HandlerID string            `json:"handler_id,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MemoryDelta is what a handler hands back for write-behind after a request.
// The core applies it through the memory manager's named write operations.
type MemoryDelta struct {
	// Turns to append to the session window, in order.
	Turns []Turn `json:"turns,omitempty"`

	// WorkingSet merges key/value pairs into working memory.
	WorkingSet map[string]string `json:"working_set,omitempty"`

	// Artifacts appends intermediate task artifacts, in order.
	Artifacts []string `json:"artifacts,omitempty"`

	// ClearWorking resets working memory after the set/append operations.
	// Handlers set it when their task completes.
	ClearWorking bool `json:"clear_working,omitempty"`

	// Promotions are explicit moves into long-term storage.
	Promotions []Promotion `json:"promotions,omitempty"`
}
