package core

import (
	"fmt"
	"sort"
	"strings"
)

// ContextBundle is the merged memory snapshot handed to a handler for one
// request: the most recent session turns, the active working memory, and the
// long-term entries most relevant to the request. It is a read-only value;
// mutation goes through the memory manager's write operations.
type ContextBundle struct {
	SessionID string            `json:"session_id"`
	Turns     []Turn            `json:"turns,omitempty"`
	Working   map[string]string `json:"working,omitempty"`
	Artifacts []string          `json:"artifacts,omitempty"`
	LongTerm  []RetrievedEntry  `json:"long_term,omitempty"`

	// Degraded is set when long-term retrieval was skipped because the
	// vector tier was unavailable. Handlers still run with session and
	// working memory only.
	Degraded bool `json:"degraded,omitempty"`
}

// Empty reports whether the bundle carries no context at all.
func (b *ContextBundle) Empty() bool {
	return len(b.Turns) == 0 && len(b.Working) == 0 && len(b.Artifacts) == 0 && len(b.LongTerm) == 0
}

// Format renders the bundle for prompt injection. Sections are omitted when
// empty so trivial requests don't pay for boilerplate.
func (b *ContextBundle) Format() string {
	if b.Empty() {
		return ""
	}

	var parts []string

	if len(b.Turns) > 0 {
		parts = append(parts, "=== RECENT CONVERSATION ===")
		for _, t := range b.Turns {
			parts = append(parts, fmt.Sprintf("[%s] %s", t.Role, t.Content))
		}
	}

	if len(b.Working) > 0 || len(b.Artifacts) > 0 {
		parts = append(parts, "=== CURRENT TASK CONTEXT ===")
		for _, k := range sortedKeys(b.Working) {
			parts = append(parts, fmt.Sprintf("%s: %s", k, b.Working[k]))
		}
		for i, a := range b.Artifacts {
			parts = append(parts, fmt.Sprintf("artifact %d: %s", i+1, a))
		}
	}

	if len(b.LongTerm) > 0 {
		parts = append(parts, "=== RELEVANT HISTORY ===")
		for i, e := range b.LongTerm {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, e.Entry.Text))
		}
	}

	return strings.Join(parts, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
