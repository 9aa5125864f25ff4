package handlers

import "github.com/ChallaYogeswar/agentforge/router"

// Exemplars returns the seed phrasings for the built-in handlers. They are
// short on purpose: the router matches against representative fragments, not
// full sentences, and grows the set from confirmed fallback decisions when
// that policy is enabled.
func Exemplars() []router.IntentExemplar {
	return []router.IntentExemplar{
		{HandlerID: "prompt", Text: "optimize prompt"},
		{HandlerID: "prompt", Text: "improve prompt"},
		{HandlerID: "prompt", Text: "better prompt"},
		{HandlerID: "prompt", Text: "rewrite prompt"},

		{HandlerID: "content", Text: "resume"},
		{HandlerID: "content", Text: "cv"},
		{HandlerID: "content", Text: "linkedin"},
		{HandlerID: "content", Text: "job description"},
		{HandlerID: "content", Text: "tailor resume"},

		{HandlerID: "email", Text: "email"},
		{HandlerID: "email", Text: "inbox"},
		{HandlerID: "email", Text: "prioritize"},
		{HandlerID: "email", Text: "urgent"},
	}
}
