package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChallaYogeswar/agentforge/core"
)

func TestParseClassifierReply_BareIdentifier(t *testing.T) {
	id, err := parseClassifierReply("email")
	require.NoError(t, err)
	assert.Equal(t, "email", id)
}

func TestParseClassifierReply_TrimsAndLowercases(t *testing.T) {
	id, err := parseClassifierReply("  Content\n")
	require.NoError(t, err)
	assert.Equal(t, "content", id)
}

func TestParseClassifierReply_UnknownIdentifierPassesThrough(t *testing.T) {
	// Set membership is decided by the router, not the parser: a clean
	// reply naming an unregistered handler must come back intact so the
	// route fails as unknown, not unparseable.
	id, err := parseClassifierReply("unknown_tool")
	require.NoError(t, err)
	assert.Equal(t, "unknown_tool", id)
}

func TestParseClassifierReply_RejectsEmptyAndMultiToken(t *testing.T) {
	for _, reply := range []string{"", "   ", "the email handler", "email\ncontent"} {
		_, err := parseClassifierReply(reply)
		assert.ErrorIs(t, err, core.ErrRoutingUndecided, "reply %q", reply)
	}
}
