package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChallaYogeswar/agentforge/memory/embedder/cache"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }

func TestEmbed_ServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := cache.New(inner, 128)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	first, err := e.Embed(ctx, "optimize prompt")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "optimize prompt")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must be a cache hit")
}

func TestEmbed_DistinctTextsMiss(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := cache.New(inner, 128)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	_, err = e.Embed(ctx, "one")
	require.NoError(t, err)
	_, err = e.Embed(ctx, "two")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestEmbed_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	e, err := cache.New(inner, 128)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	_, err = e.Embed(ctx, "text")
	require.Error(t, err)

	inner.err = nil
	_, err = e.Embed(ctx, "text")
	require.NoError(t, err, "recovery must reach the inner embedder")
	assert.Equal(t, 2, inner.calls)
}

func TestDimensions_PassThrough(t *testing.T) {
	e, err := cache.New(&countingEmbedder{}, 0)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 2, e.Dimensions())
}
