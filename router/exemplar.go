package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ChallaYogeswar/agentforge/memory"
)

// ExemplarCollection is the vector index collection holding intent exemplars.
const ExemplarCollection = "intent_exemplars"

// IntentExemplar is one representative phrasing of a request a handler should
// receive. The router compares incoming requests against the exemplar set.
type IntentExemplar struct {
	HandlerID string
	Text      string
}

// exemplarID derives a stable identifier from the exemplar content so that
// reseeding at startup is idempotent.
func exemplarID(handlerID, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(handlerID+"\x00"+text)).String()
}

// SeedExemplars embeds and upserts the exemplar set. Call it at startup after
// registering handlers; upserts by stable id make repeated seeding safe.
func SeedExemplars(ctx context.Context, index memory.VectorIndex, embedder memory.Embedder, exemplars []IntentExemplar) error {
	for _, ex := range exemplars {
		vec, err := embedder.Embed(ctx, ex.Text)
		if err != nil {
			return fmt.Errorf("embed exemplar %q: %w", ex.Text, err)
		}
		meta := map[string]string{"handler_id": ex.HandlerID}
		if err := index.Upsert(ctx, ExemplarCollection, exemplarID(ex.HandlerID, ex.Text), vec, meta); err != nil {
			return fmt.Errorf("upsert exemplar %q: %w", ex.Text, err)
		}
	}
	return nil
}
