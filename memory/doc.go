// Package memory implements the tiered memory manager: session memory (a
// bounded window of recent turns), working memory (single-task scratch
// context scoped to a session), and long-term memory (durable entries
// retrievable by semantic similarity).
//
// Architecture:
//   - SessionStore: fast session-tier storage (inmem for local, redis when
//     sessions should survive restarts)
//   - LongTermStore: durable non-vector fields (SQLite)
//   - VectorIndex: embedding storage and nearest-neighbor queries (chromem)
//   - Embedder: text-to-vector conversion (mock for tests, ONNX locally)
//   - Manager: the single mutation path per tier, plus promotion, expiry and
//     retention between tiers
//
// Concurrency: operations on the same session are serialized through a
// per-session lock held only around in-memory mutation; embedding and store
// I/O happen outside it. Independent sessions proceed fully in parallel.
package memory
