// Package cachestore caches normalized verdicts so that identical content
// seen again within the TTL (a reposted link, a re-shared image, a copy-paste
// raid) does not cost another classification call.
//
// Two backends implement [Store]: [MemStore], a process-local expiring LRU,
// and [RedisStore], which shares entries between bot instances and fronts
// Redis with a small local TinyLFU cache.
package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/kojo/internal/moderation"
)

// Store is a namespaced string cache. A miss returns "" and a nil error.
type Store interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// Verdicts stores [moderation.Verdict] values in a [Store]. Keys are hashed
// so that message text never appears in the backend.
type Verdicts struct {
	store Store
}

// NewVerdicts wraps store. A nil store yields a cache that always misses.
func NewVerdicts(store Store) *Verdicts {
	return &Verdicts{store: store}
}

func hashKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached verdict for input under the given kind (e.g.
// "text", "url", "image").
func (v *Verdicts) Get(ctx context.Context, kind, input string) (moderation.Verdict, bool, error) {
	if v == nil || v.store == nil {
		return moderation.Verdict{}, false, nil
	}
	raw, err := v.store.Get(ctx, kind, hashKey(input))
	if err != nil {
		return moderation.Verdict{}, false, fmt.Errorf("cachestore: get %s: %w", kind, err)
	}
	if raw == "" {
		return moderation.Verdict{}, false, nil
	}
	// Entries are re-normalized on the way out; a corrupt entry reads as a
	// conservative verdict instead of a partial one.
	return moderation.Normalize(raw), true, nil
}

// Set caches verdict for input. Degraded verdicts are not cached so that a
// classifier outage does not outlive itself.
func (v *Verdicts) Set(ctx context.Context, kind, input string, verdict moderation.Verdict) error {
	if v == nil || v.store == nil || moderation.IsDegraded(verdict) {
		return nil
	}
	b, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("cachestore: encode verdict: %w", err)
	}
	if err := v.store.Set(ctx, kind, hashKey(input), string(b)); err != nil {
		return fmt.Errorf("cachestore: set %s: %w", kind, err)
	}
	return nil
}

// Purge drops the cached verdict for input.
func (v *Verdicts) Purge(ctx context.Context, kind, input string) error {
	if v == nil || v.store == nil {
		return nil
	}
	return v.store.Purge(ctx, kind, hashKey(input))
}
