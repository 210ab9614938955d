package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benchwork/procurement-bridge/internal/metrics"
)

// Layer is a TTL cache keyed by (collection, subkey). Entries carry their
// write time, and a read older than the collection TTL is a miss that also
// evicts the entry.
type Layer struct {
	mu       sync.Mutex
	provider Provider
	ttl      time.Duration
	ttls     map[string]time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type envelope struct {
	Value json.RawMessage `json:"value"`
	TS    int64           `json:"ts"`
}

// NewLayer wraps provider. ttls overrides the default ttl per collection.
// A nil provider disables caching.
func NewLayer(provider Provider, ttl time.Duration, ttls map[string]time.Duration, now func() time.Time, logger *slog.Logger) *Layer {
	if provider == nil {
		provider = NoopProvider{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	copied := make(map[string]time.Duration, len(ttls))
	for k, v := range ttls {
		copied[k] = v
	}
	return &Layer{provider: provider, ttl: ttl, ttls: copied, now: now, logger: logger}
}

// TTL returns the effective time-to-live for a collection.
func (l *Layer) TTL(collection string) time.Duration {
	if l == nil {
		return 0
	}
	if d, ok := l.ttls[collection]; ok {
		return d
	}
	return l.ttl
}

// Get decodes a fresh entry into out and reports whether one was found.
func (l *Layer) Get(ctx context.Context, collection, subkey string, out any) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := cacheKey(collection, subkey)
	raw, err := l.provider.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Debug("cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		metrics.ObserveCacheLookup(collection, false)
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		_ = l.provider.Del(ctx, key)
		metrics.ObserveCacheLookup(collection, false)
		return false
	}
	age := l.now().Sub(time.UnixMilli(env.TS))
	if age > l.TTL(collection) {
		_ = l.provider.Del(ctx, key)
		metrics.ObserveCacheLookup(collection, false)
		return false
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		metrics.ObserveCacheLookup(collection, false)
		return false
	}
	metrics.ObserveCacheLookup(collection, true)
	return true
}

// Set stores value under (collection, subkey) stamped with the current time.
func (l *Layer) Set(ctx context.Context, collection, subkey string, value any) {
	if l == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		l.logger.Debug("cache encode failed", slog.String("collection", collection), slog.Any("error", err))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, _ := json.Marshal(envelope{Value: payload, TS: l.now().UnixMilli()})
	// The provider TTL is a backstop; freshness is decided on read.
	ttl := l.TTL(collection)
	if ttl > 0 {
		ttl += time.Second
	}
	if err := l.provider.Set(ctx, cacheKey(collection, subkey), data, ttl); err != nil {
		l.logger.Debug("cache set failed", slog.String("collection", collection), slog.Any("error", err))
	}
}

// Clear drops every entry.
func (l *Layer) Clear(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provider.Flush(ctx)
}

func cacheKey(collection, subkey string) string {
	if subkey == "" {
		return collection
	}
	return collection + ":" + subkey
}
