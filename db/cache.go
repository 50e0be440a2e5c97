package db

import (
	"context"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CachedStore keeps recently retrieved atoms in memory.  The cache is
// bounded by total content bytes.  Concurrent misses on the same hash
// share one backend fetch.
type CachedStore struct {
	backend Store
	cache   *ristretto.Cache[string, []byte]
	group   singleflight.Group
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// NewCachedStore wraps backend with a cache holding up to maxBytes of
// atom content.
func NewCachedStore(backend Store, maxBytes int64) (cs *CachedStore, err error) {
	if maxBytes < 1 {
		maxBytes = 1 << 26
	}
	// ristretto wants roughly ten counters per item it may hold;
	// assume 4k atoms
	counters := 10 * (maxBytes / 4096)
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return
	}
	cs = &CachedStore{backend: backend, cache: cache}
	return
}

func (cs *CachedStore) Retrieve(ctx context.Context, h Hash) (buf []byte, err error) {
	key := h.key()
	buf, ok := cs.cache.Get(key)
	if ok {
		cs.hits.Add(1)
		return buf, nil
	}
	cs.misses.Add(1)

	// The fetch outlives any one caller; each caller only waits as
	// long as its own ctx allows.
	fetchCtx := context.WithoutCancel(ctx)
	ch := cs.group.DoChan(key, func() (interface{}, error) {
		buf, err := cs.backend.Retrieve(fetchCtx, h)
		if err != nil {
			return nil, err
		}
		cs.cache.Set(key, buf, int64(len(buf)))
		// make the new entry visible before anyone else misses on it
		cs.cache.Wait()
		return buf, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, &IoError{Hash: h, Op: "read", Err: ctx.Err()}
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		log.WithField("hash", h).Debug("shared fetch")
	}
	return res.Val.([]byte), nil
}

// Forget drops h from the cache, e.g. after the atom was removed
// from the backend.
func (cs *CachedStore) Forget(h Hash) {
	cs.cache.Del(h.key())
}

func (cs *CachedStore) Stats() CacheStats {
	return CacheStats{Hits: cs.hits.Load(), Misses: cs.misses.Load()}
}

func (cs *CachedStore) Close() {
	cs.cache.Close()
}
