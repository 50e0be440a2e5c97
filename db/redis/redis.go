// Package redis puts a shared redis cache in front of another store.
// Several mounts on different hosts can share one redis and save
// each other trips to the backend.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/t7a/atomfs/db"
)

type Config struct {
	URL    string        // redis://<user>:<password>@<host>:<port>/<db>
	Prefix string        // key prefix, default "atomfs:atom:"
	TTL    time.Duration // zero means no expiry
	// MaxBytes keeps large atoms out of redis; zero means 1 MiB.
	MaxBytes int
	// Algo is used to re-hash cached content before trusting it.
	Algo string
}

// Store is a read-through cache.  Redis failures are logged and the
// backend is asked instead; they never fail a Retrieve.
type Store struct {
	backend db.Store
	client  *redis.Client
	cfg     Config
}

var _ db.Store = (*Store)(nil)

func New(backend db.Store, cfg Config) (s *Store, err error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// fail fast
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newStore(backend, client, cfg)
}

func newStore(backend db.Store, client *redis.Client, cfg Config) (s *Store, err error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "atomfs:atom:"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.Algo == "" {
		cfg.Algo = db.AlgoSha256
	}
	_, err = db.Sum(cfg.Algo, nil)
	if err != nil {
		return
	}
	return &Store{backend: backend, client: client, cfg: cfg}, nil
}

func (s *Store) key(h db.Hash) string {
	return s.cfg.Prefix + h.String()
}

func (s *Store) Retrieve(ctx context.Context, h db.Hash) (buf []byte, err error) {
	key := s.key(h)
	buf, err = s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		got, _ := db.Sum(s.cfg.Algo, buf)
		if got == h {
			return buf, nil
		}
		log.WithField("hash", h).Warn("redis returned damaged atom, dropping it")
		s.client.Del(ctx, key)
	case err == redis.Nil:
	default:
		log.WithField("hash", h).Warnf("redis error: %v", err)
	}

	buf, err = s.backend.Retrieve(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(buf) <= s.cfg.MaxBytes {
		err := s.client.Set(ctx, key, buf, s.cfg.TTL).Err()
		if err != nil {
			log.WithField("hash", h).Warnf("redis fill failed: %v", err)
		}
	}
	return buf, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
