package config

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/atomfs/db"
	"github.com/t7a/atomfs/db/redis"
	"github.com/t7a/atomfs/db/s3"
	"github.com/t7a/atomfs/fuse"
	"github.com/t7a/atomfs/inode"
	"github.com/t7a/atomfs/inode/kvtable"
)

// closers runs cleanups in reverse order of registration.
type closers []func() error

func (c closers) Close() (err error) {
	for i := len(c) - 1; i >= 0; i-- {
		e := c[i]()
		if e != nil && err == nil {
			err = e
		}
	}
	return
}

// OpenStore builds the store stack: the backend, then redis if a URL
// is set, then the in-process cache if enabled.  The returned func
// releases everything that was opened.
func OpenStore(ctx context.Context, cfg *Config) (store db.Store, closeFn func() error, err error) {
	var cl closers
	defer func() {
		if err != nil {
			cl.Close()
		}
	}()
	defer Return(&err)

	var algo string
	switch cfg.Store.Backend {
	case "dir":
		var d *db.Db
		d, err = db.Open(cfg.Store.Dir)
		Ck(err)
		if cfg.Store.Verify {
			d.Verify = true
		}
		store, algo = d, d.Algo
	case "s3":
		store, err = OpenS3(ctx, cfg)
		Ck(err)
		algo = cfg.S3.Algo
	default:
		Assert(false, "unknown store backend %q", cfg.Store.Backend)
	}
	log.WithFields(log.Fields{"backend": cfg.Store.Backend, "algo": algo}).Info("opened store")

	if cfg.Redis.URL != "" {
		var rs *redis.Store
		rs, err = redis.New(store, redis.Config{
			URL:    cfg.Redis.URL,
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
			Algo:   algo,
		})
		Ck(err)
		cl = append(cl, rs.Close)
		store = rs
	}

	if cfg.Cache.Enabled && cfg.Cache.MaxCost > 0 {
		var cs *db.CachedStore
		cs, err = db.NewCachedStore(store, cfg.Cache.MaxCost)
		Ck(err)
		cl = append(cl, func() error { cs.Close(); return nil })
		store = cs
	}
	return store, cl.Close, nil
}

// OpenS3 connects to the bucket in the s3 section.
func OpenS3(ctx context.Context, cfg *Config) (*s3.Store, error) {
	return s3.New(ctx, s3.Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKey,
		SecretAccessKey: cfg.S3.SecretKey,
		Prefix:          cfg.S3.Prefix,
		Algo:            cfg.S3.Algo,
		Verify:          cfg.Store.Verify,
	})
}

// OpenTable builds the inode table.  With the manifest backend and
// Watch set, the table follows the manifest until ctx is done.
func OpenTable(ctx context.Context, cfg *Config) (table inode.Table, closeFn func() error, err error) {
	defer Return(&err)
	var cl closers

	switch cfg.Inode.Backend {
	case "manifest":
		var mt *inode.MemTable
		mt, err = inode.LoadManifest(cfg.Inode.Manifest)
		Ck(err)
		live := inode.NewLive(mt)
		if cfg.Inode.Watch {
			_, err = inode.Watch(ctx, cfg.Inode.Manifest, live)
			Ck(err)
		}
		table = live
	case "badger":
		var kt *kvtable.Table
		kt, err = kvtable.Open(cfg.Inode.BadgerDir)
		Ck(err)
		cl = append(cl, kt.Close)
		if cfg.Inode.Manifest != "" {
			var mt *inode.MemTable
			mt, err = inode.LoadManifest(cfg.Inode.Manifest)
			if err == nil {
				err = kt.Import(mt)
			}
			if err != nil {
				kt.Close()
				return nil, nil, fmt.Errorf("seeding inode table: %w", err)
			}
		}
		table = kt
	default:
		Assert(false, "unknown inode backend %q", cfg.Inode.Backend)
	}
	return table, cl.Close, nil
}

// FuseOptions converts the mount section.
func (cfg *Config) FuseOptions() fuse.Options {
	return fuse.Options{
		FsName:       cfg.Mount.FsName,
		AllowOther:   cfg.Mount.AllowOther,
		Debug:        cfg.Mount.Debug,
		EntryTimeout: cfg.Mount.EntryTimeout,
		AttrTimeout:  cfg.Mount.AttrTimeout,
	}
}
