// Package s3 keeps atoms in an S3 bucket.  Objects hold the raw atom
// content under <prefix><xxx>/<hash>, sharded like the local db.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/t7a/atomfs/db"
)

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	// Algo is the hash algorithm the bucket's atoms were stored with;
	// only needed when Verify is set.
	Algo   string
	Verify bool
	// MaxAttempts caps SDK retries; zero keeps the SDK default.
	MaxAttempts int
}

// Store is a db.Store backed by a bucket.
type Store struct {
	client *s3.Client
	cfg    Config
}

var _ db.Store = (*Store)(nil)

func New(ctx context.Context, cfg Config) (s *Store, err error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	if cfg.Verify {
		_, err = db.Sum(cfg.Algo, nil)
		if err != nil {
			return
		}
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "s3: loading SDK config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO and friends only do path style
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if cfg.MaxAttempts > 0 {
			o.RetryMaxAttempts = cfg.MaxAttempts
		}
	})
	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) key(h db.Hash) string {
	hexhash := h.String()
	return s.cfg.Prefix + hexhash[:3] + "/" + hexhash
}

func (s *Store) Retrieve(ctx context.Context, h db.Hash) (buf []byte, err error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(h)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, db.ErrNotFound
		}
		return nil, &db.IoError{Hash: h, Op: "s3 get", Err: err}
	}
	defer resp.Body.Close()

	buf, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, &db.IoError{Hash: h, Op: "s3 read", Err: err}
	}
	if resp.ContentLength != nil && *resp.ContentLength != int64(len(buf)) {
		return nil, &db.IoError{Hash: h, Op: "s3 read", Err: fmt.Errorf("short object: want %d bytes, got %d", *resp.ContentLength, len(buf))}
	}
	if s.cfg.Verify {
		got, _ := db.Sum(s.cfg.Algo, buf)
		if got != h {
			return nil, &db.IoError{Hash: h, Op: "verify", Err: db.ErrCorrupt}
		}
	}
	return
}

// Has reports whether the bucket holds an atom for h.
func (s *Store) Has(ctx context.Context, h db.Hash) (ok bool, err error) {
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(h)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	return false, err
}

// Put uploads buf under h unless it is already there, and reports
// whether it uploaded.  The caller is trusted to pass the right hash.
func (s *Store) Put(ctx context.Context, h db.Hash, buf []byte) (uploaded bool, err error) {
	ok, err := s.Has(ctx, h)
	if err != nil {
		return false, errors.Wrapf(err, "s3 put %s", h)
	}
	if ok {
		return false, nil
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.key(h)),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return false, errors.Wrapf(err, "s3 put %s", h)
	}
	return true, nil
}

// Push uploads every atom of a local db that the bucket lacks and
// returns how many were sent.
func (s *Store) Push(ctx context.Context, src *db.Db) (n int, err error) {
	var hashes []db.Hash
	err = src.Atoms(ctx, func(h db.Hash) error {
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return
	}

	var count atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2 * runtime.NumCPU())
	for _, h := range hashes {
		h := h
		g.Go(func() error {
			buf, err := src.Retrieve(ctx, h)
			if err != nil {
				return err
			}
			uploaded, err := s.Put(ctx, h, buf)
			if err != nil {
				return err
			}
			if uploaded {
				count.Add(1)
				log.WithField("hash", h).Debug("pushed")
			}
			return nil
		})
	}
	err = g.Wait()
	return int(count.Load()), err
}
