package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t7a/atomfs/db"
)

// fakeS3 speaks just enough path-style S3 for GetObject, HeadObject
// and PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	broken  bool
	short   bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.objects[key] = buf
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		buf, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		buf, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		if f.short {
			w.Header().Set("Content-Length", strconv.Itoa(len(buf)+10))
			w.WriteHeader(http.StatusOK)
			w.Write(buf)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
		w.WriteHeader(http.StatusOK)
		w.Write(buf)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setup(t *testing.T, verify bool) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "atoms",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "v1/",
		Algo:            db.AlgoSha256,
		Verify:          verify,
		MaxAttempts:     1,
	})
	require.NoError(t, err)
	return s, fake
}

func TestPutRetrieve(t *testing.T) {
	ctx := context.Background()
	s, fake := setup(t, true)

	val := []byte("hello world")
	h, err := db.Sum(db.AlgoSha256, val)
	require.NoError(t, err)

	ok, err := s.Has(ctx, h)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Retrieve(ctx, h)
	assert.True(t, errors.Is(err, db.ErrNotFound), "got %v", err)

	_, err = s.Put(ctx, h, val)
	require.NoError(t, err)
	hexhash := h.String()
	assert.Contains(t, fake.objects, "atoms/v1/"+hexhash[:3]+"/"+hexhash)

	ok, err = s.Has(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Retrieve(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, val, got)

	// a second put is skipped
	_, err = s.Put(ctx, h, val)
	require.NoError(t, err)
	assert.Len(t, fake.objects, 1)
}

func TestRetrieveFailures(t *testing.T) {
	ctx := context.Background()
	s, fake := setup(t, true)

	val := []byte("hello world")
	h, _ := db.Sum(db.AlgoSha256, val)
	_, err := s.Put(ctx, h, val)
	require.NoError(t, err)

	var ioerr *db.IoError

	fake.short = true
	_, err = s.Retrieve(ctx, h)
	require.True(t, errors.As(err, &ioerr), "got %v", err)
	fake.short = false

	// content swapped under the key
	hexhash := h.String()
	fake.objects["atoms/v1/"+hexhash[:3]+"/"+hexhash] = []byte("hello w0rld")
	_, err = s.Retrieve(ctx, h)
	require.True(t, errors.As(err, &ioerr), "got %v", err)
	assert.True(t, errors.Is(err, db.ErrCorrupt))

	fake.broken = true
	_, err = s.Retrieve(ctx, h)
	require.True(t, errors.As(err, &ioerr), "got %v", err)
	assert.Equal(t, h, ioerr.Hash)
	assert.False(t, errors.Is(err, db.ErrNotFound))
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	s, fake := setup(t, false)

	local, err := db.Db{Dir: t.TempDir()}.Create()
	require.NoError(t, err)
	var hashes []db.Hash
	for _, v := range []string{"one", "two", "three"} {
		h, err := local.PutAtom([]byte(v))
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	n, err := s.Push(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, fake.objects, 3)

	for i, v := range []string{"one", "two", "three"} {
		got, err := s.Retrieve(ctx, hashes[i])
		require.NoError(t, err)
		assert.Equal(t, v, string(got))
	}

	// atoms already in the bucket are not counted again
	n, err = s.Push(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = local.PutAtom([]byte("four"))
	require.NoError(t, err)
	n, err = s.Push(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, fake.objects, 4)
}

func TestPutReportsUpload(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t, false)
	val := []byte("somevalue")
	h, err := db.Sum(db.AlgoSha256, val)
	require.NoError(t, err)

	uploaded, err := s.Put(ctx, h, val)
	require.NoError(t, err)
	assert.True(t, uploaded)
	uploaded, err = s.Put(ctx, h, val)
	require.NoError(t, err)
	assert.False(t, uploaded)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}
