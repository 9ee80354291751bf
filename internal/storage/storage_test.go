package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "case_1/run-a/report.md", ArtifactKey("case 1", "run-a", "report.md"))
	assert.Equal(t, "a_b/_/report.json", ArtifactKey("a/b", "..", "report.json"))
	assert.Equal(t, "_/r/report.md", ArtifactKey("  ", "r", "report.md"))
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "/abs/key", "a/../b", "a//b", "./a"} {
		assert.Error(t, validateKey(key), key)
	}
	assert.NoError(t, validateKey("case/run/report.md"))
}

func TestLocalStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := store.Put(ctx, "case-1/run-1/report.md", []byte("# Report"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "case-1", "run-1", "report.md"), loc)

	rc, err := store.Get(ctx, "case-1/run-1/report.md")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "# Report", string(data))
}

func TestLocalStore_WriteOnce(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "c/r/report.md", []byte("first"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "c/r/report.md", []byte("second"))
	require.ErrorIs(t, err, models.ErrArtifactExists)

	data, err := os.ReadFile(filepath.Join(dir, "c", "r", "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestLocalStore_GetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "nope/run/report.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../outside.md", []byte("x"))
	assert.Error(t, err)
}

func TestLocalStore_CanceledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "c/r/report.md", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.OutputConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(ctx, config.OutputConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, config.OutputConfig{Type: "s3"})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", contentType("a/b/report.json"))
	assert.Equal(t, "text/html; charset=utf-8", contentType("a/b/report.html"))
	assert.Equal(t, "text/markdown; charset=utf-8", contentType("a/b/report.md"))
	assert.Equal(t, "application/octet-stream", contentType("a/b/blob"))
}

// fakeS3 is a path-style bucket that honours If-None-Match on PUT.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		if _, ok := f.objects[key]; ok && r.Header.Get("If-None-Match") == "*" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusPreconditionFailed)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), config.OutputConfig{
		Type:      "s3",
		Bucket:    "reports",
		Region:    "ap-south-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store_PutWriteOnce(t *testing.T) {
	store, fake := newFakeS3Store(t)
	ctx := context.Background()

	loc, err := store.Put(ctx, "case-1/run-1/report.json", []byte(`{"case_id":"case-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/case-1/run-1/report.json", loc)

	fake.mu.Lock()
	body := string(fake.objects["reports/case-1/run-1/report.json"])
	ctype := fake.types["reports/case-1/run-1/report.json"]
	fake.mu.Unlock()
	assert.Contains(t, body, `"case_id":"case-1"`)
	assert.Equal(t, "application/json", ctype)

	_, err = store.Put(ctx, "case-1/run-1/report.json", []byte(`{}`))
	assert.ErrorIs(t, err, models.ErrArtifactExists)
}

func TestS3Store_Get(t *testing.T) {
	store, _ := newFakeS3Store(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "c/r/report.md", []byte("# Findings"))
	require.NoError(t, err)

	rc, err := store.Get(ctx, "c/r/report.md")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Findings")

	_, err = store.Get(ctx, "c/r/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}
