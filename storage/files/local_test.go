package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	return string(b)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if !assert.NoError(t, err) {
		return
	}

	key := "certificates/c1/pdf/r1.pdf"
	assert.NoError(t, store.Put(ctx, key, []byte("v1"), "application/pdf"))
	assert.NoError(t, store.Put(ctx, key, []byte("v2"), "application/pdf"))
	assert.NoError(t, store.Put(ctx, "certificates/c1/png/r1.png", []byte("png"), "image/png"))
	assert.NoError(t, store.Put(ctx, "certificates/c2/pdf/r1.pdf", []byte("other"), "application/pdf"))

	rc, err := store.Open(ctx, key)
	if assert.NoError(t, err) {
		assert.Equal(t, "v2", readAll(t, rc))
	}

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Join(root, "certificates", "c1", "pdf"))
	if assert.NoError(t, err) {
		assert.Len(t, entries, 1)
	}

	_, err = store.Open(ctx, "certificates/c1/pdf/nope.pdf")
	assert.Equal(t, certificate.ErrArtifactNotFound, err)

	_, err = store.Open(ctx, "../../etc/passwd")
	assert.Equal(t, certificate.ErrArtifactNotFound, err)
	assert.Equal(t, errInvalidKey, store.Put(ctx, "../escape", []byte("x"), "text/plain"))

	assert.NoError(t, store.DeletePrefix(ctx, "certificates/c1"))
	_, err = store.Open(ctx, key)
	assert.Equal(t, certificate.ErrArtifactNotFound, err)
	rc, err = store.Open(ctx, "certificates/c2/pdf/r1.pdf")
	if assert.NoError(t, err) {
		assert.Equal(t, "other", readAll(t, rc))
	}

	// deleting nothing is fine
	assert.NoError(t, store.DeletePrefix(ctx, "certificates/c404"))
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	store, err := New(context.Background(), &core.Config{WorkDir: dir, Storage: core.StorageConfig{Driver: "local", LocalRoot: "media"}})
	if assert.NoError(t, err) {
		assert.IsType(t, &LocalStore{}, store)
		_, err = os.Stat(filepath.Join(dir, "media"))
		assert.NoError(t, err)
	}

	_, err = New(context.Background(), &core.Config{Storage: core.StorageConfig{Driver: "ftp"}})
	assert.EqualError(t, err, `unknown storage driver "ftp"`)

	_, err = New(context.Background(), &core.Config{Storage: core.StorageConfig{Driver: "s3"}})
	assert.EqualError(t, err, "storage.s3Bucket is required")
}
