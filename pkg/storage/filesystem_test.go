package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutOpenAndSignedURL(t *testing.T) {
	ctx := context.Background()
	signer := NewDownloadSigner("secret", time.Hour)
	store, err := NewLocalStorage(t.TempDir(), signer, "/api/v1/downloads/")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "reports/s1/r1.pdf", []byte("%PDF"), "application/pdf"))

	rc, err := store.Open(ctx, "reports/s1/r1.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body))

	url, _, err := store.DownloadURL(ctx, "reports/s1/r1.pdf")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/api/v1/downloads/"))

	key, err := store.ResolveToken(strings.TrimPrefix(url, "/api/v1/downloads/"))
	require.NoError(t, err)
	assert.Equal(t, "reports/s1/r1.pdf", key)
}

func TestLocalStorageOpenMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), nil, "")
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageKeepsKeysInsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, nil, "")
	require.NoError(t, err)

	path, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, dir))
}
