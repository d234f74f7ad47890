package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := NewKey("pdfs", 7, "My Report (final).pdf")
	require.NoError(t, store.Put(ctx, key, []byte("%PDF-1.4"), "application/pdf"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), got)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	err = store.Put(context.Background(), "../outside.pdf", []byte("x"), "")
	assert.Error(t, err)
}

func TestNewKey(t *testing.T) {
	key := NewKey("/pdfs/", 3, "../../etc/pass wd.pdf")
	assert.True(t, strings.HasPrefix(key, "pdfs/users/3/"), key)
	assert.True(t, strings.HasSuffix(key, "-pass_wd.pdf"), key)
	assert.NotEqual(t, key, NewKey("pdfs", 3, "pass wd.pdf"))
	assert.True(t, strings.HasSuffix(NewKey("", 1, "???"), "-document.pdf"))
}
