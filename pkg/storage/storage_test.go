package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "member-cards/abc.pdf")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Write(ctx, "member-cards/abc.pdf", []byte("%PDF-1.7")))

	exists, err = store.Exists(ctx, "member-cards/abc.pdf")
	require.NoError(t, err)
	require.True(t, exists)

	data, err := store.Read(ctx, "member-cards/abc.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, store.Delete(ctx, "member-cards/abc.pdf"))
	_, err = store.Read(ctx, "member-cards/abc.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Write(context.Background(), "../outside.pdf", []byte("x"))
	require.Error(t, err)
}

func TestLocalStoreDeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "member-cards/missing.pdf"))
}
