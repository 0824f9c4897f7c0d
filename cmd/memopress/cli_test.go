package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// A failed newNode must release every leveldb handle it opened: pointing the
// ledger at the store's directory makes the second open fail on the leveldb
// lock, and a retry with a distinct ledger path only succeeds if the store
// handle was closed on the way out.
func TestNewNodeReleasesHandlesOnError(t *testing.T) {
	storeDir := t.TempDir()

	t.Setenv("MEMOPRESS_STORE_PATH", storeDir)
	t.Setenv("MEMOPRESS_LEDGER_PATH", storeDir)

	_, err := newNode(context.Background())
	require.Error(t, err)

	t.Setenv("MEMOPRESS_LEDGER_PATH", t.TempDir())

	n, err := newNode(context.Background())
	require.NoError(t, err)
	n.Close()

	// Reopening both paths proves Close released them too.
	n, err = newNode(context.Background())
	require.NoError(t, err)
	n.Close()
}
