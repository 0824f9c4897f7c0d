package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopress/memopress/lib/kv"
)

func TestAdvanceHead(t *testing.T) {
	ctx := context.Background()
	reg, err := New(kv.NewMemory())
	require.NoError(t, err)

	_, exists := reg.GetHead("alice")
	assert.False(t, exists)

	head, err := reg.AdvanceHead(ctx, "alice", "unit-1")
	require.NoError(t, err)
	assert.Equal(t, "unit-1", head.LatestUnitID)
	assert.Equal(t, 1, head.UnitCount)

	head, err = reg.AdvanceHead(ctx, "alice", "unit-2")
	require.NoError(t, err)
	assert.Equal(t, "unit-2", head.LatestUnitID)
	assert.Equal(t, 2, head.UnitCount)

	got, exists := reg.GetHead("alice")
	require.True(t, exists)
	assert.Equal(t, head.LatestUnitID, got.LatestUnitID)
	assert.False(t, got.LastUpdatedAt.IsZero())
}

func TestAdvanceHeadConcurrent(t *testing.T) {
	ctx := context.Background()
	reg, err := New(kv.NewMemory())
	require.NoError(t, err)

	const advances = 16

	var wg sync.WaitGroup
	for i := 0; i < advances; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.AdvanceHead(ctx, "alice", fmt.Sprintf("unit-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every read-modify-write lands; none are lost to interleaving.
	head, exists := reg.GetHead("alice")
	require.True(t, exists)
	assert.Equal(t, advances, head.UnitCount)
}

func TestHeadsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	reg, err := New(store)
	require.NoError(t, err)
	_, err = reg.AdvanceHead(ctx, "alice", "unit-9")
	require.NoError(t, err)

	reopened, err := New(store)
	require.NoError(t, err)

	head, exists := reopened.GetHead("alice")
	require.True(t, exists)
	assert.Equal(t, "unit-9", head.LatestUnitID)
	assert.Equal(t, 1, head.UnitCount)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	reg, err := New(kv.NewMemory())
	require.NoError(t, err)

	_, err = reg.AdvanceHead(ctx, "alice", "unit-1")
	require.NoError(t, err)
	require.NoError(t, reg.Remove(ctx, "alice"))

	_, exists := reg.GetHead("alice")
	assert.False(t, exists)
	assert.Empty(t, reg.ListActiveAuthors())
}

func TestListActiveAuthorsSorted(t *testing.T) {
	ctx := context.Background()
	reg, err := New(kv.NewMemory())
	require.NoError(t, err)

	for _, author := range []string{"carol", "alice", "bob"} {
		_, err := reg.AdvanceHead(ctx, author, "unit-"+author)
		require.NoError(t, err)
	}

	heads := reg.ListActiveAuthors()
	require.Len(t, heads, 3)
	assert.Equal(t, "alice", heads[0].Author)
	assert.Equal(t, "bob", heads[1].Author)
	assert.Equal(t, "carol", heads[2].Author)
}

func TestAcquireAuthorConflict(t *testing.T) {
	reg, err := New(kv.NewMemory())
	require.NoError(t, err)

	require.NoError(t, reg.AcquireAuthor("alice"))
	assert.ErrorIs(t, reg.AcquireAuthor("alice"), ErrConcurrentPublish)

	// A different author is unaffected.
	require.NoError(t, reg.AcquireAuthor("bob"))

	reg.ReleaseAuthor("alice")
	assert.NoError(t, reg.AcquireAuthor("alice"))
}
