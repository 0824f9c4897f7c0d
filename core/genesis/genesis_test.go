package genesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopress/memopress/core/feed"
	"github.com/memopress/memopress/core/ledger/ledgertest"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/registry"
	"github.com/memopress/memopress/lib/kv"
)

func newAnchor(t *testing.T, author string) (*Anchor, *ledgertest.Ledger, *registry.Registry) {
	t.Helper()

	store := kv.NewMemory()
	reg, err := registry.New(store)
	require.NoError(t, err)

	ldg := ledgertest.New()
	return NewAnchor(ldg, ledgertest.Signer{ID: author}, reg, store), ldg, reg
}

func TestDeriveAuthorGenesisHashDeterministic(t *testing.T) {
	a := DeriveAuthorGenesisHash("alice", "unit-0001", "blog")
	b := DeriveAuthorGenesisHash("alice", "unit-0001", "blog")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, DeriveAuthorGenesisHash("bob", "unit-0001", "blog"))
	assert.NotEqual(t, a, DeriveAuthorGenesisHash("alice", "unit-0002", "blog"))
	assert.NotEqual(t, a, DeriveAuthorGenesisHash("alice", "unit-0001", "notes"))
}

func TestVerify(t *testing.T) {
	rec := model.GenesisRecord{
		RootID:      "unit-0001",
		Author:      "alice",
		Label:       "blog",
		DerivedHash: DeriveAuthorGenesisHash("alice", "unit-0001", "blog"),
	}
	assert.True(t, Verify(rec))

	rec.Label = "tampered"
	assert.False(t, Verify(rec))
}

func TestPublishRootSingleton(t *testing.T) {
	anchor, ldg, _ := newAnchor(t, "alice")
	ctx := context.Background()

	first, err := anchor.PublishRoot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.RootID)

	second, err := anchor.PublishRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RootID, second.RootID)
	assert.Equal(t, first.DerivedHash, second.DerivedHash)
	assert.Equal(t, 1, ldg.Submissions)
}

func TestPublishAuthorGenesisIdempotent(t *testing.T) {
	anchor, ldg, reg := newAnchor(t, "alice")
	ctx := context.Background()

	rec, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)
	require.NotEmpty(t, rec.AuthorGenesisID)
	assert.True(t, Verify(rec))

	// Root plus genesis.
	assert.Equal(t, 2, ldg.Submissions)

	again, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, 2, ldg.Submissions)

	head, exists := reg.GetHead("alice")
	require.True(t, exists)
	assert.Equal(t, rec.AuthorGenesisID, head.LatestUnitID)

	stored, found, err := anchor.Record(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, stored)
}

// Genesis publication moves the chain head, so it must not interleave with
// an active publish for the same author.
func TestAuthorGenesisConflictsWithActivePublish(t *testing.T) {
	anchor, ldg, reg := newAnchor(t, "alice")
	ctx := context.Background()

	require.NoError(t, reg.AcquireAuthor("alice"))

	_, err := anchor.PublishAuthorGenesis(ctx, "blog")
	assert.ErrorIs(t, err, registry.ErrConcurrentPublish)
	assert.Equal(t, 0, ldg.Submissions)

	reg.ReleaseAuthor("alice")

	rec, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)

	// Once recorded, the cached record is served even while a publish holds
	// the slot.
	require.NoError(t, reg.AcquireAuthor("alice"))
	defer reg.ReleaseAuthor("alice")

	again, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, rec, again)
}

// The genesis unit seeded as the chain head must act as a walk terminator,
// not show up as feed content.
func TestGenesisUnitTerminatesWalk(t *testing.T) {
	anchor, ldg, reg := newAnchor(t, "alice")
	ctx := context.Background()

	_, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)

	rec := feed.New(ldg, reg)
	entries, err := rec.GetUnitsForAuthor(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateUnit(t *testing.T) {
	anchor, _, _ := newAnchor(t, "alice")
	ctx := context.Background()

	rec, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)

	require.NoError(t, anchor.ValidateUnit(ctx, rec.AuthorGenesisID, rec))

	tampered := rec
	tampered.DerivedHash = DeriveAuthorGenesisHash("mallory", rec.RootID, rec.Label)
	err = anchor.ValidateUnit(ctx, rec.AuthorGenesisID, tampered)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateUnitRejectsChunkKind(t *testing.T) {
	anchor, ldg, _ := newAnchor(t, "alice")
	ctx := context.Background()

	rec, err := anchor.PublishAuthorGenesis(ctx, "blog")
	require.NoError(t, err)

	env := model.UnitEnvelope{Kind: model.KindChunk, Author: "alice", Hash: rec.DerivedHash}
	raw, err := env.Encode()
	require.NoError(t, err)

	id, err := ldg.Submit(ctx, raw, ledgertest.Signer{ID: "alice"})
	require.NoError(t, err)

	err = anchor.ValidateUnit(ctx, id, rec)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
