package genesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/memopress/memopress/core/constants"
	"github.com/memopress/memopress/core/ledger"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/registry"
	"github.com/memopress/memopress/lib/hashing"
	"github.com/memopress/memopress/lib/kv"
	"github.com/memopress/memopress/lib/logger"
)

var ErrValidationFailed = errors.New("genesis validation failed")

var log, _ = logger.New("genesis")

const (
	hashDomain = "memopress.genesis"
	rootLabel  = "memopress-root"

	rootKey         = "genesis/root"
	authorKeyPrefix = "genesis/authors/"
)

// DeriveAuthorGenesisHash derives the deterministic identity-binding hash
// that seeds an author's chain. Pure function, no I/O; identical inputs
// always produce the identical hash.
func DeriveAuthorGenesisHash(authorIdentity, rootID, label string) string {
	return hashing.Tagged(hashDomain, []byte(authorIdentity), []byte(rootID), []byte(label))
}

// Verify recomputes a record's derived hash and compares.
func Verify(rec model.GenesisRecord) bool {
	return rec.DerivedHash == DeriveAuthorGenesisHash(rec.Author, rec.RootID, rec.Label)
}

// Anchor publishes and validates the identity records that anchor every
// chain: one platform root, then one genesis per author.
type Anchor struct {
	ledger   ledger.Ledger
	signer   ledger.Signer
	registry *registry.Registry
	store    kv.Store

	mu sync.Mutex
}

func NewAnchor(ldg ledger.Ledger, signer ledger.Signer, reg *registry.Registry, store kv.Store) *Anchor {
	return &Anchor{
		ledger:   ldg,
		signer:   signer,
		registry: reg,
		store:    store,
	}
}

// PublishRoot creates the platform root exactly once. Later calls return the
// cached record; its content never changes.
func (a *Anchor) PublishRoot(ctx context.Context) (model.GenesisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.publishRootLocked(ctx)
}

func (a *Anchor) publishRootLocked(ctx context.Context) (model.GenesisRecord, error) {
	var rec model.GenesisRecord

	b, found, err := a.store.Get(ctx, rootKey)
	if err != nil {
		return rec, err
	}
	if found {
		err = json.Unmarshal(b, &rec)
		return rec, err
	}

	derived := hashing.Tagged(hashDomain, []byte(rootLabel))
	env := model.UnitEnvelope{
		Protocol:  constants.PROTOCOL_NAME,
		Version:   constants.PROTOCOL_VERSION,
		Kind:      model.KindRoot,
		Author:    a.signer.PublicIdentity(),
		Hash:      derived,
		Timestamp: time.Now().Unix(),
		Data:      []byte(rootLabel),
	}

	payload, err := env.Encode()
	if err != nil {
		return rec, err
	}

	id, err := a.ledger.Submit(ctx, payload, a.signer)
	if err != nil {
		return rec, fmt.Errorf("publish root: %w", err)
	}

	rec = model.GenesisRecord{
		RootID:      id,
		Author:      a.signer.PublicIdentity(),
		Label:       rootLabel,
		DerivedHash: derived,
	}

	b, err = json.Marshal(rec)
	if err != nil {
		return rec, err
	}
	if err := a.store.Set(ctx, rootKey, b); err != nil {
		return rec, err
	}

	log.Infow("root", "status", "published platform root", "unit", id)
	return rec, nil
}

// PublishAuthorGenesis anchors the signing author's chain at a derived
// identity hash and seeds the chain head with the genesis unit, so the feed
// walker has a terminator to stop at. Idempotent per author.
func (a *Anchor) PublishAuthorGenesis(ctx context.Context, label string) (model.GenesisRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	author := a.signer.PublicIdentity()

	b, found, err := a.store.Get(ctx, authorKeyPrefix+author)
	if err != nil {
		return model.GenesisRecord{}, err
	}
	if found {
		var rec model.GenesisRecord
		err = json.Unmarshal(b, &rec)
		return rec, err
	}

	// Genesis publication advances the author's chain head, so it claims the
	// same publish slot the orchestrator does. An active publish wins.
	if err := a.registry.AcquireAuthor(author); err != nil {
		return model.GenesisRecord{}, err
	}
	defer a.registry.ReleaseAuthor(author)

	root, err := a.publishRootLocked(ctx)
	if err != nil {
		return model.GenesisRecord{}, err
	}

	derived := DeriveAuthorGenesisHash(author, root.RootID, label)
	env := model.UnitEnvelope{
		Protocol:  constants.PROTOCOL_NAME,
		Version:   constants.PROTOCOL_VERSION,
		Kind:      model.KindGenesis,
		Author:    author,
		Hash:      derived,
		Prev:      root.RootID,
		Timestamp: time.Now().Unix(),
		Data:      []byte(label),
	}

	payload, err := env.Encode()
	if err != nil {
		return model.GenesisRecord{}, err
	}

	id, err := a.ledger.Submit(ctx, payload, a.signer)
	if err != nil {
		return model.GenesisRecord{}, fmt.Errorf("publish author genesis: %w", err)
	}

	rec := model.GenesisRecord{
		RootID:          root.RootID,
		AuthorGenesisID: id,
		Author:          author,
		Label:           label,
		DerivedHash:     derived,
	}

	b, err = json.Marshal(rec)
	if err != nil {
		return rec, err
	}
	if err := a.store.Set(ctx, authorKeyPrefix+author, b); err != nil {
		return rec, err
	}

	if _, err := a.registry.AdvanceHead(ctx, author, id); err != nil {
		return rec, err
	}

	log.Infow("genesis", "status", "published author genesis", "author", author, "unit", id)
	return rec, nil
}

// Record returns the stored genesis record for an author, if any.
func (a *Anchor) Record(ctx context.Context, author string) (model.GenesisRecord, bool, error) {
	var rec model.GenesisRecord

	b, found, err := a.store.Get(ctx, authorKeyPrefix+author)
	if err != nil || !found {
		return rec, false, err
	}

	err = json.Unmarshal(b, &rec)
	return rec, err == nil, err
}

// ValidateUnit structurally checks a genesis unit fetched back from the
// ledger against the expected record. Unexpected protocol or version tags
// only warn; a derived-hash mismatch is fatal, since it implies the identity
// anchor was tampered with.
func (a *Anchor) ValidateUnit(ctx context.Context, unitID string, want model.GenesisRecord) error {
	raw, err := a.ledger.Fetch(ctx, unitID)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", unitID, err)
	}

	env, err := model.DecodeEnvelope(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if env.Kind != model.KindGenesis && env.Kind != model.KindRoot {
		return fmt.Errorf("%w: unit %s has kind %q", ErrValidationFailed, unitID, env.Kind)
	}

	if env.Protocol != constants.PROTOCOL_NAME || env.Version != constants.PROTOCOL_VERSION {
		log.Warnw("validate", "status", "unexpected protocol tags", "unit", unitID,
			"protocol", env.Protocol, "version", env.Version)
	}

	if !Verify(want) || env.Hash != want.DerivedHash {
		return fmt.Errorf("%w: hash mismatch for unit %s", ErrValidationFailed, unitID)
	}

	return nil
}
