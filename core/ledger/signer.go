package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/memopress/memopress/lib/kv"
)

const identityKey = "identity/local"

// LocalSigner is a kv-persisted ed25519 identity for local use. Real wallet
// custody sits outside the engine; this exists so the CLI can run against
// the dev ledger.
type LocalSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// LoadOrCreateSigner returns the stored identity, generating and persisting
// one on first use.
func LoadOrCreateSigner(ctx context.Context, store kv.Store) (*LocalSigner, error) {
	seed, found, err := store.Get(ctx, identityKey)
	if err != nil {
		return nil, err
	}

	if !found {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}
		if err := store.Set(ctx, identityKey, seed); err != nil {
			return nil, err
		}
	}

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("stored identity seed has length %d", len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)

	return &LocalSigner{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}

func (s *LocalSigner) PublicIdentity() string {
	return hex.EncodeToString(s.pub)
}

func (s *LocalSigner) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, payload), nil
}
