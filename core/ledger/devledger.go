package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memopress/memopress/lib/hashing"
	"github.com/memopress/memopress/lib/kv"
)

const unitKeyPrefix = "units/"

// DevLedger is a local, kv-backed stand-in for a real chain. It lets the
// whole pipeline run end to end without network access. Unit ids are derived
// from the payload hash plus a nonce so resubmitting identical payloads
// still yields distinct units.
type DevLedger struct {
	store kv.Store
}

func NewDevLedger(store kv.Store) *DevLedger {
	return &DevLedger{store: store}
}

func (l *DevLedger) Submit(ctx context.Context, payload []byte, signer Signer) (string, error) {
	if _, err := signer.Sign(payload); err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}

	id := hashing.Tagged("memopress.unit", payload, []byte(uuid.NewString()))
	if err := l.store.Set(ctx, unitKeyPrefix+id, payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}

	return id, nil
}

func (l *DevLedger) Fetch(ctx context.Context, unitID string) ([]byte, error) {
	b, found, err := l.store.Get(ctx, unitKeyPrefix+unitID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	return b, nil
}

func (l *DevLedger) CurrentFreshnessToken(ctx context.Context) (string, error) {
	return fmt.Sprintf("%d", time.Now().Unix()), nil
}
