package ledger

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("unit not found")
	ErrTransient = errors.New("transient ledger failure")
)

// Ledger is the append-only transport the engine publishes through. Payloads
// are opaque to the ledger; Submit confirms one as a new addressable unit.
type Ledger interface {
	Submit(ctx context.Context, payload []byte, signer Signer) (string, error)
	Fetch(ctx context.Context, unitID string) ([]byte, error)

	// CurrentFreshnessToken returns whatever the transport needs to accept a
	// submission (a recent anchor, a validity-window marker). Refreshed
	// before retrying a rejected submission.
	CurrentFreshnessToken(ctx context.Context) (string, error)
}

// Signer supplies the publishing identity. The engine never inspects it
// beyond use.
type Signer interface {
	PublicIdentity() string
	Sign(payload []byte) ([]byte, error)
}

// IsTransient reports whether err is retriable within the submit budget.
// Timeouts count as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
