package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/memopress/memopress/core/ledger"
)

// Ledger is an in-memory fake with scriptable failures and a submission spy.
type Ledger struct {
	mu    sync.Mutex
	units map[string][]byte
	seq   int

	// Submissions counts every Submit call, including failed ones.
	Submissions int

	// TokenCalls counts CurrentFreshnessToken calls.
	TokenCalls int

	// FailSubmission maps a 1-based submission ordinal to the error returned
	// for that call. The entry is consumed, so a retry of the same chunk
	// succeeds unless scripted again.
	FailSubmission map[int]error

	// SubmitHook, when set, runs before each submission and can veto it.
	SubmitHook func(ordinal int, payload []byte) error

	// FailFetch maps unit ids to fetch errors.
	FailFetch map[string]error
}

func New() *Ledger {
	return &Ledger{
		units:          make(map[string][]byte),
		FailSubmission: make(map[int]error),
		FailFetch:      make(map[string]error),
	}
}

func (l *Ledger) Submit(ctx context.Context, payload []byte, signer ledger.Signer) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Submissions++

	if err, scripted := l.FailSubmission[l.Submissions]; scripted {
		delete(l.FailSubmission, l.Submissions)
		return "", err
	}

	if l.SubmitHook != nil {
		if err := l.SubmitHook(l.Submissions, payload); err != nil {
			return "", err
		}
	}

	l.seq++
	id := fmt.Sprintf("unit-%04d", l.seq)
	stored := make([]byte, len(payload))
	copy(stored, payload)
	l.units[id] = stored

	return id, nil
}

func (l *Ledger) Fetch(ctx context.Context, unitID string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err, scripted := l.FailFetch[unitID]; scripted {
		return nil, err
	}

	b, found := l.units[unitID]
	if !found {
		return nil, ledger.ErrNotFound
	}

	return b, nil
}

func (l *Ledger) CurrentFreshnessToken(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.TokenCalls++
	return fmt.Sprintf("token-%d", l.TokenCalls), nil
}

// Corrupt flips one byte of a stored unit's payload in place.
func (l *Ledger) Corrupt(unitID string, offset int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, found := l.units[unitID]; found && offset < len(b) {
		b[offset] ^= 0xff
	}
}

// Signer is a static identity for tests.
type Signer struct {
	ID string
}

func (s Signer) PublicIdentity() string {
	return s.ID
}

func (s Signer) Sign(payload []byte) ([]byte, error) {
	return []byte("sig:" + s.ID), nil
}
