package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memopress/memopress/core/chunker"
	"github.com/memopress/memopress/core/ledger"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/verifier"
	"github.com/memopress/memopress/lib/compress"
)

var ErrCorruptUnit = errors.New("unit failed verification")

// Walker lazily steps backward through one author's chain, producing one
// entry per step. It stops at the chain terminator or the author's genesis
// unit. A walker can be abandoned and a new one started from any unit id.
type Walker struct {
	ledger ledger.Ledger
	next   string
}

func NewWalker(ldg ledger.Ledger, head string) *Walker {
	return &Walker{ledger: ldg, next: head}
}

// Next returns the next entry walking backward, or (nil, nil) once the chain
// is exhausted. Hash mismatches and decompression failures are reported as
// ErrCorruptUnit, never repaired.
func (w *Walker) Next(ctx context.Context) (*model.FeedEntry, error) {
	if w.next == "" {
		return nil, nil
	}

	unitID := w.next

	raw, err := w.ledger.Fetch(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", unitID, err)
	}

	env, err := model.DecodeEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", unitID, err)
	}

	// Genesis anchors terminate the walk without producing an entry.
	if env.Kind != model.KindChunk {
		w.next = ""
		return nil, nil
	}

	chunk := model.Chunk{Index: env.Index, TotalChunks: env.Total, Payload: env.Data, Hash: env.Hash}
	if !verifier.VerifyChunk(chunk) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptUnit, unitID)
	}

	body, err := compress.Decompress(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", chunker.ErrCorruptChunk, unitID, err)
	}

	w.next = env.Prev

	return &model.FeedEntry{
		UnitID:         unitID,
		Author:         env.Author,
		Timestamp:      time.Unix(env.Timestamp, 0),
		Body:           string(body),
		PreviousUnitID: env.Prev,
		Index:          env.Index,
		TotalChunks:    env.Total,
	}, nil
}
