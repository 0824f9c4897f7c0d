package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memopress/memopress/core/chunker"
	"github.com/memopress/memopress/core/constants"
	"github.com/memopress/memopress/core/ledger"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/registry"
	"github.com/memopress/memopress/lib/kv"
	"github.com/memopress/memopress/lib/logger"
)

var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrManifestNotFound  = errors.New("operation manifest not found")
	ErrInvalidStage      = errors.New("operation stage does not allow this")
	ErrLedgerFailed      = errors.New("ledger submission failed")
)

var log, _ = logger.New("publisher")

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Limits      chunker.Limits
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: constants.MAX_SUBMIT_ATTEMPTS,
		RetryDelay:  constants.RETRY_DELAY,
		Limits:      chunker.DefaultLimits(),
	}
}

// Publisher drives sequential submission of a document's chunks, tracks
// per-chunk and per-operation status, and supports cancel and resume. Chunk
// submissions within one operation are strictly index-ordered because each
// unit carries a reference to the previous one.
type Publisher struct {
	ledger   ledger.Ledger
	signer   ledger.Signer
	registry *registry.Registry
	store    *OperationStore
	cfg      Config

	mu      sync.Mutex
	ops     map[uuid.UUID]*model.PublishOperation
	cancels map[uuid.UUID]context.CancelFunc
}

func New(ldg ledger.Ledger, signer ledger.Signer, reg *registry.Registry, store kv.Store, cfg Config) (*Publisher, error) {
	p := &Publisher{
		ledger:   ldg,
		signer:   signer,
		registry: reg,
		store:    NewOperationStore(store),
		cfg:      cfg,
		ops:      make(map[uuid.UUID]*model.PublishOperation),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}

	ops, err := p.store.All(context.Background())
	if err != nil {
		return nil, err
	}

	for _, op := range ops {
		// An operation interrupted mid-publish by a crash comes back as
		// partial or error, depending on whether anything confirmed.
		if op.Stage == model.StagePublishing {
			if op.ConfirmedCount() > 0 {
				op.Stage = model.StagePartial
			} else {
				op.Stage = model.StageError
			}
		}
		p.ops[op.ID] = op
	}

	return p, nil
}

// CreateOperation splits the document and records a new operation in the
// preparing stage. Nothing touches the ledger until Publish.
func (p *Publisher) CreateOperation(ctx context.Context, document string) (model.PublishOperation, error) {
	chunks, err := chunker.Split(document, p.cfg.Limits)
	if err != nil {
		return model.PublishOperation{}, err
	}

	op := model.NewPublishOperation(p.signer.PublicIdentity(), chunks)
	if err := p.store.Save(ctx, &op); err != nil {
		return model.PublishOperation{}, err
	}

	p.mu.Lock()
	p.ops[op.ID] = &op
	p.mu.Unlock()

	log.Infow("create", "operation", op.ID, "author", op.Author, "chunks", len(chunks))
	return snapshot(&op), nil
}

// Publish runs a freshly prepared operation to a terminal or retryable
// stage. It blocks until the operation settles.
func (p *Publisher) Publish(ctx context.Context, id uuid.UUID) (model.PublishOperation, error) {
	return p.run(ctx, id, model.StagePreparing)
}

// Resume re-enters publishing over the chunks whose status is failed or
// pending. Already-published chunks are never resubmitted.
func (p *Publisher) Resume(ctx context.Context, id uuid.UUID) (model.PublishOperation, error) {
	return p.run(ctx, id, model.StagePartial, model.StageError)
}

func (p *Publisher) run(ctx context.Context, id uuid.UUID, from ...model.Stage) (model.PublishOperation, error) {
	op, err := p.get(id)
	if err != nil {
		return model.PublishOperation{}, err
	}

	p.mu.Lock()
	if !stageIn(op.Stage, from) {
		current := snapshot(op)
		p.mu.Unlock()
		return current, fmt.Errorf("%w: %s", ErrInvalidStage, current.Stage)
	}
	if err := p.registry.AcquireAuthor(op.Author); err != nil {
		current := snapshot(op)
		p.mu.Unlock()
		return current, err
	}

	op.Stage = model.StagePublishing
	cctx, cancel := context.WithCancel(ctx)
	p.cancels[id] = cancel
	p.mu.Unlock()

	defer func() {
		p.registry.ReleaseAuthor(op.Author)
		cancel()
		p.mu.Lock()
		delete(p.cancels, id)
		p.mu.Unlock()
	}()

	p.persist(op)

	prev := p.linkStart(op)
	cancelled := false
	var failure error

	for _, i := range op.NeedsWork() {
		// Cancellation is cooperative: checked before each submission; a
		// submission already in flight completes before it takes effect.
		if cctx.Err() != nil {
			cancelled = true
			break
		}

		env := model.UnitEnvelope{
			Protocol:  constants.PROTOCOL_NAME,
			Version:   constants.PROTOCOL_VERSION,
			Kind:      model.KindChunk,
			Author:    op.Author,
			Index:     i,
			Total:     len(op.Chunks),
			Hash:      op.Chunks[i].Hash,
			Prev:      prev,
			Timestamp: time.Now().Unix(),
			Data:      op.Chunks[i].Payload,
		}

		payload, err := env.Encode()
		if err != nil {
			p.markFailed(op, i, err)
			failure = err
			break
		}

		unitID, err := p.submitWithRetry(cctx, op, i, payload)
		if err != nil {
			if cctx.Err() != nil {
				cancelled = true
				break
			}

			p.markFailed(op, i, err)
			failure = err
			// Later chunks cannot link without this unit; they stay pending
			// and are picked up by Resume.
			break
		}

		p.markPublished(op, i, unitID)
		p.persist(op)
		prev = unitID
	}

	p.mu.Lock()
	confirmed := op.ConfirmedCount()
	switch {
	case cancelled || op.Stage == model.StageCancelled:
		op.Stage = model.StageCancelled
	case confirmed == len(op.Chunks):
		op.Stage = model.StageCompleted
	case failure != nil && !errors.Is(failure, ErrLedgerFailed):
		// Non-retriable failure (bad signer, unencodable payload).
		op.Stage = model.StageError
	case confirmed > 0:
		op.Stage = model.StagePartial
	default:
		op.Stage = model.StageError
	}
	stage := op.Stage
	p.mu.Unlock()

	if stage == model.StageCompleted {
		if err := p.finalize(ctx, op); err != nil {
			p.persist(op)
			return snapshot(op), err
		}
	}

	p.persist(op)
	log.Infow("publish", "operation", id, "stage", stage, "confirmed", confirmed, "total", len(op.Chunks))

	return snapshot(op), nil
}

// finalize advances the chain head and records the manifest. Runs only once
// every chunk has confirmed; this is the single place the head moves.
func (p *Publisher) finalize(ctx context.Context, op *model.PublishOperation) error {
	if last := op.LastUnitID(); last != "" {
		if _, err := p.registry.AdvanceHead(ctx, op.Author, last); err != nil {
			return fmt.Errorf("advance chain head: %w", err)
		}
	}

	return p.store.SaveManifest(ctx, model.NewManifest(op))
}

func (p *Publisher) submitWithRetry(ctx context.Context, op *model.PublishOperation, index int, payload []byte) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		p.mu.Lock()
		op.States[index].Attempts++
		p.mu.Unlock()

		unitID, err := p.ledger.Submit(ctx, payload, p.signer)
		if err == nil {
			return unitID, nil
		}
		if !ledger.IsTransient(err) {
			return "", err
		}

		lastErr = err
		log.Warnw("submit", "operation", op.ID, "chunk", index, "attempt", attempt, "error", err)

		// The transport may require a fresher anchor before accepting a
		// retry of a rejected submission.
		if _, terr := p.ledger.CurrentFreshnessToken(ctx); terr != nil {
			log.Warnw("submit", "status", "freshness token refresh failed", "error", terr)
		}

		if attempt < p.cfg.MaxAttempts {
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: chunk %d: %v", ErrLedgerFailed, index, ctx.Err())
			}
		}
	}

	return "", fmt.Errorf("%w: chunk %d after %d attempts: %v", ErrLedgerFailed, index, p.cfg.MaxAttempts, lastErr)
}

// Cancel stops a publishing operation cooperatively. Confirmed chunks stay
// on the ledger, harmless because the chain head never advances for a
// cancelled operation.
func (p *Publisher) Cancel(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	op, exists := p.ops[id]
	if !exists {
		return ErrOperationNotFound
	}
	if op.Stage != model.StagePublishing {
		return fmt.Errorf("%w: %s", ErrInvalidStage, op.Stage)
	}

	op.Stage = model.StageCancelled
	if cancel, ok := p.cancels[id]; ok {
		cancel()
	}

	log.Infow("cancel", "operation", id)
	return nil
}

// GetStatus returns a copy of the operation's current state.
func (p *Publisher) GetStatus(id uuid.UUID) (model.PublishOperation, error) {
	op, err := p.get(id)
	if err != nil {
		return model.PublishOperation{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot(op), nil
}

// Operations lists all known operations, oldest first.
func (p *Publisher) Operations() []model.PublishOperation {
	p.mu.Lock()
	defer p.mu.Unlock()

	ops := make([]model.PublishOperation, 0, len(p.ops))
	for _, op := range p.ops {
		ops = append(ops, snapshot(op))
	}

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})

	return ops
}

// Manifest returns the recorded manifest of a completed operation.
func (p *Publisher) Manifest(ctx context.Context, id uuid.UUID) (model.Manifest, error) {
	return p.store.LoadManifest(ctx, id)
}

func (p *Publisher) get(id uuid.UUID) (*model.PublishOperation, error) {
	p.mu.Lock()
	op, exists := p.ops[id]
	p.mu.Unlock()
	if exists {
		return op, nil
	}

	op, err := p.store.Load(context.Background(), id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.ops[id] = op
	p.mu.Unlock()

	return op, nil
}

// linkStart returns the previous-unit reference for the next submission: the
// last already-published chunk of this operation, or the author's chain head
// for chunk 0 of a fresh document. Empty means the chain terminator.
func (p *Publisher) linkStart(op *model.PublishOperation) string {
	if id := op.LastUnitID(); id != "" {
		return id
	}
	if head, exists := p.registry.GetHead(op.Author); exists {
		return head.LatestUnitID
	}

	return ""
}

func (p *Publisher) markPublished(op *model.PublishOperation, index int, unitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op.States[index].Status = model.ChunkPublished
	op.States[index].UnitID = unitID
	op.States[index].Reason = ""
}

func (p *Publisher) markFailed(op *model.PublishOperation, index int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op.States[index].Status = model.ChunkFailed
	op.States[index].Reason = err.Error()
}

func (p *Publisher) persist(op *model.PublishOperation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Persistence failures degrade resume-after-restart but must not abort a
	// publish that the ledger is accepting.
	if err := p.store.Save(context.Background(), op); err != nil {
		log.Errorw("persist", "operation", op.ID, "error", err)
	}
}

func snapshot(op *model.PublishOperation) model.PublishOperation {
	out := *op
	out.Chunks = append([]model.Chunk(nil), op.Chunks...)
	out.States = append([]model.ChunkState(nil), op.States...)

	return out
}

func stageIn(stage model.Stage, set []model.Stage) bool {
	for _, s := range set {
		if s == stage {
			return true
		}
	}

	return false
}
