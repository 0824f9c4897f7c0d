package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/memopress/memopress/core/model"
	concurrentMap "github.com/memopress/memopress/lib/concurrent_map"
	"github.com/memopress/memopress/lib/keyedmutex"
	"github.com/memopress/memopress/lib/kv"
	"github.com/memopress/memopress/lib/logger"
)

var (
	ErrConcurrentPublish = errors.New("publish already in flight for author")
	ErrUnknownAuthor     = errors.New("unknown author")
)

var log, _ = logger.New("registry")

const headKeyPrefix = "chain-heads/"

// Registry tracks each author's chain head and enforces one in-flight
// publish per author. Heads are persisted to the kv store before the cached
// copy is replaced, so a crash never leaves the cache ahead of disk.
type Registry struct {
	heads concurrentMap.Map[string, model.ChainHead]
	locks *keyedmutex.KeyedMutex
	store kv.Store

	// Serializes head read-modify-write cycles. The per-author publish lock
	// does not cover genesis publication, which also advances heads.
	mu sync.Mutex
}

func New(store kv.Store) (*Registry, error) {
	r := &Registry{
		heads: concurrentMap.NewMap[string, model.ChainHead](),
		locks: keyedmutex.New(),
		store: store,
	}

	if err := r.load(context.Background()); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	keys, err := r.store.ListKeys(ctx, headKeyPrefix)
	if err != nil {
		return err
	}

	for _, key := range keys {
		b, found, err := r.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		var head model.ChainHead
		if err := json.Unmarshal(b, &head); err != nil {
			log.Warnw("load", "status", "skipping unreadable chain head", "key", key, "error", err)
			continue
		}

		r.heads.Set(head.Author, head)
	}

	return nil
}

func (r *Registry) GetHead(author string) (model.ChainHead, bool) {
	head, exists := r.heads.Get(author)
	if !exists {
		return model.ChainHead{}, false
	}

	return *head, true
}

// AdvanceHead replaces the author's latest unit id and increments the unit
// count. Callers must only pass ids of fully confirmed units; the publisher
// calls this strictly after an operation's last chunk confirms.
func (r *Registry) AdvanceHead(ctx context.Context, author, unitID string) (model.ChainHead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, exists := r.GetHead(author)
	if !exists {
		head = model.ChainHead{Author: author}
	}

	head.LatestUnitID = unitID
	head.UnitCount++
	head.LastUpdatedAt = time.Now()

	b, err := json.Marshal(head)
	if err != nil {
		return model.ChainHead{}, err
	}
	if err := r.store.Set(ctx, headKeyPrefix+author, b); err != nil {
		return model.ChainHead{}, err
	}

	r.heads.Set(author, head)
	log.Infow("advance", "author", author, "unit", unitID, "count", head.UnitCount)

	return head, nil
}

// Remove deregisters an author.
func (r *Registry) Remove(ctx context.Context, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Remove(ctx, headKeyPrefix+author); err != nil {
		return err
	}

	r.heads.Delete(author)
	return nil
}

// ListActiveAuthors returns heads with at least one published unit, ordered
// by author for deterministic output.
func (r *Registry) ListActiveAuthors() []model.ChainHead {
	heads := make([]model.ChainHead, 0)

	r.heads.Range(func(_ string, head model.ChainHead) bool {
		if head.Active() {
			heads = append(heads, head)
		}
		return true
	})

	sort.Slice(heads, func(i, j int) bool {
		return heads[i].Author < heads[j].Author
	})

	return heads
}

// AcquireAuthor claims the author's publish slot. A second concurrent claim
// fails fast with ErrConcurrentPublish rather than racing on a stale head.
func (r *Registry) AcquireAuthor(author string) error {
	if !r.locks.TryLock(author) {
		return ErrConcurrentPublish
	}

	return nil
}

func (r *Registry) ReleaseAuthor(author string) {
	r.locks.Unlock(author)
}
