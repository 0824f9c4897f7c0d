package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/memopress/memopress/core/chunker"
	"github.com/memopress/memopress/core/constants"
	"github.com/memopress/memopress/core/ledger"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/registry"
	"github.com/memopress/memopress/core/verifier"
	"github.com/memopress/memopress/lib/logger"
)

var ErrNoDocument = errors.New("author has no document")

var log, _ = logger.New("feed")

const feedCacheKey = "feed"

// Options bound one feed build.
type Options struct {
	LimitPerAuthor int
	MaxTotal       int
	CacheTTL       time.Duration
	UseCache       bool
}

func DefaultOptions() Options {
	return Options{
		LimitPerAuthor: constants.FEED_LIMIT_PER_AUTHOR,
		MaxTotal:       constants.FEED_MAX_TOTAL,
		CacheTTL:       constants.FEED_CACHE_TTL,
		UseCache:       true,
	}
}

// Reconstructor assembles documents and multi-author feeds by walking chains
// backward from each author's head. The cache holds only the most recent
// successful build and is replaced wholesale, never patched.
type Reconstructor struct {
	ledger   ledger.Ledger
	registry *registry.Registry
	cache    *gocache.Cache
}

func New(ldg ledger.Ledger, reg *registry.Registry) *Reconstructor {
	return &Reconstructor{
		ledger:   ldg,
		registry: reg,
		cache:    gocache.New(constants.FEED_CACHE_TTL, time.Minute),
	}
}

// BuildFeed walks every active author's chain concurrently, merges the
// results and returns them sorted by timestamp descending, truncated to
// opts.MaxTotal. A broken chain stops that author's walk only; the feed
// still includes everyone else.
func (r *Reconstructor) BuildFeed(ctx context.Context, opts Options) ([]model.FeedEntry, error) {
	if opts.UseCache {
		if cached, found := r.cache.Get(feedCacheKey); found {
			return cached.([]model.FeedEntry), nil
		}
	}

	heads := r.registry.ListActiveAuthors()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		entries []model.FeedEntry
	)

	for _, head := range heads {
		wg.Add(1)
		go func(head model.ChainHead) {
			defer wg.Done()

			authorEntries := r.walkAuthor(ctx, head, opts.LimitPerAuthor)

			mu.Lock()
			entries = append(entries, authorEntries...)
			mu.Unlock()
		}(head)
	}
	wg.Wait()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].UnitID > entries[j].UnitID
	})

	if opts.MaxTotal > 0 && len(entries) > opts.MaxTotal {
		entries = entries[:opts.MaxTotal]
	}

	if opts.CacheTTL > 0 {
		r.cache.Set(feedCacheKey, entries, opts.CacheTTL)
	}

	return entries, nil
}

// walkAuthor collects up to limit entries for one author. The first error
// ends the walk; it is logged and swallowed so other authors still appear.
func (r *Reconstructor) walkAuthor(ctx context.Context, head model.ChainHead, limit int) []model.FeedEntry {
	w := NewWalker(r.ledger, head.LatestUnitID)
	entries := make([]model.FeedEntry, 0, limit)

	for limit <= 0 || len(entries) < limit {
		entry, err := w.Next(ctx)
		if err != nil {
			log.Warnw("walk", "author", head.Author, "status", "chain walk aborted", "error", err)
			break
		}
		if entry == nil {
			break
		}

		entries = append(entries, *entry)
	}

	return entries
}

// GetUnitsForAuthor is the single-author variant used for full-document
// reconstruction. Unlike BuildFeed, walk errors are surfaced.
func (r *Reconstructor) GetUnitsForAuthor(ctx context.Context, author string, limit int) ([]model.FeedEntry, error) {
	head, exists := r.registry.GetHead(author)
	if !exists {
		return nil, registry.ErrUnknownAuthor
	}

	w := NewWalker(r.ledger, head.LatestUnitID)
	entries := make([]model.FeedEntry, 0)

	for limit <= 0 || len(entries) < limit {
		entry, err := w.Next(ctx)
		if err != nil {
			return entries, err
		}
		if entry == nil {
			break
		}

		entries = append(entries, *entry)
	}

	return entries, nil
}

// Document reassembles the author's most recently published document by
// collecting units back to that document's chunk 0, verifying every chunk
// and inverting the split.
func (r *Reconstructor) Document(ctx context.Context, author string) (string, error) {
	head, exists := r.registry.GetHead(author)
	if !exists {
		return "", registry.ErrUnknownAuthor
	}

	next := head.LatestUnitID
	chunks := make([]model.Chunk, 0)

	for next != "" {
		raw, err := r.ledger.Fetch(ctx, next)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", next, err)
		}

		env, err := model.DecodeEnvelope(raw)
		if err != nil {
			return "", fmt.Errorf("unit %s: %w", next, err)
		}
		if env.Kind != model.KindChunk {
			break
		}

		chunk := model.Chunk{Index: env.Index, TotalChunks: env.Total, Payload: env.Data, Hash: env.Hash}
		if !verifier.VerifyChunk(chunk) {
			return "", fmt.Errorf("%w: %s", ErrCorruptUnit, next)
		}
		chunks = append(chunks, chunk)

		if env.Index == 0 {
			break
		}
		next = env.Prev
	}

	if len(chunks) == 0 {
		return "", ErrNoDocument
	}

	// The walk collected the document highest index first.
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}

	return chunker.Reassemble(chunks)
}

// InvalidateCache drops the cached feed so the next build hits the ledger.
func (r *Reconstructor) InvalidateCache() {
	r.cache.Flush()
}
