package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/memopress/memopress/core/chunker"
	"github.com/memopress/memopress/core/feed"
	"github.com/memopress/memopress/core/genesis"
	"github.com/memopress/memopress/core/ledger"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/core/publisher"
	"github.com/memopress/memopress/core/registry"
	"github.com/memopress/memopress/lib/kv"
)

type node struct {
	store     kv.Store
	ledgerKV  kv.Store
	signer    *ledger.LocalSigner
	registry  *registry.Registry
	publisher *publisher.Publisher
	feed      *feed.Reconstructor
	anchor    *genesis.Anchor
}

func newNode(ctx context.Context) (*node, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}

	store, err := kv.NewLevelDB(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	ledgerKV, err := kv.NewLevelDB(cfg.Ledger.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	// Both handles are open from here on; every failure path releases them.
	n := &node{store: store, ledgerKV: ledgerKV}

	ldg := ledger.NewDevLedger(ledgerKV)

	signer, err := ledger.LoadOrCreateSigner(ctx, store)
	if err != nil {
		n.Close()
		return nil, err
	}

	reg, err := registry.New(store)
	if err != nil {
		n.Close()
		return nil, err
	}

	pcfg := publisher.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		RetryDelay:  cfg.Retry.Delay,
		Limits: chunker.Limits{
			TargetChunkChars: cfg.Chunking.TargetChars,
			MaxUnitBytes:     cfg.Chunking.MaxUnitBytes,
		},
	}

	pub, err := publisher.New(ldg, signer, reg, store, pcfg)
	if err != nil {
		n.Close()
		return nil, err
	}

	n.signer = signer
	n.registry = reg
	n.publisher = pub
	n.feed = feed.New(ldg, reg)
	n.anchor = genesis.NewAnchor(ldg, signer, reg, store)

	return n, nil
}

func (n *node) Close() {
	n.store.Close()
	n.ledgerKV.Close()
}

func operationID(ctx *cli.Context) (uuid.UUID, error) {
	return uuid.Parse(ctx.String("operation"))
}

func printOperation(op model.PublishOperation) {
	fmt.Printf("operation %s\n  author   %s\n  stage    %s\n  progress %d%%\n  chunks   %d/%d confirmed\n",
		op.ID, op.Author, op.Stage, op.Progress(), op.ConfirmedCount(), len(op.Chunks))
}

var publishCmd = &cli.Command{
	Name:  "publish",
	Usage: "Split a text file into chunks and publish it to the ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Required: true,
			Usage:    "Path to the text file to publish",
		},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		content, err := os.ReadFile(ctx.String("file"))
		if err != nil {
			return err
		}

		op, err := n.publisher.CreateOperation(cctx, string(content))
		if err != nil {
			return err
		}

		log.Infow("publish", "operation", op.ID, "chunks", len(op.Chunks))

		op, err = n.publisher.Publish(cctx, op.ID)
		if err != nil {
			return err
		}

		n.feed.InvalidateCache()
		printOperation(op)
		return nil
	},
}

var resumeCmd = &cli.Command{
	Name:  "resume",
	Usage: "Resume a partial or failed operation; published chunks are skipped",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "operation", Required: true, Usage: "Operation id"},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		id, err := operationID(ctx)
		if err != nil {
			return err
		}

		op, err := n.publisher.Resume(cctx, id)
		if err != nil {
			return err
		}

		n.feed.InvalidateCache()
		printOperation(op)
		return nil
	},
}

var cancelCmd = &cli.Command{
	Name:  "cancel",
	Usage: "Cancel a publishing operation",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "operation", Required: true, Usage: "Operation id"},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		id, err := operationID(ctx)
		if err != nil {
			return err
		}

		return n.publisher.Cancel(id)
	},
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "Show an operation's stage, progress and per-chunk states",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "operation", Required: true, Usage: "Operation id"},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		id, err := operationID(ctx)
		if err != nil {
			return err
		}

		op, err := n.publisher.GetStatus(id)
		if err != nil {
			return err
		}

		printOperation(op)
		for i, s := range op.States {
			line := fmt.Sprintf("  chunk %-4d %-10s attempts=%d", i, s.Status, s.Attempts)
			if s.UnitID != "" {
				line += " unit=" + s.UnitID
			}
			if s.Reason != "" {
				line += " reason=" + s.Reason
			}
			fmt.Println(line)
		}
		return nil
	},
}

var operationsCmd = &cli.Command{
	Name:  "operations",
	Usage: "List all known operations",
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		for _, op := range n.publisher.Operations() {
			fmt.Printf("%s  %-10s  %3d%%  %d chunks  %s\n",
				op.ID, op.Stage, op.Progress(), len(op.Chunks), op.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var feedCmd = &cli.Command{
	Name:  "feed",
	Usage: "Reconstruct the multi-author feed, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit-per-author", Value: 25},
		&cli.IntFlag{Name: "max-total", Value: 100},
		&cli.BoolFlag{Name: "no-cache", Usage: "Force a full rebuild"},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		opts := feed.DefaultOptions()
		opts.LimitPerAuthor = ctx.Int("limit-per-author")
		opts.MaxTotal = ctx.Int("max-total")
		opts.UseCache = !ctx.Bool("no-cache")

		entries, err := n.feed.BuildFeed(cctx, opts)
		if err != nil {
			return err
		}

		for _, e := range entries {
			fmt.Printf("[%s] %s (%d/%d)\n%s\n\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Author, e.Index+1, e.TotalChunks, e.Body)
		}
		return nil
	},
}

var readCmd = &cli.Command{
	Name:  "read",
	Usage: "Reassemble an author's most recent document",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "author", Usage: "Author public identity (defaults to the local identity)"},
	},
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		author := ctx.String("author")
		if author == "" {
			author = n.signer.PublicIdentity()
		}

		doc, err := n.feed.Document(cctx, author)
		if err != nil {
			return err
		}

		fmt.Println(doc)
		return nil
	},
}

var authorsCmd = &cli.Command{
	Name:  "authors",
	Usage: "List authors with active chains",
	Action: func(ctx *cli.Context) error {
		cctx := context.Background()

		n, err := newNode(cctx)
		if err != nil {
			return err
		}
		defer n.Close()

		for _, head := range n.registry.ListActiveAuthors() {
			fmt.Printf("%s  units=%d  head=%s\n", head.Author, head.UnitCount, head.LatestUnitID)
		}
		return nil
	},
}

var genesisCmd = &cli.Command{
	Name:  "genesis",
	Usage: "Manage identity anchors",
	Subcommands: []*cli.Command{
		{
			Name:  "init",
			Usage: "Publish the author genesis for the local identity",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "label", Value: "author", Usage: "Human-readable chain label"},
			},
			Action: func(ctx *cli.Context) error {
				cctx := context.Background()

				n, err := newNode(cctx)
				if err != nil {
					return err
				}
				defer n.Close()

				rec, err := n.anchor.PublishAuthorGenesis(cctx, ctx.String("label"))
				if err != nil {
					return err
				}

				fmt.Printf("root    %s\ngenesis %s\nhash    %s\n", rec.RootID, rec.AuthorGenesisID, rec.DerivedHash)
				return nil
			},
		},
		{
			Name:  "derive",
			Usage: "Derive an author genesis hash without publishing",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "author", Required: true},
				&cli.StringFlag{Name: "root", Required: true},
				&cli.StringFlag{Name: "label", Required: true},
			},
			Action: func(ctx *cli.Context) error {
				fmt.Println(genesis.DeriveAuthorGenesisHash(
					ctx.String("author"), ctx.String("root"), ctx.String("label")))
				return nil
			},
		},
		{
			Name:  "verify",
			Usage: "Verify the stored genesis record against the ledger",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "author", Usage: "Author public identity (defaults to the local identity)"},
			},
			Action: func(ctx *cli.Context) error {
				cctx := context.Background()

				n, err := newNode(cctx)
				if err != nil {
					return err
				}
				defer n.Close()

				author := ctx.String("author")
				if author == "" {
					author = n.signer.PublicIdentity()
				}

				rec, found, err := n.anchor.Record(cctx, author)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no genesis record for %s", author)
				}

				if err := n.anchor.ValidateUnit(cctx, rec.AuthorGenesisID, rec); err != nil {
					return err
				}

				fmt.Println("genesis record verified")
				return nil
			},
		},
	},
}
