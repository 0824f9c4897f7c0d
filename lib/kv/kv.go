package kv

import (
	"context"
	"strings"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	dslvl "github.com/ipfs/go-ds-leveldb"
)

// Store is the persistence contract used for chain heads, operation
// manifests and genesis records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Datastore adapts an ipfs datastore to the Store contract.
type Datastore struct {
	store ds.Datastore
}

// NewLevelDB opens a leveldb-backed store at path, creating it if needed.
func NewLevelDB(path string) (*Datastore, error) {
	store, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, err
	}

	return &Datastore{store: store}, nil
}

// NewMemory returns an in-memory store, used by tests and throwaway runs.
func NewMemory() *Datastore {
	return &Datastore{store: dssync.MutexWrap(ds.NewMapDatastore())}
}

func (d *Datastore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := d.store.Get(ctx, ds.NewKey(key))
	if err == ds.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return b, true, nil
}

func (d *Datastore) Set(ctx context.Context, key string, value []byte) error {
	return d.store.Put(ctx, ds.NewKey(key), value)
}

func (d *Datastore) Remove(ctx context.Context, key string) error {
	return d.store.Delete(ctx, ds.NewKey(key))
}

// ListKeys returns all keys under prefix, without the leading slash the
// underlying datastore adds.
func (d *Datastore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	q := dsq.Query{Prefix: ds.NewKey(prefix).String(), KeysOnly: true}
	keys := make([]string, 0)

	res, err := d.store.Query(ctx, q)
	if err != nil {
		return keys, err
	}

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return keys, r.Error
		}

		keys = append(keys, strings.TrimPrefix(r.Key, "/"))
	}

	return keys, nil
}

func (d *Datastore) Close() error {
	return d.store.Close()
}
