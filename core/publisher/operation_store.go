package publisher

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/lib/kv"
)

const (
	operationKeyPrefix = "operations/"
	manifestKeyPrefix  = "manifests/"
)

// OperationStore persists in-flight operations and completed-operation
// manifests, so resume works across process restarts.
type OperationStore struct {
	store kv.Store
}

func NewOperationStore(store kv.Store) *OperationStore {
	return &OperationStore{store: store}
}

func (s *OperationStore) Save(ctx context.Context, op *model.PublishOperation) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}

	return s.store.Set(ctx, operationKeyPrefix+op.ID.String(), b)
}

func (s *OperationStore) Load(ctx context.Context, id uuid.UUID) (*model.PublishOperation, error) {
	b, found, err := s.store.Get(ctx, operationKeyPrefix+id.String())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOperationNotFound
	}

	var op model.PublishOperation
	if err := json.Unmarshal(b, &op); err != nil {
		return nil, err
	}

	return &op, nil
}

func (s *OperationStore) All(ctx context.Context) ([]*model.PublishOperation, error) {
	keys, err := s.store.ListKeys(ctx, operationKeyPrefix)
	if err != nil {
		return nil, err
	}

	ops := make([]*model.PublishOperation, 0, len(keys))
	for _, key := range keys {
		b, found, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		var op model.PublishOperation
		if err := json.Unmarshal(b, &op); err != nil {
			return nil, err
		}
		ops = append(ops, &op)
	}

	return ops, nil
}

func (s *OperationStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Remove(ctx, operationKeyPrefix+id.String())
}

func (s *OperationStore) SaveManifest(ctx context.Context, m model.Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return s.store.Set(ctx, manifestKeyPrefix+m.OperationID.String(), b)
}

func (s *OperationStore) LoadManifest(ctx context.Context, id uuid.UUID) (model.Manifest, error) {
	var m model.Manifest

	b, found, err := s.store.Get(ctx, manifestKeyPrefix+id.String())
	if err != nil {
		return m, err
	}
	if !found {
		return m, ErrManifestNotFound
	}

	err = json.Unmarshal(b, &m)
	return m, err
}
