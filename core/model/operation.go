package model

import (
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StagePreparing  Stage = "preparing"
	StagePublishing Stage = "publishing"
	StageCompleted  Stage = "completed"
	StagePartial    Stage = "partial"
	StageError      Stage = "error"
	StageCancelled  Stage = "cancelled"
)

// Terminal reports whether the stage ends an operation. Partial and error
// operations are retained for resume and are not terminal.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkPublished ChunkStatus = "published"
	ChunkFailed    ChunkStatus = "failed"
)

// ChunkState tracks one chunk's progress through a publish operation.
type ChunkState struct {
	Status   ChunkStatus
	UnitID   string `json:",omitempty"`
	Reason   string `json:",omitempty"`
	Attempts int
}

// PublishOperation owns a document's chunks from submission until a terminal
// stage. States is index-aligned with Chunks.
type PublishOperation struct {
	ID        uuid.UUID
	Author    string
	Chunks    []Chunk
	States    []ChunkState
	Stage     Stage
	CreatedAt time.Time
}

func NewPublishOperation(author string, chunks []Chunk) PublishOperation {
	states := make([]ChunkState, len(chunks))
	for i := range states {
		states[i] = ChunkState{Status: ChunkPending}
	}

	return PublishOperation{
		ID:        uuid.New(),
		Author:    author,
		Chunks:    chunks,
		States:    states,
		Stage:     StagePreparing,
		CreatedAt: time.Now(),
	}
}

func (op *PublishOperation) ConfirmedCount() int {
	count := 0
	for _, s := range op.States {
		if s.Status == ChunkPublished {
			count++
		}
	}

	return count
}

// NeedsWork returns the indices of chunks that still need submission, in
// order. Published chunks are never included.
func (op *PublishOperation) NeedsWork() []int {
	indices := make([]int, 0)
	for i, s := range op.States {
		if s.Status != ChunkPublished {
			indices = append(indices, i)
		}
	}

	return indices
}

// Progress reports percent complete. The first 10% is reserved for
// preparation and the last 10% for finalization.
func (op *PublishOperation) Progress() int {
	switch op.Stage {
	case StagePreparing:
		return 0
	case StageCompleted:
		return 100
	}

	total := len(op.Chunks)
	if total == 0 {
		return 100
	}

	return op.ConfirmedCount()*80/total + 10
}

// LastUnitID returns the unit id of the highest-index published chunk, or ""
// when nothing has confirmed yet.
func (op *PublishOperation) LastUnitID() string {
	for i := len(op.States) - 1; i >= 0; i-- {
		if op.States[i].Status == ChunkPublished {
			return op.States[i].UnitID
		}
	}

	return ""
}

// Manifest is the durable record of a completed operation: enough to verify
// chunks fetched back from the ledger against what was published.
type Manifest struct {
	OperationID uuid.UUID
	Author      string
	TotalChunks int
	Hashes      []string
	UnitIDs     []string
	CreatedAt   time.Time
}

func NewManifest(op *PublishOperation) Manifest {
	hashes := make([]string, len(op.Chunks))
	unitIDs := make([]string, len(op.States))
	for i, c := range op.Chunks {
		hashes[i] = c.Hash
	}
	for i, s := range op.States {
		unitIDs[i] = s.UnitID
	}

	return Manifest{
		OperationID: op.ID,
		Author:      op.Author,
		TotalChunks: len(op.Chunks),
		Hashes:      hashes,
		UnitIDs:     unitIDs,
		CreatedAt:   time.Now(),
	}
}
