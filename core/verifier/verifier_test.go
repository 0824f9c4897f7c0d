package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memopress/memopress/core/chunker"
	"github.com/memopress/memopress/core/model"
)

func splitDoc(t *testing.T, doc string) []model.Chunk {
	t.Helper()

	chunks, err := chunker.Split(doc, chunker.Limits{TargetChunkChars: 100, MaxUnitBytes: 1200})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	return chunks
}

func TestVerifyChunk(t *testing.T) {
	chunks := splitDoc(t, "a short document that fits into a handful of chunks. more text here.")

	for _, c := range chunks {
		assert.True(t, VerifyChunk(c))
	}
}

func TestVerifyChunkDetectsEveryFlippedByte(t *testing.T) {
	chunks := splitDoc(t, "integrity matters")
	chunk := chunks[0]

	for i := range chunk.Payload {
		tampered := chunk
		tampered.Payload = append([]byte(nil), chunk.Payload...)
		tampered.Payload[i] ^= 0x01

		assert.Falsef(t, VerifyChunk(tampered), "flip at byte %d went undetected", i)
	}
}

func TestVerifyOperation(t *testing.T) {
	chunks := splitDoc(t, "first part of the text. second part of the text. third part of the text here.")

	manifest := model.Manifest{
		TotalChunks: len(chunks),
		Hashes:      make([]string, len(chunks)),
	}
	for i, c := range chunks {
		manifest.Hashes[i] = c.Hash
	}

	assert.True(t, VerifyOperation(manifest, chunks))
}

func TestVerifyOperationRejectsCountMismatch(t *testing.T) {
	chunks := splitDoc(t, "first part of the text. second part of the text. third part of the text here.")
	require.Greater(t, len(chunks), 1)

	manifest := model.Manifest{
		TotalChunks: len(chunks),
		Hashes:      make([]string, len(chunks)),
	}
	for i, c := range chunks {
		manifest.Hashes[i] = c.Hash
	}

	assert.False(t, VerifyOperation(manifest, chunks[:len(chunks)-1]))
}

func TestVerifyOperationRejectsSwappedChunks(t *testing.T) {
	chunks := splitDoc(t, "first part of the text. second part of the text. third part of the text here.")
	require.Greater(t, len(chunks), 1)

	manifest := model.Manifest{
		TotalChunks: len(chunks),
		Hashes:      make([]string, len(chunks)),
	}
	for i, c := range chunks {
		manifest.Hashes[i] = c.Hash
	}

	swapped := append([]model.Chunk(nil), chunks...)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	assert.False(t, VerifyOperation(manifest, swapped))
}
