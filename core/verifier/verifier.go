package verifier

import (
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/lib/hashing"
)

// VerifyChunk recomputes the payload hash and compares it to the recorded
// one. Mismatches are reported, never corrected.
func VerifyChunk(c model.Chunk) bool {
	return hashing.Sum(c.Payload) == c.Hash
}

// VerifyOperation checks chunks fetched back from the ledger against the
// manifest recorded at publish time: count equality plus per-index hash
// equality. Detects tampering between publish and read.
func VerifyOperation(manifest model.Manifest, chunks []model.Chunk) bool {
	if len(chunks) != manifest.TotalChunks || len(manifest.Hashes) != manifest.TotalChunks {
		return false
	}

	for i, c := range chunks {
		if c.Index != i || c.Hash != manifest.Hashes[i] || !VerifyChunk(c) {
			return false
		}
	}

	return true
}
