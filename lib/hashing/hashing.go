package hashing

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the digest width in bytes. Hashes are rendered as hex strings of
// twice this length.
const Size = 32

// HexLen is the length of a rendered hash string.
const HexLen = Size * 2

// Sum returns the hex-rendered blake3 digest of data.
func Sum(data []byte) string {
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Tagged returns a domain-separated digest: the tag and every part are
// written length-delimited, so the same bytes hash differently in different
// contexts and no two part sequences collide by concatenation.
func Tagged(tag string, parts ...[]byte) string {
	h := blake3.New()
	writeDelimited(h, []byte(tag))
	for _, part := range parts {
		writeDelimited(h, part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeDelimited(h *blake3.Hasher, part []byte) {
	n := len(part)
	h.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	h.Write(part)
}
