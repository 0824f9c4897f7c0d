package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("compressible text. ", 200))

	packed := Compress(original)
	assert.Less(t, len(packed), len(original))

	restored, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestCompressDeterministic(t *testing.T) {
	data := []byte("the same input packs to the same bytes")
	assert.Equal(t, Compress(data), Compress(data))
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zstd frame"))
	assert.Error(t, err)
}
