package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/memopress/memopress/core/constants"
	"github.com/memopress/memopress/core/model"
	"github.com/memopress/memopress/lib/compress"
	"github.com/memopress/memopress/lib/hashing"
)

var (
	ErrMissingChunk   = errors.New("missing chunk")
	ErrCorruptChunk   = errors.New("corrupt chunk")
	ErrOversizedChunk = errors.New("chunk exceeds unit size limit")
	ErrInvalidLimits  = errors.New("chunk limits must be positive")
)

// Limits bounds the splitter. TargetChunkChars is the window size over the
// normalized text; MaxUnitBytes bounds the encoded envelope the transport
// will carry.
type Limits struct {
	TargetChunkChars int
	MaxUnitBytes     int
}

func DefaultLimits() Limits {
	return Limits{
		TargetChunkChars: constants.TARGET_CHUNK_CHARS,
		MaxUnitBytes:     constants.MAX_UNIT_BYTES,
	}
}

// Normalize canonicalizes line endings, collapses runs of blank lines down
// to a single blank line and trims surrounding whitespace. Idempotent:
// re-normalizing normalized text is a no-op.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}

// Split normalizes the document and cuts it into compressed, hashed chunks
// whose encoded units all fit limits.MaxUnitBytes. Windows are cut at the
// nearest preceding natural break; windows whose compressed form is still
// too large are recursively halved. Indices are renumbered against the
// final count, which can exceed the naive ceil(len/target) estimate.
func Split(document string, limits Limits) ([]model.Chunk, error) {
	if limits.TargetChunkChars <= 0 || limits.MaxUnitBytes <= 0 {
		return nil, fmt.Errorf("%w: target=%d max=%d",
			ErrInvalidLimits, limits.TargetChunkChars, limits.MaxUnitBytes)
	}

	text := Normalize(document)
	if text == "" {
		return []model.Chunk{}, nil
	}

	pieces := cutWindows(text, limits.TargetChunkChars)

	chunks := make([]model.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		packed, err := packPiece(piece, limits)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, packed...)
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}

	return chunks, nil
}

// Reassemble inverts Split over a dense, ordered chunk sequence. A gap is a
// fatal MissingChunk error; a decompression failure is a fatal CorruptChunk
// error naming the offending index.
func Reassemble(chunks []model.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}

	total := chunks[0].TotalChunks
	if len(chunks) != total {
		return "", fmt.Errorf("%w: have %d of %d", ErrMissingChunk, len(chunks), total)
	}

	var b strings.Builder
	for i, c := range chunks {
		if c.Index != i {
			return "", fmt.Errorf("%w: index %d", ErrMissingChunk, i)
		}

		raw, err := compress.Decompress(c.Payload)
		if err != nil {
			return "", fmt.Errorf("%w: index %d: %v", ErrCorruptChunk, i, err)
		}

		b.Write(raw)
	}

	return b.String(), nil
}

// cutWindows partitions text into target-sized windows, each ending at the
// best break point found within the lookback distance. The windows
// concatenate back to text exactly.
func cutWindows(text string, target int) []string {
	pieces := make([]string, 0, (len(text)+target-1)/target)

	for start := 0; start < len(text); {
		end := start + target
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}

		cut := findBreak(text, start, end)
		pieces = append(pieces, text[start:cut])
		start = cut
	}

	return pieces
}

// findBreak returns the cut position for a window ending at end, preferring
// a paragraph break, then a sentence break, then a word break, scanning back
// at most BREAK_LOOKBACK_CHARS. With no break in range the hard window
// boundary is used, which may split mid-word.
func findBreak(text string, start, end int) int {
	lookback := end - constants.BREAK_LOOKBACK_CHARS
	if lookback <= start {
		lookback = start + 1
	}
	window := text[lookback:end]

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return lookback + i + 2
	}

	best := -1
	for _, mark := range []string{". ", ".\n", "! ", "!\n", "? ", "?\n"} {
		if i := strings.LastIndex(window, mark); i >= 0 && i+len(mark) > best {
			best = i + len(mark)
		}
	}
	if best >= 0 {
		return lookback + best
	}

	if i := strings.LastIndexAny(window, " \n"); i >= 0 {
		return lookback + i + 1
	}

	return end
}

// packPiece compresses one window and recursively halves it until the
// encoded unit fits. Halving stops at MIN_CHUNK_CHARS; a floor-sized piece
// that still does not fit surfaces ErrOversizedChunk instead of looping.
func packPiece(piece string, limits Limits) ([]model.Chunk, error) {
	payload := compress.Compress([]byte(piece))
	if encodedUnitSize(payload) <= limits.MaxUnitBytes {
		chunk := model.Chunk{
			Payload: payload,
			Hash:    hashing.Sum(payload),
			Source:  piece,
		}

		return []model.Chunk{chunk}, nil
	}

	if len(piece) <= constants.MIN_CHUNK_CHARS {
		return nil, fmt.Errorf("%w: %d chars encode to %d bytes",
			ErrOversizedChunk, len(piece), encodedUnitSize(payload))
	}

	// Byte-level halving: deliberately ignores rune and word boundaries so
	// it always converges, even on incompressible input.
	half := len(piece) / 2

	left, err := packPiece(piece[:half], limits)
	if err != nil {
		return nil, err
	}

	right, err := packPiece(piece[half:], limits)
	if err != nil {
		return nil, err
	}

	return append(left, right...), nil
}

// encodedUnitSize measures the envelope the publisher will actually submit,
// with identity and link fields at their canonical widths. This makes the
// size check exact rather than a heuristic margin.
func encodedUnitSize(payload []byte) int {
	e := model.UnitEnvelope{
		Protocol:  constants.PROTOCOL_NAME,
		Version:   constants.PROTOCOL_VERSION,
		Kind:      model.KindChunk,
		Author:    strings.Repeat("x", hashing.HexLen),
		Index:     999999,
		Total:     999999,
		Hash:      strings.Repeat("0", hashing.HexLen),
		Prev:      strings.Repeat("0", hashing.HexLen),
		Timestamp: 9999999999,
		Data:      payload,
	}

	b, err := e.Encode()
	if err != nil {
		return int(^uint(0) >> 1)
	}

	return len(b)
}
