package constants

import "time"

const (
	// Chunking limits. MAX_UNIT_BYTES bounds the encoded envelope, which is
	// what the transport actually sees.
	TARGET_CHUNK_CHARS   = 900
	MAX_UNIT_BYTES       = 1200
	MIN_CHUNK_CHARS      = 48
	BREAK_LOOKBACK_CHARS = 160

	MAX_SUBMIT_ATTEMPTS = 3
	RETRY_DELAY         = 500 * time.Millisecond

	FEED_LIMIT_PER_AUTHOR = 25
	FEED_MAX_TOTAL        = 100
	FEED_CACHE_TTL        = 30 * time.Second

	PROTOCOL_NAME    = "memopress"
	PROTOCOL_VERSION = 1
)
