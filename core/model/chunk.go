package model

// Chunk is one size-bounded, compressed, hashed unit of a document.
type Chunk struct {
	Index       int
	TotalChunks int
	Payload     []byte // compressed body
	Hash        string // hex hash of Payload
	Source      string `json:",omitempty"` // original text span, kept for local inspection
}
