package model

import (
	"encoding/json"
	"errors"
)

// Unit kinds carried in envelopes.
const (
	KindChunk   = "chunk"
	KindGenesis = "genesis"
	KindRoot    = "root"
)

var ErrBadEnvelope = errors.New("malformed unit envelope")

// UnitEnvelope is the wire form actually submitted as a ledger payload. Its
// encoded length is what the transport's size limit applies to. Field tags
// are protocol constants.
type UnitEnvelope struct {
	Protocol  string `json:"p"`
	Version   int    `json:"v"`
	Kind      string `json:"k"`
	Author    string `json:"a"`
	Index     int    `json:"i"`
	Total     int    `json:"n"`
	Hash      string `json:"h"`
	Prev      string `json:"prev,omitempty"`
	Timestamp int64  `json:"ts"`
	Data      []byte `json:"d,omitempty"`
}

func (e UnitEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(raw []byte) (UnitEnvelope, error) {
	var e UnitEnvelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, ErrBadEnvelope
	}

	if e.Kind == "" || e.Author == "" || e.Hash == "" {
		return e, ErrBadEnvelope
	}

	return e, nil
}
