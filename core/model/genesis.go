package model

// GenesisRecord anchors identity for the platform (the root) or one author.
// DerivedHash is deterministic and recomputable from the other fields;
// records are immutable once published.
type GenesisRecord struct {
	RootID          string
	AuthorGenesisID string `json:",omitempty"`
	Author          string
	Label           string
	DerivedHash     string
}
