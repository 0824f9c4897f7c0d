package model

import "time"

// ChainHead points at an author's most recently confirmed unit. It is only
// advanced after a unit is durably confirmed on the ledger.
type ChainHead struct {
	Author        string
	LatestUnitID  string
	UnitCount     int
	LastUpdatedAt time.Time
}

// Active reports whether the author has at least one published unit.
func (h ChainHead) Active() bool {
	return h.LatestUnitID != ""
}

// FeedEntry is one reconstructed unit of an author's chain. Entries are
// derived from the ledger and never persisted as authoritative.
type FeedEntry struct {
	UnitID         string
	Author         string
	Timestamp      time.Time
	Body           string
	PreviousUnitID string
	Index          int
	TotalChunks    int
}
