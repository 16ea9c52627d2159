package database

// Timestamps are stored as epoch milliseconds throughout; thread keys and
// board names are the natural identifiers, no surrogate UUIDs.

// Thread is one row of the per-board thread summary set. Rows are never
// deleted: a thread that vanishes from the index is archived so read state
// and history joins stay valid.
type Thread struct {
	Board       string
	Key         string
	Title       string
	Count       int
	Rank        int
	FirstSeenAt int64
	IsArchived  bool
}

// BoardMeta carries a board's cache validators and the time of the last
// successful fetch (200 or 304).
type BoardMeta struct {
	Board         string
	ETag          string
	LastModified  string
	LastFetchedAt int64
}

// ReadEntry is the user's last known reply count for a visited thread.
type ReadEntry struct {
	Key       string
	ReadCount int
	VisitedAt int64
}

// NGRule excludes threads whose title matches Pattern. A rule with an
// empty Board applies to every board.
type NGRule struct {
	ID      int64
	Board   string
	Pattern string
}
