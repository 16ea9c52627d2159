package momentum

import (
	"time"

	"github.com/lysyi3m/bbs-comb/app/board"
)

const minElapsedDays = 1e-3

// ThreadVelocity is the board-list ranking signal: replies per day since
// the thread was created, with creation time decoded from a legacy key.
// Threads with opaque keys have no derivable age and score 0. The value is
// a plain rate, comparable only within one board snapshot.
func ThreadVelocity(key string, count int, lastFetched time.Time) float64 {
	created, ok := board.DecodeLegacyKey(key)
	if !ok {
		return 0
	}

	elapsedDays := lastFetched.Sub(created).Hours() / 24
	if elapsedDays < minElapsedDays {
		elapsedDays = minElapsedDays
	}

	return float64(count) / elapsedDays
}
