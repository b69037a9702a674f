// Package leaseid generates sortable, time-prefixed lease identifiers
// (ULID semantics) so that ordering lease IDs lexically approximates
// creation order, which makes the claims log easier to read chronologically.
package leaseid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh lease ID for the given timestamp. A shared monotonic
// entropy source means two IDs generated within the same millisecond still
// sort in call order, not just by timestamp.
func New(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(at), entropy)
	return id.String()
}

// Less reports whether a sorts before b as lease IDs. Non-ULID strings
// compare lexically, which is still a total order, just not a
// time-meaningful one.
func Less(a, b string) bool {
	return a < b
}
