// Package id issues the time-sortable identifiers that key events and
// audit records. ULIDs keep SQLite indexes insert-ordered and make log
// lines sort by creation time.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// generator serializes access to a monotonic entropy source so IDs
// minted within the same millisecond still strictly increase.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var gen = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}

func (g *generator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy).String()
}

// New returns a fresh ULID string.
func New() string { return gen.next() }
