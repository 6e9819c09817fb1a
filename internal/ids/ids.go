// Package ids generates identifiers for searches, solutions and requests.
//
// Every caller goes through the Generator interface so the identifier scheme
// can change (e.g. to UUIDs) without touching callers.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate() string
}

// AlnumLength is the length of identifiers produced by AlnumGenerator.
const AlnumLength = 22

const alnumAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AlnumGenerator produces 22-character identifiers drawn uniformly from
// upper-case letters and digits, the format TA3 clients expect.
//
// Collisions are not checked; at 36^22 the space is large enough.
type AlnumGenerator struct{}

// Generate returns a fresh identifier.
// Panics if the system random source fails.
func (AlnumGenerator) Generate() string {
	// 252 is the largest multiple of 36 below 256; rejecting bytes at or
	// above it keeps the distribution uniform.
	const limit = 252
	out := make([]byte, 0, AlnumLength)
	buf := make([]byte, AlnumLength*2)
	for len(out) < AlnumLength {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("ids: read random: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alnumAlphabet[int(b)%len(alnumAlphabet)])
			if len(out) == AlnumLength {
				break
			}
		}
	}
	return string(out)
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UUIDv4Generator generates random UUIDv4 identifiers. Fitted pipelines use
// it by default so their ids never collide with solution ids.
type UUIDv4Generator struct{}

// Generate creates a new UUIDv4 as a hyphenated string.
func (UUIDv4Generator) Generate() string {
	return uuid.NewString()
}

// ForScheme returns the generator for a configured scheme name.
func ForScheme(scheme string) (Generator, error) {
	switch scheme {
	case "", "alnum":
		return AlnumGenerator{}, nil
	case "uuid", "uuidv7":
		return UUIDv7Generator{}, nil
	case "uuidv4":
		return UUIDv4Generator{}, nil
	}
	return nil, fmt.Errorf("unknown id scheme %q", scheme)
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("search-1", "solution-1")
//	gen.Generate() // "search-1"
//	gen.Generate() // "solution-1"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, which catches tests that create more
// objects than they expect.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequenceGenerator returns prefix-1, prefix-2, ... and never runs out.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a counter-backed generator.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
