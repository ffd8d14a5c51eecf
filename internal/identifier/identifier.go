// Package identifier generates human-readable account and loan numbers.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	// DefaultMaxAttempts bounds how many candidates Generate tries before giving up.
	DefaultMaxAttempts = 10

	timestampDigits = 8
	randomSpace     = 10_000
)

// ErrExhausted is returned when every candidate within the attempt budget was taken.
var ErrExhausted = errors.New("identifier: attempts exhausted")

// ExistsFunc reports whether a candidate is already in use.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Entropy supplies uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type Entropy interface {
	IntN(n int) int
}

type globalEntropy struct{}

func (globalEntropy) IntN(n int) int { return rand.IntN(n) }

// Generator builds candidates of the form prefix + last 8 digits of the epoch
// milliseconds + 4 random digits.
type Generator struct {
	now         func() time.Time
	entropy     Entropy
	maxAttempts int
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEntropy injects the random source.
func WithEntropy(e Entropy) Option {
	return func(g *Generator) { g.entropy = e }
}

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// New builds a Generator using the wall clock and math/rand/v2 unless overridden.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now, entropy: globalEntropy{}, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidate returns one unchecked identifier.
func (g *Generator) Candidate(prefix string) string {
	millis := strconv.FormatInt(g.now().UnixMilli(), 10)
	if len(millis) > timestampDigits {
		millis = millis[len(millis)-timestampDigits:]
	}
	return fmt.Sprintf("%s%s%04d", prefix, millis, g.entropy.IntN(randomSpace))
}

// Generate returns the first candidate for which exists reports false. The
// check is advisory; callers must still rely on a storage unique constraint.
func (g *Generator) Generate(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.Candidate(prefix)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts for prefix %s", ErrExhausted, g.maxAttempts, prefix)
}

// MaxAttempts reports the configured attempt budget.
func (g *Generator) MaxAttempts() int { return g.maxAttempts }
