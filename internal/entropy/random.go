// Package entropy provides the single seeded random source that every stochastic
// choice in a simulation run draws from. A run is reproducible given its seed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
)

// Source wraps a seeded PRNG. Not safe for concurrent use; a World owns exactly one.
type Source struct {
	seed int64
	rng  *mrand.Rand
}

// New creates a source from seed. A zero seed is replaced by one drawn from
// crypto/rand (see ResolveSeed).
func New(seed int64) *Source {
	seed = ResolveSeed(seed)
	return &Source{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with, after resolution.
func (s *Source) Seed() int64 {
	return s.seed
}

// Float64 returns a uniform float in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Intn returns a uniform int in [0, n). Panics if n <= 0.
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// Bit returns 0 or 1 with equal probability.
func (s *Source) Bit() uint8 {
	return uint8(s.rng.Intn(2))
}

// Chance reports whether an event of probability p happens.
func (s *Source) Chance(p float64) bool {
	return s.rng.Float64() < p
}

// Perm returns a random permutation of [0, n).
func (s *Source) Perm(n int) []int {
	return s.rng.Perm(n)
}

// WeightedIndex samples an index with probability proportional to weights[i].
// Non-positive weights are never chosen. Returns -1 if no weight is positive.
func (s *Source) WeightedIndex(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	spin := s.rng.Float64() * total
	cumulative := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		last = i
		if spin < cumulative {
			return i
		}
	}
	// Float rounding can leave spin == total.
	return last
}

// ResolveSeed returns seed unchanged when non-zero, otherwise a fresh seed from
// crypto/rand. The drawn seed is logged so the run can be replayed.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	seed = cryptoSeed()
	slog.Info("drew random seed", "seed", seed)
	return seed
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1
	}
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if n == 0 {
		n = 1
	}
	return n
}
