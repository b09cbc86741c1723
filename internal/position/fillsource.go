package position

import "math/rand"

// FillSource supplies the uniform [0,1) draw used to decide whether a
// resting paper leg fills this cycle. Production uses RandomSource;
// tests inject a Fixed sequence so outcomes are reproducible.
type FillSource interface {
	Draw() float64
}

// RandomSource draws from math/rand, seeded once at construction. Paper
// fills are a simulation aid, not a security boundary, so a
// non-cryptographic source is the right tool here.
type RandomSource struct {
	rng *rand.Rand
}

// NewRandomSource creates a RandomSource seeded with seed.
func NewRandomSource(seed int64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSource) Draw() float64 { return r.rng.Float64() }

// Fixed returns a pre-set sequence of draws, cycling once exhausted.
// Used by tests to pin fill outcomes exactly.
type Fixed struct {
	Draws []float64
	index int
}

func (f *Fixed) Draw() float64 {
	if len(f.Draws) == 0 {
		return 1 // never fills by default
	}
	d := f.Draws[f.index%len(f.Draws)]
	f.index++
	return d
}

// AlwaysCross is a deterministic test-only policy: a Draw() that always
// returns 0, which is below any positive fill probability. It therefore
// fills every leg whose probability is positive: a crossed ask, and also
// a leg resting at or above the best bid. Only legs with probability 0
// stay open.
type AlwaysCross struct{}

func (AlwaysCross) Draw() float64 { return 0 }
