package consensus

import (
	"math/rand"
	"sort"

	"github.com/waypost-data/radioloc/internal/lateration"
)

// subsetSampler produces the measurement indices for one preliminary solve.
// Implementations are stateful across iterations (the progressive sampler
// widens its window) but never mutate the measurements themselves.
type subsetSampler interface {
	// draw fills dst with len(dst) distinct measurement indices.
	draw(dst []int)
}

// uniformSampler draws subsets uniformly at random, used by RANSAC, LMedS and
// MSAC.
type uniformSampler struct {
	rng  *rand.Rand
	pool []int
}

func newUniformSampler(rng *rand.Rand, n int) *uniformSampler {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	return &uniformSampler{rng: rng, pool: pool}
}

// draw performs a partial Fisher-Yates shuffle over the index pool.
func (s *uniformSampler) draw(dst []int) {
	n := len(s.pool)
	for i := range dst {
		j := i + s.rng.Intn(n-i)
		s.pool[i], s.pool[j] = s.pool[j], s.pool[i]
		dst[i] = s.pool[i]
	}
}

// progressiveSampler implements the PROSAC sampling order: measurements are
// ranked by quality score descending and subsets are drawn from a window that
// starts at the subset size and widens by one rank each iteration. Early
// iterations therefore concentrate on the most trusted measurements; once the
// window covers the whole set the sampler degrades to uniform.
type progressiveSampler struct {
	rng    *rand.Rand
	order  []int // measurement indices, quality descending
	window int
	pool   []int // scratch for in-window shuffling
}

func newProgressiveSampler(rng *rand.Rand, ms []lateration.Measurement, subsetSize int) *progressiveSampler {
	order := make([]int, len(ms))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps the caller's ordering for equal scores, which makes
	// runs reproducible when qualities are uniform.
	sort.SliceStable(order, func(a, b int) bool {
		return ms[order[a]].Quality > ms[order[b]].Quality
	})
	return &progressiveSampler{
		rng:    rng,
		order:  order,
		window: subsetSize,
		pool:   make([]int, 0, len(ms)),
	}
}

func (s *progressiveSampler) draw(dst []int) {
	n := len(s.order)
	m := len(dst)

	if s.window < n {
		// The newest rank in the window is always part of the subset; the
		// remaining picks come uniformly from the earlier ranks. This is the
		// standard progressive scheme: each widening step is exercised at
		// least once.
		dst[m-1] = s.order[s.window-1]
		s.pool = append(s.pool[:0], s.order[:s.window-1]...)
		for i := 0; i < m-1; i++ {
			j := i + s.rng.Intn(len(s.pool)-i)
			s.pool[i], s.pool[j] = s.pool[j], s.pool[i]
			dst[i] = s.pool[i]
		}
		s.window++
		return
	}

	// Window exhausted: uniform over the full set.
	s.pool = append(s.pool[:0], s.order...)
	for i := 0; i < m; i++ {
		j := i + s.rng.Intn(len(s.pool)-i)
		s.pool[i], s.pool[j] = s.pool[j], s.pool[i]
		dst[i] = s.pool[i]
	}
}
