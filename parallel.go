/*
Copyright © 2019 the OceanBudget authors.
This file is part of OceanBudget.

OceanBudget is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanBudget is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanBudget.  If not, see <http://www.gnu.org/licenses/>.
*/

package oceanbudget

import (
	"runtime"
	"sync"
)

// parallel calls f for every i in [0, n), spread across one goroutine
// per processor. Goroutine w handles i = w, w+nprocs, w+2*nprocs, ...
// and passes its w to f so callers can keep per-worker state.
// It returns once all calls have finished.
func parallel(n, nprocs int, f func(w, i int)) {
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				f(pp, ii)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

func numProcs() int { return runtime.GOMAXPROCS(0) }

// A PointCalculator performs a calculation at local point p, whose
// local linear index is i, using working memory s, and returns the
// fallbacks it took.
type PointCalculator func(p Point, i int, s *Scratch) Flags

// Calculations runs all of the calculators at every local grid point
// and tallies the fallbacks taken. Each point is visited by exactly one
// goroutine, so calculators may write to the i-th element of output
// buffers without locking.
func (e *Evaluator) Calculations(calculators ...PointCalculator) FlagCounts {
	nprocs := numProcs()
	scratch := make([]*Scratch, nprocs)
	counts := make([]FlagCounts, nprocs)
	for i := range scratch {
		scratch[i] = e.NewScratch()
	}
	g := e.g
	parallel(g.Len(), nprocs, func(w, i int) {
		p := g.Point(i)
		var f Flags
		for _, calc := range calculators {
			f |= calc(p, i, scratch[w])
		}
		counts[w].Add(f)
	})
	var total FlagCounts
	for _, c := range counts {
		total.Merge(c)
	}
	return total
}

// FlagCounts tallies the number of points at which each fallback
// was taken.
type FlagCounts struct {
	Points int

	Land, Masked, Pole, Degenerate, Reduced, DepthBoundary int
}

// Add records the fallbacks taken at one point.
func (c *FlagCounts) Add(f Flags) {
	c.Points++
	for _, x := range []struct {
		flag Flags
		n    *int
	}{
		{FlagLand, &c.Land},
		{FlagMasked, &c.Masked},
		{FlagPole, &c.Pole},
		{FlagDegenerate, &c.Degenerate},
		{FlagReduced, &c.Reduced},
		{FlagDepthBoundary, &c.DepthBoundary},
	} {
		if f&x.flag != 0 {
			*x.n++
		}
	}
}

// Merge adds the counts in o to c.
func (c *FlagCounts) Merge(o FlagCounts) {
	c.Points += o.Points
	c.Land += o.Land
	c.Masked += o.Masked
	c.Pole += o.Pole
	c.Degenerate += o.Degenerate
	c.Reduced += o.Reduced
	c.DepthBoundary += o.DepthBoundary
}
