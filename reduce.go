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
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Region is a named set of horizontal grid cells.
type Region struct {
	Name string

	// Member holds one entry per (lat, lon) cell.
	Member []bool
}

// Reducer computes area-weighted statistics of fields over regions.
type Reducer struct {
	g       *Grid
	c       Constants
	regions []Region
	areas   []float64
}

// NewReducer prepares region statistics for grid g. Region areas are
// computed once here, counting only water cells unless
// c.FilterOverLand is set.
func NewReducer(g *Grid, c Constants, regions []Region) (*Reducer, error) {
	nh := g.Extents().Len2D()
	for _, r := range regions {
		if len(r.Member) != nh {
			return nil, fmt.Errorf("oceanbudget: region %q has %d cells but the grid has %d", r.Name, len(r.Member), nh)
		}
	}
	r := &Reducer{g: g, c: c, regions: regions}
	r.areas = r.integrate(func(i int, _ float64) (float64, bool) { return 1, true }, nil)
	return r, nil
}

// Regions returns the regions being reduced over.
func (r *Reducer) Regions() []Region { return r.regions }

// Area returns the included area of a region at a local time and depth.
func (r *Reducer) Area(time, depth, region int) float64 {
	return r.areas[r.index(time, depth, region)]
}

func (r *Reducer) index(time, depth, region int) int {
	return Index(0, time, depth, region, 1, r.g.Ntime, r.g.Ndepth, len(r.regions))
}

// Stats holds region statistics of one field at each local
// (time, depth).
type Stats struct {
	Ntime, Ndepth, Nregion int

	// Mean and Std are indexed by Index(0, time, depth, region,
	// 1, Ntime, Ndepth, Nregion).
	Mean, Std []float64
}

// At returns the mean and standard deviation of a region at a local
// time and depth.
func (s *Stats) At(time, depth, region int) (mean, std float64) {
	i := Index(0, time, depth, region, 1, s.Ntime, s.Ndepth, s.Nregion)
	return s.Mean[i], s.Std[i]
}

// Reduce returns the area-weighted mean and standard deviation of
// field over every region. Land cells and fill values contribute
// nothing. The standard deviation is taken about the mean computed
// in the first pass. Regions with zero area have a mean and standard
// deviation of zero.
func (r *Reducer) Reduce(field []float64) *Stats {
	if len(field) != r.g.Len() {
		panic(fmt.Errorf("oceanbudget: field length %d does not match grid length %d", len(field), r.g.Len()))
	}
	fill := r.c.FillValue
	s := &Stats{
		Ntime:   r.g.Ntime,
		Ndepth:  r.g.Ndepth,
		Nregion: len(r.regions),
	}
	s.Mean = r.integrate(func(i int, _ float64) (float64, bool) {
		v := field[i]
		return v, v != fill
	}, nil)
	for k := range s.Mean {
		s.Mean[k] = r.divide(s.Mean[k], k)
	}
	s.Std = r.integrate(func(i int, mean float64) (float64, bool) {
		v := field[i]
		d := mean - v
		return d * d, v != fill
	}, s.Mean)
	for k := range s.Std {
		s.Std[k] = math.Sqrt(r.divide(s.Std[k], k))
	}
	return s
}

func (r *Reducer) divide(v float64, k int) float64 {
	if r.areas[k] == 0 {
		return 0
	}
	return v / r.areas[k]
}

// integrate returns Σ f·dA over the included cells of each
// (time, depth, region). f receives the local index and, if ref is not
// nil, the matching element of ref. Samples for which f returns false
// contribute zero. Each worker sums into its own buffer and the buffers
// are added together at the end.
func (r *Reducer) integrate(f func(i int, ref float64) (float64, bool), ref []float64) []float64 {
	g := r.g
	nreg := len(r.regions)
	nout := g.Ntime * g.Ndepth * nreg
	nprocs := numProcs()
	partial := make([][]float64, nprocs)
	for w := range partial {
		partial[w] = make([]float64, nout)
	}
	ext := g.Extents()
	rows := Extents{g.Ntime, g.Ndepth, g.Nlat, 1}
	parallel(rows.Len(), nprocs, func(w, row int) {
		sum := partial[w]
		t, d, la, _ := rows.Coords(row)
		for lo := 0; lo < g.Nlon; lo++ {
			i := ext.Index(t, d, la, lo)
			if !r.c.FilterOverLand && !g.Water(i) {
				continue
			}
			h := ext.Index2D(la, lo)
			for reg, region := range r.regions {
				if !region.Member[h] {
					continue
				}
				k := r.index(t, d, reg)
				var rv float64
				if ref != nil {
					rv = ref[k]
				}
				if v, ok := f(i, rv); ok {
					sum[k] += v * g.Areas[h]
				}
			}
		}
	})
	out := partial[0]
	for _, p := range partial[1:] {
		floats.Add(out, p)
	}
	return out
}
