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
)

// Filter coarse-grains fields with a top-hat kernel: the filtered value
// at a point is the area-weighted mean of the field over the cells
// whose centres lie within Scale/2 of it.
type Filter struct {
	g *Grid
	c Constants

	// Scale is the filter length scale, in metres in spherical
	// geometry and in coordinate units in Cartesian geometry.
	Scale float64
}

// NewFilter returns a filter with length scale scale.
func NewFilter(g *Grid, c Constants, scale float64) (*Filter, error) {
	if !(scale > 0) {
		return nil, fmt.Errorf("oceanbudget: filter scale must be positive, have %g", scale)
	}
	return &Filter{g: g, c: c, Scale: scale}, nil
}

// Apply returns the filtered version of each field. Land points, and
// points where no included cell lies within the kernel, receive the
// fill value unless FilterOverLand is set.
func (f *Filter) Apply(fields ...[]float64) [][]float64 {
	g := f.g
	ext := g.Extents()
	out := make([][]float64, len(fields))
	for k, field := range fields {
		if len(field) != ext.Len() {
			panic(fmt.Errorf("oceanbudget: field length %d does not match grid length %d", len(field), ext.Len()))
		}
		out[k] = make([]float64, ext.Len())
	}
	nprocs := numProcs()
	nbrs := make([][]int, nprocs)
	num := make([][]float64, nprocs)
	den := make([][]float64, nprocs)
	for w := 0; w < nprocs; w++ {
		num[w] = make([]float64, len(fields))
		den[w] = make([]float64, len(fields))
	}
	fill := f.c.FillValue

	// The kernel footprint of a horizontal cell is the same at every
	// time and depth, so each worker finds it once per cell.
	parallel(ext.Len2D(), nprocs, func(w, h int) {
		la, lo := ext.Coords2D(h)
		nbrs[w] = f.neighbours(la, lo, nbrs[w][:0])
		for t := 0; t < g.Ntime; t++ {
			for d := 0; d < g.Ndepth; d++ {
				i := ext.Index(t, d, la, lo)
				if !f.c.FilterOverLand && !g.Water(i) {
					for k := range fields {
						out[k][i] = fill
					}
					continue
				}
				for k := range fields {
					num[w][k], den[w][k] = 0, 0
				}
				for _, h2 := range nbrs[w] {
					la2, lo2 := ext.Coords2D(h2)
					j := ext.Index(t, d, la2, lo2)
					if !f.c.FilterOverLand && !g.Water(j) {
						continue
					}
					a := g.Areas[h2]
					for k, field := range fields {
						if v := field[j]; v != fill {
							num[w][k] += v * a
							den[w][k] += a
						}
					}
				}
				for k := range fields {
					if den[w][k] == 0 {
						out[k][i] = fill
					} else {
						out[k][i] = num[w][k] / den[w][k]
					}
				}
			}
		}
	})
	return out
}

// neighbours appends to dst the horizontal indices of the cells within
// the kernel centred on (la, lo).
func (f *Filter) neighbours(la, lo int, dst []int) []int {
	g := f.g
	ext := g.Extents()
	half := f.Scale / 2
	for la2 := 0; la2 < g.Nlat; la2++ {
		if f.latDistance(la, la2) > half {
			continue
		}
		for lo2 := 0; lo2 < g.Nlon; lo2++ {
			if f.distance(la, lo, la2, lo2) <= half {
				dst = append(dst, ext.Index2D(la2, lo2))
			}
		}
	}
	return dst
}

// latDistance is a lower bound on the distance between any cells in
// rows la and la2.
func (f *Filter) latDistance(la, la2 int) float64 {
	dy := math.Abs(f.g.Lat[la2] - f.g.Lat[la])
	if f.c.Cartesian {
		if f.c.PeriodicY {
			dy = math.Min(dy, periodOf(f.g.Lat)-dy)
		}
		return dy
	}
	return dy * f.c.EarthRadius
}

func (f *Filter) distance(la, lo, la2, lo2 int) float64 {
	g := f.g
	if f.c.Cartesian {
		dx := math.Abs(g.Lon[lo2] - g.Lon[lo])
		dy := math.Abs(g.Lat[la2] - g.Lat[la])
		if f.c.PeriodicX {
			dx = math.Min(dx, periodOf(g.Lon)-dx)
		}
		if f.c.PeriodicY {
			dy = math.Min(dy, periodOf(g.Lat)-dy)
		}
		return math.Hypot(dx, dy)
	}
	return GreatCircle(g.Lon[lo], g.Lat[la], g.Lon[lo2], g.Lat[la2], f.c.EarthRadius)
}

func periodOf(x []float64) float64 {
	if len(x) < 2 {
		return math.Inf(1)
	}
	return math.Abs(float64(len(x)) * (x[1] - x[0]))
}

// GreatCircle returns the distance between two points on a sphere of
// radius r, with coordinates in radians.
func GreatCircle(lon1, lat1, lon2, lat2, r float64) float64 {
	sdlat := math.Sin((lat2 - lat1) / 2)
	sdlon := math.Sin((lon2 - lon1) / 2)
	a := sdlat*sdlat + math.Cos(lat1)*math.Cos(lat2)*sdlon*sdlon
	return 2 * r * math.Asin(math.Min(1, math.Sqrt(a)))
}
