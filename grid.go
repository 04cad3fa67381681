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

// Dim identifies one of the decomposed grid dimensions.
type Dim int

const (
	// TimeDim is the time dimension.
	TimeDim Dim = iota
	// DepthDim is the depth dimension.
	DepthDim
)

// Layout describes how a field buffer is laid out.
type Layout int

const (
	// LocalLayout buffers hold the local (time, depth) slab.
	LocalLayout Layout = iota

	// ColumnLayout buffers hold the local time slab and the full
	// depth column, so that depth neighbours across process
	// boundaries are available.
	ColumnLayout
)

// Grid holds the coordinates, land mask and cell areas of the portion
// of the domain owned by one process. A Grid is read-only once built.
type Grid struct {
	// Time, Depth, Lat and Lon are the global coordinates. Lat and Lon
	// are in radians in spherical geometry.
	Time, Depth, Lat, Lon []float64

	Decomp *Decomposition

	// Ntime and Ndepth are the local extents; Nlat and Nlon are always global.
	Ntime, Ndepth, Nlat, Nlon int

	// Areas holds the horizontal area of each (lat, lon) cell.
	Areas []float64

	mask       []bool // local layout, nil if all water
	columnMask []bool // column layout
	poleTol    float64
}

// NewGrid creates a grid from global coordinates. If d is nil the grid
// covers the whole domain.
func NewGrid(time, depth, lat, lon []float64, d *Decomposition, c Constants) (*Grid, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(time) == 0 || len(depth) == 0 || len(lat) == 0 || len(lon) == 0 {
		return nil, configErrorf("grid axes must not be empty, have extents [%d %d %d %d]",
			len(time), len(depth), len(lat), len(lon))
	}
	if d == nil {
		var err error
		d, err = Decompose(len(time), len(depth), 1, 1, Serial)
		if err != nil {
			return nil, err
		}
	}
	if d.FullNtime != len(time) || d.FullNdepth != len(depth) {
		return nil, configErrorf("decomposition of a %d x %d domain applied to %d time steps and %d depths",
			d.FullNtime, d.FullNdepth, len(time), len(depth))
	}
	if c.UniformLon && !uniform(lon) {
		return nil, configErrorf("longitude declared uniform but its spacing varies")
	}
	if c.UniformLat && !uniform(lat) {
		return nil, configErrorf("latitude declared uniform but its spacing varies")
	}
	g := &Grid{
		Time:    time,
		Depth:   depth,
		Lat:     lat,
		Lon:     lon,
		Decomp:  d,
		Ntime:   d.Ntime,
		Ndepth:  d.Ndepth,
		Nlat:    len(lat),
		Nlon:    len(lon),
		poleTol: c.PoleTolerance,
	}
	g.Areas = g.cellAreas(c)
	return g, nil
}

// uniform reports whether x is evenly spaced to within a relative
// tolerance.
func uniform(x []float64) bool {
	if len(x) < 3 {
		return true
	}
	d0 := x[1] - x[0]
	for i := 2; i < len(x); i++ {
		if math.Abs((x[i]-x[i-1])-d0) > 1e-6*math.Abs(d0) {
			return false
		}
	}
	return true
}

// Extents returns the local extents of the grid.
func (g *Grid) Extents() Extents {
	return Extents{g.Ntime, g.Ndepth, g.Nlat, g.Nlon}
}

// LayoutExtents returns the extents of a buffer with layout l.
func (g *Grid) LayoutExtents(l Layout) Extents {
	if l == ColumnLayout {
		return Extents{g.Ntime, g.Decomp.FullNdepth, g.Nlat, g.Nlon}
	}
	return g.Extents()
}

// Len returns the number of local grid points.
func (g *Grid) Len() int { return g.Extents().Len() }

// Index returns the local linear index of p.
func (g *Grid) Index(p Point) int {
	return Index(p.Time, p.Depth, p.Lat, p.Lon, g.Ntime, g.Ndepth, g.Nlat, g.Nlon)
}

// Point returns the local coordinates of a local linear index.
func (g *Grid) Point(index int) Point {
	t, d, la, lo := Index1to4(index, g.Ntime, g.Ndepth, g.Nlat, g.Nlon)
	return Point{Time: t, Depth: d, Lat: la, Lon: lo}
}

// LocalToGlobal converts a local linear index to the index of the same
// point in an array that spans the full extent of dim (and the local
// extent of the other decomposed dimension).
func (g *Grid) LocalToGlobal(index int, dim Dim) int {
	p := g.Point(index)
	switch dim {
	case DepthDim:
		return Index(p.Time, p.Depth+g.Decomp.DepthStart, p.Lat, p.Lon,
			g.Ntime, g.Decomp.FullNdepth, g.Nlat, g.Nlon)
	case TimeDim:
		return Index(p.Time+g.Decomp.TimeStart, p.Depth, p.Lat, p.Lon,
			g.Decomp.FullNtime, g.Ndepth, g.Nlat, g.Nlon)
	default:
		panic(fmt.Errorf("oceanbudget: invalid dimension %d", dim))
	}
}

// SetMask sets the water mask. mask may hold one value per horizontal
// cell, in which case it is applied at every time and depth, one value
// per local grid point, or one value per point of a column-layout
// buffer. true marks water.
func (g *Grid) SetMask(mask []bool) error {
	e := g.Extents()
	ec := g.LayoutExtents(ColumnLayout)
	nh := e.Len2D()
	switch len(mask) {
	case nh:
		g.mask = make([]bool, e.Len())
		g.columnMask = make([]bool, ec.Len())
		for i := range g.mask {
			g.mask[i] = mask[e.Horizontal(i)]
		}
		for i := range g.columnMask {
			g.columnMask[i] = mask[ec.Horizontal(i)]
		}
	case e.Len():
		g.mask = append([]bool(nil), mask...)
		g.columnMask = nil
	case ec.Len():
		g.columnMask = append([]bool(nil), mask...)
		g.mask = make([]bool, e.Len())
		for i := range g.mask {
			g.mask[i] = g.columnMask[g.LocalToGlobal(i, DepthDim)]
		}
	default:
		return fmt.Errorf("oceanbudget: mask length %d does not match %d horizontal, %d local or %d column points",
			len(mask), nh, e.Len(), ec.Len())
	}
	return nil
}

// Water reports whether the local point at index is water.
func (g *Grid) Water(index int) bool {
	return g.mask == nil || g.mask[index]
}

// Mask returns the water mask in the given layout, or nil if every point
// is water.
func (g *Grid) Mask(l Layout) []bool {
	if l == ColumnLayout {
		return g.columnMask
	}
	return g.mask
}

// IsPole reports whether latitude index ilat lies within the pole
// tolerance of ±90°.
func (g *Grid) IsPole(ilat int) bool {
	return IsPole(g.Lat[ilat], g.poleTol)
}

// IsPole reports whether lat [radians] lies within tol [degrees] of ±90°.
func IsPole(lat, tol float64) bool {
	return math.Abs(math.Abs(lat)*180/math.Pi-90) < tol
}

// cellAreas returns the area of every horizontal cell, using cell
// widths that extend halfway to the neighbouring coordinates.
func (g *Grid) cellAreas(c Constants) []float64 {
	dlon := cellWidths(g.Lon, c.PeriodicX, !c.Cartesian)
	dlat := cellWidths(g.Lat, c.PeriodicY, false)
	ext := g.Extents()
	a := make([]float64, ext.Len2D())
	for j := 0; j < g.Nlat; j++ {
		for i := 0; i < g.Nlon; i++ {
			v := dlon[i] * dlat[j]
			if !c.Cartesian {
				v *= c.EarthRadius * c.EarthRadius * math.Cos(g.Lat[j])
			}
			a[ext.Index2D(j, i)] = math.Abs(v)
		}
	}
	return a
}

func cellWidths(x []float64, periodic, angular bool) []float64 {
	n := len(x)
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		if angular && periodic {
			w[0] = 2 * math.Pi
		}
		return w
	}
	for i := 1; i < n-1; i++ {
		w[i] = (x[i+1] - x[i-1]) / 2
	}
	if periodic {
		period := float64(n) * (x[1] - x[0])
		if angular {
			period = 2 * math.Pi
		}
		w[0] = (x[1] - (x[n-1] - period)) / 2
		w[n-1] = ((x[0] + period) - x[n-2]) / 2
	} else {
		w[0] = x[1] - x[0]
		w[n-1] = x[n-1] - x[n-2]
	}
	return w
}
