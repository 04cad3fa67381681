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
	"sort"

	"github.com/ctessum/sparse"
)

// SphericalToCartesian converts a vector with eastward, northward and
// upward components at (lon, lat) [radians] to earth-centred x, y and
// z components.
func SphericalToCartesian(east, north, up, lon, lat float64) (x, y, z float64) {
	slon, clon := math.Sincos(lon)
	slat, clat := math.Sincos(lat)
	x = -slon*east - slat*clon*north + clat*clon*up
	y = clon*east - slat*slon*north + clat*slon*up
	z = clat*north + slat*up
	return
}

// CartesianToSpherical is the inverse of SphericalToCartesian.
func CartesianToSpherical(x, y, z, lon, lat float64) (east, north, up float64) {
	slon, clon := math.Sincos(lon)
	slat, clat := math.Sincos(lat)
	east = -slon*x + clon*y
	north = -slat*clon*x - slat*slon*y + clat*z
	up = clat*clon*x + clat*slon*y + slat*z
	return
}

// Gradient writes the gradient of each field at p to the matching
// element of out. In Cartesian geometry the components are along x, y
// and z. In spherical geometry they are earth-centred x, y and z
// components of the horizontal gradient plus, when depth derivatives
// are enabled, the upward derivative (the negative depth derivative).
// Land points receive the fill value in every component.
func (e *Evaluator) Gradient(p Point, fields [][]float64, out [][3]float64, s *Scratch) Flags {
	naxes := 2
	if e.c.DepthDerivatives {
		naxes = 3
	}
	n := naxes * len(fields)
	if cap(s.vals) < n {
		s.vals = make([]float64, n)
		s.reqs = make([]Deriv, n)
	}
	vals, reqs := s.vals[:n], s.reqs[:n]
	for k, f := range fields {
		for a := 0; a < naxes; a++ {
			j := k*naxes + a
			vals[j] = 0
			reqs[j] = Deriv{Field: f, Axis: Axis(a), Out: &vals[j]}
		}
	}
	flags := e.AtPoint(p, reqs, s)
	for k := range fields {
		v := vals[k*naxes : (k+1)*naxes]
		if flags&FlagLand != 0 || masked(v, e.c.FillValue) {
			out[k] = [3]float64{e.c.FillValue, e.c.FillValue, e.c.FillValue}
			continue
		}
		var dz float64
		if naxes == 3 {
			dz = v[2]
		}
		if e.c.Cartesian {
			out[k] = [3]float64{v[0], v[1], dz}
			continue
		}
		x, y, z := SphericalToCartesian(v[0], v[1], -dz, e.g.Lon[p.Lon], e.g.Lat[p.Lat])
		out[k] = [3]float64{x, y, z}
	}
	return flags
}

// masked reports whether any component of a gradient is the fill value.
func masked(v []float64, fill float64) bool {
	for _, x := range v {
		if x == fill {
			return true
		}
	}
	return false
}

// Vorticity returns the vertical component of the curl of the
// horizontal velocity (ulon, ulat). If seed is not nil it is subtracted
// from the result. Vorticity is zero at the poles.
func Vorticity(e *Evaluator, ulon, ulat, seed []float64) ([]float64, FlagCounts) {
	g, c := e.g, e.c
	out := make([]float64, g.Len())
	counts := e.Calculations(func(p Point, i int, s *Scratch) Flags {
		var dvdx, dudy float64
		flags := e.AtPoint(p, []Deriv{
			{Field: ulat, Axis: Lon, Out: &dvdx},
			{Field: ulon, Axis: Lat, Out: &dudy},
		}, s)
		switch {
		case flags&FlagLand != 0 || ulon[i] == c.FillValue || ulat[i] == c.FillValue:
			out[i] = c.FillValue
			return flags
		case flags&FlagPole != 0:
			out[i] = 0
			return flags
		}
		v := dvdx - dudy
		if !c.Cartesian {
			v += ulon[i] * math.Tan(g.Lat[p.Lat]) / c.EarthRadius
		}
		if seed != nil && seed[i] != c.FillValue {
			v -= seed[i]
		}
		out[i] = v
		return flags
	})
	return out, counts
}

// VelocityFromStreamfunction returns the horizontal velocity of the
// non-divergent flow with streamfunction f. Velocities are zero at
// the poles.
func VelocityFromStreamfunction(e *Evaluator, f []float64) (ulon, ulat []float64, counts FlagCounts) {
	g, c := e.g, e.c
	ulon = make([]float64, g.Len())
	ulat = make([]float64, g.Len())
	counts = e.Calculations(func(p Point, i int, s *Scratch) Flags {
		var dfdx, dfdy float64
		flags := e.AtPoint(p, []Deriv{
			{Field: f, Axis: Lon, Out: &dfdx},
			{Field: f, Axis: Lat, Out: &dfdy},
		}, s)
		switch {
		case flags&(FlagLand|FlagMasked) != 0:
			ulon[i], ulat[i] = c.FillValue, c.FillValue
		case flags&FlagPole != 0:
			ulon[i], ulat[i] = 0, 0
		default:
			ulon[i], ulat[i] = -dfdy, dfdx
		}
		return flags
	})
	return
}

// SubfilterFlux returns the subfilter flux coarse(ab) - coarse(a)·coarse(b).
func SubfilterFlux(coarseAB, coarseA, coarseB []float64, fill float64) []float64 {
	out := make([]float64, len(coarseAB))
	for i := range out {
		if coarseAB[i] == fill || coarseA[i] == fill || coarseB[i] == fill {
			out[i] = fill
			continue
		}
		out[i] = coarseAB[i] - coarseA[i]*coarseB[i]
	}
	return out
}

// EnstrophyTransfer returns the scale transfer of enstrophy,
// Z = -ρ0 Σ_j τ_j ∂ω/∂x_j, where ω is the coarse vorticity and τ
// holds the Cartesian components of the subfilter vorticity flux.
func EnstrophyTransfer(e *Evaluator, omega []float64, tau [3][]float64) ([]float64, FlagCounts) {
	c := e.c
	out := make([]float64, e.g.Len())
	counts := e.Calculations(func(p Point, i int, s *Scratch) Flags {
		var grad [1][3]float64
		flags := e.Gradient(p, [][]float64{omega}, grad[:], s)
		if grad[0][0] == c.FillValue || tau[0][i] == c.FillValue || tau[1][i] == c.FillValue || tau[2][i] == c.FillValue {
			out[i] = c.FillValue
			return flags
		}
		var z float64
		for j := 0; j < 3; j++ {
			z -= tau[j][i] * grad[0][j]
		}
		out[i] = c.Rho0 * z
		return flags
	})
	return out, counts
}

// TransportDivergence returns the divergence of the kinetic energy
// transport u·(½ρ0|u|²), plus u·p when boundary transfers are enabled,
// for the horizontal velocity (ulon, ulat) and pressure p. p may be nil
// if boundary transfers are disabled.
func TransportDivergence(e *Evaluator, ulon, ulat, p []float64) ([]float64, FlagCounts, error) {
	g, c := e.g, e.c
	if c.BoundaryTransfers && p == nil {
		return nil, FlagCounts{}, fmt.Errorf("oceanbudget: boundary transfers require a pressure field")
	}
	var flux [3][]float64
	for j := range flux {
		flux[j] = make([]float64, g.Len())
	}
	for i := range ulon {
		pt := g.Point(i)
		if !g.Water(i) || ulon[i] == c.FillValue || ulat[i] == c.FillValue ||
			(c.BoundaryTransfers && p[i] == c.FillValue) {
			flux[0][i], flux[1][i], flux[2][i] = c.FillValue, c.FillValue, c.FillValue
			continue
		}
		energy := 0.5 * c.Rho0 * (ulon[i]*ulon[i] + ulat[i]*ulat[i])
		if c.BoundaryTransfers {
			energy += p[i]
		}
		ux, uy, uz := ulon[i], ulat[i], 0.
		if !c.Cartesian {
			ux, uy, uz = SphericalToCartesian(ulon[i], ulat[i], 0, g.Lon[pt.Lon], g.Lat[pt.Lat])
		}
		flux[0][i], flux[1][i], flux[2][i] = ux*energy, uy*energy, uz*energy
	}
	out := make([]float64, g.Len())
	fields := flux[:]
	counts := e.Calculations(func(pt Point, i int, s *Scratch) Flags {
		var grad [3][3]float64
		flags := e.Gradient(pt, fields, grad[:], s)
		if grad[0][0] == c.FillValue || grad[1][0] == c.FillValue || grad[2][0] == c.FillValue {
			out[i] = c.FillValue
			return flags
		}
		out[i] = grad[0][0] + grad[1][1] + grad[2][2]
		return flags
	})
	return out, counts, nil
}

// RegridNearest interpolates src, a (latitude, longitude) array defined
// on an ascending srcLat x srcLon grid, onto the dstLat x dstLon grid by
// taking the nearest source value. The result is a horizontal companion
// array of the destination grid.
func RegridNearest(srcLat, srcLon []float64, src *sparse.DenseArray, dstLat, dstLon []float64) ([]float64, error) {
	if shape := src.GetShape(); len(srcLat) == 0 || len(srcLon) == 0 ||
		len(shape) != 2 || shape[0] != len(srcLat) || shape[1] != len(srcLon) {
		return nil, fmt.Errorf("oceanbudget: regrid source has shape %v, want [%d %d]",
			src.GetShape(), len(srcLat), len(srcLon))
	}
	jlat := make([]int, len(dstLat))
	for k, v := range dstLat {
		jlat[k] = nearest(srcLat, v)
	}
	jlon := make([]int, len(dstLon))
	for k, v := range dstLon {
		jlon[k] = nearest(srcLon, v)
	}
	ext := Extents{1, 1, len(dstLat), len(dstLon)}
	out := make([]float64, ext.Len2D())
	for la, jla := range jlat {
		for lo, jlo := range jlon {
			out[ext.Index2D(la, lo)] = src.Get(jla, jlo)
		}
	}
	return out, nil
}

// nearest returns the index of the element of ascending x closest to v.
func nearest(x []float64, v float64) int {
	i := sort.SearchFloat64s(x, v)
	switch {
	case i == len(x):
		return len(x) - 1
	case i > 0 && v-x[i-1] < x[i]-v:
		return i - 1
	}
	return i
}
