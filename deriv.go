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

// Axis identifies a spatial grid axis.
type Axis int

const (
	// Lon is the longitude axis.
	Lon Axis = iota
	// Lat is the latitude axis.
	Lat
	// Depth is the depth axis.
	Depth
)

// X, Y and Z are the names of the axes in Cartesian geometry.
const (
	X = Lon
	Y = Lat
	Z = Depth
)

func (a Axis) String() string {
	switch a {
	case Lon:
		return "longitude"
	case Lat:
		return "latitude"
	case Depth:
		return "depth"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Flags records the numerical fallbacks taken while evaluating
// derivatives at a point.
type Flags uint8

const (
	// FlagLand means the target point is land and fill values were written.
	FlagLand Flags = 1 << iota

	// FlagMasked means an input field held the fill value at the target
	// point and the corresponding output is the fill value.
	FlagMasked

	// FlagPole means a longitude derivative was set to zero because the
	// point lies at a pole.
	FlagPole

	// FlagDegenerate means fewer than two usable neighbours were found
	// and the derivative was set to zero.
	FlagDegenerate

	// FlagReduced means a stencil narrower than the full width was used.
	FlagReduced

	// FlagDepthBoundary means a depth stencil was shortened by the
	// edge of this process's depth slab rather than by the domain.
	FlagDepthBoundary
)

// Deriv requests one derivative of one field. Requests whose Out is nil
// are skipped.
type Deriv struct {
	Field []float64
	Axis  Axis

	// Second requests the second derivative rather than the first.
	Second bool

	Out *float64
}

func (d Deriv) order() int {
	if d.Second {
		return 2
	}
	return 1
}

// Evaluator computes finite-difference derivatives of fields at
// individual grid points. It is safe for concurrent use provided each
// goroutine uses its own Scratch.
type Evaluator struct {
	g      *Grid
	c      Constants
	layout Layout
	ext    Extents
	mask   []bool

	// depthShift converts a local depth index to a layout depth index,
	// and globalShift converts a layout depth index to a global one.
	depthShift, globalShift int

	cache *weightCache
}

// NewEvaluator returns an evaluator for fields laid out as l on grid g.
func NewEvaluator(g *Grid, c Constants, l Layout) (*Evaluator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		g:      g,
		c:      c,
		layout: l,
		ext:    g.LayoutExtents(l),
		mask:   g.Mask(l),
		cache:  newWeightCache(4096),
	}
	switch l {
	case LocalLayout:
		e.globalShift = g.Decomp.DepthStart
	case ColumnLayout:
		e.depthShift = g.Decomp.DepthStart
		if g.Mask(LocalLayout) != nil && e.mask == nil {
			return nil, fmt.Errorf("oceanbudget: column layout requires a column or horizontal mask")
		}
	default:
		return nil, fmt.Errorf("oceanbudget: invalid layout %d", l)
	}
	return e, nil
}

// Grid returns the grid the evaluator operates on.
func (e *Evaluator) Grid() *Grid { return e.g }

// Constants returns the evaluator's constants.
func (e *Evaluator) Constants() Constants { return e.c }

// Scratch holds per-goroutine working memory for an Evaluator.
type Scratch struct {
	idx, alt []int
	inner    *Scratch

	reqs []Deriv
	vals []float64
}

// NewScratch returns working memory for stencils of the given order.
func NewScratch(order int) *Scratch {
	return &Scratch{idx: make([]int, order+1), alt: make([]int, order+1)}
}

// NewScratch returns working memory sized for e.
func (e *Evaluator) NewScratch() *Scratch { return NewScratch(e.c.DiffOrder) }

// lpoint is a position in the evaluator's buffer layout.
type lpoint [4]int

func (q lpoint) along(a Axis) int { return q[3-int(a)] }

func (q lpoint) with(a Axis, j int) lpoint {
	q[3-int(a)] = j
	return q
}

func (e *Evaluator) index(q lpoint) int {
	return e.ext.Index(q[0], q[1], q[2], q[3])
}

func (e *Evaluator) water(i int) bool {
	return e.mask == nil || e.mask[i]
}

// AtPoint evaluates the requested derivatives at local point p, writing
// each result to its Out slot, and returns the fallbacks taken.
// Derivatives are with respect to physical distance: in spherical
// geometry longitude derivatives are divided by R·cos(lat) and latitude
// derivatives by R. Depth derivatives are with respect to the depth
// coordinate. If p is land every Out slot receives the fill value.
// Longitude derivatives at a pole are zero unless the field holds the
// fill value at p.
func (e *Evaluator) AtPoint(p Point, reqs []Deriv, s *Scratch) Flags {
	q := lpoint{p.Time, p.Depth + e.depthShift, p.Lat, p.Lon}
	ti := e.index(q)
	if !e.water(ti) {
		for _, r := range reqs {
			if r.Out != nil {
				*r.Out = e.c.FillValue
			}
		}
		return FlagLand
	}
	var flags Flags
	for axis := Lon; axis <= Depth; axis++ {
		for m := 1; m <= 2; m++ {
			if !wanted(reqs, axis, m) {
				continue
			}
			e.checkAxis(axis)
			factor, pole := e.metric(axis, p.Lat, m)
			if pole {
				for _, r := range reqs {
					if r.Out == nil || r.Axis != axis || r.order() != m {
						continue
					}
					e.checkField(r.Field)
					if r.Field[ti] == e.c.FillValue {
						*r.Out = e.c.FillValue
						flags |= FlagMasked
					} else {
						*r.Out = 0
					}
				}
				flags |= FlagPole
				continue
			}
			w := e.findWindow(q, axis, m, e.water, s.idx)
			flags |= w.flags
			for _, r := range reqs {
				if r.Out == nil || r.Axis != axis || r.order() != m {
					continue
				}
				e.checkField(r.Field)
				v, f := e.eval(q, ti, axis, m, &w, r.Field, s.alt)
				if f&FlagMasked == 0 && f&FlagDegenerate == 0 {
					v *= factor
				}
				*r.Out = v
				flags |= f
			}
		}
	}
	return flags
}

func wanted(reqs []Deriv, axis Axis, m int) bool {
	for _, r := range reqs {
		if r.Out != nil && r.Axis == axis && r.order() == m {
			return true
		}
	}
	return false
}

// Mixed returns the derivative along a of the derivative along b of
// field at p, applying the same scaling as AtPoint to each.
func (e *Evaluator) Mixed(p Point, field []float64, a, b Axis, s *Scratch) (float64, Flags) {
	e.checkAxis(a)
	e.checkAxis(b)
	e.checkField(field)
	q := lpoint{p.Time, p.Depth + e.depthShift, p.Lat, p.Lon}
	ti := e.index(q)
	if !e.water(ti) {
		return e.c.FillValue, FlagLand
	}
	if field[ti] == e.c.FillValue {
		return e.c.FillValue, FlagMasked
	}
	factor, pole := e.metric(a, p.Lat, 1)
	if pole {
		return 0, FlagPole
	}
	usable := func(i int) bool { return e.water(i) && field[i] != e.c.FillValue }
	w := e.findWindow(q, a, 1, usable, s.idx)
	if w.degenerate() {
		return 0, w.flags
	}
	if s.inner == nil {
		s.inner = NewScratch(e.c.DiffOrder)
	}
	flags := w.flags
	var sum float64
	for k, i := range w.idx {
		t, d, la, lo := e.ext.Coords(i)
		v, f := e.single(lpoint{t, d, la, lo}, i, b, field, s.inner)
		flags |= f
		sum += w.w[k] * v
	}
	return sum / w.scale * factor, flags
}

// single returns the scaled first derivative of one field at a water
// point q of the buffer layout.
func (e *Evaluator) single(q lpoint, ti int, axis Axis, field []float64, s *Scratch) (float64, Flags) {
	factor, pole := e.metric(axis, q[2], 1)
	if pole {
		return 0, FlagPole
	}
	w := e.findWindow(q, axis, 1, e.water, s.idx)
	v, f := e.eval(q, ti, axis, 1, &w, field, s.alt)
	if f&(FlagMasked|FlagDegenerate) != 0 || w.degenerate() {
		return 0, f | w.flags
	}
	return v * factor, f | w.flags
}

func (e *Evaluator) checkAxis(a Axis) {
	if a < Lon || a > Depth {
		panic(fmt.Errorf("oceanbudget: invalid axis %d", a))
	}
	if a == Depth && !e.c.DepthDerivatives {
		panic(fmt.Errorf("oceanbudget: depth derivative requested but depth derivatives are disabled"))
	}
}

func (e *Evaluator) checkField(f []float64) {
	if len(f) != e.ext.Len() {
		panic(fmt.Errorf("oceanbudget: field length %d does not match layout extents %v", len(f), e.ext))
	}
}

// metric returns the factor converting an m-th coordinate derivative
// along axis at latitude index la to a physical one, and whether the
// derivative is singular there.
func (e *Evaluator) metric(axis Axis, la, m int) (float64, bool) {
	if e.c.Cartesian {
		return 1, false
	}
	switch axis {
	case Lon:
		if e.g.IsPole(la) {
			return 0, true
		}
		return 1 / math.Pow(e.c.EarthRadius*math.Cos(e.g.Lat[la]), float64(m)), false
	case Lat:
		return 1 / math.Pow(e.c.EarthRadius, float64(m)), false
	default:
		return 1, false
	}
}

// eval applies window w to field, falling back to a window that avoids
// fill-valued neighbours if w contains any.
func (e *Evaluator) eval(q lpoint, ti int, axis Axis, m int, w *window, field []float64, alt []int) (float64, Flags) {
	fill := e.c.FillValue
	if field[ti] == fill {
		return fill, FlagMasked
	}
	if w.degenerate() {
		return 0, 0
	}
	for _, i := range w.idx {
		if field[i] == fill {
			usable := func(i int) bool { return e.water(i) && field[i] != fill }
			aw := e.findWindow(q, axis, m, usable, alt)
			if aw.degenerate() {
				return 0, aw.flags
			}
			return aw.apply(field), aw.flags | FlagReduced
		}
	}
	return w.apply(field), 0
}

// window is a stencil along one axis through a target point.
type window struct {
	idx   []int     // buffer positions
	w     []float64 // weights, shared and read-only
	scale float64   // the weighted sum is divided by scale
	flags Flags
}

func (w *window) degenerate() bool { return w.flags&FlagDegenerate != 0 }

func (w *window) apply(f []float64) float64 {
	var s float64
	for k, i := range w.idx {
		s += w.w[k] * f[i]
	}
	return s / w.scale
}

type gridKey struct {
	axis            Axis
	start, n, pos, m int
}

// findWindow selects the stencil along axis through q. It scans up to
// DiffOrder usable points on either side, stopping at the first
// unusable one, and picks the most nearly centred window of DiffOrder+1
// points. With fewer points available the whole usable run is used;
// with fewer than two neighbours the window is degenerate.
func (e *Evaluator) findWindow(q lpoint, axis Axis, m int, usable func(int) bool, buf []int) window {
	n := e.axisLen(axis)
	i := q.along(axis)
	periodic := e.periodic(axis)
	order := e.c.DiffOrder

	var edgeLeft, edgeRight bool
	scan := func(dir int) int {
		c := 0
		for k := 1; k <= order; k++ {
			j := i + dir*k
			if periodic {
				j = mod(j, n)
			} else if j < 0 || j >= n {
				if dir < 0 {
					edgeLeft = true
				} else {
					edgeRight = true
				}
				break
			}
			if !usable(e.index(q.with(axis, j))) {
				break
			}
			c++
		}
		return c
	}
	left, right := scan(-1), scan(1)
	for periodic && left+right+1 > n {
		if left > right {
			left--
		} else {
			right--
		}
	}

	var w window
	half := order / 2
	want := order + 1
	var a, b int
	if left+right+1 >= want {
		a = min(left, half)
		b = want - 1 - a
		if b > right {
			b = right
			a = want - 1 - b
		}
	} else {
		a, b = left, right
		w.flags |= FlagReduced
	}
	if axis == Depth && e.layout == LocalLayout {
		if (edgeLeft && e.g.Decomp.BoundedBelow() && a < half) ||
			(edgeRight && e.g.Decomp.BoundedAbove() && b < want-1-half) {
			w.flags |= FlagDepthBoundary
		}
	}
	if a+b < 2 {
		w.flags |= FlagDegenerate
		return w
	}

	nw := a + b + 1
	w.idx = buf[:nw]
	for k := -a; k <= b; k++ {
		j := i + k
		if periodic {
			j = mod(j, n)
		}
		w.idx[k+a] = e.index(q.with(axis, j))
	}

	var err error
	if delta, ok := e.uniformSpacing(axis); ok {
		w.w, err = unitWeights(nw, a, m)
		w.scale = math.Pow(delta, float64(m))
	} else {
		key := gridKey{axis: axis, start: e.globalIndex(axis, i) - a, n: nw, pos: a, m: m}
		w.w, err = e.cache.get(key, func() ([]float64, error) {
			x := make([]float64, nw)
			for k := -a; k <= b; k++ {
				x[k+a] = e.coord(axis, i+k)
			}
			return FDWeights(x, e.coord(axis, i), m)
		})
		w.scale = 1
	}
	if err != nil {
		w.flags |= FlagDegenerate
	}
	return w
}

func (e *Evaluator) axisLen(a Axis) int {
	switch a {
	case Lon:
		return e.ext.Nlon
	case Lat:
		return e.ext.Nlat
	default:
		return e.ext.Ndepth
	}
}

func (e *Evaluator) periodic(a Axis) bool {
	switch a {
	case Lon:
		return e.c.PeriodicX
	case Lat:
		return e.c.PeriodicY
	default:
		return false
	}
}

func (e *Evaluator) globalIndex(a Axis, i int) int {
	if a == Depth {
		return i + e.globalShift
	}
	return i
}

// uniformSpacing returns the grid spacing along a if the axis is
// declared uniform.
func (e *Evaluator) uniformSpacing(a Axis) (float64, bool) {
	switch {
	case a == Lon && e.c.UniformLon && len(e.g.Lon) > 1:
		return e.g.Lon[1] - e.g.Lon[0], true
	case a == Lat && e.c.UniformLat && len(e.g.Lat) > 1:
		return e.g.Lat[1] - e.g.Lat[0], true
	}
	return 0, false
}

// coord returns the coordinate of layout index j along a. On periodic
// axes j may lie outside the axis and is unwrapped by whole periods.
func (e *Evaluator) coord(a Axis, j int) float64 {
	var x []float64
	switch a {
	case Lon:
		x = e.g.Lon
	case Lat:
		x = e.g.Lat
	default:
		return e.g.Depth[j+e.globalShift]
	}
	n := len(x)
	k := mod(j, n)
	if k == j {
		return x[k]
	}
	period := float64(n) * (x[1] - x[0])
	if a == Lon && !e.c.Cartesian {
		period = math.Copysign(2*math.Pi, x[n-1]-x[0])
	}
	return x[k] + float64((j-k)/n)*period
}

func mod(j, n int) int {
	return ((j % n) + n) % n
}
