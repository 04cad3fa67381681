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

	"gonum.org/v1/gonum/mat"
)

// diff4 holds the fourth-order, five-point first-derivative weights on
// a unit-spaced grid. Row i is for an evaluation point at position i of
// the window.
var diff4 = [5][5]float64{
	{-6.25 / 3, 4, -3, 4. / 3, -0.75 / 3},
	{-0.75 / 3, -2.5 / 3, 4.5 / 3, -1.5 / 3, 0.25 / 3},
	{0.25 / 3, -2. / 3, 0, 2. / 3, -0.25 / 3},
	{-0.25 / 3, 1.5 / 3, -4.5 / 3, 2.5 / 3, 0.75 / 3},
	{0.75 / 3, -4. / 3, 3, -4, 6.25 / 3},
}

// diff2 holds the second-order, three-point first-derivative weights.
var diff2 = [3][3]float64{
	{-1.5, 2, -0.5},
	{-0.5, 0, 0.5},
	{0.5, -2, 1.5},
}

// DiffVector returns the weights of a first-derivative stencil with the
// given order of accuracy on a uniform grid with spacing delta. The
// stencil spans order+1 points and pos is the position of the
// evaluation point within it, so pos 0 is a fully one-sided stencil
// looking right and pos order/2 is centred.
func DiffVector(order, pos int, delta float64) ([]float64, error) {
	w, err := unitWeights(order+1, pos, 1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v / delta
	}
	return out, nil
}

type unitKey struct {
	n, pos, m int
}

var unitCache = newWeightCache(256)

// unitWeights returns the weights of an n-point stencil for the m-th
// derivative at position pos of a grid with unit spacing. The returned
// slice is shared and must not be modified.
func unitWeights(n, pos, m int) ([]float64, error) {
	if pos < 0 || pos >= n {
		return nil, fmt.Errorf("oceanbudget: stencil position %d outside of %d-point window", pos, n)
	}
	if m == 1 {
		switch n {
		case 5:
			return diff4[pos][:], nil
		case 3:
			return diff2[pos][:], nil
		}
	}
	return unitCache.get(unitKey{n: n, pos: pos, m: m}, func() ([]float64, error) {
		x := make([]float64, n)
		for i := range x {
			x[i] = float64(i)
		}
		return FDWeights(x, float64(pos), m)
	})
}

// FDWeights returns the weights that approximate the m-th derivative at
// x0 from samples at nodes x, exact for polynomials of degree len(x)-1.
// The nodes need not be evenly spaced but must be distinct.
func FDWeights(x []float64, x0 float64, m int) ([]float64, error) {
	n := len(x)
	if m < 0 || n < m+1 {
		return nil, fmt.Errorf("oceanbudget: %d nodes cannot resolve derivative order %d", n, m)
	}
	var h float64
	for _, xi := range x {
		h = math.Max(h, math.Abs(xi-x0))
	}
	if h == 0 {
		return nil, fmt.Errorf("oceanbudget: stencil nodes coincide with evaluation point")
	}

	// Taylor system: row k holds ((x_j-x0)/h)^k / k!.
	a := mat.NewDense(n, n, nil)
	for j, xj := range x {
		s := (xj - x0) / h
		v := 1.
		for k := 0; k < n; k++ {
			a.Set(k, j, v)
			v *= s / float64(k+1)
		}
	}
	b := mat.NewVecDense(n, nil)
	b.SetVec(m, 1)
	var w mat.VecDense
	if err := w.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("oceanbudget: solving for stencil weights: %v", err)
	}
	scale := math.Pow(h, float64(m))
	out := make([]float64, n)
	for j := range out {
		out[j] = w.AtVec(j) / scale
	}
	return out, nil
}
