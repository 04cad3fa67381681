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
	"math"
	"testing"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}

func linspace(start, step float64, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = start + float64(i)*step
	}
	return o
}

func radians(deg ...float64) []float64 {
	o := make([]float64, len(deg))
	for i, v := range deg {
		o[i] = v * math.Pi / 180
	}
	return o
}

// cartesian returns constants for a non-periodic Cartesian grid.
func cartesian() Constants {
	c := DefaultConstants()
	c.Cartesian = true
	c.PeriodicX = false
	return c
}

func newTestGrid(t *testing.T, c Constants, time, depth, lat, lon []float64, d *Decomposition) *Grid {
	g, err := NewGrid(time, depth, lat, lon, d, c)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func newTestEvaluator(t *testing.T, g *Grid, c Constants, l Layout) *Evaluator {
	e, err := NewEvaluator(g, c, l)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// line returns a one-dimensional Cartesian grid along x.
func line(t *testing.T, c Constants, x []float64) *Grid {
	return newTestGrid(t, c, []float64{0}, []float64{0}, []float64{0}, x, nil)
}
