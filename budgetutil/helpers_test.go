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

package budgetutil

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/oceanbudget"
)

const (
	testNt, testNd, testNlat, testNlon = 2, 2, 6, 7
)

// writeInput writes a Cartesian dataset to dir holding the solid-body
// rotation u = -y, v = x and its streamfunction psi = (x² + y²)/2.
func writeInput(t *testing.T, dir string) string {
	path := filepath.Join(dir, "input.nc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dims := []string{"time", "depth", "latitude", "longitude"}
	h := cdf.NewHeader(dims, []int{testNt, testNd, testNlat, testNlon})
	for _, d := range dims {
		h.AddVariable(d, []string{d}, []float64{0})
	}
	for _, v := range []string{"u", "v", "psi"} {
		h.AddVariable(v, dims, []float64{0})
	}
	h.Define()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	coords := map[string][]float64{
		"time":      {0, 1},
		"depth":     {0, 10},
		"latitude":  make([]float64, testNlat),
		"longitude": make([]float64, testNlon),
	}
	for i := range coords["latitude"] {
		coords["latitude"][i] = float64(i)
	}
	for i := range coords["longitude"] {
		coords["longitude"][i] = float64(i)
	}
	for name, x := range coords {
		if _, err := cf.Writer(name, nil, nil).Write(x); err != nil {
			t.Fatal(err)
		}
	}
	n := testNt * testNd * testNlat * testNlon
	u, v, psi := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range u {
		_, _, y, x := oceanbudget.Index1to4(i, testNt, testNd, testNlat, testNlon)
		u[i], v[i] = -float64(y), float64(x)
		psi[i] = float64(x*x+y*y) / 2
	}
	for name, data := range map[string][]float64{"u": u, "v": v, "psi": psi} {
		if _, err := cf.Writer(name, nil, nil).Write(data); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func testConstants() oceanbudget.Constants {
	c := oceanbudget.DefaultConstants()
	c.Cartesian = true
	c.PeriodicX = false
	return c
}

// readOutput returns every value of a variable in a netCDF file.
func readOutput(t *testing.T, path, name string) []float64 {
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	n := 1
	for _, l := range cf.Header.Lengths(name) {
		n *= l
	}
	r := cf.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	switch b := buf.(type) {
	case []float64:
		return b
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o
	default:
		t.Fatalf("unexpected type %T", buf)
		return nil
	}
}

func absDifferent(a, b, tol float64) bool {
	return math.Abs(a-b) > tol
}
