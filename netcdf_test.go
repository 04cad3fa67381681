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
	"io"
	"io/ioutil"
	"math"
	"os"
	"testing"

	"github.com/ctessum/cdf"
)

const (
	testNt, testNd, testNlat, testNlon = 2, 3, 2, 4
	testFillIndex                      = 5
)

// writeTestDataset writes a small packed dataset to a temporary file
// and returns the open file. Variable "u" holds its own linear index,
// packed with scale 0.5 and offset 1, except at testFillIndex.
func writeTestDataset(t *testing.T) *os.File {
	f, err := ioutil.TempFile("", "oceanbudget_test")
	if err != nil {
		t.Fatal(err)
	}
	dims := []string{"time", "depth", "latitude", "longitude"}
	h := cdf.NewHeader(dims, []int{testNt, testNd, testNlat, testNlon})
	for _, d := range dims {
		h.AddVariable(d, []string{d}, []float64{0})
	}
	h.AddVariable("u", dims, []int16{0})
	h.AddAttribute("u", "scale_factor", []float64{0.5})
	h.AddAttribute("u", "add_offset", []float64{1})
	h.AddAttribute("u", "_FillValue", []int16{-32767})
	h.Define()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for name, x := range map[string][]float64{
		"time":      {0, 86400},
		"depth":     {1, 10, 100},
		"latitude":  {-10, 10},
		"longitude": {0, 90, 180, 270},
	} {
		if _, err := cf.Writer(name, nil, nil).Write(x); err != nil {
			t.Fatal(err)
		}
	}
	u := make([]int16, testNt*testNd*testNlat*testNlon)
	for i := range u {
		u[i] = int16(i)
	}
	u[testFillIndex] = -32767
	if _, err := cf.Writer("u", nil, nil).Write(u); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestOpenDataset(t *testing.T) {
	f := writeTestDataset(t)
	defer os.Remove(f.Name())
	defer f.Close()

	c := DefaultConstants()
	ds, err := OpenDataset(f, DefaultCoordNames(), c, 2, 1, StaticComm{ProcRank: 1, ProcSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	g := ds.Grid
	if g.Decomp.TimeStart != 1 || g.Ntime != 1 || g.Ndepth != testNd {
		t.Errorf("wrong decomposition %v", g.Decomp)
	}
	if absDifferent(g.Lat[1], 10*math.Pi/180, 1e-15) || absDifferent(g.Lon[2], math.Pi, 1e-15) {
		t.Errorf("coordinates not in radians: lat %v, lon %v", g.Lat, g.Lon)
	}
	if !ds.Has("u") || ds.Has("v") {
		t.Error("wrong variable presence")
	}
	data, mask, err := ds.ReadVariable("u", LocalLayout)
	if err != nil {
		t.Fatal(err)
	}
	slab := testNd * testNlat * testNlon
	if len(data.Elements) != slab {
		t.Fatalf("want %d values but have %d", slab, len(data.Elements))
	}
	for k, v := range data.Elements {
		if want := float64(slab+k)*0.5 + 1; v != want || !mask[k] {
			t.Errorf("element %d: want %g but have %g (water %v)", k, want, v, mask[k])
		}
	}
}

func TestReadVariableFill(t *testing.T) {
	f := writeTestDataset(t)
	defer os.Remove(f.Name())
	defer f.Close()

	c := DefaultConstants()
	ds, err := OpenDataset(f, DefaultCoordNames(), c, 1, 1, Serial)
	if err != nil {
		t.Fatal(err)
	}
	data, mask, err := ds.ReadVariable("u", LocalLayout)
	if err != nil {
		t.Fatal(err)
	}
	if data.Elements[testFillIndex] != c.FillValue || mask[testFillIndex] {
		t.Errorf("want land at %d but have %g", testFillIndex, data.Elements[testFillIndex])
	}
	if err := ds.LoadMask("u"); err != nil {
		t.Fatal(err)
	}
	if ds.Grid.Water(testFillIndex) || !ds.Grid.Water(testFillIndex+1) {
		t.Error("mask not loaded")
	}
	if _, _, err := ds.ReadVariable("depth", LocalLayout); err == nil {
		t.Error("want error for 1-D variable")
	}
}

func TestReadVariableColumn(t *testing.T) {
	f := writeTestDataset(t)
	defer os.Remove(f.Name())
	defer f.Close()

	ds, err := OpenDataset(f, DefaultCoordNames(), DefaultConstants(), 1, 3, StaticComm{ProcRank: 2, ProcSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	local, _, err := ds.ReadVariable("u", LocalLayout)
	if err != nil {
		t.Fatal(err)
	}
	column, _, err := ds.ReadVariable("u", ColumnLayout)
	if err != nil {
		t.Fatal(err)
	}
	horiz := testNlat * testNlon
	if len(local.Elements) != testNt*horiz || len(column.Elements) != testNt*testNd*horiz {
		t.Fatalf("wrong lengths %d and %d", len(local.Elements), len(column.Elements))
	}
	// The single local depth level is the deepest one.
	ext := ds.Grid.Extents()
	for tt := 0; tt < testNt; tt++ {
		for la := 0; la < testNlat; la++ {
			for lo := 0; lo < testNlon; lo++ {
				l := local.Get(tt, 0, la, lo)
				col := column.Get(tt, 2, la, lo)
				if l != col {
					t.Errorf("time %d cell (%d, %d): local %g != column %g", tt, la, lo, l, col)
				}
				if e := local.Elements[ext.Index(tt, 0, la, lo)]; e != l {
					t.Errorf("time %d cell (%d, %d): array index disagrees with grid index: %g != %g", tt, la, lo, e, l)
				}
			}
		}
	}
}

func TestOutputRoundTrip(t *testing.T) {
	in := writeTestDataset(t)
	defer os.Remove(in.Name())
	defer in.Close()
	out, err := ioutil.TempFile("", "oceanbudget_out")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(out.Name())
	defer out.Close()

	c := DefaultConstants()
	var grids []*Grid
	for rank := 0; rank < 2; rank++ {
		ds, err := OpenDataset(in, DefaultCoordNames(), c, 1, 2, StaticComm{ProcRank: rank, ProcSize: 2})
		if err != nil {
			t.Fatal(err)
		}
		grids = append(grids, ds.Grid)
	}
	if _, err := CreateOutput(out, grids[0], c, []string{"ke"}); err != nil {
		t.Fatal(err)
	}
	for _, g := range grids {
		o, err := OpenOutput(out, g)
		if err != nil {
			t.Fatal(err)
		}
		data := make([]float64, g.Len())
		for i := range data {
			p := g.Point(i)
			data[i] = float64((p.Depth+g.Decomp.DepthStart)*10 + p.Time)
		}
		if err := o.Write("ke", data); err != nil {
			t.Fatal(err)
		}
		if err := o.Write("ke", data[1:]); err == nil {
			t.Error("want error for short data")
		}
		if err := o.Write("missing", data); err == nil {
			t.Error("want error for missing variable")
		}
	}

	f, err := cdf.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	r := f.Reader("ke", nil, nil)
	buf := r.Zero(testNt * testNd * testNlat * testNlon)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	ext := Extents{testNt, testNd, testNlat, testNlon}
	for i, v := range buf.([]float32) {
		tt, d, _, _ := ext.Coords(i)
		if want := float32(d*10 + tt); v != want {
			t.Errorf("element %d: want %g but have %g", i, want, v)
		}
	}
	lat := f.Reader("latitude", nil, nil)
	lbuf := lat.Zero(testNlat)
	if _, err := lat.Read(lbuf); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if v := lbuf.([]float64)[0]; absDifferent(v, -10, 1e-12) {
		t.Errorf("latitude not written in degrees: %g", v)
	}
}

func TestWriteRegionStats(t *testing.T) {
	out, err := ioutil.TempFile("", "oceanbudget_stats")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(out.Name())
	defer out.Close()

	c := cartesian()
	g := newTestGrid(t, c, []float64{0, 1}, []float64{0}, []float64{0, 1}, []float64{0, 1}, nil)
	r, err := NewReducer(g, c, []Region{GlobalRegion(g)})
	if err != nil {
		t.Fatal(err)
	}
	s := r.Reduce([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	if err := WriteRegionStats(out, true, r, []string{"ke"}, []*Stats{s}); err != nil {
		t.Fatal(err)
	}
	if err := WriteRegionStats(out, false, r, []string{"ke", "z"}, []*Stats{s}); err == nil {
		t.Error("want error for mismatched names")
	}
	f, err := cdf.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	rd := f.Reader("ke_mean", nil, nil)
	buf := rd.Zero(2)
	if _, err := rd.Read(buf); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	want := []float64{2.5, 6.5}
	for i, v := range buf.([]float64) {
		if absDifferent(v, want[i], 1e-12) {
			t.Errorf("time %d: want %g but have %g", i, want[i], v)
		}
	}
}

func TestReadHorizontal(t *testing.T) {
	f, err := ioutil.TempFile("", "oceanbudget_seed")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	h := cdf.NewHeader([]string{"lat", "lon"}, []int{2, 3})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddVariable("omega", []string{"lat", "lon"}, []float32{0})
	h.AddAttribute("omega", "_FillValue", []float32{-999})
	h.Define()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cf.Writer("lat", nil, nil).Write([]float64{-5, 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := cf.Writer("lon", nil, nil).Write([]float64{0, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := cf.Writer("omega", nil, nil).Write([]float32{1, 2, 3, 4, -999, 6}); err != nil {
		t.Fatal(err)
	}

	names := CoordNames{Lat: "lat", Lon: "lon"}
	lat, lon, data, err := ReadHorizontal(f, names, "omega", -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 2 || len(lon) != 3 || lat[1] != 5 {
		t.Errorf("wrong coordinates %v %v", lat, lon)
	}
	want := [][]float64{{1, 2, 3}, {4, -1, 6}}
	for la := range want {
		for lo, v := range want[la] {
			if have := data.Get(la, lo); have != v {
				t.Errorf("element (%d, %d): want %g but have %g", la, lo, v, have)
			}
		}
	}
	if _, _, _, err := ReadHorizontal(f, names, "lat", -1); err == nil {
		t.Error("want error for 1-D variable")
	}
}
