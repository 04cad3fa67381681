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
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

func members(r Region) []int {
	var o []int
	for i, m := range r.Member {
		if m {
			o = append(o, i)
		}
	}
	return o
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoadRegionsCartesian(t *testing.T) {
	c := cartesian()
	g := newTestGrid(t, c, []float64{0}, []float64{0}, linspace(0, 1, 3), linspace(0, 1, 5), nil)
	const cfg = `
[[Region]]
Name = "box"
LonMin = 0.5
LonMax = 2.5
LatMin = -1.0
LatMax = 0.5

[[Region]]
Name = "triangle"
Polygon = [[-0.5, -0.5], [5.0, -0.5], [-0.5, 5.0]]
`
	regions, err := LoadRegions(strings.NewReader(cfg), g, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 3 || regions[0].Name != "Global" || regions[1].Name != "box" {
		t.Fatalf("wrong regions %v", regions)
	}
	if len(members(regions[0])) != 15 {
		t.Errorf("global region has %d members", len(members(regions[0])))
	}
	if want := []int{1, 2}; !sameInts(members(regions[1]), want) {
		t.Errorf("box: want %v but have %v", want, members(regions[1]))
	}
	// Cells with lat + lon < 4.5.
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12}
	if have := members(regions[2]); !sameInts(have, want) {
		t.Errorf("triangle: want %v but have %v", want, have)
	}
}

func TestLoadRegionsSpherical(t *testing.T) {
	c := DefaultConstants()
	g := newTestGrid(t, c, []float64{0}, []float64{0}, radians(-20, 0, 20), radians(linspace(0, 10, 36)...), nil)
	const cfg = `
[[Region]]
Name = "dateline"
LonMin = -15.0
LonMax = 15.0
LatMin = -10.0
LatMax = 10.0
`
	regions, err := LoadRegions(strings.NewReader(cfg), g, c)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{36, 37, 71}
	if have := members(regions[1]); !sameInts(have, want) {
		t.Errorf("want %v but have %v", want, have)
	}
}

func TestLoadRegionsInvalid(t *testing.T) {
	c := cartesian()
	g := newTestGrid(t, c, []float64{0}, []float64{0}, linspace(0, 1, 3), linspace(0, 1, 5), nil)
	for _, cfg := range []string{
		"[[Region]]\nName = \"empty\"\n",
		"[[Region]]\nName = \"line\"\nPolygon = [[0.0, 0.0], [1.0, 1.0]]\n",
		"[[Region\n",
	} {
		if _, err := LoadRegions(strings.NewReader(cfg), g, c); err == nil {
			t.Errorf("want error for %q", cfg)
		}
	}
}

func TestLoadRegionShapefile(t *testing.T) {
	dir, err := ioutil.TempDir("", "oceanbudget_regions")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	type regionRecord struct {
		geom.Polygon
		Name string
	}
	filename := filepath.Join(dir, "regions.shp")
	e, err := shp.NewEncoder(filename, regionRecord{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []regionRecord{
		{Name: "west", Polygon: geom.Polygon{{{X: -0.5, Y: -0.5}, {X: -0.5, Y: 2.5}, {X: 1.5, Y: 2.5}, {X: 1.5, Y: -0.5}}}},
		{Name: "east", Polygon: geom.Polygon{{{X: 2.5, Y: -0.5}, {X: 2.5, Y: 2.5}, {X: 4.5, Y: 2.5}, {X: 4.5, Y: -0.5}}}},
	} {
		if err := e.Encode(r); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()

	c := cartesian()
	g := newTestGrid(t, c, []float64{0}, []float64{0}, linspace(0, 1, 3), linspace(0, 1, 5), nil)
	regions, err := LoadRegionShapefile(filename, "Name", g, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 3 {
		t.Fatalf("want 3 regions but have %d", len(regions))
	}
	for k, test := range []struct {
		name    string
		members []int
	}{
		{"west", []int{0, 1, 5, 6, 10, 11}},
		{"east", []int{3, 4, 8, 9, 13, 14}},
	} {
		r := regions[k+1]
		if r.Name != test.name || !sameInts(members(r), test.members) {
			t.Errorf("want %s %v but have %s %v", test.name, test.members, r.Name, members(r))
		}
	}
}
