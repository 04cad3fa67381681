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
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/spatialmodel/oceanbudget"
	"github.com/tealeg/xlsx"
)

func TestWriteReport(t *testing.T) {
	dir, err := ioutil.TempDir("", "oceanbudget_report")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c := testConstants()
	decomps, err := oceanbudget.DecomposeAll(2, 1, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	var results []*rankResult
	for k, d := range decomps {
		g, err := oceanbudget.NewGrid([]float64{0, 1}, []float64{0}, []float64{0, 1}, []float64{0, 1}, d, c)
		if err != nil {
			t.Fatal(err)
		}
		r, err := oceanbudget.NewReducer(g, c, []oceanbudget.Region{oceanbudget.GlobalRegion(g)})
		if err != nil {
			t.Fatal(err)
		}
		v := float64(k + 1)
		results = append(results, &rankResult{
			Decomp:  d,
			Reducer: r,
			Fields:  []string{"ke"},
			Stats:   []*oceanbudget.Stats{r.Reduce([]float64{v, v, v, 3 * v})},
		})
	}
	filename := filepath.Join(dir, "report.xlsx")
	if err := WriteReport(filename, results...); err != nil {
		t.Fatal(err)
	}
	f, err := xlsx.OpenFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	rows := f.Sheet["Statistics"].Rows
	if len(rows) != 3 {
		t.Fatalf("want 3 statistics rows but have %d", len(rows))
	}
	if tt, err := rows[2].Cells[1].Int(); err != nil || tt != 1 {
		t.Errorf("want global time 1 but have %d (%v)", tt, err)
	}
	if m, err := rows[2].Cells[5].Float(); err != nil || absDifferent(m, 3, 1e-12) {
		t.Errorf("want mean 3 but have %g (%v)", m, err)
	}

	summary := f.Sheet["Summary"].Rows
	if len(summary) != 2 {
		t.Fatalf("want 2 summary rows but have %d", len(summary))
	}
	want := []float64{2, 2.25, 1.0606601717798212, 1.5, 3}
	for k, w := range want {
		v, err := summary[1].Cells[k+2].Float()
		if err != nil {
			t.Fatal(err)
		}
		if absDifferent(v, w, 1e-9) {
			t.Errorf("summary column %d: want %g but have %g", k+2, w, v)
		}
	}
}

func TestPlotField(t *testing.T) {
	dir, err := ioutil.TempDir("", "oceanbudget_plot")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c := oceanbudget.DefaultConstants()
	c.PeriodicX = false
	c.UniformLon = false
	lat := []float64{-0.2, 0, 0.2}
	lon := []float64{0, 0.1, 0.2, 0.3}
	g, err := oceanbudget.NewGrid([]float64{0}, []float64{0}, lat, lon, nil, c)
	if err != nil {
		t.Fatal(err)
	}
	field := make([]float64, g.Len())
	for i := range field {
		field[i] = float64(i) - 5
	}
	field[3] = c.FillValue
	filename := filepath.Join(dir, "plot.png")
	if err := PlotField(filename, g, c, field, "test"); err != nil {
		t.Fatal(err)
	}
	r, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := png.Decode(r); err != nil {
		t.Errorf("invalid png: %v", err)
	}

	if err := PlotField(filename, g, c, field[1:], "test"); err == nil {
		t.Error("want error for short field")
	}
	g1, err := oceanbudget.NewGrid([]float64{0}, []float64{0}, lat[:1], lon, nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := PlotField(filename, g1, c, field[:4], "test"); err == nil {
		t.Error("want error for a single latitude")
	}
}
