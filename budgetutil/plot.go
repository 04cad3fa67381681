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
	"fmt"
	"math"
	"os"

	"github.com/spatialmodel/oceanbudget"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// surface adapts the first time and depth of a field to plotter.GridXYZ.
type surface struct {
	g     *oceanbudget.Grid
	x, y  []float64
	field []float64
	fill  float64
}

func (s surface) Dims() (c, r int)   { return s.g.Nlon, s.g.Nlat }
func (s surface) X(c int) float64    { return s.x[c] }
func (s surface) Y(r int) float64    { return s.y[r] }
func (s surface) Z(c, r int) float64 {
	v := s.field[s.g.Index(oceanbudget.Point{Lat: r, Lon: c})]
	if v == s.fill {
		return math.NaN()
	}
	return v
}

// PlotField writes a PNG heat map of the first time and depth of a
// field on grid g. The colour scale is symmetric about zero.
func PlotField(filename string, g *oceanbudget.Grid, c oceanbudget.Constants, field []float64, title string) error {
	if len(field) != g.Len() {
		return fmt.Errorf("oceanbudget: plot field length %d does not match grid length %d", len(field), g.Len())
	}
	if g.Nlat < 2 || g.Nlon < 2 {
		return fmt.Errorf("oceanbudget: plotting requires at least 2 latitudes and longitudes; grid is %v", g.Extents())
	}
	s := surface{g: g, x: g.Lon, y: g.Lat, field: field, fill: c.FillValue}
	xLabel, yLabel := "x", "y"
	if !c.Cartesian {
		s.x, s.y = toDegrees(g.Lon), toDegrees(g.Lat)
		xLabel, yLabel = "Longitude (°)", "Latitude (°)"
	}

	var max float64
	for la := 0; la < g.Nlat; la++ {
		for lo := 0; lo < g.Nlon; lo++ {
			if v := s.Z(lo, la); !math.IsNaN(v) {
				max = math.Max(max, math.Abs(v))
			}
		}
	}
	if max == 0 {
		max = 1
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-max)
	cm.SetMax(max)

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	h := plotter.NewHeatMap(s, cm.Palette(255))
	h.Min, h.Max = -max, max
	p.Add(h)

	img := vgimg.New(8*vg.Inch, 5*vg.Inch)
	p.Draw(draw.New(img))
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("oceanbudget: creating plot file: %v", err)
	}
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("oceanbudget: writing plot: %v", err)
	}
	return f.Close()
}

func toDegrees(x []float64) []float64 {
	o := make([]float64, len(x))
	for i, v := range x {
		o[i] = v * 180 / math.Pi
	}
	return o
}
