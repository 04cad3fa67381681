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
	"io"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// RegionConfig is the file format of region definitions. Each region
// is either a polygon of [lon, lat] vertices or a lon-lat box, with
// coordinates in degrees (or grid units in Cartesian geometry).
//
//	[[Region]]
//	Name = "Gulf Stream"
//	LonMin = -80.0
//	LonMax = -50.0
//	LatMin = 30.0
//	LatMax = 45.0
type RegionConfig struct {
	Region []struct {
		Name                           string
		Polygon                        [][2]float64
		LonMin, LonMax, LatMin, LatMax float64
	}
}

// GlobalRegion returns a region containing every cell of g.
func GlobalRegion(g *Grid) Region {
	m := make([]bool, g.Extents().Len2D())
	for i := range m {
		m[i] = true
	}
	return Region{Name: "Global", Member: m}
}

// LoadRegions reads region definitions in RegionConfig format from r
// and returns the global region followed by the regions in the file.
func LoadRegions(r io.Reader, g *Grid, c Constants) ([]Region, error) {
	var cfg RegionConfig
	if _, err := toml.DecodeReader(r, &cfg); err != nil {
		return nil, fmt.Errorf("oceanbudget: reading region file: %v", err)
	}
	regions := []Region{GlobalRegion(g)}
	for _, rc := range cfg.Region {
		var poly geom.Polygon
		switch {
		case len(rc.Polygon) >= 3:
			ring := make([]geom.Point, len(rc.Polygon))
			for i, v := range rc.Polygon {
				ring[i] = geom.Point{X: v[0], Y: v[1]}
			}
			poly = geom.Polygon{ring}
		case rc.LonMax > rc.LonMin && rc.LatMax > rc.LatMin:
			poly = geom.Polygon{{
				{X: rc.LonMin, Y: rc.LatMin},
				{X: rc.LonMax, Y: rc.LatMin},
				{X: rc.LonMax, Y: rc.LatMax},
				{X: rc.LonMin, Y: rc.LatMax},
			}}
		default:
			return nil, fmt.Errorf("oceanbudget: region %q needs a polygon of at least 3 points or a non-empty box", rc.Name)
		}
		regions = append(regions, PolygonRegion(rc.Name, poly, g, c))
	}
	return regions, nil
}

// LoadRegionShapefile returns the global region followed by one region
// per polygon in the shapefile, named by the nameField attribute.
func LoadRegionShapefile(filename, nameField string, g *Grid, c Constants) ([]Region, error) {
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: opening region shapefile: %v", err)
	}
	defer d.Close()
	regions := []Region{GlobalRegion(g)}
	for {
		gg, fields, more := d.DecodeRowFields(nameField)
		if !more {
			break
		}
		poly, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("oceanbudget: region shapefile contains %T, not polygons", gg)
		}
		regions = append(regions, PolygonRegion(strings.TrimSpace(fields[nameField]), poly, g, c))
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("oceanbudget: reading region shapefile: %v", err)
	}
	return regions, nil
}

// PolygonRegion returns a region holding the cells of g whose centres
// lie within poly. In spherical geometry poly is in degrees and
// longitudes are matched modulo 360°.
func PolygonRegion(name string, poly geom.Polygonal, g *Grid, c Constants) Region {
	b := poly.Bounds()
	ext := g.Extents()
	m := make([]bool, ext.Len2D())
	for la := 0; la < g.Nlat; la++ {
		y := g.Lat[la]
		if !c.Cartesian {
			y *= 180 / math.Pi
		}
		if y < b.Min.Y || y > b.Max.Y {
			continue
		}
		for lo := 0; lo < g.Nlon; lo++ {
			x := g.Lon[lo]
			if c.Cartesian {
				m[ext.Index2D(la, lo)] = geom.Point{X: x, Y: y}.Within(poly) != geom.Outside
				continue
			}
			x *= 180 / math.Pi
			for _, shift := range []float64{0, -360, 360} {
				if (geom.Point{X: x + shift, Y: y}).Within(poly) != geom.Outside {
					m[ext.Index2D(la, lo)] = true
					break
				}
			}
		}
	}
	return Region{Name: name, Member: m}
}
