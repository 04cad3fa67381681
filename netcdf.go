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

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// CoordNames holds the names of the coordinate variables in a
// dataset file.
type CoordNames struct {
	Time, Depth, Lat, Lon string
}

// DefaultCoordNames returns the coordinate names used by most ocean
// reanalysis products.
func DefaultCoordNames() CoordNames {
	return CoordNames{Time: "time", Depth: "depth", Lat: "latitude", Lon: "longitude"}
}

// Dataset is an input file together with the grid of the portion of it
// owned by this process.
type Dataset struct {
	f     *cdf.File
	c     Constants
	names CoordNames
	Grid  *Grid
}

// OpenDataset reads the coordinates in rw and decomposes the domain
// among the processes of comm. Process counts that are not positive are
// inferred. In spherical geometry latitude and longitude are converted
// from degrees to radians.
func OpenDataset(rw cdf.ReaderWriterAt, names CoordNames, c Constants, procsTime, procsDepth int, comm Comm) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: opening dataset: %v", err)
	}
	ds := &Dataset{f: f, c: c, names: names}
	var coords [4][]float64
	for k, name := range []string{names.Time, names.Depth, names.Lat, names.Lon} {
		if coords[k], err = ds.readCoord(name); err != nil {
			return nil, err
		}
	}
	if !c.Cartesian {
		for _, x := range coords[2:] {
			for i := range x {
				x[i] *= math.Pi / 180
			}
		}
	}
	pt, pd, err := ResolveProcs(comm.Size(), len(coords[0]), len(coords[1]), procsTime, procsDepth)
	if err != nil {
		return nil, err
	}
	d, err := Decompose(len(coords[0]), len(coords[1]), pt, pd, comm)
	if err != nil {
		return nil, err
	}
	ds.Grid, err = NewGrid(coords[0], coords[1], coords[2], coords[3], d, c)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// Has reports whether the file contains variable name.
func (ds *Dataset) Has(name string) bool {
	return len(ds.f.Header.Lengths(name)) > 0
}

func (ds *Dataset) readCoord(name string) ([]float64, error) {
	dims := ds.f.Header.Lengths(name)
	if len(dims) != 1 {
		return nil, fmt.Errorf("oceanbudget: coordinate variable %q missing or not 1-D", name)
	}
	r := ds.f.Reader(name, nil, nil)
	buf := r.Zero(dims[0])
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("oceanbudget: reading coordinate %q: %v", name, err)
	}
	return toFloat64(buf)
}

// ReadVariable reads the portion of 4-D variable name owned by this
// process, in layout l. Packed values are unpacked using the
// scale_factor and add_offset attributes. Values that are fill values
// (or whose magnitude exceeds 90% of the scaled fill value) are
// replaced by the fill value and marked false in the returned mask.
func (ds *Dataset) ReadVariable(name string, l Layout) (*sparse.DenseArray, []bool, error) {
	g := ds.Grid
	h := ds.f.Header
	dims := append([]int(nil), h.Lengths(name)...)
	if len(dims) != 4 {
		return nil, nil, fmt.Errorf("oceanbudget: variable %q missing or not 4-D", name)
	}
	if h.IsRecordVariable(name) {
		dims[0] = g.Decomp.FullNtime
	}
	if dims[0] != g.Decomp.FullNtime || dims[1] != g.Decomp.FullNdepth || dims[2] != g.Nlat || dims[3] != g.Nlon {
		return nil, nil, fmt.Errorf("oceanbudget: variable %q has dimensions %v but the grid is %v",
			name, dims, []int{g.Decomp.FullNtime, g.Decomp.FullNdepth, g.Nlat, g.Nlon})
	}
	scale, ok := floatAttribute(h, name, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := floatAttribute(h, name, "add_offset")
	fillRaw, hasFill := floatAttribute(h, name, "_FillValue")
	if !hasFill {
		fillRaw, hasFill = floatAttribute(h, name, "missing_value")
	}
	landThreshold := 0.9 * math.Abs(fillRaw*scale)

	ext := g.LayoutExtents(l)
	d0 := g.Decomp.DepthStart
	if l == ColumnLayout {
		d0 = 0
	}
	data := sparse.ZerosDense(ext.Ntime, ext.Ndepth, ext.Nlat, ext.Nlon)
	mask := make([]bool, ext.Len())
	slab := Extents{1, ext.Ndepth, ext.Nlat, ext.Nlon}
	for t := 0; t < ext.Ntime; t++ {
		tg := t + g.Decomp.TimeStart
		r := ds.f.Reader(name,
			[]int{tg, d0, 0, 0},
			[]int{tg, d0 + ext.Ndepth - 1, ext.Nlat - 1, ext.Nlon - 1})
		buf := r.Zero(slab.Len())
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("oceanbudget: reading variable %q: %v", name, err)
		}
		vals, err := toFloat64(buf)
		if err != nil {
			return nil, nil, fmt.Errorf("oceanbudget: variable %q: %v", name, err)
		}
		for k, v := range vals {
			_, d, la, lo := slab.Coords(k)
			if math.IsNaN(v) || (hasFill && (v == fillRaw || math.Abs(v*scale) > landThreshold)) {
				data.Set(ds.c.FillValue, t, d, la, lo)
				continue
			}
			data.Set(v*scale+offset, t, d, la, lo)
			mask[ext.Index(t, d, la, lo)] = true
		}
	}
	return data, mask, nil
}

// LoadMask sets the grid's water mask from the fill values of
// variable name.
func (ds *Dataset) LoadMask(name string) error {
	_, mask, err := ds.ReadVariable(name, ColumnLayout)
	if err != nil {
		return err
	}
	return ds.Grid.SetMask(mask)
}

func floatAttribute(h *cdf.Header, v, a string) (float64, bool) {
	vals, err := toFloat64(h.GetAttribute(v, a))
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

// ReadHorizontal reads the 2-D (latitude, longitude) variable name from
// rw along with its coordinates, in the units stored in the file.
// Packed values are unpacked; fill values are replaced by fill.
func ReadHorizontal(rw cdf.ReaderWriterAt, names CoordNames, name string, fill float64) (lat, lon []float64, data *sparse.DenseArray, err error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("oceanbudget: opening horizontal field file: %v", err)
	}
	ds := &Dataset{f: f, names: names}
	if lat, err = ds.readCoord(names.Lat); err != nil {
		return nil, nil, nil, err
	}
	if lon, err = ds.readCoord(names.Lon); err != nil {
		return nil, nil, nil, err
	}
	dims := f.Header.Lengths(name)
	if len(dims) != 2 || dims[0] != len(lat) || dims[1] != len(lon) {
		return nil, nil, nil, fmt.Errorf("oceanbudget: variable %q has dimensions %v, want [%d %d]", name, dims, len(lat), len(lon))
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(len(lat) * len(lon))
	if _, err = r.Read(buf); err != nil && err != io.EOF {
		return nil, nil, nil, fmt.Errorf("oceanbudget: reading variable %q: %v", name, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("oceanbudget: variable %q: %v", name, err)
	}
	scale, ok := floatAttribute(f.Header, name, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := floatAttribute(f.Header, name, "add_offset")
	fillRaw, hasFill := floatAttribute(f.Header, name, "_FillValue")
	ext := Extents{1, 1, len(lat), len(lon)}
	data = sparse.ZerosDense(len(lat), len(lon))
	for k, v := range vals {
		la, lo := ext.Coords2D(k)
		if math.IsNaN(v) || (hasFill && v == fillRaw) {
			data.Set(fill, la, lo)
			continue
		}
		data.Set(v*scale+offset, la, lo)
	}
	return lat, lon, data, nil
}

// Output is a netCDF file holding fields over the full domain, into
// which each process writes its own slab.
type Output struct {
	f *cdf.File
	g *Grid
}

// CreateOutput writes to w the header of a file holding the named
// fields over the full domain of g, along with the coordinate
// variables. It should be called by a single process; the others
// should use OpenOutput once the header has been written.
func CreateOutput(w cdf.ReaderWriterAt, g *Grid, c Constants, vars []string) (*Output, error) {
	dims := []string{"time", "depth", "latitude", "longitude"}
	h := cdf.NewHeader(dims, []int{g.Decomp.FullNtime, g.Decomp.FullNdepth, g.Nlat, g.Nlon})
	h.AddAttribute("", "comment", "OceanBudget output file")
	h.AddAttribute("", "geometry", geometryName(c))
	for _, d := range dims {
		h.AddVariable(d, []string{d}, []float64{0})
	}
	if !c.Cartesian {
		h.AddAttribute("latitude", "units", "degrees_north")
		h.AddAttribute("longitude", "units", "degrees_east")
	}
	for _, v := range vars {
		h.AddVariable(v, dims, []float32{0})
		h.AddAttribute(v, "_FillValue", []float32{float32(c.FillValue)})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("oceanbudget: invalid output header: %v", errs[0])
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: creating output: %v", err)
	}
	lat, lon := g.Lat, g.Lon
	if !c.Cartesian {
		lat, lon = degrees(lat), degrees(lon)
	}
	for k, x := range [][]float64{g.Time, g.Depth, lat, lon} {
		if _, err := f.Writer(dims[k], nil, nil).Write(x); err != nil {
			return nil, fmt.Errorf("oceanbudget: writing coordinate %s: %v", dims[k], err)
		}
	}
	return &Output{f: f, g: g}, nil
}

// OpenOutput opens an output file whose header was written by
// CreateOutput.
func OpenOutput(rw cdf.ReaderWriterAt, g *Grid) (*Output, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: opening output: %v", err)
	}
	return &Output{f: f, g: g}, nil
}

// Write writes this process's slab of field name. data must have
// the local extents of the grid.
func (o *Output) Write(name string, data []float64) error {
	g := o.g
	if len(data) != g.Len() {
		return fmt.Errorf("oceanbudget: writing %q: have %d values but the local grid has %d", name, len(data), g.Len())
	}
	if len(o.f.Header.Lengths(name)) != 4 {
		return fmt.Errorf("oceanbudget: output has no variable %q", name)
	}
	ext := g.Extents()
	slab := Extents{1, g.Ndepth, g.Nlat, g.Nlon}
	buf := make([]float32, slab.Len())
	for t := 0; t < g.Ntime; t++ {
		for k := range buf {
			_, d, la, lo := slab.Coords(k)
			buf[k] = float32(data[ext.Index(t, d, la, lo)])
		}
		tg := t + g.Decomp.TimeStart
		d0 := g.Decomp.DepthStart
		w := o.f.Writer(name,
			[]int{tg, d0, 0, 0},
			[]int{tg, d0 + g.Ndepth - 1, g.Nlat - 1, g.Nlon - 1})
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("oceanbudget: writing %q: %v", name, err)
		}
	}
	return nil
}

// WriteRegionStats writes the region statistics of each named field,
// along with the region areas, to w. Statistics are written for this
// process's slab only; the header is written if create is true.
func WriteRegionStats(w cdf.ReaderWriterAt, create bool, r *Reducer, fields []string, stats []*Stats) error {
	if len(fields) != len(stats) {
		return fmt.Errorf("oceanbudget: %d field names for %d statistics", len(fields), len(stats))
	}
	g := r.g
	dims := []string{"time", "depth", "region"}
	var f *cdf.File
	var err error
	if create {
		h := cdf.NewHeader(dims, []int{g.Decomp.FullNtime, g.Decomp.FullNdepth, len(r.regions)})
		names := make([]string, len(r.regions))
		for k, reg := range r.regions {
			names[k] = reg.Name
		}
		h.AddAttribute("", "regions", strings.Join(names, ";"))
		h.AddVariable("region_area", dims, []float64{0})
		for _, name := range fields {
			h.AddVariable(name+"_mean", dims, []float64{0})
			h.AddVariable(name+"_std", dims, []float64{0})
		}
		h.Define()
		if f, err = cdf.Create(w, h); err != nil {
			return fmt.Errorf("oceanbudget: creating region statistics file: %v", err)
		}
	} else if f, err = cdf.Open(w); err != nil {
		return fmt.Errorf("oceanbudget: opening region statistics file: %v", err)
	}
	write := func(name string, vals []float64) error {
		last := len(r.regions) - 1
		for t := 0; t < g.Ntime; t++ {
			tg := t + g.Decomp.TimeStart
			d0 := g.Decomp.DepthStart
			wr := f.Writer(name, []int{tg, d0, 0}, []int{tg, d0 + g.Ndepth - 1, last})
			if _, err := wr.Write(vals[r.index(t, 0, 0) : r.index(t, g.Ndepth-1, last)+1]); err != nil {
				return fmt.Errorf("oceanbudget: writing %q: %v", name, err)
			}
		}
		return nil
	}
	if err := write("region_area", r.areas); err != nil {
		return err
	}
	for k, name := range fields {
		if err := write(name+"_mean", stats[k].Mean); err != nil {
			return err
		}
		if err := write(name+"_std", stats[k].Std); err != nil {
			return err
		}
	}
	return nil
}

func geometryName(c Constants) string {
	if c.Cartesian {
		return "cartesian"
	}
	return "spherical"
}

func degrees(x []float64) []float64 {
	o := make([]float64, len(x))
	for i, v := range x {
		o[i] = v * 180 / math.Pi
	}
	return o
}
