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

import "fmt"

// IndexError is the panic value raised when a coordinate tuple or
// linear index lies outside of the declared domain.
type IndexError struct {
	Time, Depth, Lat, Lon int
	Index                 int
	Extents               Extents
}

func (e *IndexError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("oceanbudget: index %d out of range for extents %v", e.Index, e.Extents)
	}
	return fmt.Sprintf("oceanbudget: coordinates (%d, %d, %d, %d) out of range for extents %v",
		e.Time, e.Depth, e.Lat, e.Lon, e.Extents)
}

// Index returns the position of (time, depth, lat, lon) in a row-major
// array with the given extents. Longitude varies fastest.
// It panics with an *IndexError if any coordinate is out of range.
func Index(time, depth, lat, lon, ntime, ndepth, nlat, nlon int) int {
	if time < 0 || time >= ntime || depth < 0 || depth >= ndepth ||
		lat < 0 || lat >= nlat || lon < 0 || lon >= nlon {
		panic(&IndexError{Time: time, Depth: depth, Lat: lat, Lon: lon, Index: -1,
			Extents: Extents{ntime, ndepth, nlat, nlon}})
	}
	return ((time*ndepth+depth)*nlat+lat)*nlon + lon
}

// Index1to4 is the inverse of Index.
func Index1to4(index, ntime, ndepth, nlat, nlon int) (time, depth, lat, lon int) {
	if index < 0 || index >= ntime*ndepth*nlat*nlon {
		panic(&IndexError{Index: index, Extents: Extents{ntime, ndepth, nlat, nlon}})
	}
	lon = index % nlon
	index /= nlon
	lat = index % nlat
	index /= nlat
	depth = index % ndepth
	time = index / ndepth
	return
}

// Extents holds the lengths of the four grid axes.
type Extents struct {
	Ntime, Ndepth, Nlat, Nlon int
}

// Len returns the number of points in a field with these extents.
func (e Extents) Len() int { return e.Ntime * e.Ndepth * e.Nlat * e.Nlon }

// Index returns the linear index of the given coordinates.
func (e Extents) Index(time, depth, lat, lon int) int {
	return Index(time, depth, lat, lon, e.Ntime, e.Ndepth, e.Nlat, e.Nlon)
}

// Coords returns the coordinates of the given linear index.
func (e Extents) Coords(index int) (time, depth, lat, lon int) {
	return Index1to4(index, e.Ntime, e.Ndepth, e.Nlat, e.Nlon)
}

// Index2D returns the position of (lat, lon) in a horizontal
// companion array such as the cell areas or a region mask.
func (e Extents) Index2D(lat, lon int) int {
	return Index(0, 0, lat, lon, 1, 1, e.Nlat, e.Nlon)
}

// Coords2D is the inverse of Index2D.
func (e Extents) Coords2D(index int) (lat, lon int) {
	_, _, lat, lon = Index1to4(index, 1, 1, e.Nlat, e.Nlon)
	return
}

// Horizontal returns the position in a horizontal companion array of
// the cell holding the given linear index.
func (e Extents) Horizontal(index int) int {
	_, _, lat, lon := e.Coords(index)
	return e.Index2D(lat, lon)
}

// Len2D returns the number of points in a horizontal companion array.
func (e Extents) Len2D() int { return e.Nlat * e.Nlon }

func (e Extents) String() string {
	return fmt.Sprintf("[%d %d %d %d]", e.Ntime, e.Ndepth, e.Nlat, e.Nlon)
}

// Point is a location on the local grid.
type Point struct {
	Time, Depth, Lat, Lon int
}
