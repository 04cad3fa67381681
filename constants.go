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

// Constants holds the physical constants and geometry switches used by
// the numerical kernels. A Constants value is fixed for a whole run.
type Constants struct {
	// EarthRadius is the mean radius of the earth [m].
	EarthRadius float64

	// Rho0 is the reference density of sea water [kg/m³].
	Rho0 float64

	// FillValue marks undefined or land values in fields and outputs.
	FillValue float64

	// Cartesian selects Cartesian (x, y, z) geometry instead of
	// spherical (lon, lat, depth) geometry.
	Cartesian bool

	// PeriodicX and PeriodicY make the longitude and latitude
	// axes wrap around.
	PeriodicX, PeriodicY bool

	// UniformLon and UniformLat declare that the corresponding
	// coordinates are evenly spaced.
	UniformLon, UniformLat bool

	// DiffOrder is the order of accuracy of first-derivative stencils.
	// Stencils span DiffOrder+1 points.
	DiffOrder int

	// PoleTolerance is the distance [degrees] from ±90° latitude
	// within which a point is treated as a pole.
	PoleTolerance float64

	// FilterOverLand includes land cells in area integrals.
	FilterOverLand bool

	// DepthDerivatives enables derivatives along the depth axis.
	DepthDerivatives bool

	// BoundaryTransfers adds the pressure term to the transport
	// divergence.
	BoundaryTransfers bool
}

// DefaultConstants returns the constants for a spherical run with
// fourth-order stencils.
func DefaultConstants() Constants {
	return Constants{
		EarthRadius:   6371e3,
		Rho0:          1025,
		FillValue:     -32767,
		PeriodicX:     true,
		UniformLon:    true,
		UniformLat:    true,
		DiffOrder:     4,
		PoleTolerance: 0.01,
	}
}

// Validate checks c for internal consistency.
func (c Constants) Validate() error {
	if c.DiffOrder < 1 {
		return configErrorf("differentiation order must be at least 1, have %d", c.DiffOrder)
	}
	if !c.Cartesian && c.EarthRadius <= 0 {
		return configErrorf("earth radius must be positive in spherical geometry, have %g", c.EarthRadius)
	}
	if c.PoleTolerance < 0 {
		return configErrorf("pole tolerance must not be negative, have %g", c.PoleTolerance)
	}
	// Wrapping requires a lat-lon grid whose rows all have the same
	// spacing.
	if c.PeriodicX && !c.UniformLat {
		return configErrorf("a periodic longitude axis requires a uniform latitude grid")
	}
	// A Cartesian period is taken from the grid spacing.
	if c.PeriodicX && c.Cartesian && !c.UniformLon {
		return configErrorf("a periodic Cartesian x axis requires a uniform x grid")
	}
	if c.PeriodicY && !c.UniformLat {
		return configErrorf("a periodic latitude axis requires a uniform latitude grid")
	}
	if c.PeriodicY && !c.Cartesian {
		return configErrorf("latitude cannot be periodic in spherical geometry")
	}
	return nil
}
