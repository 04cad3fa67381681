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

// Comm describes the group of cooperating processes that together
// hold the full (time, depth) domain.
type Comm interface {
	// Rank is the position of this process within the group.
	Rank() int
	// Size is the number of processes in the group.
	Size() int
}

// StaticComm is a Comm whose rank and size are fixed at startup,
// for example from command-line flags.
type StaticComm struct {
	ProcRank, ProcSize int
}

func (c StaticComm) Rank() int { return c.ProcRank }
func (c StaticComm) Size() int { return c.ProcSize }

// Serial is the communicator of a program running as a single process.
var Serial Comm = StaticComm{ProcRank: 0, ProcSize: 1}

// ConfigError reports an inconsistent run configuration. It is
// always returned before any computation starts.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return "oceanbudget: " + e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Decomposition holds the portion of the (time, depth) domain owned by
// one process.
type Decomposition struct {
	Rank, Size int

	// ProcsTime and ProcsDepth are the dimensions of the process grid.
	ProcsTime, ProcsDepth int

	// TimeRank and DepthRank are the coordinates of this process
	// in the process grid.
	TimeRank, DepthRank int

	FullNtime, FullNdepth int

	TimeStart, Ntime   int
	DepthStart, Ndepth int
}

// ResolveProcs fills in a missing process count. If one of procsTime
// or procsDepth is not positive it is inferred from the communicator
// size; if both are missing, all processes are placed along the time
// axis unless there are more processes than time steps. Explicit
// counts are returned unchanged and checked later by Decompose.
func ResolveProcs(size, fullNtime, fullNdepth, procsTime, procsDepth int) (int, int, error) {
	switch {
	case procsTime > 0 && procsDepth > 0:
		return procsTime, procsDepth, nil
	case procsTime > 0:
		if size%procsTime != 0 {
			return 0, 0, configErrorf("%d time processes do not divide %d processes", procsTime, size)
		}
		return procsTime, size / procsTime, nil
	case procsDepth > 0:
		if size%procsDepth != 0 {
			return 0, 0, configErrorf("%d depth processes do not divide %d processes", procsDepth, size)
		}
		return size / procsDepth, procsDepth, nil
	}
	// Largest divisor of size that fits along time; the rest along depth.
	for pt := min(size, fullNtime); pt >= 1; pt-- {
		if size%pt == 0 && size/pt <= fullNdepth {
			return pt, size / pt, nil
		}
	}
	return 0, 0, configErrorf("cannot place %d processes on a %d x %d (time x depth) domain",
		size, fullNtime, fullNdepth)
}

// Decompose returns the slab of a fullNtime x fullNdepth domain
// owned by the calling process of comm, using a procsTime x procsDepth
// process grid ordered time-major.
func Decompose(fullNtime, fullNdepth, procsTime, procsDepth int, comm Comm) (*Decomposition, error) {
	return decompose(fullNtime, fullNdepth, procsTime, procsDepth, comm.Rank(), comm.Size())
}

// DecomposeAll returns the decompositions of every rank in a group of
// procsTime*procsDepth processes.
func DecomposeAll(fullNtime, fullNdepth, procsTime, procsDepth int) ([]*Decomposition, error) {
	size := procsTime * procsDepth
	out := make([]*Decomposition, size)
	for r := 0; r < size; r++ {
		d, err := decompose(fullNtime, fullNdepth, procsTime, procsDepth, r, size)
		if err != nil {
			return nil, err
		}
		out[r] = d
	}
	return out, nil
}

func decompose(fullNtime, fullNdepth, procsTime, procsDepth, rank, size int) (*Decomposition, error) {
	if fullNtime < 1 || fullNdepth < 1 {
		return nil, configErrorf("domain extents must be positive, have time=%d depth=%d", fullNtime, fullNdepth)
	}
	if procsTime < 1 || procsDepth < 1 {
		return nil, configErrorf("process counts must be positive, have time=%d depth=%d", procsTime, procsDepth)
	}
	if procsTime*procsDepth != size {
		return nil, configErrorf("process grid %d x %d does not match %d processes", procsTime, procsDepth, size)
	}
	if rank < 0 || rank >= size {
		return nil, configErrorf("rank %d out of range for %d processes", rank, size)
	}
	if procsTime > fullNtime {
		return nil, configErrorf("%d time processes exceed %d time steps", procsTime, fullNtime)
	}
	if procsDepth > fullNdepth {
		return nil, configErrorf("%d depth processes exceed %d depth levels", procsDepth, fullNdepth)
	}
	d := &Decomposition{
		Rank:       rank,
		Size:       size,
		ProcsTime:  procsTime,
		ProcsDepth: procsDepth,
		TimeRank:   rank / procsDepth,
		DepthRank:  rank % procsDepth,
		FullNtime:  fullNtime,
		FullNdepth: fullNdepth,
	}
	d.TimeStart, d.Ntime = split1D(fullNtime, procsTime, d.TimeRank)
	d.DepthStart, d.Ndepth = split1D(fullNdepth, procsDepth, d.DepthRank)
	return d, nil
}

// split1D divides n items among p workers and returns the range owned
// by worker i. The first n%p workers receive one extra item.
func split1D(n, p, i int) (start, count int) {
	count = n / p
	rem := n % p
	if i < rem {
		count++
		start = i * count
	} else {
		start = rem*(count+1) + (i-rem)*count
	}
	return
}

// Starts returns the starting (time, depth, lat, lon) position of this
// process's slab in the global arrays.
func (d *Decomposition) Starts() []int {
	return []int{d.TimeStart, d.DepthStart, 0, 0}
}

// Counts returns the slab lengths for a grid with nlat latitudes and
// nlon longitudes.
func (d *Decomposition) Counts(nlat, nlon int) []int {
	return []int{d.Ntime, d.Ndepth, nlat, nlon}
}

// BoundedBelow reports whether the depth slab has a neighbouring
// process above it (toward smaller depth indices).
func (d *Decomposition) BoundedBelow() bool { return d.DepthStart > 0 }

// BoundedAbove reports whether the depth slab has a neighbouring
// process below it (toward larger depth indices).
func (d *Decomposition) BoundedAbove() bool { return d.DepthStart+d.Ndepth < d.FullNdepth }

func (d *Decomposition) String() string {
	return fmt.Sprintf("rank %d/%d at (%d, %d) of %dx%d: time [%d, %d) depth [%d, %d)",
		d.Rank, d.Size, d.TimeRank, d.DepthRank, d.ProcsTime, d.ProcsDepth,
		d.TimeStart, d.TimeStart+d.Ntime, d.DepthStart, d.DepthStart+d.Ndepth)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
