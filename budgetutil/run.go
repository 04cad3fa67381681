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
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/oceanbudget"
	"github.com/spatialmodel/oceanbudget/cloud"
)

// Run computes the budgets specified by o.
//
// Log messages are written to stdout and to o.LogFile. Input files may
// be local paths, http(s) URLs or blob addresses; outputs addressed as
// blobs are written locally and uploaded once every rank has finished.
//
// Each process computes the slab of the domain owned by o.Rank. The
// process with rank 0 writes the headers of the shared output files,
// which other processes wait for before writing their slabs. If
// o.Rank is negative, every rank is computed in turn by this process.
func Run(ctx context.Context, stdout io.Writer, o *RunOptions) error {
	startTime := time.Now()

	var upload uploader

	logfile, err := os.Create(upload.maybeUpload(o.LogFile))
	if err != nil {
		return fmt.Errorf("oceanbudget: problem creating log file: %v", err)
	}
	log := logrus.New()
	log.Out = io.MultiWriter(stdout, logfile)
	log.Formatter = &logrus.TextFormatter{DisableColors: true}
	cloud.Log = log
	defer logfile.Close()

	input, err := maybeDownload(ctx, o.InputFile, log)
	if err != nil {
		return err
	}
	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("oceanbudget: opening input file: %v", err)
	}
	defer in.Close()

	outputFile := upload.maybeUpload(o.OutputFile)
	statsFile := upload.maybeUpload(o.StatsFile)
	var reportFile, plotFile string
	if o.ReportFile != "" {
		reportFile = upload.maybeUpload(o.ReportFile)
		if o.Rank >= 0 && o.Size > 1 {
			ext := filepath.Ext(reportFile)
			reportFile = fmt.Sprintf("%s_rank%d%s", strings.TrimSuffix(reportFile, ext), o.Rank, ext)
		}
	}
	if o.PlotFile != "" {
		plotFile = upload.maybeUpload(o.PlotFile)
	}
	if upload.err != nil {
		return upload.err
	}

	log.Info("oceanbudget: parsing output variable expressions")
	exprs, err := oceanbudget.NewExpressions(o.OutputVariables, nil)
	if err != nil {
		return err
	}

	ranks := []int{o.Rank}
	if o.Rank < 0 {
		ranks = make([]int, o.Size)
		for i := range ranks {
			ranks[i] = i
		}
	}
	var results []*rankResult
	for _, rank := range ranks {
		r, err := runRank(ctx, log, in, o, exprs, rank, outputFile, statsFile, plotFile)
		if err != nil {
			return err
		}
		results = append(results, r)
	}

	if reportFile != "" {
		log.WithField("file", o.ReportFile).Info("oceanbudget: writing report")
		if err := WriteReport(reportFile, results...); err != nil {
			return err
		}
	}
	log.WithField("duration", time.Since(startTime)).Info("oceanbudget: run complete")
	if err := logfile.Close(); err != nil {
		return fmt.Errorf("oceanbudget: closing log file: %v", err)
	}
	return upload.uploadOutput(ctx)
}

// rankResult holds the region statistics computed by one rank.
type rankResult struct {
	Decomp  *oceanbudget.Decomposition
	Reducer *oceanbudget.Reducer
	Fields  []string
	Stats   []*oceanbudget.Stats
}

// budget holds computed fields in the order they were added.
type budget struct {
	names  []string
	fields map[string][]float64
}

func (b *budget) add(name string, f []float64) error {
	if _, ok := b.fields[name]; ok {
		return fmt.Errorf("oceanbudget: output variable '%s' is defined more than once", name)
	}
	b.names = append(b.names, name)
	b.fields[name] = f
	return nil
}

func runRank(ctx context.Context, log *logrus.Logger, in *os.File, o *RunOptions, exprs *oceanbudget.Expressions,
	rank int, outputFile, statsFile, plotFile string) (*rankResult, error) {
	c := o.Constants
	ds, err := oceanbudget.OpenDataset(in, o.Names, c, o.ProcsTime, o.ProcsDepth,
		oceanbudget.StaticComm{ProcRank: rank, ProcSize: o.Size})
	if err != nil {
		return nil, err
	}
	g := ds.Grid
	rlog := log.WithFields(logrus.Fields{
		"rank":  rank,
		"time":  fmt.Sprintf("[%d, %d)", g.Decomp.TimeStart, g.Decomp.TimeStart+g.Ntime),
		"depth": fmt.Sprintf("[%d, %d)", g.Decomp.DepthStart, g.Decomp.DepthStart+g.Ndepth),
	})
	rlog.Info("oceanbudget: reading input")
	if err := ds.LoadMask(o.MaskVariable); err != nil {
		return nil, err
	}
	e, err := oceanbudget.NewEvaluator(g, c, oceanbudget.LocalLayout)
	if err != nil {
		return nil, err
	}
	read := func(name string) ([]float64, error) {
		data, _, err := ds.ReadVariable(name, oceanbudget.LocalLayout)
		if err != nil {
			return nil, err
		}
		return data.Elements, nil
	}

	b := &budget{fields: make(map[string][]float64)}
	var ulon, ulat []float64
	if o.Streamfunction != "" {
		psi, err := read(o.Streamfunction)
		if err != nil {
			return nil, err
		}
		var counts oceanbudget.FlagCounts
		ulon, ulat, counts = oceanbudget.VelocityFromStreamfunction(e, psi)
		logCounts(rlog, "velocity", counts)
		if err := b.add("streamfunction", psi); err != nil {
			return nil, err
		}
	} else {
		if ulon, err = read(o.ULon); err != nil {
			return nil, err
		}
		if ulat, err = read(o.ULat); err != nil {
			return nil, err
		}
	}
	if err := b.add("ulon", ulon); err != nil {
		return nil, err
	}
	if err := b.add("ulat", ulat); err != nil {
		return nil, err
	}

	var seed []float64
	if o.SeedFile != "" {
		if seed, err = loadSeed(ctx, rlog, o, g); err != nil {
			return nil, err
		}
	}
	zeta, counts := oceanbudget.Vorticity(e, ulon, ulat, seed)
	logCounts(rlog, "vorticity", counts)
	if err := b.add("vorticity", zeta); err != nil {
		return nil, err
	}

	var p []float64
	if c.BoundaryTransfers {
		if o.Pressure == "" {
			return nil, fmt.Errorf("oceanbudget: BoundaryTransfers requires the Pressure variable to be set")
		}
		if p, err = read(o.Pressure); err != nil {
			return nil, err
		}
	}
	div, counts, err := oceanbudget.TransportDivergence(e, ulon, ulat, p)
	if err != nil {
		return nil, err
	}
	logCounts(rlog, "transport divergence", counts)
	if err := b.add("transport_divergence", div); err != nil {
		return nil, err
	}

	for _, scale := range o.FilterScales {
		if err := coarseBudget(e, b, scale, ulon, ulat, zeta, p, rlog); err != nil {
			return nil, err
		}
	}

	inputs := make(map[string][]float64)
	for _, v := range exprs.Vars() {
		if f, ok := b.fields[v]; ok {
			inputs[v] = f
		} else if ds.Has(v) {
			if inputs[v], err = read(v); err != nil {
				return nil, err
			}
		}
	}
	derived, err := exprs.Evaluate(inputs, g.Len(), c)
	if err != nil {
		return nil, err
	}
	for _, name := range exprs.Names() {
		if err := b.add(name, derived[name]); err != nil {
			return nil, err
		}
	}

	create := rank == 0
	rlog.WithField("file", o.OutputFile).Info("oceanbudget: writing fields")
	if err := writeFields(outputFile, create, g, c, b, rlog); err != nil {
		return nil, err
	}

	regions, err := loadRegions(ctx, o, g, c, rlog)
	if err != nil {
		return nil, err
	}
	reducer, err := oceanbudget.NewReducer(g, c, regions)
	if err != nil {
		return nil, err
	}
	stats := make([]*oceanbudget.Stats, len(b.names))
	for k, name := range b.names {
		stats[k] = reducer.Reduce(b.fields[name])
	}
	rlog.WithFields(logrus.Fields{
		"file":    o.StatsFile,
		"regions": len(regions),
	}).Info("oceanbudget: writing region statistics")
	w, err := openShared(statsFile, create, rlog)
	if err != nil {
		return nil, err
	}
	if err := oceanbudget.WriteRegionStats(w, create, reducer, b.names, stats); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if plotFile != "" && g.Decomp.TimeStart == 0 && g.Decomp.DepthStart == 0 {
		f, ok := b.fields[o.PlotVariable]
		if !ok {
			return nil, fmt.Errorf("oceanbudget: plot variable '%s' is not an output variable", o.PlotVariable)
		}
		rlog.WithField("file", o.PlotFile).Info("oceanbudget: plotting")
		if err := PlotField(plotFile, g, c, f, o.PlotVariable); err != nil {
			return nil, err
		}
	}
	return &rankResult{Decomp: g.Decomp, Reducer: reducer, Fields: b.names, Stats: stats}, nil
}

// coarseBudget adds the fields coarse-grained at the given scale,
// along with the enstrophy transfer across that scale and the kinetic
// energy transport of the coarse flow.
func coarseBudget(e *oceanbudget.Evaluator, b *budget, scale float64, ulon, ulat, zeta, p []float64, log logrus.FieldLogger) error {
	g, c := e.Grid(), e.Constants()
	filt, err := oceanbudget.NewFilter(g, c, scale)
	if err != nil {
		return err
	}
	fill := c.FillValue
	n := g.Len()

	// Cartesian velocity components and their products with vorticity.
	var u3, uz [3][]float64
	for j := range u3 {
		u3[j] = make([]float64, n)
		uz[j] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if ulon[i] == fill || ulat[i] == fill || zeta[i] == fill {
			for j := range u3 {
				u3[j][i], uz[j][i] = fill, fill
			}
			continue
		}
		x, y, z := ulon[i], ulat[i], 0.
		if !c.Cartesian {
			pt := g.Point(i)
			x, y, z = oceanbudget.SphericalToCartesian(ulon[i], ulat[i], 0, g.Lon[pt.Lon], g.Lat[pt.Lat])
		}
		u3[0][i], u3[1][i], u3[2][i] = x, y, z
		for j := range u3 {
			uz[j][i] = u3[j][i] * zeta[i]
		}
	}
	in := [][]float64{ulon, ulat, zeta, u3[0], u3[1], u3[2], uz[0], uz[1], uz[2]}
	if p != nil {
		in = append(in, p)
	}
	start := time.Now()
	coarse := filt.Apply(in...)
	log.WithFields(logrus.Fields{
		"scale":    scale,
		"duration": time.Since(start),
	}).Info("oceanbudget: coarse-grained fields")

	var tau [3][]float64
	for j := range tau {
		tau[j] = oceanbudget.SubfilterFlux(coarse[6+j], coarse[3+j], coarse[2], fill)
	}
	z, counts := oceanbudget.EnstrophyTransfer(e, coarse[2], tau)
	logCounts(log, "enstrophy transfer", counts)
	var cp []float64
	if p != nil {
		cp = coarse[9]
	}
	div, counts, err := oceanbudget.TransportDivergence(e, coarse[0], coarse[1], cp)
	if err != nil {
		return err
	}
	logCounts(log, "coarse transport divergence", counts)

	suffix := scaleSuffix(scale, c)
	for _, f := range []struct {
		name string
		v    []float64
	}{
		{"ulon", coarse[0]},
		{"ulat", coarse[1]},
		{"vorticity", coarse[2]},
		{"enstrophy_transfer", z},
		{"transport_divergence", div},
	} {
		if err := b.add(f.name+suffix, f.v); err != nil {
			return err
		}
	}
	return nil
}

// scaleSuffix returns the suffix of field names coarse-grained at scale.
func scaleSuffix(scale float64, c oceanbudget.Constants) string {
	switch {
	case c.Cartesian:
		return fmt.Sprintf("_%g", scale)
	case scale >= 1000 && math.Mod(scale, 1000) == 0:
		return fmt.Sprintf("_%gkm", scale/1000)
	default:
		return fmt.Sprintf("_%gm", scale)
	}
}

func logCounts(log logrus.FieldLogger, name string, c oceanbudget.FlagCounts) {
	log.WithFields(logrus.Fields{
		"points":         c.Points,
		"land":           c.Land,
		"masked":         c.Masked,
		"pole":           c.Pole,
		"degenerate":     c.Degenerate,
		"reduced":        c.Reduced,
		"depth_boundary": c.DepthBoundary,
	}).Infof("oceanbudget: computed %s", name)
}

// loadSeed returns the seed vorticity regridded onto every time and
// depth of g. The seed grid coordinates must be ascending.
func loadSeed(ctx context.Context, log logrus.FieldLogger, o *RunOptions, g *oceanbudget.Grid) ([]float64, error) {
	c := o.Constants
	path, err := maybeDownload(ctx, o.SeedFile, log)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: opening seed file: %v", err)
	}
	defer f.Close()
	lat, lon, data, err := oceanbudget.ReadHorizontal(f, o.Names, o.SeedVariable, c.FillValue)
	if err != nil {
		return nil, err
	}
	if !c.Cartesian {
		for _, x := range [][]float64{lat, lon} {
			for i := range x {
				x[i] *= math.Pi / 180
			}
		}
	}
	h, err := oceanbudget.RegridNearest(lat, lon, data, g.Lat, g.Lon)
	if err != nil {
		return nil, err
	}
	ext := g.Extents()
	seed := make([]float64, ext.Len())
	for i := range seed {
		seed[i] = h[ext.Horizontal(i)]
	}
	return seed, nil
}

// loadRegions returns the global region followed by any regions in
// the configured region file and shapefile.
func loadRegions(ctx context.Context, o *RunOptions, g *oceanbudget.Grid, c oceanbudget.Constants, log logrus.FieldLogger) ([]oceanbudget.Region, error) {
	regions := []oceanbudget.Region{oceanbudget.GlobalRegion(g)}
	if o.RegionFile != "" {
		path, err := maybeDownload(ctx, o.RegionFile, log)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("oceanbudget: opening region file: %v", err)
		}
		defer f.Close()
		if regions, err = oceanbudget.LoadRegions(f, g, c); err != nil {
			return nil, err
		}
	}
	if o.RegionShapefile != "" {
		path, err := maybeDownload(ctx, o.RegionShapefile, log)
		if err != nil {
			return nil, err
		}
		r, err := oceanbudget.LoadRegionShapefile(path, o.RegionNameField, g, c)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r[1:]...)
	}
	return regions, nil
}

func writeFields(path string, create bool, g *oceanbudget.Grid, c oceanbudget.Constants, b *budget, log logrus.FieldLogger) error {
	f, err := openShared(path, create, log)
	if err != nil {
		return err
	}
	var out *oceanbudget.Output
	if create {
		out, err = oceanbudget.CreateOutput(f, g, c, b.names)
	} else {
		out, err = oceanbudget.OpenOutput(f, g)
	}
	if err != nil {
		f.Close()
		return err
	}
	for _, name := range b.names {
		if err := out.Write(name, b.fields[name]); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// openShared opens an output file shared by all ranks. If create is
// true the file is created, otherwise openShared waits for a
// file whose header has been written.
func openShared(path string, create bool, log logrus.FieldLogger) (*os.File, error) {
	if create {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("oceanbudget: creating output file: %v", err)
		}
		return f, nil
	}
	var f *os.File
	err := backoff.RetryNotify(
		func() error {
			var err error
			f, err = os.OpenFile(path, os.O_RDWR, 0644)
			if err != nil {
				return err
			}
			if _, err = cdf.Open(f); err != nil {
				f.Close()
				return err
			}
			return nil
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10),
		func(err error, d time.Duration) {
			log.WithField("file", path).Infof("waiting %v for output header: %v", d, err)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("oceanbudget: opening shared output file: %v", err)
	}
	return f, nil
}
