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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/oceanbudget"
	"github.com/spatialmodel/oceanbudget/cloud"
	"github.com/spf13/cast"
)

// RunOptions holds the settings of a budget run.
type RunOptions struct {
	// InputFile is the path or address of the input netCDF file.
	InputFile string
	Names     oceanbudget.CoordNames
	Constants oceanbudget.Constants

	// Rank is the rank of this process among Size processes. If Rank
	// is negative every rank is run in turn.
	Rank, Size            int
	ProcsTime, ProcsDepth int

	MaskVariable, ULon, ULat string
	Streamfunction, Pressure string
	SeedFile, SeedVariable   string

	FilterScales    []float64
	OutputVariables map[string]string

	RegionFile, RegionShapefile, RegionNameField string

	OutputFile, StatsFile, ReportFile, LogFile string
	PlotFile, PlotVariable                     string
}

// runOptions reads the options of the run command from cfg.
func runOptions(cfg *viper.Viper) (*RunOptions, error) {
	c, err := constants(cfg)
	if err != nil {
		return nil, err
	}
	scales, err := filterScales(cfg.Get("FilterScales"))
	if err != nil {
		return nil, err
	}
	input := os.ExpandEnv(cfg.GetString("InputFile"))
	if input == "" {
		return nil, fmt.Errorf("oceanbudget: you need to specify an input file (the InputFile configuration variable)")
	}
	o := &RunOptions{
		InputFile:       input,
		Names:           coordNames(cfg),
		Constants:       c,
		Rank:            cfg.GetInt("rank"),
		Size:            cfg.GetInt("size"),
		ProcsTime:       cfg.GetInt("ProcsTime"),
		ProcsDepth:      cfg.GetInt("ProcsDepth"),
		MaskVariable:    cfg.GetString("MaskVariable"),
		ULon:            cfg.GetString("Velocity.Lon"),
		ULat:            cfg.GetString("Velocity.Lat"),
		Streamfunction:  cfg.GetString("Streamfunction"),
		Pressure:        cfg.GetString("Pressure"),
		SeedFile:        os.ExpandEnv(cfg.GetString("Seed.File")),
		SeedVariable:    cfg.GetString("Seed.Variable"),
		FilterScales:    scales,
		RegionFile:      os.ExpandEnv(cfg.GetString("Regions.File")),
		RegionShapefile: os.ExpandEnv(cfg.GetString("Regions.Shapefile")),
		RegionNameField: cfg.GetString("Regions.NameField"),
		StatsFile:       os.ExpandEnv(cfg.GetString("StatsFile")),
		ReportFile:      os.ExpandEnv(cfg.GetString("ReportFile")),
		PlotFile:        os.ExpandEnv(cfg.GetString("Plot.File")),
		PlotVariable:    cfg.GetString("Plot.Variable"),
	}
	if o.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile")); err != nil {
		return nil, err
	}
	o.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), o.OutputFile)
	if o.OutputVariables, err = checkOutputVars(GetStringMapString("OutputVariables", cfg)); err != nil {
		return nil, err
	}
	if o.Size < 1 {
		return nil, fmt.Errorf("oceanbudget: size must be at least 1, have %d", o.Size)
	}
	if o.Rank >= o.Size {
		return nil, fmt.Errorf("oceanbudget: rank %d out of range for %d processes", o.Rank, o.Size)
	}
	if o.Rank >= 0 && o.Size > 1 {
		for _, f := range []string{o.OutputFile, o.StatsFile, o.ReportFile, o.PlotFile, o.LogFile} {
			if cloud.IsBlob(f) {
				return nil, fmt.Errorf("oceanbudget: output '%s' is in blob storage, which requires all ranks to run in one process (rank = -1)", f)
			}
		}
	}
	return o, nil
}

// constants reads the numerical settings from cfg.
func constants(cfg *viper.Viper) (oceanbudget.Constants, error) {
	c := oceanbudget.DefaultConstants()
	var err error
	nums := []struct {
		name string
		v    *float64
	}{
		{"EarthRadius", &c.EarthRadius},
		{"Rho0", &c.Rho0},
		{"FillValue", &c.FillValue},
		{"PoleTolerance", &c.PoleTolerance},
	}
	for _, f := range nums {
		if *f.v, err = cast.ToFloat64E(cfg.Get(f.name)); err != nil {
			return c, fmt.Errorf("oceanbudget: reading '%s': %v", f.name, err)
		}
	}
	if c.DiffOrder, err = cast.ToIntE(cfg.Get("DiffOrder")); err != nil {
		return c, fmt.Errorf("oceanbudget: reading 'DiffOrder': %v", err)
	}
	bools := []struct {
		name string
		v    *bool
	}{
		{"Cartesian", &c.Cartesian},
		{"PeriodicX", &c.PeriodicX},
		{"PeriodicY", &c.PeriodicY},
		{"UniformLon", &c.UniformLon},
		{"UniformLat", &c.UniformLat},
		{"FilterOverLand", &c.FilterOverLand},
		{"DepthDerivatives", &c.DepthDerivatives},
		{"BoundaryTransfers", &c.BoundaryTransfers},
	}
	for _, b := range bools {
		if *b.v, err = cast.ToBoolE(cfg.Get(b.name)); err != nil {
			return c, fmt.Errorf("oceanbudget: reading '%s': %v", b.name, err)
		}
	}
	return c, c.Validate()
}

func coordNames(cfg *viper.Viper) oceanbudget.CoordNames {
	return oceanbudget.CoordNames{
		Time:  cfg.GetString("Coords.Time"),
		Depth: cfg.GetString("Coords.Depth"),
		Lat:   cfg.GetString("Coords.Lat"),
		Lon:   cfg.GetString("Coords.Lon"),
	}
}

// filterScales converts the FilterScales configuration, which may be a
// list of numbers from a configuration file or a list of strings from
// the command line, to ascending positive numbers.
func filterScales(i interface{}) ([]float64, error) {
	var items []interface{}
	switch v := i.(type) {
	case nil:
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			for _, f := range strings.Split(s, ",") {
				if f = strings.TrimSpace(f); f != "" {
					items = append(items, f)
				}
			}
		}
	case string:
		return filterScales(strings.Fields(strings.Trim(v, "[]")))
	default:
		items = []interface{}{v}
	}
	o := make([]float64, len(items))
	for k, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, fmt.Errorf("oceanbudget: reading 'FilterScales': %v", err)
		}
		if !(f > 0) {
			return nil, fmt.Errorf("oceanbudget: filter scales must be positive, have %g", f)
		}
		o[k] = f
	}
	sort.Float64s(o)
	return o, nil
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		k = os.ExpandEnv(k)
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("oceanbudget: output variable '%s' has an empty expression", k)
		}
		o[k] = os.ExpandEnv(v)
	}
	return o, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	if cloud.IsBlob(f) {
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("oceanbudget: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// inputExtents returns the number of time steps and depth levels in
// the input file.
func inputExtents(ctx context.Context, input string, names oceanbudget.CoordNames) (ntime, ndepth int, err error) {
	if input == "" {
		return 0, 0, fmt.Errorf("oceanbudget: either ntime or InputFile must be specified")
	}
	path, err := maybeDownload(ctx, input, nil)
	if err != nil {
		return 0, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("oceanbudget: opening input file: %v", err)
	}
	defer f.Close()
	c := oceanbudget.DefaultConstants()
	c.Cartesian = true // Avoid checks on the horizontal coordinates.
	c.PeriodicX, c.UniformLon, c.UniformLat = false, false, false
	ds, err := oceanbudget.OpenDataset(f, names, c, 1, 1, oceanbudget.Serial)
	if err != nil {
		return 0, 0, err
	}
	return ds.Grid.Ntime, ds.Grid.Ndepth, nil
}

// Decomp returns the slab owned by each of size processes sharing a
// domain of ntime time steps and ndepth depth levels.
func Decomp(ntime, ndepth, size, procsTime, procsDepth int) ([]*oceanbudget.Decomposition, error) {
	pt, pd, err := oceanbudget.ResolveProcs(size, ntime, ndepth, procsTime, procsDepth)
	if err != nil {
		return nil, err
	}
	if pt*pd != size {
		return nil, fmt.Errorf("oceanbudget: process grid %d x %d does not match %d processes", pt, pd, size)
	}
	return oceanbudget.DecomposeAll(ntime, ndepth, pt, pd)
}
