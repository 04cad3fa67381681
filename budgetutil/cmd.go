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

	"github.com/lnashier/viper"
	"github.com/spatialmodel/oceanbudget"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	d := oceanbudget.DefaultConstants()
	// Options are the configuration options available to OceanBudget.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "rank",
			usage: `
              rank is the rank of this process among the processes
              sharing the run. A negative rank runs every rank in turn
              within this process.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "size",
			usage: `
              size is the number of processes sharing the run.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "ProcsTime",
			usage: `
              ProcsTime is the number of processes along the time axis.
              If it is not positive it is inferred from size.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "ProcsDepth",
			usage: `
              ProcsDepth is the number of processes along the depth axis.
              If it is not positive it is inferred from size.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "ntime",
			usage: `
              ntime is the number of time steps to decompose. If it is not
              positive the extents are read from InputFile.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{decompCmd.Flags()},
		},
		{
			name: "ndepth",
			usage: `
              ndepth is the number of depth levels to decompose.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{decompCmd.Flags()},
		},
		{
			name: "InputFile",
			usage: `
              InputFile is the path to the netCDF file holding the input
              fields on a (time, depth, latitude, longitude) grid. It can
              include environment variables, and may be a http(s)://,
              gs://, s3:// or file:// address.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "Coords.Time",
			usage: `
              Coords.Time is the name of the time coordinate variable.`,
			defaultVal: "time",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "Coords.Depth",
			usage: `
              Coords.Depth is the name of the depth coordinate variable.`,
			defaultVal: "depth",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "Coords.Lat",
			usage: `
              Coords.Lat is the name of the latitude coordinate variable.`,
			defaultVal: "latitude",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "Coords.Lon",
			usage: `
              Coords.Lon is the name of the longitude coordinate variable.`,
			defaultVal: "longitude",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), decompCmd.Flags()},
		},
		{
			name: "MaskVariable",
			usage: `
              MaskVariable is the variable whose fill values mark land.`,
			defaultVal: "uo",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Velocity.Lon",
			usage: `
              Velocity.Lon is the variable holding eastward (or x) velocity [m/s].`,
			defaultVal: "uo",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Velocity.Lat",
			usage: `
              Velocity.Lat is the variable holding northward (or y) velocity [m/s].`,
			defaultVal: "vo",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Streamfunction",
			usage: `
              Streamfunction, if set, is the variable holding a streamfunction
              [m²/s] from which the velocity is computed instead of being read.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Pressure",
			usage: `
              Pressure is the variable holding pressure [Pa]. It is needed
              when BoundaryTransfers is true.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Seed.File",
			usage: `
              Seed.File, if set, is a netCDF file holding a 2-D (latitude,
              longitude) vorticity field that is regridded onto the input
              grid and subtracted from the computed vorticity.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Seed.Variable",
			usage: `
              Seed.Variable is the name of the seed vorticity variable.`,
			defaultVal: "vorticity",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FilterScales",
			usage: `
              FilterScales are the length scales at which to coarse-grain,
              in metres (or grid units in Cartesian geometry).`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Cartesian",
			usage: `
              Cartesian specifies that the grid coordinates are Cartesian
              distances rather than degrees of latitude and longitude.`,
			defaultVal: d.Cartesian,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PeriodicX",
			usage: `
              PeriodicX specifies that the longitude (or x) axis wraps around.`,
			defaultVal: d.PeriodicX,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PeriodicY",
			usage: `
              PeriodicY specifies that the y axis wraps around. Only allowed
              in Cartesian geometry.`,
			defaultVal: d.PeriodicY,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "UniformLon",
			usage: `
              UniformLon specifies that longitudes are evenly spaced.`,
			defaultVal: d.UniformLon,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "UniformLat",
			usage: `
              UniformLat specifies that latitudes are evenly spaced.`,
			defaultVal: d.UniformLat,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DiffOrder",
			usage: `
              DiffOrder is the order of accuracy of the finite differences.`,
			defaultVal: d.DiffOrder,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "EarthRadius",
			usage: `
              EarthRadius is the radius of the earth [m].`,
			defaultVal: d.EarthRadius,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Rho0",
			usage: `
              Rho0 is the reference density of sea water [kg/m³].`,
			defaultVal: d.Rho0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FillValue",
			usage: `
              FillValue marks land and missing values in outputs.`,
			defaultVal: d.FillValue,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PoleTolerance",
			usage: `
              PoleTolerance is how close to ±90° [degrees] a latitude must be
              to be treated as a pole.`,
			defaultVal: d.PoleTolerance,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FilterOverLand",
			usage: `
              FilterOverLand includes land cells in coarse-graining and
              region statistics.`,
			defaultVal: d.FilterOverLand,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DepthDerivatives",
			usage: `
              DepthDerivatives enables derivatives along the depth axis.`,
			defaultVal: d.DepthDerivatives,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "BoundaryTransfers",
			usage: `
              BoundaryTransfers adds the pressure work term to the kinetic
              energy transport.`,
			defaultVal: d.BoundaryTransfers,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Regions.File",
			usage: `
              Regions.File is a TOML file of regions to compute statistics over.
              The global region is always included.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Regions.Shapefile",
			usage: `
              Regions.Shapefile is a polygon shapefile of regions in
              longitude-latitude coordinates.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Regions.NameField",
			usage: `
              Regions.NameField is the shapefile attribute holding region names.`,
			defaultVal: "Name",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies additional fields to compute, as a map
              of names to expressions. Expressions may use the computed fields
              (ulon, ulat, vorticity, transport_divergence and their coarse
              versions), any variable in InputFile, and the constants rho0 and R.`,
			defaultVal: map[string]string{"KE": "0.5 * rho0 * (ulon*ulon + ulat*ulat)"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the netCDF file the computed fields are written to.`,
			defaultVal: "oceanbudget.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "StatsFile",
			usage: `
              StatsFile is the netCDF file the region statistics are written to.`,
			defaultVal: "oceanbudget_stats.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ReportFile",
			usage: `
              ReportFile, if set, is an Excel file the region statistics are
              summarized in.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Plot.File",
			usage: `
              Plot.File, if set, is a PNG file showing a map of Plot.Variable
              at the first time and depth.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Plot.Variable",
			usage: `
              Plot.Variable is the field to map.`,
			defaultVal: "vorticity",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. If it is not
              specified, the log file is saved next to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("OCEANBUDGET")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(decompCmd)
	Root.AddCommand(runCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("oceanbudget: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "oceanbudget",
	Short: "Scale-aware budgets of ocean velocity fields.",
	Long: `OceanBudget computes derivatives, coarse-grained fields and region
statistics of ocean velocity data on latitude-longitude or Cartesian grids,
with the (time, depth) domain shared among cooperating processes.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'OCEANBUDGET_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of OceanBudget.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("OceanBudget v%s\n", oceanbudget.Version)
	},
	DisableAutoGenTag: true,
}

var decompCmd = &cobra.Command{
	Use:   "decomp",
	Short: "Print the domain decomposition.",
	Long: `decomp prints the (time, depth) slab that each process would own
for the configured number of processes, either for the extents given by
--ntime and --ndepth or for the extents of InputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ntime, ndepth := Cfg.GetInt("ntime"), Cfg.GetInt("ndepth")
		if ntime <= 0 {
			var err error
			ntime, ndepth, err = inputExtents(context.TODO(), os.ExpandEnv(Cfg.GetString("InputFile")), coordNames(Cfg))
			if err != nil {
				return err
			}
		}
		decomps, err := Decomp(ntime, ndepth, Cfg.GetInt("size"), Cfg.GetInt("ProcsTime"), Cfg.GetInt("ProcsDepth"))
		if err != nil {
			return err
		}
		for _, d := range decomps {
			cmd.Println(d)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that computes budgets.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute ocean budgets.",
	Long: `run reads velocity fields from InputFile and computes vorticity,
kinetic energy transport and, at each of FilterScales, coarse-grained velocity
and enstrophy transfer, along with any OutputVariables. The fields are written
to OutputFile and their region statistics to StatsFile, and optionally
summarized in ReportFile and mapped in Plot.File.

Each process computes the slab of the (time, depth) domain given by its
--rank. Rank 0 writes the output file headers, so other ranks wait for them
to appear.

	Output variables:
	ulon, ulat: Horizontal velocity [m/s]
	vorticity: Vertical vorticity [1/s]
	transport_divergence: Divergence of kinetic energy transport [W/m³]
	ulon_<scale>, ulat_<scale>, vorticity_<scale>: Coarse-grained fields
	enstrophy_transfer_<scale>: Enstrophy transfer across the filter scale
	transport_divergence_<scale>: Transport divergence of coarse fields`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := runOptions(Cfg)
		if err != nil {
			return err
		}
		return Run(context.TODO(), cmd.OutOrStdout(), o)
	},
	DisableAutoGenTag: true,
}
