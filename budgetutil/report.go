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

	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WriteReport writes region statistics to an Excel workbook.
//
// The "Statistics" sheet holds one row per field, global time, global
// depth and region. The "Summary" sheet holds one row per field and
// region, aggregating the region means over every time and depth:
// the area-weighted mean, the standard deviation of the means, and
// their range.
func WriteReport(filename string, results ...*rankResult) error {
	f := xlsx.NewFile()
	detail, err := f.AddSheet("Statistics")
	if err != nil {
		return err
	}
	summary, err := f.AddSheet("Summary")
	if err != nil {
		return err
	}
	header(detail, "field", "time", "depth", "region", "area", "mean", "std")
	header(summary, "field", "region", "samples", "mean", "std", "min", "max")

	if len(results) == 0 {
		return f.Save(filename)
	}
	fields := results[0].Fields
	regions := results[0].Reducer.Regions()
	for _, r := range results[1:] {
		if len(r.Fields) != len(fields) || len(r.Reducer.Regions()) != len(regions) {
			return fmt.Errorf("oceanbudget: report results from rank %d do not match rank %d", r.Decomp.Rank, results[0].Decomp.Rank)
		}
	}

	for k, field := range fields {
		for ri, region := range regions {
			var means, areas []float64
			for _, r := range results {
				s := r.Stats[k]
				for t := 0; t < s.Ntime; t++ {
					for d := 0; d < s.Ndepth; d++ {
						mean, std := s.At(t, d, ri)
						area := r.Reducer.Area(t, d, ri)
						row := detail.AddRow()
						row.AddCell().Value = field
						row.AddCell().SetInt(r.Decomp.TimeStart + t)
						row.AddCell().SetInt(r.Decomp.DepthStart + d)
						row.AddCell().Value = region.Name
						row.AddCell().SetFloat(area)
						row.AddCell().SetFloat(mean)
						row.AddCell().SetFloat(std)
						if area > 0 {
							means = append(means, mean)
							areas = append(areas, area)
						}
					}
				}
			}
			row := summary.AddRow()
			row.AddCell().Value = field
			row.AddCell().Value = region.Name
			row.AddCell().SetInt(len(means))
			if len(means) == 0 {
				continue
			}
			var std float64
			if len(means) > 1 {
				std = stat.StdDev(means, nil)
			}
			row.AddCell().SetFloat(stat.Mean(means, areas))
			row.AddCell().SetFloat(std)
			row.AddCell().SetFloat(floats.Min(means))
			row.AddCell().SetFloat(floats.Max(means))
		}
	}
	return f.Save(filename)
}

func header(s *xlsx.Sheet, names ...string) {
	row := s.AddRow()
	for _, n := range names {
		row.AddCell().Value = n
	}
}
