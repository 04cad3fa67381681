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
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/kr/pretty"
)

func TestExpressions(t *testing.T) {
	c := DefaultConstants()
	e, err := NewExpressions(map[string]string{
		"KE":    "0.5 * rho0 * (u*u + v*v)",
		"speed": "sqrt(2 * KE / rho0)",
		"big":   "max(speed, 1)",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(e.Names(), []string{"KE", "speed", "big"}); len(diff) > 0 {
		t.Errorf("order: %v", diff)
	}
	if diff := pretty.Diff(e.Vars(), []string{"u", "v"}); len(diff) > 0 {
		t.Errorf("vars: %v", diff)
	}
	out, err := e.Evaluate(map[string][]float64{
		"u": {3, 0, c.FillValue},
		"v": {4, 0.5, 1},
	}, 3, c)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{
		"KE":    {0.5 * c.Rho0 * 25, 0.5 * c.Rho0 * 0.25, c.FillValue},
		"speed": {5, 0.5, c.FillValue},
		"big":   {5, 1, c.FillValue},
	}
	for name, w := range want {
		for i := range w {
			if absDifferent(out[name][i], w[i], 1e-9) {
				t.Errorf("%s[%d]: want %g but have %g", name, i, w[i], out[name][i])
			}
		}
	}
}

func TestExpressionsCustomFunction(t *testing.T) {
	e, err := NewExpressions(map[string]string{"y": "double(x)"},
		map[string]govaluate.ExpressionFunction{
			"double": func(args ...interface{}) (interface{}, error) {
				return 2 * args[0].(float64), nil
			},
		})
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.Evaluate(map[string][]float64{"x": {1, 2}}, 2, DefaultConstants())
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(out["y"], []float64{2, 4}); len(diff) > 0 {
		t.Error(diff)
	}
}

func TestExpressionsErrors(t *testing.T) {
	if _, err := NewExpressions(map[string]string{"a": "b + 1", "b": "a * 2"}, nil); err == nil {
		t.Error("want error for cyclic expressions")
	}
	if _, err := NewExpressions(map[string]string{"a": "(1 +"}, nil); err == nil {
		t.Error("want error for invalid expression")
	}
	e, err := NewExpressions(map[string]string{"a": "u + w"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Evaluate(map[string][]float64{"u": {1}}, 1, DefaultConstants())
	if want := fmt.Errorf("oceanbudget: undefined variable name 'w'"); err == nil || err.Error() != want.Error() {
		t.Errorf("want %v but have %v", want, err)
	}
	_, err = e.Evaluate(map[string][]float64{"u": {1}, "w": {1, 2}}, 1, DefaultConstants())
	if err == nil {
		t.Error("want error for wrong length")
	}
}
