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
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

// Expressions computes derived fields from named fields. Each
// expression is evaluated point by point and may refer to input
// fields, to other derived fields, to the constants rho0 and R, and to
// the functions exp, sqrt, abs, min and max as well as any
// user-supplied functions.
//
// For example, {"KE": "0.5*rho0*(u*u+v*v)"} computes kinetic energy
// from velocity components u and v.
type Expressions struct {
	exprs map[string]*govaluate.EvaluableExpression
	order []string
	vars  []string
}

// NewExpressions parses the expressions in defs, which maps output
// names to expressions. funcs may add to or override the default
// functions.
func NewExpressions(defs map[string]string, funcs map[string]govaluate.ExpressionFunction) (*Expressions, error) {
	allFuncs := map[string]govaluate.ExpressionFunction{
		"exp":  unaryFunc("exp", math.Exp),
		"sqrt": unaryFunc("sqrt", math.Sqrt),
		"abs":  unaryFunc("abs", math.Abs),
		"min": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("oceanbudget: got %d arguments for function 'min', but needs 2", len(args))
			}
			return math.Min(args[0].(float64), args[1].(float64)), nil
		},
		"max": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("oceanbudget: got %d arguments for function 'max', but needs 2", len(args))
			}
			return math.Max(args[0].(float64), args[1].(float64)), nil
		},
	}
	for k, f := range funcs {
		allFuncs[k] = f
	}

	e := &Expressions{exprs: make(map[string]*govaluate.EvaluableExpression)}
	deps := make(map[string][]string)
	for name, def := range defs {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(def, allFuncs)
		if err != nil {
			return nil, fmt.Errorf("oceanbudget: parsing expression %s = %q: %v", name, def, err)
		}
		e.exprs[name] = expr
		deps[name] = removeDuplicates(expr.Vars())
	}

	// Order the outputs so that each is computed after the outputs it
	// depends on.
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	state := make(map[string]int) // 1: visiting, 2: done
	inputs := make(map[string]bool)
	var visit func(string) error
	visit = func(n string) error {
		switch state[n] {
		case 1:
			return fmt.Errorf("oceanbudget: expression %s depends on itself", n)
		case 2:
			return nil
		}
		state[n] = 1
		for _, v := range deps[n] {
			if _, ok := defs[v]; ok {
				if err := visit(v); err != nil {
					return err
				}
			} else if !isConstant(v) {
				inputs[v] = true
			}
		}
		state[n] = 2
		e.order = append(e.order, n)
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	for v := range inputs {
		e.vars = append(e.vars, v)
	}
	sort.Strings(e.vars)
	return e, nil
}

// Names returns the output names in evaluation order.
func (e *Expressions) Names() []string { return e.order }

// Vars returns the names of the input fields the expressions need.
func (e *Expressions) Vars() []string { return e.vars }

// Evaluate computes every output at each of the n points. Points at
// which any input is the fill value receive the fill value.
func (e *Expressions) Evaluate(fields map[string][]float64, n int, c Constants) (map[string][]float64, error) {
	for _, v := range e.vars {
		f, ok := fields[v]
		if !ok {
			return nil, fmt.Errorf("oceanbudget: undefined variable name '%s'", v)
		}
		if len(f) != n {
			return nil, fmt.Errorf("oceanbudget: variable '%s' has %d values, want %d", v, len(f), n)
		}
	}
	out := make(map[string][]float64, len(e.order))
	for _, name := range e.order {
		out[name] = make([]float64, n)
	}
	params := govaluate.MapParameters{"rho0": c.Rho0, "R": c.EarthRadius}
points:
	for i := 0; i < n; i++ {
		for _, v := range e.vars {
			x := fields[v][i]
			if x == c.FillValue {
				for _, name := range e.order {
					out[name][i] = c.FillValue
				}
				continue points
			}
			params[v] = x
		}
		for _, name := range e.order {
			r, err := e.exprs[name].Eval(params)
			if err != nil {
				return nil, fmt.Errorf("oceanbudget: evaluating %s: %v", name, err)
			}
			x, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("oceanbudget: expression %s returned %T, not a number", name, r)
			}
			out[name][i] = x
			params[name] = x
		}
	}
	return out, nil
}

func isConstant(v string) bool { return v == "rho0" || v == "R" }

func unaryFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("oceanbudget: got %d arguments for function '%s', but needs 1", len(args), name)
		}
		return f(args[0].(float64)), nil
	}
}

// removeDuplicates returns the unique strings in s, in order of
// first appearance.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
