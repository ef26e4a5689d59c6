package stdlib

import (
	"math"
)

// registerMath registers the numeric builtins.
func (r *Registry) registerMath() {
	r.Register("abs", unary("abs", math.Abs))
	r.Register("floor", unary("floor", math.Floor))
	r.Register("ceil", unary("ceil", math.Ceil))
	r.Register("sqrt", unary("sqrt", math.Sqrt))
	r.Register("pow", binary("pow", math.Pow))
	r.Register("min", binary("min", mathMin))
	r.Register("max", binary("max", mathMax))
}

func unary(name string, fn func(float64) float64) StdlibFunc {
	return func(args []float64) (float64, error) {
		if err := requireArgs(name, args, 1); err != nil {
			return 0, err
		}
		return fn(args[0]), nil
	}
}

func binary(name string, fn func(a, b float64) float64) StdlibFunc {
	return func(args []float64) (float64, error) {
		if err := requireArgs(name, args, 2); err != nil {
			return 0, err
		}
		return fn(args[0], args[1]), nil
	}
}

// mathMin and mathMax return the first argument on ties, unlike math.Min
// which prefers -0 over +0.
func mathMin(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}

func mathMax(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}
