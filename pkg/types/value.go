// Package types defines the value representation and runtime error taxonomy
// shared by the minic interpreter and its servers. Every minic value is a
// float64, whatever its declared type.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatNumber renders v as the shortest decimal that round-trips:
// 14, 3.5, 1e+21, +Inf, NaN.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseNumber converts a number literal or a formatted value back to a
// float64. Out-of-range literals saturate to ±Inf instead of failing.
func ParseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return v, nil
		}
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// FormatNumbers renders vs as a comma-separated list, e.g. "3, 4".
func FormatNumbers(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = FormatNumber(v)
	}
	return strings.Join(parts, ", ")
}

// Number is a float64 that survives JSON: finite values encode as JSON
// numbers, NaN and ±Inf as their FormatNumber strings.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return json.Marshal(FormatNumber(f))
	}
	return []byte(FormatNumber(f)), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts a JSON number or a
// string holding one ("+Inf", "NaN", "2.5").
func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseNumber(s)
		if err != nil {
			return err
		}
		*n = Number(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("expected a number, got %s", string(data))
	}
	*n = Number(f)
	return nil
}

// Numbers converts a float64 slice to Numbers.
func Numbers(vs []float64) []Number {
	out := make([]Number, len(vs))
	for i, v := range vs {
		out[i] = Number(v)
	}
	return out
}

// Floats converts a Number slice back to float64s.
func Floats(ns []Number) []float64 {
	out := make([]float64, len(ns))
	for i, n := range ns {
		out[i] = float64(n)
	}
	return out
}
