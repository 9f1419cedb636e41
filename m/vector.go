// Package m holds the plaintext vector helpers shared by the demos: power of
// two arithmetic for slot layouts, reference convolutions,
// and error measurements between plaintext and decrypted results.
package m

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPow2 returns the smallest power of two >= n. NextPow2(0) is 1.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Log2 returns ceil(log2(n)) for n >= 1, which is the exact exponent when n
// is a power of two.
func Log2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Convolve computes out[i] = sum_k filter[k]*x[i+k] for every i < len(x),
// treating samples past the end of x as zero.
func Convolve(x, filter []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		k := len(filter)
		if rest := len(x) - i; rest < k {
			k = rest
		}
		out[i] = floats.Dot(filter[:k], x[i:i+k])
	}
	return out
}

// ShiftedFilter returns a vector of length n holding filter starting at
// position shift. Coefficients that fall past n are dropped.
func ShiftedFilter(filter []float64, shift, n int) []float64 {
	out := make([]float64, n)
	for k, f := range filter {
		if shift+k < n {
			out[shift+k] = f
		}
	}
	return out
}

// ParseFloats parses a comma separated list such as "1, 2.5,-3".
func ParseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty list")
	}
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Geometric returns {1, r, r^2, ..., r^(n-1)}.
func Geometric(n int, r float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pow(r, float64(i))
	}
	return out
}

// MaxAbsDiff returns max_i |a[i]-b[i]| over the common prefix.
func MaxAbsDiff(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	d := make([]float64, n)
	floats.SubTo(d, a[:n], b[:n])
	return math.Max(floats.Max(d), -floats.Min(d))
}

// AddInGroups splits v into consecutive groups of n values and returns their
// element-wise sum. A short final group is zero padded.
func AddInGroups(v []float64, n int) ([]float64, error) {
	if n <= 0 || len(v) == 0 {
		return nil, fmt.Errorf("invalid input")
	}
	result := make([]float64, n)
	for i := 0; i < len(v); i += n {
		end := i + n
		if end > len(v) {
			end = len(v)
		}
		floats.Add(result[:end-i], v[i:end])
	}
	return result, nil
}
