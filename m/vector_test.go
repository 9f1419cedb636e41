package m

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestPow2(t *testing.T) {
	cases := []struct {
		n, next, log int
		pow2         bool
	}{
		{0, 1, 0, false},
		{1, 1, 0, true},
		{2, 2, 1, true},
		{3, 4, 2, false},
		{8, 8, 3, true},
		{9, 16, 4, false},
		{26, 32, 5, false},
		{1024, 1024, 10, true},
	}
	for _, c := range cases {
		require.Equal(t, c.next, NextPow2(c.n), "NextPow2(%d)", c.n)
		require.Equal(t, c.log, Log2(c.n), "Log2(%d)", c.n)
		require.Equal(t, c.pow2, IsPow2(c.n), "IsPow2(%d)", c.n)
	}
}

func TestConvolve(t *testing.T) {
	x := Geometric(8, 2)
	require.Equal(t, []float64{1, 2, 4, 8, 16, 32, 64, 128}, x)

	out := Convolve(x, []float64{-1, 1})
	require.Equal(t, []float64{1, 2, 4, 8, 16, 32, 64, -128}, out)
	// filter longer than the signal
	require.Equal(t, []float64{8, 4}, Convolve([]float64{1, 2}, []float64{2, 3, 7}))

	// Each output is the inner product with the matching shifted filter.
	for i := range x {
		require.Equal(t, out[i], floats.Dot(x, ShiftedFilter([]float64{-1, 1}, i, len(x))))
	}
}

func TestShiftedFilter(t *testing.T) {
	require.Equal(t, []float64{0, 0, -1, 1}, ShiftedFilter([]float64{-1, 1}, 2, 4))
	require.Equal(t, []float64{0, 0, 0, -1}, ShiftedFilter([]float64{-1, 1}, 3, 4))
}

func TestParseFloats(t *testing.T) {
	v, err := ParseFloats(" 1, 2.5,-3 ")
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2.5, -3}, v)

	_, err = ParseFloats("")
	require.Error(t, err)
	_, err = ParseFloats("1,x")
	require.Error(t, err)
}

func TestMaxAbsDiff(t *testing.T) {
	require.Equal(t, 3.0, MaxAbsDiff([]float64{1, 2, 3}, []float64{1, 5, 2, 100}))
	require.Equal(t, 0.0, MaxAbsDiff(nil, []float64{1}))
}

func TestAddInGroups(t *testing.T) {
	out, err := AddInGroups([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 4)
	require.NoError(t, err)
	require.Equal(t, []float64{15, 18, 21, 24}, out)

	out, err = AddInGroups([]float64{1, 2, 3, 4, 5}, 4)
	require.NoError(t, err)
	require.Equal(t, []float64{6, 2, 3, 4}, out)

	_, err = AddInGroups(nil, 4)
	require.Error(t, err)
}
