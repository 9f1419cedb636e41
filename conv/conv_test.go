package conv

import (
	"testing"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/m"
	"github.com/stretchr/testify/require"
)

func testConfig(length int, filter []float64) Config {
	return Config{
		Length: length,
		Filter: filter,
		CKKS: engine.CKKSConfig{
			MultDepth:       2,
			ScaleFactorBits: 45,
			LogN:            10,
			Insecure:        true,
		},
	}
}

func TestShiftedFilters(t *testing.T) {
	fs := ShiftedFilters([]float64{-1, 1}, 3, 4)
	require.Equal(t, [][]float64{
		{-1, 1, 0, 0},
		{0, -1, 1, 0},
		{0, 0, -1, 0},
	}, fs)
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"inner", "merge", "rotate"} {
		got, err := ParseMethod(s)
		require.NoError(t, err)
		require.Equal(t, Method(s), got)
	}
	_, err := ParseMethod("fft")
	require.Error(t, err)
}

func TestConvolverMatchesPlain(t *testing.T) {
	cases := []struct {
		name   string
		x      []float64
		filter []float64
	}{
		{"default", DefaultSignal(), DefaultFilter()},
		{"odd length", []float64{0.5, -1, 3, 2, 7}, []float64{1, 2, 1}},
		{"single tap", []float64{1, 2, 3, 4}, []float64{-0.5}},
		{"long filter", []float64{1, 1, 2, 3}, []float64{1, 0, -1, 0, 2, 5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cv, err := New(testConfig(len(c.x), c.filter), nil)
			require.NoError(t, err)

			want := m.Convolve(c.x, c.filter)
			for _, method := range []Method{InnerProducts, Merged, Rotations} {
				got, err := cv.Apply(c.x, method)
				require.NoError(t, err, method)
				require.Len(t, got, len(want))
				require.Less(t, m.MaxAbsDiff(want, got), 1e-4, "%s: want %v got %v", method, want, got)
			}
		})
	}
}

func TestConvolverErrors(t *testing.T) {
	_, err := New(testConfig(0, DefaultFilter()), nil)
	require.Error(t, err)
	_, err = New(testConfig(4, nil), nil)
	require.Error(t, err)

	cv, err := New(testConfig(4, DefaultFilter()), nil)
	require.NoError(t, err)
	_, err = cv.Apply([]float64{1, 2, 3}, InnerProducts)
	require.Error(t, err)
	_, err = cv.Apply([]float64{1, 2, 3, 4}, Method("nope"))
	require.Error(t, err)
}

func TestConfigParameters(t *testing.T) {
	p := Config{Length: 5, Filter: DefaultFilter()}.ckks()
	require.Equal(t, engine.CKKSConfig{MultDepth: DefaultDepth, ScaleFactorBits: DefaultScaleBits, BatchSize: 8}, p)

	p = Config{Length: 5, CKKS: engine.CKKSConfig{FirstModBits: 55, BatchSize: 32, LogP: []int{60}}}.ckks()
	require.Equal(t, DefaultDepth, p.MultDepth)
	require.Equal(t, 55, p.FirstModBits)
	require.Equal(t, 32, p.BatchSize)
	require.Equal(t, []int{60}, p.LogP)
}
