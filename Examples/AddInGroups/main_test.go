package main

import (
	"testing"

	"github.com/PaluMacil/hedemos/m"
	"github.com/stretchr/testify/require"
)

func TestAddInGroups(t *testing.T) {
	want, got, err := addInGroups([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 4)
	require.NoError(t, err)
	require.Equal(t, []float64{15, 18, 21, 24}, want)
	require.Less(t, m.MaxAbsDiff(want, got), 1e-4)

	// a short final group
	want, got, err = addInGroups([]float64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{9, 6}, want)
	require.Less(t, m.MaxAbsDiff(want, got), 1e-4)

	_, _, err = addInGroups([]float64{1, 2}, 0)
	require.Error(t, err)
}
