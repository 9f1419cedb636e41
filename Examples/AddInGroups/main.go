package main

import (
	"fmt"
	"os"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/m"
)

// addInGroups sums input in groups of n slots, once in the clear and once
// under encryption by rotate-and-add.
func addInGroups(input []float64, n int) (want, got []float64, err error) {
	if want, err = m.AddInGroups(input, n); err != nil {
		return nil, nil, err
	}
	groups := (len(input) + n - 1) / n

	ckks, err := engine.NewCKKS(engine.CKKSConfig{
		MultDepth:       1,
		ScaleFactorBits: 45,
		BatchSize:       m.NextPow2(n * groups),
	}, engine.KeyRequest{}, nil)
	if err != nil {
		return nil, nil, err
	}
	ckks.AddGroupSumKeys(n, groups)

	ct, err := ckks.Encrypt(input)
	if err != nil {
		return nil, nil, err
	}
	summed, err := ckks.SumGroups(ct, n, groups)
	if err != nil {
		return nil, nil, err
	}
	if got, err = ckks.DecryptReal(summed, n); err != nil {
		return nil, nil, err
	}
	return want, got, nil
}

func main() {
	inputSlice := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	want, got, err := addInGroups(inputSlice, 4)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Println("plaintext:", want)
	fmt.Println("encrypted:", got)
	fmt.Printf("max error: %.3e\n", m.MaxAbsDiff(want, got))
}
