package main

import (
	"fmt"
	"os"

	"github.com/PaluMacil/hedemos/engine"
)

var req = engine.KeyRequest{Rotations: []int{-1, 1}}

// rotateCKKS rotates list right by one and back again under CKKS.
func rotateCKKS(list []float64) (right, back []float64, err error) {
	ckks, err := engine.NewCKKS(engine.CKKSConfig{MultDepth: 1, ScaleFactorBits: 45, BatchSize: len(list)}, req, nil)
	if err != nil {
		return nil, nil, err
	}
	ct, err := ckks.Encrypt(list)
	if err != nil {
		return nil, nil, err
	}
	ctRight, err := ckks.Rotate(ct, -1)
	if err != nil {
		return nil, nil, err
	}
	ctBack, err := ckks.Rotate(ctRight, 1)
	if err != nil {
		return nil, nil, err
	}
	if right, err = ckks.DecryptReal(ctRight, len(list)); err != nil {
		return nil, nil, err
	}
	if back, err = ckks.DecryptReal(ctBack, len(list)); err != nil {
		return nil, nil, err
	}
	return right, back, nil
}

// rotateBGV rotates each row of ints right by one and back again under BGV.
func rotateBGV(ints []int64) (right, back []int64, err error) {
	bgv, err := engine.NewBGV(engine.BGVConfig{MultDepth: 1}, req, nil)
	if err != nil {
		return nil, nil, err
	}
	ct, err := bgv.Encrypt(ints)
	if err != nil {
		return nil, nil, err
	}
	ctRight, err := bgv.Rotate(ct, -1)
	if err != nil {
		return nil, nil, err
	}
	ctBack, err := bgv.Rotate(ctRight, 1)
	if err != nil {
		return nil, nil, err
	}
	if right, err = bgv.Decrypt(ctRight, len(ints)); err != nil {
		return nil, nil, err
	}
	if back, err = bgv.Decrypt(ctBack, len(ints)); err != nil {
		return nil, nil, err
	}
	return right, back, nil
}

func main() {
	// a right rotation pulls the last slot of the whole vector into slot 0
	right, back, err := rotateCKKS([]float64{1, 2, 3, 4})
	if err != nil {
		fmt.Println("ckks:", err)
		os.Exit(1)
	}
	fmt.Println("ckks  rotate -1:", right)
	fmt.Println("ckks  rotate +1:", back)

	rightInt, backInt, err := rotateBGV([]int64{1, 2, 3, 4})
	if err != nil {
		fmt.Println("bgv:", err)
		os.Exit(1)
	}
	fmt.Println("bgv   rotate -1:", rightInt)
	fmt.Println("bgv   rotate +1:", backInt)
}
