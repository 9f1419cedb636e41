package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/PaluMacil/hedemos/conv"
	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/lsvm"
	"github.com/PaluMacil/hedemos/m"
	"github.com/PaluMacil/hedemos/pwcheck"
)

// estimate describes the parameters one circuit needs.
type estimate struct {
	name  string
	depth int
	logQ  []int
	logQP int
	slots int
	logN  int
	err   error
}

func estimateCKKS(name string, cfg engine.CKKSConfig) estimate {
	e := estimate{name: name, depth: cfg.MultDepth, logQ: cfg.LogQ(), logQP: cfg.LogQP(), slots: cfg.BatchSize}
	lit, err := cfg.Literal()
	e.logN, e.err = lit.LogN, err
	return e
}

func estimateBGV(name string, cfg engine.BGVConfig) estimate {
	e := estimate{name: name, depth: cfg.MultDepth, logQ: cfg.LogQ(), logQP: cfg.LogQP(), slots: cfg.MinSlots}
	lit, err := cfg.Literal()
	e.logN, e.err = lit.LogN, err
	return e
}

func main() {
	flagWindow := flag.Int("window", pwcheck.DefaultWindow, "password window (power of two)")
	flagDigits := flag.Bool("digits", false, "the password policy also requires a digit")
	flagLength := flag.Int("length", len(conv.DefaultSignal()), "convolution signal length")
	flagFeatures := flag.Int("features", 4, "number of SVM features")
	flag.Parse()

	policy := pwcheck.DefaultPolicy()
	policy.Window = *flagWindow
	if *flagDigits {
		policy.Required = append(policy.Required, pwcheck.Digit)
	}
	if err := policy.Validate(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}

	estimates := []estimate{
		estimateBGV("password", policy.BGVConfig(0, false)),
		estimateCKKS("conv", engine.CKKSConfig{
			MultDepth:       conv.DefaultDepth,
			ScaleFactorBits: conv.DefaultScaleBits,
			BatchSize:       m.NextPow2(*flagLength),
		}),
		estimateCKKS("svm", engine.CKKSConfig{
			MultDepth:       lsvm.DefaultDepth,
			ScaleFactorBits: lsvm.DefaultScaleBits,
			BatchSize:       m.NextPow2(*flagFeatures),
		}),
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "circuit\tdepth\tslots\tlogQ\tlogQP\tlogN\tmax logQP\t128-bit")
	failed := false
	for _, e := range estimates {
		if e.err != nil {
			failed = true
			secure := "no"
			if !errors.Is(e.err, engine.ErrInsecureParameters) {
				secure = e.err.Error()
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%d\t-\t-\t%s\n", e.name, e.depth, e.slots, e.logQ, e.logQP, secure)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%d\t%d\t%d\tyes\n", e.name, e.depth, e.slots, e.logQ, e.logQP, e.logN, engine.MaxLogQP(e.logN))
	}
	w.Flush()
	if failed {
		os.Exit(1)
	}
}
