package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/PaluMacil/hedemos/conv"
	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/logging"
	"github.com/PaluMacil/hedemos/lsvm"
	"github.com/PaluMacil/hedemos/m"
	"github.com/PaluMacil/hedemos/pwcheck"
	"github.com/PaluMacil/hedemos/timing"
	"golang.org/x/term"
)

const (
	// shortLogN is the insecure ring degree used with -short.
	shortLogN = 12

	defaultIterations = 10
)

const usage = `usage: hedemos <command> [flags] [args]

commands:
  password  check passwords against a policy under BGV encryption
  conv      convolve an encrypted signal under CKKS encryption
  svm       score a linear SVM on encrypted data: svm [flags] model.csv tests.csv

run "hedemos <command> -h" for the flags of a command`

// common holds the flags every command accepts.
type common struct {
	iterations int
	short      bool
	logLevel   string
	params     string
	quiet      bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.IntVar(&c.iterations, "iterations", defaultIterations, "number of timed repetitions")
	fs.BoolVar(&c.short, "short", false, "run with a smaller and insecure ring degree")
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.StringVar(&c.params, "params", "", "JSON file overriding the scheme parameters")
	fs.BoolVar(&c.quiet, "quiet", false, "hide the progress bar")
}

func (c *common) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level, os.Stderr), nil
}

func (c *common) paramsFile() (*engine.ParamsFile, error) {
	if c.params == "" {
		return &engine.ParamsFile{}, nil
	}
	return engine.LoadParamsFile(c.params)
}

// ckksConfig returns the CKKS overrides selected by -short and -params.
func (c *common) ckksConfig(pf *engine.ParamsFile) engine.CKKSConfig {
	var cfg engine.CKKSConfig
	if c.short {
		cfg.LogN, cfg.Insecure = shortLogN, true
	}
	if pf.CKKS != nil {
		cfg = cfg.Merge(*pf.CKKS)
	}
	return cfg
}

func (c *common) timingOptions() timing.Options {
	return timing.Options{Quiet: c.quiet}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch subCommand := os.Args[1]; subCommand {
	case "password":
		err = runPassword(os.Args[2:], os.Stdin, os.Stdout)
	case "conv":
		err = runConv(os.Args[2:], os.Stdout)
	case "svm":
		err = runSVM(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q\n\n%s", subCommand, usage)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

// demoPasswords covers each failure mode of the default policy and one pass.
var demoPasswords = []string{"password", "abcdefgh", "ABCDEFGH", "Abcdefgh"}

func runPassword(args []string, stdin *os.File, out io.Writer) error {
	var c common
	passwordFlags := flag.NewFlagSet("password", flag.ContinueOnError)
	c.register(passwordFlags)
	flagWindow := passwordFlags.Int("window", pwcheck.DefaultWindow, "maximum password length (power of two)")
	flagDigits := passwordFlags.Bool("digits", false, "also require a digit")
	flagAllowRepeats := passwordFlags.Bool("allow-repeats", false, "accept repeated adjacent characters")
	flagVerify := passwordFlags.Bool("verify", false, "compare every encrypted verdict with a plaintext check")
	flagDemo := passwordFlags.Bool("demo", false, "check the built-in demo passwords")
	if err := passwordFlags.Parse(args); err != nil {
		return err
	}

	log, err := c.logger()
	if err != nil {
		return err
	}
	pf, err := c.paramsFile()
	if err != nil {
		return err
	}

	policy := pwcheck.DefaultPolicy()
	policy.Window = *flagWindow
	policy.ForbidRepeats = !*flagAllowRepeats
	if *flagDigits {
		policy.Required = append(policy.Required, pwcheck.Digit)
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	cfg := policy.BGVConfig(0, false)
	if c.short {
		cfg.LogN, cfg.Insecure = shortLogN, true
	}
	if pf.BGV != nil {
		cfg = cfg.Merge(*pf.BGV)
	}

	passwords, echo, err := readPasswords(passwordFlags.Args(), *flagDemo, stdin)
	if err != nil {
		return err
	}

	validator, err := pwcheck.NewValidator(policy, cfg, log)
	if err != nil {
		return err
	}

	reports := make([]pwcheck.Report, len(passwords))
	summary, err := timing.Repeat(c.iterations, "password", func(int) error {
		for i, pw := range passwords {
			rep, err := validator.Check(pw)
			if err != nil {
				return fmt.Errorf("password %d: %w", i+1, err)
			}
			reports[i] = rep
		}
		return nil
	}, c.timingOptions())
	if err != nil {
		return err
	}

	for i, rep := range reports {
		label := fmt.Sprintf("#%d", i+1)
		if echo {
			label = passwords[i]
		}
		verdict := "valid"
		if !rep.Valid {
			verdict = "invalid"
			if missing := rep.Missing(policy); len(missing) > 0 {
				verdict += " missing=" + strings.Join(missing, ",")
			}
			if rep.HasRepeat {
				verdict += " repeated-characters"
			}
		}
		fmt.Fprintf(out, "%-10s len=%d %s\n", label, rep.Length, verdict)

		if *flagVerify {
			want, err := pwcheck.PlainCheck(passwords[i], policy)
			if err != nil {
				return err
			}
			if want.Valid != rep.Valid || want.HasRepeat != rep.HasRepeat {
				return fmt.Errorf("password %s: encrypted verdict %v differs from plaintext %v", label, rep, want)
			}
		}
	}
	fmt.Fprintln(out, summary)
	return nil
}

// readPasswords returns the passwords to check and whether they may be
// printed. Without arguments it prompts on a terminal or reads one
// password per line.
func readPasswords(args []string, demo bool, stdin *os.File) ([]string, bool, error) {
	switch {
	case demo:
		return demoPasswords, true, nil
	case len(args) > 0:
		return args, false, nil
	}

	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, false, fmt.Errorf("read password: %w", err)
		}
		return []string{string(pw)}, false, nil
	}

	pws, err := scanLines(stdin)
	if err != nil {
		return nil, false, err
	}
	if len(pws) == 0 {
		return nil, false, errors.New("no passwords given")
	}
	return pws, false, nil
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read passwords: %w", err)
	}
	return lines, nil
}

func runConv(args []string, out io.Writer) error {
	var c common
	convFlags := flag.NewFlagSet("conv", flag.ContinueOnError)
	c.register(convFlags)
	flagX := convFlags.String("x", "", "comma separated input signal (default 1,2,4,...,128)")
	flagFilter := convFlags.String("filter", "-1,1", "comma separated filter taps")
	flagMethod := convFlags.String("method", string(conv.InnerProducts), "evaluation method: inner, merge or rotate")
	if err := convFlags.Parse(args); err != nil {
		return err
	}

	log, err := c.logger()
	if err != nil {
		return err
	}
	pf, err := c.paramsFile()
	if err != nil {
		return err
	}
	method, err := conv.ParseMethod(*flagMethod)
	if err != nil {
		return err
	}

	x := conv.DefaultSignal()
	if *flagX != "" {
		if x, err = m.ParseFloats(*flagX); err != nil {
			return fmt.Errorf("parsing -x: %w", err)
		}
	}
	filter, err := m.ParseFloats(*flagFilter)
	if err != nil {
		return fmt.Errorf("parsing -filter: %w", err)
	}

	cfg := conv.Config{Length: len(x), Filter: filter, CKKS: c.ckksConfig(pf)}

	cv, err := conv.New(cfg, log)
	if err != nil {
		return err
	}

	var result []float64
	summary, err := timing.Repeat(c.iterations, "conv", func(int) error {
		result, err = cv.Apply(x, method)
		return err
	}, c.timingOptions())
	if err != nil {
		return err
	}

	want := m.Convolve(x, filter)
	fmt.Fprintf(out, "input:     %v\n", x)
	fmt.Fprintf(out, "filter:    %v\n", filter)
	fmt.Fprintf(out, "encrypted: %s\n", formatFloats(result))
	fmt.Fprintf(out, "plaintext: %s\n", formatFloats(want))
	fmt.Fprintf(out, "max error: %.3e\n", m.MaxAbsDiff(want, result))
	fmt.Fprintln(out, summary)
	return nil
}

func runSVM(args []string, out io.Writer) error {
	var c common
	svmFlags := flag.NewFlagSet("svm", flag.ContinueOnError)
	c.register(svmFlags)
	flagVerbose := svmFlags.Bool("v", false, "print every score")
	if err := svmFlags.Parse(args); err != nil {
		return err
	}
	if svmFlags.NArg() < 2 {
		return errors.New("svm needs two arguments: model.csv tests.csv")
	}

	log, err := c.logger()
	if err != nil {
		return err
	}
	pf, err := c.paramsFile()
	if err != nil {
		return err
	}

	model, err := lsvm.LoadModelFile(svmFlags.Arg(0))
	if err != nil {
		return err
	}
	x, err := lsvm.LoadSamplesFile(svmFlags.Arg(1), model.Features())
	if err != nil {
		return err
	}

	cfg := lsvm.Config{CKKS: c.ckksConfig(pf)}

	var run *lsvm.Run
	summary, err := timing.Repeat(c.iterations, "svm", func(int) error {
		run, err = lsvm.RunAll(model, x, cfg, log)
		return err
	}, c.timingOptions())
	if err != nil {
		return err
	}

	plainInput, err := lsvm.Compare(run.Plain, run.PlainInput)
	if err != nil {
		return err
	}
	encInput, err := lsvm.Compare(run.Plain, run.EncInput)
	if err != nil {
		return err
	}

	if *flagVerbose {
		fmt.Fprintln(out, "row plain enc-model enc-model+enc-input")
		for i := range run.Plain {
			fmt.Fprintf(out, "%d %f %f %f\n", i, run.Plain[i], run.PlainInput[i], run.EncInput[i])
		}
	}
	fmt.Fprintf(out, "features=%d rows=%d\n", model.Features(), len(x))
	fmt.Fprintf(out, "encrypted model, plain input:     sq-rel-err=%.3e max-abs=%.3e label-mismatches=%d\n",
		plainInput.SqRelErr, plainInput.MaxAbs, plainInput.LabelMismatches)
	fmt.Fprintf(out, "encrypted model, encrypted input: sq-rel-err=%.3e max-abs=%.3e label-mismatches=%d\n",
		encInput.SqRelErr, encInput.MaxAbs, encInput.LabelMismatches)
	fmt.Fprintln(out, summary)
	return nil
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%.4f", f)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
