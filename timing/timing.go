// Package timing runs a step repeatedly and summarizes how long each run took.
package timing

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/schollz/progressbar/v3"
)

// Summary describes the durations of a repeated run.
type Summary struct {
	Name   string
	N      int
	Total  time.Duration
	Mean   time.Duration
	Median time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

func (s Summary) String() string {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	return fmt.Sprintf("%s: %d runs in %v (mean %.2fms, median %.2fms, stddev %.2fms, min %.2fms, max %.2fms)",
		s.Name, s.N, s.Total.Round(time.Millisecond), ms(s.Mean), ms(s.Median), ms(s.StdDev), ms(s.Min), ms(s.Max))
}

// Options tunes Repeat. The zero value draws a progress bar on stderr.
type Options struct {
	// Progress receives the progress bar; nil selects os.Stderr.
	Progress io.Writer
	// Quiet disables the progress bar.
	Quiet bool
}

// Repeat calls fn n times with the iteration index and returns the timing
// summary. It stops at the first error.
func Repeat(n int, name string, fn func(i int) error, opts Options) (Summary, error) {
	if n < 1 {
		return Summary{}, fmt.Errorf("%s: iterations %d < 1", name, n)
	}

	w := opts.Progress
	if w == nil {
		w = os.Stderr
	}
	if opts.Quiet {
		w = io.Discard
	}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	samples := make([]float64, 0, n)
	var total time.Duration
	for i := 0; i < n; i++ {
		start := time.Now()
		if err := fn(i); err != nil {
			return Summary{}, fmt.Errorf("%s: iteration %d: %w", name, i, err)
		}
		elapsed := time.Since(start)
		total += elapsed
		samples = append(samples, float64(elapsed))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	return summarize(name, total, samples)
}

func summarize(name string, total time.Duration, samples []float64) (Summary, error) {
	mean, err := stats.Mean(samples)
	if err != nil {
		return Summary{}, err
	}
	median, err := stats.Median(samples)
	if err != nil {
		return Summary{}, err
	}
	std, err := stats.StandardDeviation(samples)
	if err != nil {
		return Summary{}, err
	}
	lo, err := stats.Min(samples)
	if err != nil {
		return Summary{}, err
	}
	hi, err := stats.Max(samples)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Name:   name,
		N:      len(samples),
		Total:  total,
		Mean:   time.Duration(mean),
		Median: time.Duration(median),
		StdDev: time.Duration(std),
		Min:    time.Duration(lo),
		Max:    time.Duration(hi),
	}, nil
}
