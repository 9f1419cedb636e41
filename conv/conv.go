// Package conv evaluates a one dimensional convolution on an encrypted
// signal with a plaintext filter.
package conv

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/logging"
	"github.com/PaluMacil/hedemos/m"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Method selects how the convolution is evaluated.
type Method string

const (
	// InnerProducts computes one ciphertext per output, value in slot 0.
	InnerProducts Method = "inner"
	// Merged runs InnerProducts then packs the outputs into one ciphertext.
	Merged Method = "merge"
	// Rotations sums rotated copies of the signal weighted by the filter,
	// producing every output in one ciphertext.
	Rotations Method = "rotate"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case InnerProducts, Merged, Rotations:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown convolution method %q (want inner, merge or rotate)", s)
}

const (
	// InnerProducts uses one level and Merged two; the rest is headroom.
	DefaultDepth     = 5
	DefaultScaleBits = 50
)

// DefaultSignal is 1, 2, 4, ..., 128.
func DefaultSignal() []float64 { return m.Geometric(8, 2) }

// DefaultFilter is a first difference.
func DefaultFilter() []float64 { return []float64{-1, 1} }

// Config sizes a Convolver.
type Config struct {
	// Length is the number of input samples; the batch is the next power of two.
	Length int
	Filter []float64
	// CKKS holds parameter overrides. Zero depth and scale select the
	// defaults, and the batch size is raised to Batch.
	CKKS engine.CKKSConfig
}

// Batch returns the number of slots summed per inner product.
func (c Config) Batch() int {
	return m.NextPow2(c.Length)
}

func (c Config) ckks() engine.CKKSConfig {
	p := engine.CKKSConfig{MultDepth: DefaultDepth, ScaleFactorBits: DefaultScaleBits}.Merge(c.CKKS)
	if p.BatchSize < c.Batch() {
		p.BatchSize = c.Batch()
	}
	return p
}

// Convolver owns the CKKS context for one signal length and filter.
type Convolver struct {
	cfg     Config
	ckks    *engine.CKKS
	filters [][]float64
	log     *slog.Logger
}

// New generates keys for every evaluation method.
func New(cfg Config, log *slog.Logger) (*Convolver, error) {
	if cfg.Length < 1 {
		return nil, fmt.Errorf("conv: signal length %d < 1", cfg.Length)
	}
	if len(cfg.Filter) == 0 {
		return nil, fmt.Errorf("conv: empty filter")
	}
	log = logging.OrDiscard(log)

	req := engine.KeyRequest{
		SumSizes:  []int{cfg.Batch()},
		Rotations: append(engine.MergeRotations(cfg.Length), filterRotations(cfg.Filter, cfg.Length)...),
	}
	c, err := engine.NewCKKS(cfg.ckks(), req, log)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	return &Convolver{
		cfg:     cfg,
		ckks:    c,
		filters: ShiftedFilters(cfg.Filter, cfg.Length, cfg.Batch()),
		log:     log,
	}, nil
}

// ShiftedFilters returns, for each output i < n, the filter placed at
// offset i in a vector of batch slots.
func ShiftedFilters(filter []float64, n, batch int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		f := m.ShiftedFilter(filter, i, batch)
		// taps past the signal multiply zero padding
		for j := n; j < batch; j++ {
			f[j] = 0
		}
		out[i] = f
	}
	return out
}

func filterRotations(filter []float64, n int) []int {
	var ks []int
	for k := 1; k < len(filter) && k < n; k++ {
		ks = append(ks, k)
	}
	return ks
}

// Encrypt encrypts the signal x.
func (c *Convolver) Encrypt(x []float64) (*rlwe.Ciphertext, error) {
	if len(x) != c.cfg.Length {
		return nil, fmt.Errorf("conv: signal has %d samples, want %d", len(x), c.cfg.Length)
	}
	return c.ckks.Encrypt(x)
}

// InnerProducts returns one ciphertext per output sample with the value in
// slot 0. Outputs are computed concurrently on forks of the context.
func (c *Convolver) InnerProducts(ct *rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	out := make([]*rlwe.Ciphertext, len(c.filters))
	var wg sync.WaitGroup
	errChan := make(chan error, len(c.filters))

	for i := range c.filters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip, err := c.ckks.Fork().InnerProduct(ct, c.filters[i], c.cfg.Batch())
			if err != nil {
				errChan <- fmt.Errorf("output %d: %w", i, err)
				return
			}
			out[i] = ip
		}(i)
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Merge packs the outputs of InnerProducts into one ciphertext.
func (c *Convolver) Merge(cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return c.ckks.Merge(cts)
}

// Rotations computes sum_k filter[k] * rot(x, k) masked to the signal
// length, in one ciphertext and one level.
func (c *Convolver) Rotations(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	n := c.cfg.Length
	var acc *rlwe.Ciphertext
	for k, f := range c.cfg.Filter {
		if k >= n || f == 0 {
			continue
		}
		shifted, err := c.ckks.Rotate(ct, k)
		if err != nil {
			return nil, err
		}
		// weight f on outputs whose tap k stays inside the signal
		w := make([]float64, n-k)
		for i := range w {
			w[i] = f
		}
		term, err := c.ckks.MultConst(shifted, w)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = term
			continue
		}
		if acc, err = c.ckks.Add(acc, term); err != nil {
			return nil, err
		}
	}
	if acc == nil {
		// all taps zero
		return c.ckks.MultConst(ct, []float64{0})
	}
	return acc, nil
}

// Apply encrypts x, convolves it with the given method and returns the
// decrypted outputs.
func (c *Convolver) Apply(x []float64, method Method) ([]float64, error) {
	ct, err := c.Encrypt(x)
	if err != nil {
		return nil, err
	}
	n := c.cfg.Length

	switch method {
	case InnerProducts:
		cts, err := c.InnerProducts(ct)
		if err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, ip := range cts {
			v, err := c.ckks.DecryptReal(ip, 1)
			if err != nil {
				return nil, err
			}
			out[i] = v[0]
		}
		return out, nil

	case Merged:
		cts, err := c.InnerProducts(ct)
		if err != nil {
			return nil, err
		}
		merged, err := c.Merge(cts)
		if err != nil {
			return nil, err
		}
		return c.ckks.DecryptReal(merged, n)

	case Rotations:
		res, err := c.Rotations(ct)
		if err != nil {
			return nil, err
		}
		return c.ckks.DecryptReal(res, n)
	}
	return nil, fmt.Errorf("conv: unknown method %q", method)
}
