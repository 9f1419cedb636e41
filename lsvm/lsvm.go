// Package lsvm evaluates a linear support vector machine on plaintext and
// encrypted inputs and compares the results.
package lsvm

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/logging"
	hm "github.com/PaluMacil/hedemos/m"
	"github.com/montanaflynn/stats"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultDepth covers the single product of either inference path.
	DefaultDepth     = 1
	DefaultScaleBits = 50
)

// PredictPlain returns Beta.x + Bias for every row of x.
func PredictPlain(model *Model, x [][]float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	f := model.Features()
	data := make([]float64, 0, len(x)*f)
	for i, row := range x {
		if len(row) != f {
			return nil, fmt.Errorf("row %d: %d values, model has %d features", i, len(row), f)
		}
		data = append(data, row...)
	}
	X := mat.NewDense(len(x), f, data)
	var y mat.VecDense
	y.MulVec(X, mat.NewVecDense(f, model.Beta))

	out := make([]float64, len(x))
	for i := range out {
		out[i] = y.AtVec(i) + model.Bias
	}
	return out, nil
}

// Label maps a score to its class, +1 or -1.
func Label(score float64) int {
	if score >= 0 {
		return 1
	}
	return -1
}

// Config selects the CKKS parameters of a Predictor.
type Config struct {
	// CKKS holds parameter overrides. Zero depth and scale select the
	// defaults, and the batch size is raised to the sum size.
	CKKS engine.CKKSConfig
}

func (c Config) ckks(sumSize int) engine.CKKSConfig {
	p := engine.CKKSConfig{MultDepth: DefaultDepth, ScaleFactorBits: DefaultScaleBits}.Merge(c.CKKS)
	if p.BatchSize < sumSize {
		p.BatchSize = sumSize
	}
	return p
}

// Predictor holds an encrypted model.
type Predictor struct {
	model   *Model
	ckks    *engine.CKKS
	sumSize int
	encBeta *rlwe.Ciphertext
	encBias *rlwe.Ciphertext
	log     *slog.Logger
}

// NewPredictor generates keys and encrypts the model weights and bias.
func NewPredictor(model *Model, cfg Config, log *slog.Logger) (*Predictor, error) {
	log = logging.OrDiscard(log)
	sumSize := hm.NextPow2(model.Features())

	c, err := engine.NewCKKS(cfg.ckks(sumSize), engine.KeyRequest{SumSizes: []int{sumSize}}, log)
	if err != nil {
		return nil, fmt.Errorf("lsvm: %w", err)
	}

	encBeta, err := c.Encrypt(model.Beta)
	if err != nil {
		return nil, fmt.Errorf("lsvm: encrypt weights: %w", err)
	}
	encBias, err := c.Encrypt([]float64{model.Bias})
	if err != nil {
		return nil, fmt.Errorf("lsvm: encrypt bias: %w", err)
	}
	log.Debug("model encrypted", "features", model.Features(), "sumSize", sumSize)

	return &Predictor{
		model:   model,
		ckks:    c,
		sumSize: sumSize,
		encBeta: encBeta,
		encBias: encBias,
		log:     log,
	}, nil
}

func (p *Predictor) checkRow(i int, row []float64) error {
	if len(row) != p.model.Features() {
		return fmt.Errorf("row %d: %d values, model has %d features", i, len(row), p.model.Features())
	}
	return nil
}

// PredictPlainInput scores plaintext rows against the encrypted model.
// Slot 0 of each result holds the score.
func (p *Predictor) PredictPlainInput(x [][]float64) ([]*rlwe.Ciphertext, error) {
	out := make([]*rlwe.Ciphertext, len(x))
	for i, row := range x {
		if err := p.checkRow(i, row); err != nil {
			return nil, err
		}
		ip, err := p.ckks.InnerProduct(p.encBeta, row, p.sumSize)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if out[i], err = p.ckks.Add(ip, p.encBias); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

// EncryptInputs encrypts each row.
func (p *Predictor) EncryptInputs(x [][]float64) ([]*rlwe.Ciphertext, error) {
	out := make([]*rlwe.Ciphertext, len(x))
	for i, row := range x {
		if err := p.checkRow(i, row); err != nil {
			return nil, err
		}
		ct, err := p.ckks.Encrypt(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

// PredictEncryptedInput scores encrypted rows against the encrypted model.
func (p *Predictor) PredictEncryptedInput(encX []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	out := make([]*rlwe.Ciphertext, len(encX))
	for i, ct := range encX {
		prod, err := p.ckks.Mult(p.encBeta, ct)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		s, err := p.ckks.Sum(prod, p.sumSize)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if out[i], err = p.ckks.Add(s, p.encBias); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return out, nil
}

// DecryptScores returns slot 0 of each ciphertext.
func (p *Predictor) DecryptScores(cts []*rlwe.Ciphertext) ([]float64, error) {
	out := make([]float64, len(cts))
	for i, ct := range cts {
		v, err := p.ckks.DecryptReal(ct, 1)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v[0]
	}
	return out, nil
}

// Comparison measures how far encrypted scores are from the plaintext ones.
type Comparison struct {
	// RelErr[i] is (plain[i]-got[i])/plain[i]; NaN when plain[i] is zero.
	RelErr []float64
	// SqRelErr is the sum of squared relative errors over rows with a
	// non-zero plaintext score.
	SqRelErr float64
	MaxAbs   float64
	MeanAbs  float64
	StdAbs   float64
	// LabelMismatches counts rows whose predicted class differs.
	LabelMismatches int
}

// Compare measures got against the plaintext scores.
func Compare(plain, got []float64) (Comparison, error) {
	if len(plain) != len(got) {
		return Comparison{}, fmt.Errorf("compare: %d plaintext scores, %d encrypted", len(plain), len(got))
	}
	if len(plain) == 0 {
		return Comparison{}, fmt.Errorf("compare: no scores")
	}
	c := Comparison{RelErr: make([]float64, len(plain))}
	abs := make([]float64, len(plain))
	for i := range plain {
		d := plain[i] - got[i]
		abs[i] = math.Abs(d)
		if plain[i] == 0 {
			c.RelErr[i] = math.NaN()
		} else {
			c.RelErr[i] = d / plain[i]
			c.SqRelErr += c.RelErr[i] * c.RelErr[i]
		}
		if Label(plain[i]) != Label(got[i]) {
			c.LabelMismatches++
		}
	}
	var err error
	if c.MaxAbs, err = stats.Max(abs); err != nil {
		return Comparison{}, err
	}
	if c.MeanAbs, err = stats.Mean(abs); err != nil {
		return Comparison{}, err
	}
	if c.StdAbs, err = stats.StandardDeviation(abs); err != nil {
		return Comparison{}, err
	}
	return c, nil
}

// Run is the outcome of one demo pass.
type Run struct {
	Plain      []float64
	PlainInput []float64
	EncInput   []float64
}

// RunAll encrypts model, scores x in plaintext, with the encrypted model on
// plaintext inputs and with the encrypted model on encrypted inputs.
func RunAll(model *Model, x [][]float64, cfg Config, log *slog.Logger) (*Run, error) {
	plain, err := PredictPlain(model, x)
	if err != nil {
		return nil, err
	}
	p, err := NewPredictor(model, cfg, log)
	if err != nil {
		return nil, err
	}

	cts, err := p.PredictPlainInput(x)
	if err != nil {
		return nil, err
	}
	plainInput, err := p.DecryptScores(cts)
	if err != nil {
		return nil, err
	}

	encX, err := p.EncryptInputs(x)
	if err != nil {
		return nil, err
	}
	if cts, err = p.PredictEncryptedInput(encX); err != nil {
		return nil, err
	}
	encInput, err := p.DecryptScores(cts)
	if err != nil {
		return nil, err
	}
	return &Run{Plain: plain, PlainInput: plainInput, EncInput: encInput}, nil
}
