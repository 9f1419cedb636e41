package lsvm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedCSV indicates a model or sample file that cannot be parsed
var ErrMalformedCSV = errors.New("lsvm: malformed csv")

// Model is a trained linear classifier: score(x) = Beta.x + Bias.
type Model struct {
	// Scale is the factor the stored weights were multiplied by.
	Scale float64
	Beta  []float64
	Bias  float64
}

// Features returns the input dimension.
func (m *Model) Features() int {
	return len(m.Beta)
}

// readValues returns every comma separated value of r in reading order.
// Blank lines are skipped.
func readValues(r io.Reader, name string) ([]float64, [][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var flat []float64
	var rows [][]float64
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedCSV, name, err)
		}
		line, _ := cr.FieldPos(0)
		row := make([]float64, 0, len(rec))
		for i, field := range rec {
			field = strings.TrimSpace(field)
			if field == "" && i == len(rec)-1 && i > 0 {
				// trailing comma
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s line %d field %d: %q", ErrMalformedCSV, name, line, i+1, field)
			}
			row = append(row, v)
		}
		flat = append(flat, row...)
		rows = append(rows, row)
	}
	return flat, rows, nil
}

// LoadModel parses a model file: the first value is the scale, the last
// the bias, and the values between are the weights multiplied by the
// scale. Values may be spread over any number of lines.
func LoadModel(r io.Reader) (*Model, error) {
	values, _, err := readValues(r, "model")
	if err != nil {
		return nil, err
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("%w: model: need scale, at least one weight and bias, got %d values", ErrMalformedCSV, len(values))
	}
	scale := values[0]
	if scale == 0 {
		return nil, fmt.Errorf("%w: model: zero scale", ErrMalformedCSV)
	}
	features := len(values) - 2
	beta := make([]float64, features)
	for i := range beta {
		beta[i] = values[1+i] / scale
	}
	return &Model{Scale: scale, Beta: beta, Bias: values[len(values)-1]}, nil
}

// LoadSamples parses one feature vector per line.
func LoadSamples(r io.Reader, features int) ([][]float64, error) {
	_, rows, err := readValues(r, "samples")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: samples: no rows", ErrMalformedCSV)
	}
	for i, row := range rows {
		if len(row) != features {
			return nil, fmt.Errorf("%w: samples row %d: %d values, model has %d features", ErrMalformedCSV, i+1, len(row), features)
		}
	}
	return rows, nil
}

// LoadModelFile opens and parses a model file.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadModel(f)
}

// LoadSamplesFile opens and parses a sample file.
func LoadSamplesFile(path string, features int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSamples(f, features)
}
