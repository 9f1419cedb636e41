// Package engine binds the demo programs to lattigo: it builds CKKS and BGV
// parameters from a small configuration, generates the keys an evaluation
// needs, and exposes the encrypt, evaluate and decrypt operations the demos
// call.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/PaluMacil/hedemos/m"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
	"github.com/tuneinsight/lattigo/v5/he/heint"
)

const (
	minLogN = 10
	maxLogN = 17

	defaultCKKSFirstModBits = 60
	defaultBGVFirstModBits  = 55
	defaultBGVLevelBits     = 45

	// DefaultPlaintextModulus is the 17th Fermat prime; t-1 = 2^16 allows
	// batching for every ring degree up to 2^15.
	DefaultPlaintextModulus uint64 = 65537
)

var defaultLogP = []int{61}

// maxLogQP is the largest total modulus size that keeps 128-bit classical
// security for a ternary secret, per ring degree.
var maxLogQP = map[int]int{
	10: 27,
	11: 54,
	12: 109,
	13: 218,
	14: 438,
	15: 881,
	16: 1761,
	17: 3524,
}

// MaxLogQP returns the 128-bit security bound on LogQP for the ring degree
// 2^logN, or 0 if unknown.
func MaxLogQP(logN int) int {
	return maxLogQP[logN]
}

// CKKSConfig describes an approximate arithmetic context.
type CKKSConfig struct {
	MultDepth       int   `json:"mult_depth"`
	ScaleFactorBits int   `json:"scale_factor_bits"`
	FirstModBits    int   `json:"first_mod_bits,omitempty"`
	BatchSize       int   `json:"batch_size"`
	LogN            int   `json:"log_n,omitempty"`
	LogP            []int `json:"log_p,omitempty"`
	Insecure        bool  `json:"insecure,omitempty"`
}

func (c CKKSConfig) withDefaults() CKKSConfig {
	if c.FirstModBits == 0 {
		c.FirstModBits = defaultCKKSFirstModBits
	}
	if len(c.LogP) == 0 {
		c.LogP = defaultLogP
	}
	return c
}

// Validate checks the configuration without instantiating parameters.
func (c CKKSConfig) Validate() error {
	c = c.withDefaults()
	switch {
	case c.MultDepth < 1:
		return fmt.Errorf("%w: mult depth %d < 1", ErrInvalidConfig, c.MultDepth)
	case c.ScaleFactorBits < 20 || c.ScaleFactorBits > 60:
		return fmt.Errorf("%w: scale factor bits %d outside [20, 60]", ErrInvalidConfig, c.ScaleFactorBits)
	case c.FirstModBits < c.ScaleFactorBits || c.FirstModBits > 61:
		return fmt.Errorf("%w: first modulus bits %d outside [%d, 61]", ErrInvalidConfig, c.FirstModBits, c.ScaleFactorBits)
	case !m.IsPow2(c.BatchSize):
		return fmt.Errorf("%w: batch size %d is not a power of two", ErrInvalidConfig, c.BatchSize)
	case c.LogN != 0 && (c.LogN < 4 || c.LogN > maxLogN):
		return fmt.Errorf("%w: log n %d outside [4, %d]", ErrInvalidConfig, c.LogN, maxLogN)
	}
	return nil
}

// LogQ returns the modulus chain: the first modulus followed by one
// scale-sized modulus per level.
func (c CKKSConfig) LogQ() []int {
	c = c.withDefaults()
	logQ := make([]int, c.MultDepth+1)
	logQ[0] = c.FirstModBits
	for i := 1; i < len(logQ); i++ {
		logQ[i] = c.ScaleFactorBits
	}
	return logQ
}

// LogQP returns the total bit size of the modulus chain and key-switching primes.
func (c CKKSConfig) LogQP() int {
	c = c.withDefaults()
	return sum(c.LogQ()) + sum(c.LogP)
}

// Literal validates c and resolves it into lattigo parameters.
func (c CKKSConfig) Literal() (hefloat.ParametersLiteral, error) {
	if err := c.Validate(); err != nil {
		return hefloat.ParametersLiteral{}, err
	}
	c = c.withDefaults()

	// slots = N/2
	logN, err := resolveLogN(c.LogN, m.Log2(c.BatchSize)+1, c.LogQP(), c.Insecure)
	if err != nil {
		return hefloat.ParametersLiteral{}, err
	}

	return hefloat.ParametersLiteral{
		LogN:            logN,
		LogQ:            c.LogQ(),
		LogP:            append([]int(nil), c.LogP...),
		LogDefaultScale: c.ScaleFactorBits,
	}, nil
}

// Parameters instantiates the lattigo CKKS parameters.
func (c CKKSConfig) Parameters() (hefloat.Parameters, error) {
	lit, err := c.Literal()
	if err != nil {
		return hefloat.Parameters{}, err
	}
	params, err := hefloat.NewParametersFromLiteral(lit)
	if err != nil {
		return hefloat.Parameters{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return params, nil
}

// BGVConfig describes an exact integer arithmetic context.
type BGVConfig struct {
	MultDepth        int    `json:"mult_depth"`
	PlaintextModulus uint64 `json:"plaintext_modulus,omitempty"`
	LevelBits        int    `json:"level_bits,omitempty"`
	FirstModBits     int    `json:"first_mod_bits,omitempty"`
	// MinSlots is the number of slots the caller needs in one row.
	MinSlots int   `json:"min_slots,omitempty"`
	LogN     int   `json:"log_n,omitempty"`
	LogP     []int `json:"log_p,omitempty"`
	Insecure bool  `json:"insecure,omitempty"`
}

func (c BGVConfig) withDefaults() BGVConfig {
	if c.PlaintextModulus == 0 {
		c.PlaintextModulus = DefaultPlaintextModulus
	}
	if c.LevelBits == 0 {
		c.LevelBits = defaultBGVLevelBits
	}
	if c.FirstModBits == 0 {
		c.FirstModBits = defaultBGVFirstModBits
	}
	if c.MinSlots == 0 {
		c.MinSlots = 1
	}
	if len(c.LogP) == 0 {
		c.LogP = defaultLogP
	}
	return c
}

// Validate checks the configuration without instantiating parameters.
func (c BGVConfig) Validate() error {
	c = c.withDefaults()
	switch {
	case c.MultDepth < 1:
		return fmt.Errorf("%w: mult depth %d < 1", ErrInvalidConfig, c.MultDepth)
	case c.PlaintextModulus < 3:
		return fmt.Errorf("%w: plaintext modulus %d < 3", ErrInvalidConfig, c.PlaintextModulus)
	case c.LevelBits < 20 || c.LevelBits > 60:
		return fmt.Errorf("%w: level bits %d outside [20, 60]", ErrInvalidConfig, c.LevelBits)
	case c.FirstModBits < 20 || c.FirstModBits > 61:
		return fmt.Errorf("%w: first modulus bits %d outside [20, 61]", ErrInvalidConfig, c.FirstModBits)
	case c.MinSlots < 1:
		return fmt.Errorf("%w: min slots %d < 1", ErrInvalidConfig, c.MinSlots)
	case c.LogN != 0 && (c.LogN < 4 || c.LogN > maxLogN):
		return fmt.Errorf("%w: log n %d outside [4, %d]", ErrInvalidConfig, c.LogN, maxLogN)
	}
	return nil
}

// LogQ returns the modulus chain for c.
func (c BGVConfig) LogQ() []int {
	c = c.withDefaults()
	logQ := make([]int, c.MultDepth+1)
	logQ[0] = c.FirstModBits
	for i := 1; i < len(logQ); i++ {
		logQ[i] = c.LevelBits
	}
	return logQ
}

// LogQP returns the total bit size of the modulus chain and key-switching primes.
func (c BGVConfig) LogQP() int {
	c = c.withDefaults()
	return sum(c.LogQ()) + sum(c.LogP)
}

// Literal validates c and resolves it into lattigo parameters.
func (c BGVConfig) Literal() (heint.ParametersLiteral, error) {
	if err := c.Validate(); err != nil {
		return heint.ParametersLiteral{}, err
	}
	c = c.withDefaults()

	// one row holds N/2 slots
	logN, err := resolveLogN(c.LogN, m.Log2(c.MinSlots)+1, c.LogQP(), c.Insecure)
	if err != nil {
		return heint.ParametersLiteral{}, err
	}

	// Packing needs t = 1 mod 2N.
	if (c.PlaintextModulus-1)%(uint64(2)<<logN) != 0 {
		return heint.ParametersLiteral{}, fmt.Errorf("%w: plaintext modulus %d does not allow batching for log n %d",
			ErrInvalidConfig, c.PlaintextModulus, logN)
	}

	return heint.ParametersLiteral{
		LogN:             logN,
		LogQ:             c.LogQ(),
		LogP:             append([]int(nil), c.LogP...),
		PlaintextModulus: c.PlaintextModulus,
	}, nil
}

// Parameters instantiates the lattigo BGV parameters.
func (c BGVConfig) Parameters() (heint.Parameters, error) {
	lit, err := c.Literal()
	if err != nil {
		return heint.Parameters{}, err
	}
	params, err := heint.NewParametersFromLiteral(lit)
	if err != nil {
		return heint.Parameters{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return params, nil
}

// resolveLogN returns the requested ring degree after checking it, or the
// smallest secure one at least atLeast when requested is zero.
func resolveLogN(requested, atLeast, logQP int, insecure bool) (int, error) {
	if requested != 0 {
		if requested < atLeast {
			return 0, fmt.Errorf("%w: log n %d too small, need at least %d", ErrInvalidConfig, requested, atLeast)
		}
		if !insecure && logQP > maxLogQP[requested] {
			return 0, fmt.Errorf("%w: logQP %d exceeds %d for log n %d", ErrInsecureParameters, logQP, maxLogQP[requested], requested)
		}
		return requested, nil
	}

	start := atLeast
	if start < minLogN {
		start = minLogN
	}
	for logN := start; logN <= maxLogN; logN++ {
		if logQP <= maxLogQP[logN] {
			return logN, nil
		}
	}
	return 0, fmt.Errorf("%w: logQP %d exceeds every supported ring degree", ErrInsecureParameters, logQP)
}

func sum(v []int) (s int) {
	for _, x := range v {
		s += x
	}
	return
}

// ParamsFile is the JSON document accepted by LoadParamsFile. Either
// section may be omitted, and so may any field: a section is an override
// merged over the parameters a program computes for its circuit.
type ParamsFile struct {
	CKKS *CKKSConfig `json:"ckks,omitempty"`
	BGV  *BGVConfig  `json:"bgv,omitempty"`
}

// LoadParamsFile reads a JSON parameter override file. Unknown fields and
// negative values are rejected; the merged configuration is validated when
// a context is built from it.
func LoadParamsFile(path string) (*ParamsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var pf ParamsFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("%w: parse params %s: %v", ErrInvalidConfig, path, err)
	}
	if c := pf.CKKS; c != nil && anyNegative(append([]int{c.MultDepth, c.ScaleFactorBits, c.FirstModBits, c.BatchSize, c.LogN}, c.LogP...)) {
		return nil, fmt.Errorf("%w: params %s: negative ckks value", ErrInvalidConfig, path)
	}
	if c := pf.BGV; c != nil && anyNegative(append([]int{c.MultDepth, c.LevelBits, c.FirstModBits, c.MinSlots, c.LogN}, c.LogP...)) {
		return nil, fmt.Errorf("%w: params %s: negative bgv value", ErrInvalidConfig, path)
	}
	return &pf, nil
}

func anyNegative(v []int) bool {
	for _, x := range v {
		if x < 0 {
			return true
		}
	}
	return false
}

// Merge returns c with every non-zero field of over applied. Insecure is
// set when either side sets it.
func (c CKKSConfig) Merge(over CKKSConfig) CKKSConfig {
	if over.MultDepth != 0 {
		c.MultDepth = over.MultDepth
	}
	if over.ScaleFactorBits != 0 {
		c.ScaleFactorBits = over.ScaleFactorBits
	}
	if over.FirstModBits != 0 {
		c.FirstModBits = over.FirstModBits
	}
	if over.BatchSize != 0 {
		c.BatchSize = over.BatchSize
	}
	if over.LogN != 0 {
		c.LogN = over.LogN
	}
	if len(over.LogP) != 0 {
		c.LogP = append([]int(nil), over.LogP...)
	}
	c.Insecure = c.Insecure || over.Insecure
	return c
}

// Merge returns c with every non-zero field of over applied. Insecure is
// set when either side sets it.
func (c BGVConfig) Merge(over BGVConfig) BGVConfig {
	if over.MultDepth != 0 {
		c.MultDepth = over.MultDepth
	}
	if over.PlaintextModulus != 0 {
		c.PlaintextModulus = over.PlaintextModulus
	}
	if over.LevelBits != 0 {
		c.LevelBits = over.LevelBits
	}
	if over.FirstModBits != 0 {
		c.FirstModBits = over.FirstModBits
	}
	if over.MinSlots != 0 {
		c.MinSlots = over.MinSlots
	}
	if over.LogN != 0 {
		c.LogN = over.LogN
	}
	if len(over.LogP) != 0 {
		c.LogP = append([]int(nil), over.LogP...)
	}
	c.Insecure = c.Insecure || over.Insecure
	return c
}
