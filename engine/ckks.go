package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/PaluMacil/hedemos/logging"
	"github.com/PaluMacil/hedemos/m"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// CKKS is an approximate arithmetic context over packed real vectors. A
// CKKS value and its forks share keys; a fork has its own encoder and
// evaluator buffers and may be used from another goroutine.
type CKKS struct {
	Params hefloat.Parameters

	keys      *keyChain
	encoder   *hefloat.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	eval      *hefloat.Evaluator
	log       *slog.Logger
}

// NewCKKS builds parameters from cfg and generates the keys named by req.
func NewCKKS(cfg CKKSConfig, req KeyRequest, log *slog.Logger) (*CKKS, error) {
	log = logging.OrDiscard(log)

	params, err := cfg.Parameters()
	if err != nil {
		return nil, wrap("NewCKKS", err)
	}
	log.Info("ckks parameters",
		"logN", params.LogN(),
		"slots", params.MaxSlots(),
		"levels", params.MaxLevel(),
		"logQP", params.LogQP(),
		"scale", cfg.ScaleFactorBits)

	start := time.Now()
	kgen := hefloat.NewKeyGenerator(params)
	kc := newKeyChain(params, kgen, log)
	kc.add(nonZero(galoisElementsFor(params, req)))
	log.Debug("ckks keys ready", "elapsed", time.Since(start))

	return &CKKS{
		Params:    params,
		keys:      kc,
		encoder:   hefloat.NewEncoder(params),
		encryptor: hefloat.NewEncryptor(params, kc.pk),
		decryptor: hefloat.NewDecryptor(params, kc.sk),
		eval:      hefloat.NewEvaluator(params, kc.evaluationKeys()),
		log:       log,
	}, nil
}

// Fork returns a context sharing the keys of c with independent buffers.
// Forks must not add keys.
func (c *CKKS) Fork() *CKKS {
	return &CKKS{
		Params:    c.Params,
		keys:      c.keys,
		encoder:   c.encoder.ShallowCopy(),
		encryptor: c.encryptor.ShallowCopy(),
		decryptor: c.decryptor.ShallowCopy(),
		eval:      c.eval.ShallowCopy(),
		log:       c.log,
	}
}

// Slots returns the number of packed values per ciphertext.
func (c *CKKS) Slots() int {
	return c.Params.MaxSlots()
}

// AddRotationKeys generates keys for the given rotations if missing.
func (c *CKKS) AddRotationKeys(ks ...int) {
	c.rebind(nonZero(c.Params.GaloisElements(ks)))
}

// AddSumKeys generates the keys Sum needs for vectors of size n.
func (c *CKKS) AddSumKeys(n int) {
	c.rebind(nonZero(rlwe.GaloisElementsForInnerSum(c.Params, 1, n)))
}

// AddGroupSumKeys generates the keys SumGroups needs.
func (c *CKKS) AddGroupSumKeys(n, groups int) {
	c.rebind(nonZero(rlwe.GaloisElementsForInnerSum(c.Params, n, groups)))
}

func (c *CKKS) rebind(galEls []uint64) {
	if c.keys.add(galEls) {
		c.eval = c.eval.WithKey(c.keys.evaluationKeys())
	}
}

// Encrypt packs v into the first len(v) slots and encrypts it.
func (c *CKKS) Encrypt(v []float64) (*rlwe.Ciphertext, error) {
	if len(v) > c.Slots() {
		return nil, &Error{Op: "Encrypt", Err: fmt.Errorf("%w: %d > %d", ErrVectorTooLong, len(v), c.Slots())}
	}
	pt := hefloat.NewPlaintext(c.Params, c.Params.MaxLevel())
	if err := c.encoder.Encode(v, pt); err != nil {
		return nil, wrap("Encrypt", err)
	}
	ct, err := c.encryptor.EncryptNew(pt)
	return ct, wrap("Encrypt", err)
}

// Decrypt returns every slot of ct.
func (c *CKKS) Decrypt(ct *rlwe.Ciphertext) ([]complex128, error) {
	pt := c.decryptor.DecryptNew(ct)
	values := make([]complex128, c.Slots())
	if err := c.encoder.Decode(pt, values); err != nil {
		return nil, wrap("Decrypt", err)
	}
	return values, nil
}

// DecryptReal returns the real part of the first n slots of ct.
func (c *CKKS) DecryptReal(ct *rlwe.Ciphertext, n int) ([]float64, error) {
	values, err := c.Decrypt(ct)
	if err != nil {
		return nil, err
	}
	if n > len(values) {
		n = len(values)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = real(values[i])
	}
	return out, nil
}

// Add returns a + b.
func (c *CKKS) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := c.eval.AddNew(a, b)
	return out, wrap("Add", err)
}

// Sub returns a - b.
func (c *CKKS) Sub(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := c.eval.SubNew(a, b)
	return out, wrap("Sub", err)
}

// Mult returns the slot-wise product of a and b, relinearized and rescaled.
func (c *CKKS) Mult(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if a.Level() == 0 || b.Level() == 0 {
		return nil, &Error{Op: "Mult", Err: ErrDepthExhausted}
	}
	out, err := c.eval.MulRelinNew(a, b)
	if err != nil {
		return nil, wrap("Mult", err)
	}
	if err = c.eval.Rescale(out, out); err != nil {
		return nil, wrap("Mult", err)
	}
	return out, nil
}

// MultConst returns the slot-wise product of ct with the plaintext vector v.
// The plaintext is encoded at the scale of the dropped modulus so the
// result keeps the scale of ct exactly.
func (c *CKKS) MultConst(ct *rlwe.Ciphertext, v []float64) (*rlwe.Ciphertext, error) {
	level := ct.Level()
	if level == 0 {
		return nil, &Error{Op: "MultConst", Err: ErrDepthExhausted}
	}
	if len(v) > c.Slots() {
		return nil, &Error{Op: "MultConst", Err: fmt.Errorf("%w: %d > %d", ErrVectorTooLong, len(v), c.Slots())}
	}
	pt := hefloat.NewPlaintext(c.Params, level)
	pt.Scale = rlwe.NewScale(c.Params.Q()[level])
	if err := c.encoder.Encode(v, pt); err != nil {
		return nil, wrap("MultConst", err)
	}
	out, err := c.eval.MulNew(ct, pt)
	if err != nil {
		return nil, wrap("MultConst", err)
	}
	if err = c.eval.Rescale(out, out); err != nil {
		return nil, wrap("MultConst", err)
	}
	return out, nil
}

// Rotate cyclically shifts the slots of ct left by k (right for k < 0).
func (c *CKKS) Rotate(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {
	if k%c.Slots() == 0 {
		return ct.CopyNew(), nil
	}
	if !c.keys.has(c.Params.GaloisElement(k)) {
		return nil, errorf("Rotate", "%w: rotation by %d", ErrMissingKey, k)
	}
	out, err := c.eval.RotateNew(ct, k)
	return out, wrap("Rotate", err)
}

// Sum adds the first n slots of ct by rotate-and-add, n a power of two.
// Slot 0 of the result holds the total. Only the first n slots of ct may be
// non-zero for slot 0 to equal the plain sum when n is smaller than the
// slot count.
func (c *CKKS) Sum(ct *rlwe.Ciphertext, n int) (*rlwe.Ciphertext, error) {
	if !m.IsPow2(n) || n > c.Slots() {
		return nil, errorf("Sum", "%w: size %d is not a power of two up to the slot count", ErrInvalidConfig, n)
	}
	for _, g := range nonZero(rlwe.GaloisElementsForInnerSum(c.Params, 1, n)) {
		if !c.keys.has(g) {
			return nil, errorf("Sum", "%w: sum over %d slots", ErrMissingKey, n)
		}
	}
	out := ct.CopyNew()
	if err := c.eval.InnerSum(ct, 1, n, out); err != nil {
		return nil, wrap("Sum", err)
	}
	return out, nil
}

// SumGroups adds groups consecutive blocks of n slots element-wise; slot j
// of the result, for j < n, holds the sum of slots j, j+n, ..., j+(groups-1)n.
func (c *CKKS) SumGroups(ct *rlwe.Ciphertext, n, groups int) (*rlwe.Ciphertext, error) {
	if n < 1 || groups < 1 || n*groups > c.Slots() {
		return nil, errorf("SumGroups", "%w: %d groups of %d", ErrInvalidConfig, groups, n)
	}
	for _, g := range nonZero(rlwe.GaloisElementsForInnerSum(c.Params, n, groups)) {
		if !c.keys.has(g) {
			return nil, errorf("SumGroups", "%w: %d groups of %d", ErrMissingKey, groups, n)
		}
	}
	out := ct.CopyNew()
	if err := c.eval.InnerSum(ct, n, groups, out); err != nil {
		return nil, wrap("SumGroups", err)
	}
	return out, nil
}

// InnerProduct returns Sum(MultConst(ct, v), n).
func (c *CKKS) InnerProduct(ct *rlwe.Ciphertext, v []float64, n int) (*rlwe.Ciphertext, error) {
	prod, err := c.MultConst(ct, v)
	if err != nil {
		return nil, err
	}
	return c.Sum(prod, n)
}

// Merge packs slot 0 of cts[i] into slot i of a single ciphertext. It
// needs rotation keys for -1..-(len(cts)-1) and consumes one level.
func (c *CKKS) Merge(cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if len(cts) == 0 {
		return nil, errorf("Merge", "%w: no ciphertexts", ErrInvalidConfig)
	}
	if len(cts) > c.Slots() {
		return nil, &Error{Op: "Merge", Err: ErrVectorTooLong}
	}
	mask := []float64{1}
	var acc *rlwe.Ciphertext
	for i, ct := range cts {
		masked, err := c.MultConst(ct, mask)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if masked, err = c.Rotate(masked, -i); err != nil {
				return nil, err
			}
		}
		if acc == nil {
			acc = masked
			continue
		}
		if err = c.eval.Add(acc, masked, acc); err != nil {
			return nil, wrap("Merge", err)
		}
	}
	return acc, nil
}

// MergeRotations lists the rotation keys Merge needs for n ciphertexts.
func MergeRotations(n int) []int {
	ks := make([]int, 0, n)
	for i := 1; i < n; i++ {
		ks = append(ks, -i)
	}
	return ks
}

func nonZero(galEls []uint64) []uint64 {
	out := galEls[:0:0]
	for _, g := range galEls {
		// the identity element needs no key
		if g != 1 {
			out = append(out, g)
		}
	}
	return out
}
