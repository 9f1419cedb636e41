package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/PaluMacil/hedemos/logging"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/heint"
)

// BGV is an exact arithmetic context over packed integers modulo the
// plaintext modulus. Slots are laid out as two rows of N/2 values and
// rotations act on each row independently.
type BGV struct {
	Params heint.Parameters

	keys      *keyChain
	encoder   *heint.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	eval      *heint.Evaluator
	log       *slog.Logger
}

// NewBGV builds parameters from cfg and generates the keys named by req.
// Rotations in req are column rotations.
func NewBGV(cfg BGVConfig, req KeyRequest, log *slog.Logger) (*BGV, error) {
	log = logging.OrDiscard(log)

	params, err := cfg.Parameters()
	if err != nil {
		return nil, wrap("NewBGV", err)
	}
	log.Info("bgv parameters",
		"logN", params.LogN(),
		"rowSize", params.N()/2,
		"levels", params.MaxLevel(),
		"logQP", params.LogQP(),
		"t", params.PlaintextModulus())

	start := time.Now()
	kgen := heint.NewKeyGenerator(params)
	kc := newKeyChain(params, kgen, log)
	kc.add(nonZero(galoisElementsFor(params, req)))
	log.Debug("bgv keys ready", "elapsed", time.Since(start))

	return &BGV{
		Params:    params,
		keys:      kc,
		encoder:   heint.NewEncoder(params),
		encryptor: heint.NewEncryptor(params, kc.pk),
		decryptor: heint.NewDecryptor(params, kc.sk),
		eval:      heint.NewEvaluator(params, kc.evaluationKeys()),
		log:       log,
	}, nil
}

// RowSize returns the number of slots a column rotation cycles through.
func (b *BGV) RowSize() int {
	return b.Params.N() >> 1
}

// PlaintextModulus returns t.
func (b *BGV) PlaintextModulus() uint64 {
	return b.Params.PlaintextModulus()
}

// AddRotationKeys generates column rotation keys if missing.
func (b *BGV) AddRotationKeys(ks ...int) {
	if b.keys.add(nonZero(b.Params.GaloisElements(ks))) {
		b.eval = b.eval.WithKey(b.keys.evaluationKeys())
	}
}

// Encrypt packs v into the first len(v) slots and encrypts it.
func (b *BGV) Encrypt(v []int64) (*rlwe.Ciphertext, error) {
	if len(v) > b.Params.MaxSlots() {
		return nil, &Error{Op: "Encrypt", Err: fmt.Errorf("%w: %d > %d", ErrVectorTooLong, len(v), b.Params.MaxSlots())}
	}
	pt := heint.NewPlaintext(b.Params, b.Params.MaxLevel())
	if err := b.encoder.Encode(v, pt); err != nil {
		return nil, wrap("Encrypt", err)
	}
	ct, err := b.encryptor.EncryptNew(pt)
	return ct, wrap("Encrypt", err)
}

// Decrypt returns the first n slots of ct as centred integers in
// (-t/2, t/2].
func (b *BGV) Decrypt(ct *rlwe.Ciphertext, n int) ([]int64, error) {
	pt := b.decryptor.DecryptNew(ct)
	values := make([]int64, b.Params.MaxSlots())
	if err := b.encoder.Decode(pt, values); err != nil {
		return nil, wrap("Decrypt", err)
	}
	if n > len(values) {
		n = len(values)
	}
	return values[:n], nil
}

// Add returns a + b mod t.
func (b *BGV) Add(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := b.eval.AddNew(x, y)
	return out, wrap("Add", err)
}

// Sub returns a - b mod t.
func (b *BGV) Sub(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := b.eval.SubNew(x, y)
	return out, wrap("Sub", err)
}

// AddConst adds c to every slot of ct.
func (b *BGV) AddConst(ct *rlwe.Ciphertext, c int64) (*rlwe.Ciphertext, error) {
	out, err := b.eval.AddNew(ct, c)
	return out, wrap("AddConst", err)
}

// Mult returns the slot-wise product of x and y, relinearized and rescaled.
func (b *BGV) Mult(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if x.Level() == 0 || y.Level() == 0 {
		return nil, &Error{Op: "Mult", Err: ErrDepthExhausted}
	}
	out, err := b.eval.MulRelinNew(x, y)
	if err != nil {
		return nil, wrap("Mult", err)
	}
	if err = b.eval.Rescale(out, out); err != nil {
		return nil, wrap("Mult", err)
	}
	return out, nil
}

// MultMany multiplies cts together with a balanced tree, consuming
// ceil(log2(len(cts))) levels.
func (b *BGV) MultMany(cts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if len(cts) == 0 {
		return nil, errorf("MultMany", "%w: no ciphertexts", ErrInvalidConfig)
	}
	layer := cts
	for len(layer) > 1 {
		next := make([]*rlwe.Ciphertext, 0, (len(layer)+1)/2)
		for i := 0; i+1 < len(layer); i += 2 {
			prod, err := b.Mult(layer[i], layer[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, prod)
		}
		if len(layer)%2 == 1 {
			next = append(next, layer[len(layer)-1])
		}
		layer = next
	}
	return layer[0].CopyNew(), nil
}

// Rotate shifts each row of ct left by k (right for k < 0).
func (b *BGV) Rotate(ct *rlwe.Ciphertext, k int) (*rlwe.Ciphertext, error) {
	if k%b.RowSize() == 0 {
		return ct.CopyNew(), nil
	}
	if !b.keys.has(b.Params.GaloisElement(k)) {
		return nil, errorf("Rotate", "%w: rotation by %d", ErrMissingKey, k)
	}
	out, err := b.eval.RotateColumnsNew(ct, k)
	return out, wrap("Rotate", err)
}

// Level returns the number of rescales left on ct.
func Level(ct *rlwe.Ciphertext) int {
	return ct.Level()
}
