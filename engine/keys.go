package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// KeyRequest names the auxiliary operations an evaluation will perform so
// the matching Galois keys are generated up front.
type KeyRequest struct {
	// Rotations lists the slot rotations (positive left, negative right).
	Rotations []int
	// SumSizes lists the vector sizes passed to Sum.
	SumSizes []int
}

// keyChain owns the secret material and the evaluation key set. Galois
// keys are generated at most once per element.
type keyChain struct {
	params rlwe.ParameterProvider
	kgen   *rlwe.KeyGenerator
	sk     *rlwe.SecretKey
	pk     *rlwe.PublicKey
	rlk    *rlwe.RelinearizationKey
	gks    map[uint64]*rlwe.GaloisKey
	log    *slog.Logger
}

func newKeyChain(params rlwe.ParameterProvider, kgen *rlwe.KeyGenerator, log *slog.Logger) *keyChain {
	start := time.Now()
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)
	log.Debug("generated key pair and relinearization key", "elapsed", time.Since(start))
	return &keyChain{
		params: params,
		kgen:   kgen,
		sk:     sk,
		pk:     pk,
		rlk:    rlk,
		gks:    map[uint64]*rlwe.GaloisKey{},
		log:    log,
	}
}

// add generates the keys for galEls that are not present yet and reports
// whether the set changed.
func (kc *keyChain) add(galEls []uint64) bool {
	var missing []uint64
	for _, g := range galEls {
		if _, ok := kc.gks[g]; !ok {
			missing = append(missing, g)
			// guard against duplicates within galEls
			kc.gks[g] = nil
		}
	}
	if len(missing) == 0 {
		return false
	}
	start := time.Now()
	for i, gk := range kc.kgen.GenGaloisKeysNew(missing, kc.sk) {
		kc.gks[missing[i]] = gk
	}
	kc.log.Debug("generated galois keys", "count", len(missing), "elapsed", time.Since(start))
	return true
}

func (kc *keyChain) has(galEl uint64) bool {
	gk, ok := kc.gks[galEl]
	return ok && gk != nil
}

// evaluationKeys returns the current key set, ordered by Galois element.
func (kc *keyChain) evaluationKeys() *rlwe.MemEvaluationKeySet {
	els := make([]uint64, 0, len(kc.gks))
	for g := range kc.gks {
		els = append(els, g)
	}
	sort.Slice(els, func(i, j int) bool { return els[i] < els[j] })
	gks := make([]*rlwe.GaloisKey, len(els))
	for i, g := range els {
		gks[i] = kc.gks[g]
	}
	return rlwe.NewMemEvaluationKeySet(kc.rlk, gks...)
}

// galoisElementsFor resolves a request into the Galois elements it needs.
func galoisElementsFor(params rlwe.ParameterProvider, req KeyRequest) []uint64 {
	p := params.GetRLWEParameters()
	els := p.GaloisElements(req.Rotations)
	for _, n := range req.SumSizes {
		els = append(els, rlwe.GaloisElementsForInnerSum(params, 1, n)...)
	}
	return els
}
