package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCKKSConfigValidate(t *testing.T) {
	valid := CKKSConfig{MultDepth: 5, ScaleFactorBits: 50, BatchSize: 8}
	require.NoError(t, valid.Validate())

	cases := map[string]CKKSConfig{
		"zero depth":      {MultDepth: 0, ScaleFactorBits: 50, BatchSize: 8},
		"tiny scale":      {MultDepth: 1, ScaleFactorBits: 10, BatchSize: 8},
		"batch not pow2":  {MultDepth: 1, ScaleFactorBits: 50, BatchSize: 6},
		"first too small": {MultDepth: 1, ScaleFactorBits: 50, FirstModBits: 40, BatchSize: 8},
		"log n too large": {MultDepth: 1, ScaleFactorBits: 50, BatchSize: 8, LogN: 18},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestCKKSConfigLiteral(t *testing.T) {
	cfg := CKKSConfig{MultDepth: 5, ScaleFactorBits: 50, BatchSize: 8}
	require.Equal(t, []int{60, 50, 50, 50, 50, 50}, cfg.LogQ())
	require.Equal(t, 60+5*50+61, cfg.LogQP())

	lit, err := cfg.Literal()
	require.NoError(t, err)
	// 371 bits fits 2^14 (438) but not 2^13 (218)
	require.Equal(t, 14, lit.LogN)
	require.Equal(t, 50, lit.LogDefaultScale)
	require.Equal(t, []int{61}, lit.LogP)

	// explicit ring degree below the security bound
	cfg.LogN = 12
	_, err = cfg.Literal()
	require.ErrorIs(t, err, ErrInsecureParameters)

	cfg.Insecure = true
	lit, err = cfg.Literal()
	require.NoError(t, err)
	require.Equal(t, 12, lit.LogN)

	// slots must hold the batch
	cfg = CKKSConfig{MultDepth: 1, ScaleFactorBits: 40, BatchSize: 1 << 12, LogN: 12, Insecure: true}
	_, err = cfg.Literal()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBGVConfigLiteral(t *testing.T) {
	cfg := BGVConfig{MultDepth: 8, MinSlots: 8}
	require.Equal(t, []int{55, 45, 45, 45, 45, 45, 45, 45, 45}, cfg.LogQ())

	lit, err := cfg.Literal()
	require.NoError(t, err)
	require.Equal(t, 15, lit.LogN)
	require.Equal(t, DefaultPlaintextModulus, lit.PlaintextModulus)

	// 17 = 1 mod 16 only, no batching at 2^10
	cfg = BGVConfig{MultDepth: 1, PlaintextModulus: 17, LogN: 10, Insecure: true}
	_, err = cfg.Literal()
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = BGVConfig{MultDepth: 0}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestResolveLogN(t *testing.T) {
	logN, err := resolveLogN(0, 4, 100, false)
	require.NoError(t, err)
	require.Equal(t, 12, logN)

	logN, err = resolveLogN(0, 15, 100, false)
	require.NoError(t, err)
	require.Equal(t, 15, logN)

	_, err = resolveLogN(0, 4, 5000, false)
	require.ErrorIs(t, err, ErrInsecureParameters)

	_, err = resolveLogN(11, 12, 10, true)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadParamsFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"ckks": {"mult_depth": 2, "scale_factor_bits": 40, "batch_size": 16, "log_n": 11, "insecure": true},
		"bgv": {"mult_depth": 3, "min_slots": 8}
	}`), 0o600))

	pf, err := LoadParamsFile(path)
	require.NoError(t, err)
	require.NotNil(t, pf.CKKS)
	require.Equal(t, CKKSConfig{MultDepth: 2, ScaleFactorBits: 40, BatchSize: 16, LogN: 11, Insecure: true}, *pf.CKKS)
	require.NotNil(t, pf.BGV)
	require.Equal(t, 3, pf.BGV.MultDepth)

	// a partial section is accepted; it is validated once merged
	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"ckks": {"first_mod_bits": 55}}`), 0o600))
	pf, err = LoadParamsFile(partial)
	require.NoError(t, err)
	require.Equal(t, CKKSConfig{FirstModBits: 55}, *pf.CKKS)
	require.Nil(t, pf.BGV)

	for name, doc := range map[string]string{
		"unknown field": `{"ckks": {"depth": 2}}`,
		"negative":      `{"bgv": {"mult_depth": -1}}`,
		"not json":      `{"ckks":`,
	} {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(doc), 0o600))
		_, err = LoadParamsFile(bad)
		require.ErrorIs(t, err, ErrInvalidConfig, name)
	}

	_, err = LoadParamsFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestMergeConfig(t *testing.T) {
	base := CKKSConfig{MultDepth: 5, ScaleFactorBits: 50, BatchSize: 8, LogN: 12, Insecure: true}
	got := base.Merge(CKKSConfig{MultDepth: 3, FirstModBits: 55, LogP: []int{60, 60}})
	require.Equal(t, CKKSConfig{
		MultDepth:       3,
		ScaleFactorBits: 50,
		FirstModBits:    55,
		BatchSize:       8,
		LogN:            12,
		LogP:            []int{60, 60},
		Insecure:        true,
	}, got)
	require.Equal(t, base, base.Merge(CKKSConfig{}))

	bgv := BGVConfig{MultDepth: 8, MinSlots: 8}.Merge(BGVConfig{LevelBits: 50, LogN: 12, Insecure: true})
	require.Equal(t, BGVConfig{MultDepth: 8, MinSlots: 8, LevelBits: 50, LogN: 12, Insecure: true}, bgv)
}
