package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/stretchr/testify/require"
)

func TestScanLines(t *testing.T) {
	lines, err := scanLines(strings.NewReader("Abcdefg\r\n\nxYz\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"Abcdefg", "xYz"}, lines)
}

func TestReadPasswordsFromArgs(t *testing.T) {
	pws, echo, err := readPasswords([]string{"Secret1"}, false, os.Stdin)
	require.NoError(t, err)
	require.False(t, echo)
	require.Equal(t, []string{"Secret1"}, pws)

	pws, echo, err = readPasswords(nil, true, os.Stdin)
	require.NoError(t, err)
	require.True(t, echo)
	require.Equal(t, demoPasswords, pws)
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, runConv([]string{"-h"}, &out), flag.ErrHelp)
	require.ErrorIs(t, runSVM([]string{"-h"}, &out), flag.ErrHelp)
}

func TestRunSVMArguments(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, runSVM([]string{"model.csv"}, &out))
	require.Error(t, runSVM([]string{"-iterations", "1", "-quiet", "missing.csv", "missing.csv"}, &out))
}

func TestRunSVM(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.csv")
	tests := filepath.Join(dir, "tests.csv")
	require.NoError(t, os.WriteFile(model, []byte("10,5,-5,1\n"), 0o600))
	require.NoError(t, os.WriteFile(tests, []byte("1,2\n3,-1\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, runSVM([]string{"-short", "-quiet", "-iterations", "1", "-v", model, tests}, &out))
	require.Contains(t, out.String(), "features=2 rows=2")
	require.Contains(t, out.String(), "label-mismatches=0")
}

func TestRunConv(t *testing.T) {
	var out bytes.Buffer
	err := runConv([]string{"-short", "-quiet", "-iterations", "1", "-x", "1,2,3,4", "-method", "rotate"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "plaintext: [1.0000 1.0000 1.0000 -4.0000]")

	require.Error(t, runConv([]string{"-method", "fft"}, &out))
	require.Error(t, runConv([]string{"-x", "1,a"}, &out))
}

func TestPartialParamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ckks": {"mult_depth": 3, "scale_factor_bits": 40, "first_mod_bits": 55}}`), 0o600))

	c := common{short: true, params: path}
	pf, err := c.paramsFile()
	require.NoError(t, err)
	require.Equal(t, engine.CKKSConfig{
		MultDepth:       3,
		ScaleFactorBits: 40,
		FirstModBits:    55,
		LogN:            shortLogN,
		Insecure:        true,
	}, c.ckksConfig(pf))

	var out bytes.Buffer
	err = runConv([]string{"-short", "-quiet", "-iterations", "1", "-params", path, "-x", "1,2,3,4", "-method", "merge"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "plaintext: [1.0000 1.0000 1.0000 -4.0000]")
}

func TestRunPasswordDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("deep BGV circuit")
	}
	var out bytes.Buffer
	require.NoError(t, runPassword([]string{"-short", "-quiet", "-iterations", "1", "-verify", "-demo"}, os.Stdin, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.True(t, strings.HasPrefix(lines[0], "password"))
	require.Contains(t, lines[0], "missing=upper")
	require.Contains(t, lines[3], "valid")
	require.NotContains(t, lines[3], "invalid")
}
