package pwcheck

import (
	"testing"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	slots, err := Encode("Ab1", 4)
	require.NoError(t, err)
	require.Equal(t, []int64{'A', 'b', '1', 259}, slots)

	slots, err = Encode("abcdefgh", 8)
	require.NoError(t, err)
	require.Len(t, slots, 8)

	cases := map[string]struct {
		password string
		err      error
	}{
		"empty":     {"", ErrEmpty},
		"too long":  {"abcdefghi", ErrTooLong},
		"nul":       {"ab\x00", ErrUnsupportedChar},
		"non latin": {"pässwörd€", ErrUnsupportedChar},
		"bad utf8":  {"ab\xff", ErrUnsupportedChar},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(c.password, 8)
			require.ErrorIs(t, err, c.err)
		})
	}

	// Latin-1 letters fit in a slot
	slots, err = Encode("é", 2)
	require.NoError(t, err)
	require.Equal(t, []int64{0xe9, 257}, slots)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	// 26 letters need 5 levels, an 8 wide window 3 more
	require.Equal(t, 8, p.Depth())
	require.Equal(t, []int{-1, 1, 2, 4}, p.Rotations())

	p.Required = append(p.Required, Digit)
	require.Equal(t, 8, p.Depth())
	p.Window = 16
	require.Equal(t, 9, p.Depth())

	cfg := p.BGVConfig(0, false)
	require.Equal(t, 9, cfg.MultDepth)
	require.Equal(t, 16, cfg.MinSlots)

	bad := []Policy{
		{Window: 6, Required: []CharClass{Upper}},
		{Window: 128, Required: []CharClass{Upper}},
		{Window: 8},
		{Window: 8, Required: []CharClass{{Name: "x", Lo: 'z', Hi: 'a'}}},
		{Window: 8, Required: []CharClass{{Name: "wide", Lo: 0, Hi: 10}}},
		{Window: 8, Required: []CharClass{Upper, Upper}},
	}
	for i, b := range bad {
		require.ErrorIs(t, b.Validate(), ErrInvalidPolicy, "policy %d", i)
	}
}

func TestPlainCheck(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		password         string
		valid, repeat    bool
		upper, lowercase bool
	}{
		{"password", false, true, false, true},
		{"abcdefgh", false, false, false, true},
		{"ABCDEFGH", false, false, true, false},
		{"Abcdefgh", true, false, true, true},
		{"AbcddefG", false, true, true, true},
		{"Ab", true, false, true, true},
		{"aA", true, false, true, true},
		{"12345678", false, false, false, false},
	}
	for _, c := range cases {
		rep, err := PlainCheck(c.password, p)
		require.NoError(t, err, c.password)
		require.Equal(t, c.valid, rep.Valid, c.password)
		require.Equal(t, c.repeat, rep.HasRepeat, c.password)
		require.Equal(t, c.upper, rep.Classes["upper"], c.password)
		require.Equal(t, c.lowercase, rep.Classes["lower"], c.password)
	}

	rep, err := PlainCheck("password", p)
	require.NoError(t, err)
	require.Equal(t, []string{"upper"}, rep.Missing(p))
	require.Equal(t, 8, rep.Length)

	_, err = PlainCheck("toolongpassword", p)
	require.ErrorIs(t, err, ErrTooLong)
}

func TestValidatorMatchesPlainCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("encrypted circuit of depth 8")
	}
	p := DefaultPolicy()
	v, err := NewValidator(p, engine.BGVConfig{LogN: 12, Insecure: true}, nil)
	require.NoError(t, err)

	for _, pw := range []string{"password", "abcdefgh", "ABCDEFGH", "Abcdefgh", "AbcddefG", "Zz", "Q"} {
		want, err := PlainCheck(pw, p)
		require.NoError(t, err)
		got, err := v.Check(pw)
		require.NoError(t, err, pw)
		require.Equal(t, want, got, pw)
	}

	_, err = v.Check("")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestValidatorDigitsAndRepeatsOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("encrypted circuit")
	}
	p := Policy{Window: 4, Required: []CharClass{Digit}, ForbidRepeats: true}
	v, err := NewValidator(p, engine.BGVConfig{LogN: 12, Insecure: true}, nil)
	require.NoError(t, err)

	rep, err := v.Check("ab1c")
	require.NoError(t, err)
	require.True(t, rep.Valid)

	rep, err = v.Check("aab")
	require.NoError(t, err)
	require.False(t, rep.Valid)
	require.True(t, rep.HasRepeat)
	require.False(t, rep.Classes["digit"])

	// the evaluator side can be driven step by step
	ct, n, err := v.Encrypt("9")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	res, err := v.Evaluate(ct)
	require.NoError(t, err)
	require.NotNil(t, res.Repeat)
	require.Len(t, res.Classes, 1)
	rep, err = v.Decide(res, n)
	require.NoError(t, err)
	require.True(t, rep.Valid)
}
