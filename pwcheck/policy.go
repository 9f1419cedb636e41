// Package pwcheck evaluates a password policy on an encrypted password.
//
// The password is packed one character per BGV slot. The evaluator only
// runs a fixed circuit of subtractions, rotations and multiplications, so
// nothing it does depends on the password. Each test reduces to a product
// over the password window that is zero exactly when the tested property
// holds; the plaintext modulus is prime, so a product vanishes only when
// one of its factors does.
package pwcheck

import (
	"errors"
	"fmt"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/m"
)

var (
	// ErrEmpty indicates an empty password
	ErrEmpty = errors.New("pwcheck: empty password")

	// ErrTooLong indicates a password longer than the policy window
	ErrTooLong = errors.New("pwcheck: password longer than window")

	// ErrUnsupportedChar indicates a character outside 1..255
	ErrUnsupportedChar = errors.New("pwcheck: unsupported character")

	// ErrInvalidPolicy indicates a policy that cannot be evaluated
	ErrInvalidPolicy = errors.New("pwcheck: invalid policy")
)

const (
	// DefaultWindow is the maximum password length of the default policy.
	DefaultWindow = 8
	maxWindow     = 64
	maxChar       = 255
	// padBase is the first padding value; padding never collides with a
	// character and each padded slot differs from its neighbours.
	padBase = maxChar + 1
)

// CharClass is an inclusive range of character codes.
type CharClass struct {
	Name   string
	Lo, Hi rune
}

var (
	Upper = CharClass{Name: "upper", Lo: 'A', Hi: 'Z'}
	Lower = CharClass{Name: "lower", Lo: 'a', Hi: 'z'}
	Digit = CharClass{Name: "digit", Lo: '0', Hi: '9'}
)

// Size returns the number of characters in c.
func (c CharClass) Size() int {
	return int(c.Hi-c.Lo) + 1
}

// Contains reports whether r belongs to c.
func (c CharClass) Contains(r rune) bool {
	return r >= c.Lo && r <= c.Hi
}

// Policy lists the tests a password must pass.
type Policy struct {
	// Window is the maximum length; shorter passwords are padded.
	Window int
	// Required classes must each appear at least once.
	Required []CharClass
	// ForbidRepeats rejects two equal adjacent characters.
	ForbidRepeats bool
}

// DefaultPolicy requires an uppercase and a lowercase letter, no repeated
// adjacent characters and at most eight characters.
func DefaultPolicy() Policy {
	return Policy{
		Window:        DefaultWindow,
		Required:      []CharClass{Upper, Lower},
		ForbidRepeats: true,
	}
}

// Validate checks that p can be turned into a circuit.
func (p Policy) Validate() error {
	if !m.IsPow2(p.Window) || p.Window < 2 || p.Window > maxWindow {
		return fmt.Errorf("%w: window %d must be a power of two in [2, %d]", ErrInvalidPolicy, p.Window, maxWindow)
	}
	if len(p.Required) == 0 && !p.ForbidRepeats {
		return fmt.Errorf("%w: nothing to check", ErrInvalidPolicy)
	}
	seen := map[string]bool{}
	for _, c := range p.Required {
		if c.Lo < 1 || c.Hi > maxChar || c.Lo > c.Hi {
			return fmt.Errorf("%w: class %q range %d..%d", ErrInvalidPolicy, c.Name, c.Lo, c.Hi)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate class %q", ErrInvalidPolicy, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Depth returns the multiplicative depth of the circuit for p.
func (p Policy) Depth() int {
	var classDepth int
	for _, c := range p.Required {
		if d := m.Log2(c.Size()); d > classDepth {
			classDepth = d
		}
	}
	return classDepth + m.Log2(p.Window)
}

// Rotations returns the column rotations the circuit performs.
func (p Policy) Rotations() []int {
	var ks []int
	if p.ForbidRepeats {
		ks = append(ks, -1)
	}
	for k := 1; k < p.Window; k <<= 1 {
		ks = append(ks, k)
	}
	return ks
}

// BGVConfig returns the parameters needed to evaluate p with the given
// ring degree (0 selects one automatically).
func (p Policy) BGVConfig(logN int, insecure bool) engine.BGVConfig {
	return engine.BGVConfig{
		MultDepth: p.Depth(),
		MinSlots:  p.Window,
		LogN:      logN,
		LogP:      []int{61, 61},
		Insecure:  insecure,
	}
}

// Encode maps password to one slot per character and pads it to the window.
func Encode(password string, window int) ([]int64, error) {
	if password == "" {
		return nil, ErrEmpty
	}
	out := make([]int64, 0, window)
	for _, r := range password {
		if r < 1 || r > maxChar {
			return nil, fmt.Errorf("%w: %U", ErrUnsupportedChar, r)
		}
		if len(out) == window {
			return nil, fmt.Errorf("%w: more than %d characters", ErrTooLong, window)
		}
		out = append(out, int64(r))
	}
	for i := len(out); i < window; i++ {
		out = append(out, int64(padBase+i))
	}
	return out, nil
}
