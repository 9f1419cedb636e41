package pwcheck

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/PaluMacil/hedemos/engine"
	"github.com/PaluMacil/hedemos/logging"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

// Report is the outcome of checking one password.
type Report struct {
	Length    int
	HasRepeat bool
	// Classes tells, per required class name, whether the class is present.
	Classes map[string]bool
	Valid   bool
}

// Missing lists the required classes that are absent, in policy order.
func (r Report) Missing(p Policy) []string {
	var out []string
	for _, c := range p.Required {
		if !r.Classes[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}

func (r Report) String() string {
	return fmt.Sprintf("length=%d repeat=%t classes=%v valid=%t", r.Length, r.HasRepeat, r.Classes, r.Valid)
}

func (r *Report) decide(p Policy) {
	r.Valid = !(p.ForbidRepeats && r.HasRepeat)
	for _, c := range p.Required {
		r.Valid = r.Valid && r.Classes[c.Name]
	}
}

// Result holds the encrypted indicators produced by Evaluate. Slot 0 of
// each ciphertext is zero when the property holds.
type Result struct {
	// Repeat is nil when the policy allows repeats.
	Repeat *rlwe.Ciphertext
	// Classes follows the order of Policy.Required.
	Classes []*rlwe.Ciphertext
}

// Validator runs a policy on encrypted passwords. It holds the secret key,
// so it plays both the client (Encrypt, Decide) and the evaluator role.
type Validator struct {
	policy Policy
	bgv    *engine.BGV
	log    *slog.Logger
}

// NewValidator generates parameters and keys for policy. cfg may raise
// the ring degree or depth; the minimums required by policy are enforced.
func NewValidator(policy Policy, cfg engine.BGVConfig, log *slog.Logger) (*Validator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	log = logging.OrDiscard(log)

	if cfg.MultDepth < policy.Depth() {
		cfg.MultDepth = policy.Depth()
	}
	if cfg.MinSlots < policy.Window {
		cfg.MinSlots = policy.Window
	}
	b, err := engine.NewBGV(cfg, engine.KeyRequest{Rotations: policy.Rotations()}, log)
	if err != nil {
		return nil, fmt.Errorf("password validator: %w", err)
	}
	return &Validator{policy: policy, bgv: b, log: log}, nil
}

// Policy returns the policy the validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Encrypt encodes and encrypts password.
func (v *Validator) Encrypt(password string) (*rlwe.Ciphertext, int, error) {
	slots, err := Encode(password, v.policy.Window)
	if err != nil {
		return nil, 0, err
	}
	ct, err := v.bgv.Encrypt(slots)
	if err != nil {
		return nil, 0, err
	}
	return ct, len([]rune(password)), nil
}

// Evaluate runs the policy circuit on an encrypted password.
func (v *Validator) Evaluate(ct *rlwe.Ciphertext) (*Result, error) {
	res := &Result{}

	if v.policy.ForbidRepeats {
		// d[i] = x[i] - x[i-1] is zero on a repeated character
		prev, err := v.bgv.Rotate(ct, -1)
		if err != nil {
			return nil, fmt.Errorf("repeat test: %w", err)
		}
		d, err := v.bgv.Sub(ct, prev)
		if err != nil {
			return nil, fmt.Errorf("repeat test: %w", err)
		}
		if res.Repeat, err = v.windowProduct(d); err != nil {
			return nil, fmt.Errorf("repeat test: %w", err)
		}
		v.log.Debug("repeat test evaluated", "levelsLeft", engine.Level(res.Repeat))
	}

	for _, c := range v.policy.Required {
		member, err := v.membership(ct, c)
		if err != nil {
			return nil, fmt.Errorf("%s test: %w", c.Name, err)
		}
		p, err := v.windowProduct(member)
		if err != nil {
			return nil, fmt.Errorf("%s test: %w", c.Name, err)
		}
		v.log.Debug("class test evaluated", "class", c.Name, "levelsLeft", engine.Level(p))
		res.Classes = append(res.Classes, p)
	}
	return res, nil
}

// membership returns prod_{r in c} (x - r), zero in the slots holding a
// character of c.
func (v *Validator) membership(ct *rlwe.Ciphertext, c CharClass) (*rlwe.Ciphertext, error) {
	factors := make([]*rlwe.Ciphertext, 0, c.Size())
	for r := c.Lo; r <= c.Hi; r++ {
		f, err := v.bgv.AddConst(ct, -int64(r))
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return v.bgv.MultMany(factors)
}

// windowProduct leaves in slot 0 the product of slots 0..Window-1.
func (v *Validator) windowProduct(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	y := ct
	for k := 1; k < v.policy.Window; k <<= 1 {
		r, err := v.bgv.Rotate(y, k)
		if err != nil {
			return nil, err
		}
		if y, err = v.bgv.Mult(y, r); err != nil {
			return nil, err
		}
	}
	return y, nil
}

// Decide decrypts the indicators of res.
func (v *Validator) Decide(res *Result, length int) (Report, error) {
	rep := Report{Length: length, Classes: map[string]bool{}}
	if res.Repeat != nil {
		z, err := v.isZero(res.Repeat)
		if err != nil {
			return Report{}, err
		}
		rep.HasRepeat = z
	}
	if len(res.Classes) != len(v.policy.Required) {
		return Report{}, fmt.Errorf("%w: result has %d class indicators, policy %d",
			ErrInvalidPolicy, len(res.Classes), len(v.policy.Required))
	}
	for i, c := range v.policy.Required {
		z, err := v.isZero(res.Classes[i])
		if err != nil {
			return Report{}, err
		}
		rep.Classes[c.Name] = z
	}
	rep.decide(v.policy)
	return rep, nil
}

func (v *Validator) isZero(ct *rlwe.Ciphertext) (bool, error) {
	vals, err := v.bgv.Decrypt(ct, 1)
	if err != nil {
		return false, err
	}
	return vals[0] == 0, nil
}

// Check encrypts password, evaluates the policy and decrypts the verdict.
func (v *Validator) Check(password string) (Report, error) {
	start := time.Now()
	ct, n, err := v.Encrypt(password)
	if err != nil {
		return Report{}, err
	}
	res, err := v.Evaluate(ct)
	if err != nil {
		return Report{}, err
	}
	rep, err := v.Decide(res, n)
	if err != nil {
		return Report{}, err
	}
	v.log.Debug("password checked",
		logging.Redacted("password"),
		"valid", rep.Valid,
		"elapsed", time.Since(start))
	return rep, nil
}

// PlainCheck applies p to password without encryption.
func PlainCheck(password string, p Policy) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	slots, err := Encode(password, p.Window)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Length: len([]rune(password)), Classes: map[string]bool{}}
	if p.ForbidRepeats {
		for i := 1; i < len(slots); i++ {
			if slots[i] == slots[i-1] {
				rep.HasRepeat = true
			}
		}
	}
	for _, c := range p.Required {
		present := false
		for _, s := range slots {
			if c.Contains(rune(s)) {
				present = true
				break
			}
		}
		rep.Classes[c.Name] = present
	}
	rep.decide(p)
	return rep, nil
}
