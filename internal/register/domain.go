// internal/register/domain.go
package register

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownRegister     = errors.New("register: unknown register")
	ErrNotWritable         = errors.New("register: not writable")
	ErrInvalidValue        = errors.New("register: invalid value")
	ErrUnsupportedRegister = errors.New("register: not supported by model")
)

// CheckWrite validates that raw is inside the legal write domain of s.
func (s Spec) CheckWrite(raw uint16) error {
	if !s.Writable() {
		return fmt.Errorf("%w: %s", ErrNotWritable, s.Name)
	}
	if s.Max > 0 && raw > s.Max {
		return fmt.Errorf("%w: %s=%d (max %d)", ErrInvalidValue, s.Name, raw, s.Max)
	}
	if s.Encoding == Enum {
		if _, ok := s.States[raw]; !ok {
			return fmt.Errorf("%w: %s=%d (allowed: %s)", ErrInvalidValue, s.Name, raw, strings.Join(s.Symbols(), ", "))
		}
	}
	return nil
}

// Parse maps a symbolic value ("low", "on", "auto") to its raw encoding.
func (s Spec) Parse(symbol string) (uint16, error) {
	if s.Encoding != Enum {
		return 0, fmt.Errorf("%w: %s has no symbolic values", ErrInvalidValue, s.Name)
	}
	want := strings.ToLower(strings.TrimSpace(symbol))
	for raw, name := range s.States {
		if name == want {
			return raw, nil
		}
	}
	return 0, fmt.Errorf("%w: %s=%q (allowed: %s)", ErrInvalidValue, s.Name, symbol, strings.Join(s.Symbols(), ", "))
}

// Symbols returns the symbolic states of an Enum register ordered by raw value.
func (s Spec) Symbols() []string {
	raws := make([]int, 0, len(s.States))
	for raw := range s.States {
		raws = append(raws, int(raw))
	}
	sort.Ints(raws)
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		out = append(out, s.States[uint16(raw)])
	}
	return out
}
