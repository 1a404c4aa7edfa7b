// internal/register/value.go
package register

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindState
	KindFlags
	KindUnknownCode
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindState:
		return "state"
	case KindFlags:
		return "flags"
	case KindUnknownCode:
		return "unknown_code"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a decoded register reading. Raw is always kept.
type Value struct {
	Raw  uint16
	Kind Kind

	Number int      // KindNumber
	State  string   // KindState
	Flags  []string // KindFlags, set bits in table order

	// Unknown holds the bits of a Bitfield register that have no known meaning.
	Unknown uint16
}

// Decode turns a raw register value into a typed Value.
// It is total: values without a symbolic mapping become KindUnknownCode.
func Decode(s Spec, raw uint16) Value {
	switch s.Encoding {
	case Int16:
		return Value{Raw: raw, Kind: KindNumber, Number: int(int16(raw))}

	case Enum:
		if name, ok := s.States[raw]; ok {
			return Value{Raw: raw, Kind: KindState, State: name}
		}
		return Value{Raw: raw, Kind: KindUnknownCode}

	case Bitfield:
		v := Value{Raw: raw, Kind: KindFlags, Flags: []string{}}
		var known uint16
		for _, f := range s.Flags {
			known |= f.Mask
			if raw&f.Mask != 0 {
				v.Flags = append(v.Flags, f.Name)
			}
		}
		v.Unknown = raw &^ known
		return v

	default:
		return Value{Raw: raw, Kind: KindNumber, Number: int(raw)}
	}
}

// Has reports whether the named flag is set.
func (v Value) Has(flag string) bool {
	for _, f := range v.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%d", v.Number)
	case KindState:
		return v.State
	case KindFlags:
		s := strings.Join(v.Flags, "|")
		if v.Unknown != 0 {
			if s != "" {
				s += "|"
			}
			s += fmt.Sprintf("unknown(0x%04X)", v.Unknown)
		}
		if s == "" {
			return "none"
		}
		return s
	default:
		return fmt.Sprintf("unknown(0x%04X)", v.Raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    string   `json:"kind"`
		Raw     uint16   `json:"raw"`
		Number  *int     `json:"number,omitempty"`
		State   string   `json:"state,omitempty"`
		Flags   []string `json:"flags,omitempty"`
		Unknown uint16   `json:"unknown_bits,omitempty"`
	}
	w := wire{Kind: v.Kind.String(), Raw: v.Raw, State: v.State, Flags: v.Flags, Unknown: v.Unknown}
	if v.Kind == KindNumber {
		n := v.Number
		w.Number = &n
	}
	return json.Marshal(w)
}
