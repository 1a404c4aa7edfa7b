// internal/register/register.go
package register

import (
	"fmt"
	"sort"
)

// Access describes whether a register accepts writes.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "rw"
	}
	return "ro"
}

// Encoding describes how a raw 16-bit register value is interpreted.
type Encoding uint8

const (
	UInt16 Encoding = iota
	Int16
	Enum
	Bitfield
)

// Flag names one bit of a Bitfield register.
type Flag struct {
	Mask uint16
	Name string
}

// Spec is one entry of the register table.
type Spec struct {
	Name     string
	Address  uint16
	Access   Access
	Encoding Encoding
	Unit     string

	// States maps raw values of an Enum register to symbolic names.
	States map[uint16]string

	// Flags lists the known bits of a Bitfield register.
	Flags []Flag

	// Max bounds writes to numeric registers; zero means unbounded.
	Max uint16
}

// Writable reports whether the register accepts writes.
func (s Spec) Writable() bool { return s.Access == ReadWrite }

// SupportedBy reports whether the register is guaranteed present on model m.
func (s Spec) SupportedBy(m Model) bool {
	for _, name := range availability[m] {
		if name == s.Name {
			return true
		}
	}
	return false
}

// Models returns every model on which the register is present.
func (s Spec) Models() []Model {
	var out []Model
	for _, m := range Models() {
		if s.SupportedBy(m) {
			out = append(out, m)
		}
	}
	return out
}

// ---- lookups ----

// Lookup returns the register with the given name.
// Unknown names are programming errors and panic.
func Lookup(name string) Spec {
	s, ok := Find(name)
	if !ok {
		panic(fmt.Sprintf("register: unknown register %q", name))
	}
	return s
}

// Find returns the register with the given name, if any.
func Find(name string) (Spec, bool) {
	for _, s := range table {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// All returns the full table ordered by address.
func All() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ForModel returns the registers present on model m ordered by address.
func ForModel(m Model) []Spec {
	var out []Spec
	for _, s := range All() {
		if s.SupportedBy(m) {
			out = append(out, s)
		}
	}
	return out
}
