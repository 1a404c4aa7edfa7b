// internal/writer/writer_test.go
package writer

import (
	"errors"
	"testing"

	"github.com/tamzrod/erv-controller/internal/poller"
	"github.com/tamzrod/erv-controller/internal/register"
)

// ---- fake endpoint client ----

type fakeEndpointClient struct {
	writes []writeCall
	fail   error

	lastRegsAddr uint16
	lastRegs     []uint16
}

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail != nil {
		return f.fail
	}
	cp := append([]uint16(nil), regs...)
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: cp})
	f.lastRegsAddr = addr
	f.lastRegs = cp
	return nil
}

// result builds a full-model poll result; raw values equal the address.
func result(kinds map[string]poller.SlotKind) poller.PollResult {
	var snap poller.Snapshot
	for _, spec := range register.All() {
		k, ok := kinds[spec.Name]
		if !ok {
			k = poller.SlotValue
		}
		snap.Slots = append(snap.Slots, poller.Slot{
			Spec:  spec,
			Kind:  k,
			Value: register.Decode(spec, spec.Address),
		})
	}
	return poller.PollResult{Device: "hall", Snapshot: snap}
}

// ---- tests ----

func TestMirror_ContiguousRunsWithOffset(t *testing.T) {
	fake := &fakeEndpointClient{}

	plan := Plan{
		Device: "hall",
		Mirror: &MirrorPlan{Endpoint: "ep1", UnitID: 9, Offset: 100},
	}
	w := New(plan, map[string]endpointClient{"ep1": fake})

	if err := w.Write(result(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0x05..0x07, 0x0A and 0x0D..0x14
	if len(fake.writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(fake.writes))
	}
	if fake.writes[0].addr != 105 || len(fake.writes[0].regs) != 3 {
		t.Fatalf("unexpected first run: %+v", fake.writes[0])
	}
	if fake.writes[1].addr != 110 || len(fake.writes[1].regs) != 1 {
		t.Fatalf("unexpected second run: %+v", fake.writes[1])
	}
	if fake.writes[2].addr != 113 || len(fake.writes[2].regs) != 8 {
		t.Fatalf("unexpected third run: %+v", fake.writes[2])
	}
	if fake.writes[2].regs[0] != 0x0D || fake.writes[2].unitID != 9 {
		t.Fatalf("unexpected payload: %+v", fake.writes[2])
	}
}

func TestMirror_SkipsNonValueSlots(t *testing.T) {
	fake := &fakeEndpointClient{}

	plan := Plan{Mirror: &MirrorPlan{Endpoint: "ep1", UnitID: 1}}
	w := New(plan, map[string]endpointClient{"ep1": fake})

	res := result(map[string]poller.SlotKind{
		register.FanSpeed:            poller.SlotStale,
		register.AbnormalStatus:      poller.SlotError,
		register.InternalCirculation: poller.SlotUnavailable,
	})

	if err := w.Write(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 0x05 | 0x07 | 0x0A | 0x0D..0x0F | 0x11..0x13
	want := []struct {
		addr uint16
		qty  int
	}{{5, 1}, {7, 1}, {10, 1}, {13, 3}, {17, 3}}

	if len(fake.writes) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(fake.writes))
	}
	for i, w := range want {
		if fake.writes[i].addr != w.addr || len(fake.writes[i].regs) != w.qty {
			t.Fatalf("write %d: got %+v want %+v", i, fake.writes[i], w)
		}
	}
}

func TestMirror_DisabledWithoutPlan(t *testing.T) {
	if w := New(Plan{Device: "hall"}, nil); w != nil {
		t.Fatalf("expected nil writer")
	}
}

func TestMirror_MissingClient(t *testing.T) {
	w := New(Plan{Mirror: &MirrorPlan{Endpoint: "ep1"}}, map[string]endpointClient{})
	if err := w.Write(result(nil)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMirror_CollectsErrors(t *testing.T) {
	fake := &fakeEndpointClient{fail: errors.New("refused")}
	w := New(Plan{Mirror: &MirrorPlan{Endpoint: "ep1"}}, map[string]endpointClient{"ep1": fake})

	err := w.Write(result(nil))
	if err == nil {
		t.Fatalf("expected error")
	}
}
