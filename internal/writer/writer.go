// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/erv-controller/internal/poller"
)

// endpointClient is the exact contract the writers use.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

type mirrorWriter struct {
	plan    Plan
	clients map[string]endpointClient
}

// New returns the register mirror writer of a plan, or nil when the plan has none.
func New(plan Plan, clients map[string]endpointClient) Writer {
	if plan.Mirror == nil {
		return nil
	}
	return &mirrorWriter{
		plan:    plan,
		clients: clients,
	}
}

// Write copies every slot holding a fresh value. Contiguous addresses
// go out as one request; stale, failed and unavailable slots are skipped.
func (w *mirrorWriter) Write(res poller.PollResult) error {
	mp := w.plan.Mirror
	cli := w.clients[mp.Endpoint]
	if cli == nil {
		return fmt.Errorf("writer: missing client for endpoint %s", mp.Endpoint)
	}

	var errs []string
	for _, r := range runs(res.Snapshot) {
		dst := mp.Offset + r.start
		if err := cli.WriteRegisters(mp.UnitID, dst, r.regs); err != nil {
			errs = append(errs, fmt.Sprintf(
				"writer: ep=%s unit=%d addr=%d qty=%d err=%v",
				mp.Endpoint, mp.UnitID, dst, len(r.regs), err,
			))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

type run struct {
	start uint16
	regs  []uint16
}

// runs groups value slots with consecutive addresses. Slots are address ordered.
func runs(s poller.Snapshot) []run {
	var out []run
	for _, sl := range s.Slots {
		if sl.Kind != poller.SlotValue {
			continue
		}
		addr := sl.Spec.Address
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.start+uint16(len(last.regs)) == addr {
				last.regs = append(last.regs, sl.Value.Raw)
				continue
			}
		}
		out = append(out, run{start: addr, regs: []uint16{sl.Value.Raw}})
	}
	return out
}
