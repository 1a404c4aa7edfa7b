// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/erv-controller/internal/poller"
)

// MirrorPlan places raw register values into a holding-register block.
// Register address A lands at Offset+A.
type MirrorPlan struct {
	Endpoint string
	UnitID   uint8
	Offset   uint16
	Timeout  time.Duration
}

// StatusPlan places the device health block into the status memory.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
	Timeout    time.Duration
}

// Plan is the fully-built write plan for one device.
type Plan struct {
	Device string
	Mirror *MirrorPlan
	Status *StatusPlan
}

// Writer delivers poll snapshots to a sink.
type Writer interface {
	Write(res poller.PollResult) error
}
