// internal/writer/nats.go
package writer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tamzrod/erv-controller/internal/poller"
)

// publisher is satisfied by *nats.Conn.
type publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSWriter publishes every poll result as JSON on <prefix>.<device>.snapshot.
type NATSWriter struct {
	pub     publisher
	subject string
}

type snapshotMessage struct {
	ID       string          `json:"id"`
	Device   string          `json:"device"`
	At       time.Time       `json:"at"`
	Failed   int             `json:"failed"`
	Error    string          `json:"error,omitempty"`
	Snapshot poller.Snapshot `json:"snapshot"`
}

func NewNATSWriter(pub publisher, prefix, device string) *NATSWriter {
	return &NATSWriter{pub: pub, subject: Subject(prefix, device)}
}

// Subject returns the snapshot subject of a device.
// Characters with meaning in subjects are replaced.
func Subject(prefix, device string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, device)
	return fmt.Sprintf("%s.%s.snapshot", prefix, clean)
}

func (w *NATSWriter) Write(res poller.PollResult) error {
	m := snapshotMessage{
		ID:       uuid.NewString(),
		Device:   res.Device,
		At:       res.At,
		Failed:   res.Failed,
		Snapshot: res.Snapshot,
	}
	if res.Err != nil {
		m.Error = res.Err.Error()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("writer: encode snapshot: %w", err)
	}

	msg := nats.NewMsg(w.subject)
	msg.Data = data
	// lets JetStream drop duplicates on redelivery
	msg.Header.Set(nats.MsgIdHdr, m.ID)

	if err := w.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("writer: publish %s: %w", w.subject, err)
	}
	return nil
}
