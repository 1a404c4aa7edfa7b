// internal/writer/nats_test.go
package writer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"gotest.tools/v3/assert"

	"github.com/tamzrod/erv-controller/internal/poller"
)

type fakePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestSubjectSanitizesDeviceName(t *testing.T) {
	assert.Equal(t, Subject("erv", "hall"), "erv.hall.snapshot")
	assert.Equal(t, Subject("erv", "floor.1 east"), "erv.floor_1_east.snapshot")
	assert.Equal(t, Subject("site", "a*>"), "site.a__.snapshot")
}

func TestNATSWriterPublishesSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	w := NewNATSWriter(pub, "erv", "hall")

	res := result(nil)
	res.At = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res.Failed = 1
	res.Err = errors.New("read power: session: device unreachable")

	assert.NilError(t, w.Write(res))
	assert.Equal(t, len(pub.msgs), 1)

	msg := pub.msgs[0]
	assert.Equal(t, msg.Subject, "erv.hall.snapshot")

	var got struct {
		ID       string `json:"id"`
		Device   string `json:"device"`
		Failed   int    `json:"failed"`
		Error    string `json:"error"`
		Snapshot struct {
			Slots []json.RawMessage `json:"slots"`
		} `json:"snapshot"`
	}
	assert.NilError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, got.Device, "hall")
	assert.Equal(t, got.Failed, 1)
	assert.Equal(t, got.Error, res.Err.Error())
	assert.Equal(t, len(got.Snapshot.Slots), len(res.Snapshot.Slots))
	assert.Equal(t, msg.Header.Get(nats.MsgIdHdr), got.ID)
	assert.Assert(t, got.ID != "")
}

func TestNATSWriterPublishError(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	w := NewNATSWriter(pub, "erv", "hall")

	err := w.Write(poller.PollResult{Device: "hall"})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}
