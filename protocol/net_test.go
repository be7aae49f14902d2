package protocol

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replicast/replicast/utils"
)

// duplexQueue is a test peer endpoint: one queue per direction, so the
// test can read what the wire delivered and stage what the write pump
// should send without racing the pumps for the same channel.
type duplexQueue struct {
	in  *utils.FDQueue[Records] // received from the wire
	out *utils.FDQueue[Records] // staged for transmission
}

func newDuplex() *duplexQueue {
	return &duplexQueue{
		in:  utils.NewFDQueue[Records](1000),
		out: utils.NewFDQueue[Records](1000),
	}
}

func (d *duplexQueue) TraceID() string { return "test" }

func (d *duplexQueue) Drain(ctx context.Context, recs Records) error {
	return d.in.Drain(ctx, recs)
}

func (d *duplexQueue) Feed(ctx context.Context) (Records, error) {
	return d.out.Feed(ctx)
}

func (d *duplexQueue) Close() error {
	_ = d.in.Close()
	return d.out.Close()
}

func TestNetConnectEcho(t *testing.T) {
	loop := "tcp://127.0.0.1:32123"
	ctx := context.Background()
	log := utils.NewDefaultLogger(slog.LevelError)

	lCon := newDuplex()
	l := NewNet(log, nil,
		func(_ string) FeedDrainCloserTraced { return lCon },
		func(_ string, _ Traced) {})
	assert.Nil(t, l.Listen(ctx, loop))

	cCon := newDuplex()
	c := NewNet(log, nil,
		func(_ string) FeedDrainCloserTraced { return cCon },
		func(_ string, _ Traced) {})
	assert.Nil(t, c.Connect(ctx, loop))

	// send a record
	assert.Nil(t, cCon.out.Drain(ctx, Records{Record('M', []byte("Hi there"))}))

	rec, err := lCon.in.Feed(ctx)
	assert.Nil(t, err)
	assert.Greater(t, len(rec), 0)

	lit, body, rest := TakeAny(rec[0])
	assert.Equal(t, uint8('M'), lit)
	assert.Equal(t, "Hi there", string(body))
	assert.Equal(t, 0, len(rest))

	// respond to that
	assert.Nil(t, lCon.out.Drain(ctx, Records{Record('M', []byte("Re: Hi there"))}))

	rerec, err := cCon.in.Feed(ctx)
	assert.Nil(t, err)
	assert.Greater(t, len(rerec), 0)

	relit, rebody, rerest := TakeAny(rerec[0])
	assert.Equal(t, uint8('M'), relit)
	assert.Equal(t, "Re: Hi there", string(rebody))
	assert.Equal(t, 0, len(rerest))

	// cleanup
	assert.Nil(t, c.Close())
	assert.Nil(t, l.Close())
}

func TestNetAddressChecks(t *testing.T) {
	log := utils.NewDefaultLogger(slog.LevelError)
	n := NewNet(log, nil,
		func(_ string) FeedDrainCloserTraced { return newDuplex() },
		func(_ string, _ Traced) {})
	defer n.Close()

	assert.ErrorIs(t, n.Listen(context.Background(), "quic://x"), ErrAddressInvalid)
	assert.ErrorIs(t, n.Disconnect("never-dialed"), ErrAddressUnknown)
	assert.ErrorIs(t, n.Unlisten("never-listened"), ErrAddressUnknown)

	addr := "tcp://127.0.0.1:32124"
	assert.Nil(t, n.Connect(context.Background(), addr))
	assert.ErrorIs(t, n.Connect(context.Background(), addr), ErrAddressDuplicated)
}
