package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Peer pumps one established connection: a read loop that splits the
// inbound byte stream into whole TLV records and drains them into the
// session, and a write loop that feeds outgoing batches to the socket.
type Peer struct {
	closed atomic.Bool
	wg     sync.WaitGroup

	conn  net.Conn
	inout FeedDrainCloserTraced
}

func (p *Peer) TraceID() string {
	return p.inout.TraceID()
}

func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer
	for !p.closed.Load() {
		if buf.Available() < TypicalMTU {
			buf.Grow(TypicalMTU)
		}
		idle := buf.AvailableBuffer()[:buf.Available()]
		n, err := p.conn.Read(idle)
		if err != nil {
			if errors.Is(err, io.EOF) {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		buf.Write(idle[:n])

		recs, err := Split(&buf)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		if err = p.inout.Drain(ctx, recs); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) keepWrite(ctx context.Context) error {
	for !p.closed.Load() {
		recs, err := p.inout.Feed(ctx)
		if err != nil {
			return err
		}
		b := net.Buffers(recs)
		for len(b) > 0 {
			if _, err = b.WriteTo(p.conn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keep runs both pumps until either fails or the peer is closed.
func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	p.wg.Add(2)
	defer p.wg.Add(-2)

	if p.closed.Load() {
		return nil, nil, nil
	}

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
			if errors.Is(rerr, net.ErrClosed) {
				// we probably closed it ourselves
				rerr = nil
			}
		case werr = <-writeErrCh:
			// close after the writer is done; that also cancels the reader
			cerr = p.conn.Close()
		}
		p.closed.Store(true)
	}
	return
}

// Close unblocks both pumps, then waits them out: the write pump sits
// in inout.Feed, the read pump in conn.Read.
func (p *Peer) Close() {
	p.closed.Store(true)
	if p.inout != nil {
		_ = p.inout.Close()
	}
	if c := p.conn; c != nil {
		c.Close()
	}
	p.wg.Wait()
	p.conn = nil
}
