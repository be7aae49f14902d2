package protocol

import (
	"context"
	"io"
)

// Feeder and Drainer are the two record-flow contracts the transport
// layer is built from: a peer feeds outgoing record batches from some
// source and drains incoming batches into some sink. Keeping both
// sides in Records terms means the network path never re-frames.

type Feeder interface {
	// Feed reads and returns a batch of records. EoF follows the
	// io.Reader convention: either (recs, io.EOF) or (recs, nil)
	// followed by (nil, io.EOF).
	Feed(ctx context.Context) (recs Records, err error)
}

type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Traced names a connection for log correlation.
type Traced interface {
	TraceID() string
}

type FeedDrainCloserTraced interface {
	FeedDrainCloser
	Traced
}

// Relay moves one batch from feeder to drainer.
func Relay(ctx context.Context, feeder Feeder, drainer Drainer) error {
	recs, err := feeder.Feed(ctx)
	if len(recs) > 0 { // Feed may return data and EOF together
		if derr := drainer.Drain(ctx, recs); err == nil {
			err = derr
		}
	}
	return err
}

// Pump relays batches until an error or context cancellation.
func Pump(ctx context.Context, feeder Feeder, drainer Drainer) (err error) {
	for err == nil && ctx.Err() == nil {
		err = Relay(ctx, feeder, drainer)
	}
	return
}
