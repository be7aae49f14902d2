package utils

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("[replicast] feed/drain queue is closed")
var ErrOverflow = errors.New("[replicast] feed/drain queue is overflowed")

// FDQueue buffers record batches between a producer (the session
// broadcasting envelopes) and a consumer (a peer's write pump). A full
// queue rejects instead of blocking: one slow receiver must not stall
// fan-out to the others.
type FDQueue[T ~[][]byte] struct {
	ctx   context.Context
	close context.CancelFunc
	ch    chan T
}

func NewFDQueue[T ~[][]byte](limit int) *FDQueue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &FDQueue[T]{
		ctx:   ctx,
		close: cancel,
		ch:    make(chan T, limit),
	}
}

func (q *FDQueue[T]) Close() error {
	q.close()
	return nil
}

func (q *FDQueue[T]) Drain(ctx context.Context, recs T) error {
	if len(recs) == 0 {
		return nil
	}
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case q.ch <- recs:
		return nil
	default:
		return ErrOverflow
	}
}

func (q *FDQueue[T]) Feed(ctx context.Context) (recs T, err error) {
	if q.ctx.Err() != nil {
		return nil, ErrClosed
	}
	select {
	case <-q.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case recs = <-q.ch:
		return recs, nil
	}
}
