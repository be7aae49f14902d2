// Package journal persists encoded envelopes for replay: the same
// byte buffers that go over the wire, appended under monotonically
// increasing sequence keys with a checksum prefix. Replaying the
// journal through a session reproduces the recorded state changes in
// their original order.
package journal

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/replicast/replicast/utils"
)

var ErrChecksum = errors.New("journal: record checksum mismatch")

const seqKeyLen = 8
const sumLen = 8

type Journal struct {
	log utils.Logger
	db  *pebble.DB
	seq atomic.Uint64
}

// Open opens or creates a journal at path and recovers the last
// sequence number.
func Open(path string, log utils.Logger) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "journal: opening %s", path)
	}
	j := &Journal{log: log, db: db}

	it, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "journal: recovering sequence")
	}
	if it.Last() && len(it.Key()) == seqKeyLen {
		j.seq.Store(binary.BigEndian.Uint64(it.Key()))
	}
	if err = it.Close(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Append stores one envelope and returns its sequence number.
func (j *Journal) Append(envelope []byte) (seq uint64, err error) {
	seq = j.seq.Add(1)
	var key [seqKeyLen]byte
	binary.BigEndian.PutUint64(key[:], seq)

	val := make([]byte, sumLen, sumLen+len(envelope))
	binary.BigEndian.PutUint64(val[:sumLen], xxhash.Sum64(envelope))
	val = append(val, envelope...)

	if err = j.db.Set(key[:], val, pebble.Sync); err != nil {
		return 0, errors.Wrapf(err, "journal: appending seq %d", seq)
	}
	return seq, nil
}

// Len reports the highest sequence number written so far.
func (j *Journal) Len() uint64 { return j.seq.Load() }

// Replay walks the journal in sequence order, verifying checksums,
// and hands each envelope to fn. A checksum mismatch stops the replay:
// anything after a corrupt record cannot be trusted to apply cleanly.
func (j *Journal) Replay(fn func(seq uint64, envelope []byte) error) error {
	it, err := j.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return errors.Wrap(err, "journal: replay iterator")
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if len(it.Key()) != seqKeyLen || len(it.Value()) < sumLen {
			return errors.Wrapf(ErrChecksum, "seq key %x", it.Key())
		}
		seq := binary.BigEndian.Uint64(it.Key())
		val := it.Value()
		envelope := val[sumLen:]
		if xxhash.Sum64(envelope) != binary.BigEndian.Uint64(val[:sumLen]) {
			return errors.Wrapf(ErrChecksum, "seq %d", seq)
		}
		if err := fn(seq, append([]byte(nil), envelope...)); err != nil {
			return err
		}
	}
	return it.Error()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
