package journal

import (
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"

	"github.com/replicast/replicast/utils"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), utils.NewDefaultLogger(slog.LevelError))
	assert.Nil(t, err)
	return j
}

func TestJournalAppendReplay(t *testing.T) {
	j := testJournal(t)
	defer j.Close()

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for i, p := range payloads {
		seq, err := j.Append(p)
		assert.Nil(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}
	assert.Equal(t, uint64(3), j.Len())

	var got [][]byte
	var seqs []uint64
	err := j.Replay(func(seq uint64, envelope []byte) error {
		seqs = append(seqs, seq)
		got = append(got, envelope)
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, payloads, got)
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestJournalRecoversSequence(t *testing.T) {
	dir := t.TempDir()
	log := utils.NewDefaultLogger(slog.LevelError)

	j, err := Open(dir, log)
	assert.Nil(t, err)
	_, err = j.Append([]byte("first"))
	assert.Nil(t, err)
	assert.Nil(t, j.Close())

	j, err = Open(dir, log)
	assert.Nil(t, err)
	defer j.Close()
	assert.Equal(t, uint64(1), j.Len())

	seq, err := j.Append([]byte("second"))
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestJournalReplayStopsOnChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	log := utils.NewDefaultLogger(slog.LevelError)

	j, err := Open(dir, log)
	assert.Nil(t, err)
	_, err = j.Append([]byte("good"))
	assert.Nil(t, err)
	seq, err := j.Append([]byte("soon to be bad"))
	assert.Nil(t, err)
	assert.Nil(t, j.Close())

	// flip a payload byte behind the journal's back
	db, err := pebble.Open(dir, &pebble.Options{})
	assert.Nil(t, err)
	var key [seqKeyLen]byte
	binary.BigEndian.PutUint64(key[:], seq)
	val, closer, err := db.Get(key[:])
	assert.Nil(t, err)
	bad := append([]byte(nil), val...)
	assert.Nil(t, closer.Close())
	bad[len(bad)-1] ^= 0xff
	assert.Nil(t, db.Set(key[:], bad, pebble.Sync))
	assert.Nil(t, db.Close())

	j, err = Open(dir, log)
	assert.Nil(t, err)
	defer j.Close()

	var seen []uint64
	err = j.Replay(func(s uint64, envelope []byte) error {
		seen = append(seen, s)
		return nil
	})
	assert.ErrorIs(t, err, ErrChecksum)
	// everything before the corrupt record was delivered, nothing after
	assert.Equal(t, []uint64{1}, seen)
}

func TestJournalReplayStopsOnCallbackError(t *testing.T) {
	j := testJournal(t)
	defer j.Close()

	_, _ = j.Append([]byte("a"))
	_, _ = j.Append([]byte("b"))

	calls := 0
	err := j.Replay(func(seq uint64, envelope []byte) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
