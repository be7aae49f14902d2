package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/replicast/replicast"
	"github.com/replicast/replicast/journal"
	"github.com/replicast/replicast/protocol"
)

var HelpOpen = errors.New("open <journal directory>")
var HelpShow = errors.New("show <seq>")
var ErrNoJournal = errors.New("no journal open")

func (repl *REPL) CommandOpen(arg string) (err error) {
	if arg == "" {
		return HelpOpen
	}
	if repl.jrn != nil {
		_ = repl.jrn.Close()
		repl.jrn = nil
	}
	repl.jrn, err = journal.Open(arg, repl.log)
	if err == nil {
		fmt.Printf("journal opened, %d records\n", repl.jrn.Len())
	}
	return
}

func (repl *REPL) CommandClose(_ string) error {
	if repl.jrn == nil {
		return ErrNoJournal
	}
	err := repl.jrn.Close()
	repl.jrn = nil
	if err == nil {
		fmt.Println("journal closed")
	}
	return err
}

func (repl *REPL) CommandList(_ string) error {
	if repl.jrn == nil {
		return ErrNoJournal
	}
	return repl.jrn.Replay(func(seq uint64, envelope []byte) error {
		res := repl.codec.Decode(envelope, repl.reg)
		switch {
		case res.Event != nil:
			fmt.Printf("%6d  %-16s %-12s %s\n", seq, res.TypeName, res.TargetID, res.Event)
		default:
			fmt.Printf("%6d  undecodable: %v\n", seq, res.Err)
		}
		return nil
	})
}

func (repl *REPL) CommandShow(arg string) error {
	if repl.jrn == nil {
		return ErrNoJournal
	}
	want, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return HelpShow
	}
	found := false
	err = repl.jrn.Replay(func(seq uint64, envelope []byte) error {
		if seq != want {
			return nil
		}
		found = true
		res := repl.codec.Decode(envelope, repl.reg)
		fmt.Printf("seq:    %d\n", seq)
		fmt.Printf("bytes:  %d\n", len(envelope))
		fmt.Printf("type:   %s (module %s)\n", res.TypeName, res.Module)
		fmt.Printf("target: %s\n", res.TargetID)
		if res.Event != nil {
			fmt.Printf("event:  %s\n", res.Event)
		}
		if res.Err != nil && !errors.Is(res.Err, replicast.ErrTargetUnknown) {
			fmt.Printf("error:  %v\n", res.Err)
		}
		return nil
	})
	if err == nil && !found {
		fmt.Printf("no record with seq %d\n", want)
	}
	return err
}

// CommandReplay pushes every journaled envelope through a scratch
// session. With no live targets registered everything lands as a
// target-resolution failure, which still exercises decode and prints
// the totals; registering targets is the embedding application's job.
func (repl *REPL) CommandReplay(_ string) error {
	if repl.jrn == nil {
		return ErrNoJournal
	}
	session := replicast.NewSession(repl.log, replicast.NewEventTypes())
	total := 0
	err := repl.jrn.Replay(func(seq uint64, envelope []byte) error {
		total++
		return session.Drain(context.Background(), protocol.Records{envelope})
	})
	if err == nil {
		fmt.Printf("replayed %d envelopes\n", total)
	}
	return err
}

func (repl *REPL) CommandStats(_ string) error {
	if repl.jrn == nil {
		return ErrNoJournal
	}
	var total, bad int
	var bytes int
	err := repl.jrn.Replay(func(seq uint64, envelope []byte) error {
		total++
		bytes += len(envelope)
		res := repl.codec.Decode(envelope, repl.reg)
		if res.Event == nil {
			bad++
		}
		return nil
	})
	if err == nil {
		fmt.Printf("records: %d, bytes: %d, undecodable: %d\n", total, bytes, bad)
	}
	return err
}
