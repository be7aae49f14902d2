// Inspector shell for replay journals: open a journal, list and show
// recorded envelopes, replay them through a scratch session.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"

	"github.com/replicast/replicast"
	"github.com/replicast/replicast/journal"
	"github.com/replicast/replicast/utils"
)

type REPL struct {
	log   utils.Logger
	codec *replicast.Codec
	reg   *replicast.Registry
	jrn   *journal.Journal
	rl    *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("close"),

	readline.PcItem("list"),
	readline.PcItem("show"),
	readline.PcItem("replay"),
	readline.PcItem("stats"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".replicast_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	if repl.jrn != nil {
		_ = repl.jrn.Close()
		repl.jrn = nil
	}
	return nil
}

func (repl *REPL) REPL() (err error) {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg := line, ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd = line[:ws]
		arg = strings.TrimSpace(line[ws:])
	}

	switch cmd {
	case "open":
		err = repl.CommandOpen(arg)
	case "close":
		err = repl.CommandClose(arg)
	case "list":
		err = repl.CommandList(arg)
	case "show":
		err = repl.CommandShow(arg)
	case "replay":
		err = repl.CommandReplay(arg)
	case "stats":
		err = repl.CommandStats(arg)
	case "help":
		fmt.Println("commands: open <path>, close, list, show <seq>, replay, stats, exit")
	case "exit", "quit":
		err = io.EOF
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}

	if err != nil && err != io.EOF {
		fmt.Println(err.Error())
		err = nil
	}
	return err
}

func main() {
	repl := &REPL{
		log: utils.NewDefaultLogger(slog.LevelWarn),
	}
	repl.codec = replicast.NewCodec(replicast.NewEventTypes())
	repl.reg = replicast.NewRegistry(repl.log)

	if err := repl.Open(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer repl.Close()

	for {
		if err := repl.REPL(); err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintln(os.Stderr, err.Error())
			}
			break
		}
	}
}
