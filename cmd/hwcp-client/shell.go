package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Shell runs client commands read from a readline prompt.
type Shell struct {
	exec *executor
	rl   *readline.Instance
}

// NewShell creates a shell around exec. Output of exec goes through the
// readline writer.
func NewShell(exec *executor, prompt, historyFile string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	exec.out = rl.Stdout()
	return &Shell{exec: exec, rl: rl}, nil
}

// Stderr returns a writer that coordinates with the prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads and executes commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	fmt.Fprintln(s.rl.Stdout(), commandHelp)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch strings.ToLower(args[0]) {
		case "help", "?":
			fmt.Fprintln(s.rl.Stdout(), commandHelp)
		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			return
		default:
			if err := s.exec.Exec(ctx, args); err != nil {
				fmt.Fprintf(s.rl.Stderr(), "Error: %v\n", err)
			}
		}
	}
}

var accessItems = []readline.PrefixCompleterInterface{
	readline.PcItem("i2c"),
	readline.PcItem("xadc"),
	readline.PcItem("gpio"),
	readline.PcItem("raw-register"),
	readline.PcItem("ddr"),
	readline.PcItem("qdr"),
	readline.PcItem("qspi"),
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("read", accessItems...),
		readline.PcItem("write", accessItems...),
		readline.PcItem("config",
			readline.PcItem("i2c"),
			readline.PcItem("module"),
		),
		readline.PcItem("notify", accessItems...),
		readline.PcItem("alert", accessItems...),
		readline.PcItem("status"),
		readline.PcItem("reconnect"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
