// Command hwcp-log views and analyzes HWCP protocol capture files.
//
// Capture files are written by hwcp-server (log.protocol_log in its config)
// and hwcp-client (-protocol-log).
//
// Usage:
//
//	hwcp-log <command> [flags] <file.hlog>
//
// Examples:
//
//	# Only replies that were refused
//	hwcp-log view -direction out -command plugin bench.hlog
//
//	# Everything one request went through
//	hwcp-log view -request-id 42 bench.hlog
//
//	# Export hardware-layer errors as YAML
//	hwcp-log export -format yaml -layer hardware -category error bench.hlog
//
//	# Cut one connection out of a long capture
//	hwcp-log filter -conn-id abc12345 -o one.hlog bench.hlog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hwcp-protocol/hwcp-go/cmd/hwcp-log/commands"
	"github.com/hwcp-protocol/hwcp-go/pkg/log"
)

const usage = `hwcp-log - HWCP Protocol Log Analyzer

Usage:
  hwcp-log <command> [flags] <file.hlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL, YAML or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

All commands accept the same filter flags.
Use "hwcp-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates the flag set of a command with the shared filter
// flags bound to opts.
func newFlagSet(name, summary string, opts *commands.FilterOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "hwcp-log %s - %s\n\nUsage:\n  hwcp-log %s [flags] <file.hlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, hardware)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Command, "command", "", "Filter messages by command (read, write, configure, notify, alert, plugin)")
	fs.StringVar(&opts.Access, "access", "", "Filter messages by access target (i2c, xadc, gpio, raw-register, ddr, qdr, qspi)")
	fs.StringVar(&opts.RequestID, "request-id", "", "Filter messages by request ID")
	return fs
}

// parse parses args and returns the capture path and the filter, exiting on
// any error.
func parse(fs *flag.FlagSet, opts *commands.FilterOptions, args []string) (string, log.Filter) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	return fs.Arg(0), filter
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("view", "View log file in human-readable format", &opts)
	path, filter := parse(fs, &opts, args)

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("export", "Export log file to JSONL, YAML or CSV", &opts)
	format := fs.String("format", "jsonl", "Output format (jsonl, yaml, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, filter := parse(fs, &opts, args)

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fail(fmt.Errorf("failed to create output file: %w", err))
		}
		defer f.Close()
		w = f
	}

	if err := commands.RunExport(path, filter, *format, w); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("filter", "Filter log file and write to new file", &opts)
	output := fs.String("o", "", "Output file (required)")
	path, filter := parse(fs, &opts, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, filter, *output, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	var opts commands.FilterOptions
	fs := newFlagSet("stats", "Show statistics about the log file", &opts)
	path, filter := parse(fs, &opts, args)

	if err := commands.RunStats(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}
