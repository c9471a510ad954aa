package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hwcp-protocol/hwcp-go/pkg/connection"
	"github.com/hwcp-protocol/hwcp-go/pkg/interaction"
	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// errUsage marks malformed command lines.
var errUsage = errors.New("usage")

const commandHelp = `HWCP Client Commands:
  Memory & Registers:
    read  i2c <bus> <slave> <register> [width] [count]
    read  xadc|gpio|raw-register <address> <register> [width] [count]
    read  ddr|qdr|qspi <address> <page> <offset> [width] [count]
    write i2c <bus> <slave> <register> <width> <value>...
    write xadc|gpio|raw-register <address> <register> <width> <value>...
    write ddr|qdr|qspi <address> <page> <offset> <width> <value>...

  Configuration:
    config i2c <bus> <slave> <register> <width> [uint=N] [int=N] [float=F] [string=S] [byte=N]
    config module <name> [key=value]...

  Notifications:
    notify <target>                   - Send NOTIFY
    alert <target>                    - Send ALERT

  Connection:
    status                            - Show connection state
    reconnect                         - Drop the connection; the next request redials

  Numbers accept 0x hex. Width is byte, word or long (or 1, 2, 4).`

// executor runs client commands and prints their results.
type executor struct {
	client *interaction.Client
	conn   *connection.Manager
	out    io.Writer
}

// Exec runs one command line split into words.
func (e *executor) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", errUsage)
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "read", "r":
		return e.cmdRead(ctx, rest)
	case "write", "w":
		return e.cmdWrite(ctx, rest)
	case "config", "configure":
		return e.cmdConfig(ctx, rest)
	case "notify":
		return e.cmdNotify(ctx, rest, false)
	case "alert":
		return e.cmdNotify(ctx, rest, true)
	case "status":
		return e.cmdStatus()
	case "reconnect":
		if e.conn == nil {
			return errors.New("no managed connection")
		}
		e.conn.Drop()
		fmt.Fprintln(e.out, "Connection dropped")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// location is the parsed address part of a read or write.
type location struct {
	access wire.AccessTarget
	words  []uint32
}

// addressWords returns how many address numbers follow the target.
func addressWords(access wire.AccessTarget) int {
	switch {
	case access == wire.AccessI2C, access.IsPagedMemory():
		return 3
	case access.IsBasic():
		return 2
	default:
		return 0
	}
}

func parseLocation(args []string) (location, []string, error) {
	if len(args) == 0 {
		return location{}, nil, fmt.Errorf("%w: target required", errUsage)
	}
	access, err := wire.ParseAccessTarget(args[0])
	if err != nil {
		return location{}, nil, err
	}
	n := addressWords(access)
	if n == 0 {
		return location{}, nil, fmt.Errorf("%s cannot be read or written", access)
	}
	if len(args) < 1+n {
		return location{}, nil, fmt.Errorf("%w: %s needs %d address values", errUsage, access, n)
	}
	loc := location{access: access, words: make([]uint32, n)}
	for i := range n {
		if loc.words[i], err = parseNumber(args[1+i]); err != nil {
			return location{}, nil, err
		}
	}
	return loc, args[1+n:], nil
}

func defaultWidth(access wire.AccessTarget) wire.DataWidth {
	if access == wire.AccessI2C {
		return wire.WidthByte
	}
	return wire.WidthLong
}

func (e *executor) cmdRead(ctx context.Context, args []string) error {
	loc, rest, err := parseLocation(args)
	if err != nil {
		return err
	}
	width := defaultWidth(loc.access)
	count := 1
	if len(rest) > 0 {
		if width, err = wire.ParseDataWidth(rest[0]); err != nil {
			return err
		}
	}
	if len(rest) > 1 {
		n, err := strconv.Atoi(rest[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", rest[1])
		}
		count = n
	}
	if len(rest) > 2 {
		return fmt.Errorf("%w: too many arguments", errUsage)
	}

	w := loc.words
	var values []uint32
	switch {
	case loc.access == wire.AccessI2C:
		values, err = e.client.ReadBus(ctx, w[0], w[1], w[2], width, count)
	case loc.access.IsPagedMemory():
		values, err = e.client.ReadPaged(ctx, loc.access, w[0], w[1], w[2], width, count)
	default:
		values, err = e.client.ReadRegister(ctx, loc.access, w[0], w[1], width, count)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, formatUnits(values, width))
	return nil
}

func (e *executor) cmdWrite(ctx context.Context, args []string) error {
	loc, rest, err := parseLocation(args)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("%w: width and at least one value required", errUsage)
	}
	width, err := wire.ParseDataWidth(rest[0])
	if err != nil {
		return err
	}
	values := make([]uint32, len(rest)-1)
	for i, s := range rest[1:] {
		if values[i], err = parseNumber(s); err != nil {
			return err
		}
	}

	w := loc.words
	var back []uint32
	switch {
	case loc.access == wire.AccessI2C:
		back, err = e.client.WriteBus(ctx, w[0], w[1], w[2], width, values)
	case loc.access.IsPagedMemory():
		back, err = e.client.WritePaged(ctx, loc.access, w[0], w[1], w[2], width, values)
	default:
		back, err = e.client.WriteRegister(ctx, loc.access, w[0], w[1], width, values)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "OK, read back: %s\n", formatUnits(back, width))
	return nil
}

func (e *executor) cmdConfig(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: config i2c|module ...", errUsage)
	}
	switch strings.ToLower(args[0]) {
	case "i2c":
		cfg, err := parseBusConfig(args[1:])
		if err != nil {
			return err
		}
		if err := e.client.ConfigureBus(ctx, cfg); err != nil {
			return err
		}
	case "module":
		if len(args) < 2 {
			return fmt.Errorf("%w: module name required", errUsage)
		}
		params, err := parseParams(args[2:])
		if err != nil {
			return err
		}
		if err := e.client.ConfigureModule(ctx, wire.ModuleConfig{Name: args[1], Params: params}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: config i2c|module ...", errUsage)
	}
	fmt.Fprintln(e.out, "OK")
	return nil
}

func parseBusConfig(args []string) (wire.BusConfig, error) {
	if len(args) < 4 {
		return wire.BusConfig{}, fmt.Errorf("%w: config i2c <bus> <slave> <register> <width> [param=value]...", errUsage)
	}
	var (
		cfg wire.BusConfig
		err error
	)
	for i, dst := range []*uint32{&cfg.Bus, &cfg.Slave, &cfg.Register} {
		if *dst, err = parseNumber(args[i]); err != nil {
			return cfg, err
		}
	}
	if cfg.Width, err = wire.ParseDataWidth(args[3]); err != nil {
		return cfg, err
	}

	for _, kv := range args[4:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return cfg, fmt.Errorf("%w: parameter %q is not key=value", errUsage, kv)
		}
		switch strings.ToLower(key) {
		case "uint":
			n, err := parseNumber(value)
			if err != nil {
				return cfg, err
			}
			cfg = cfg.WithUint(n)
		case "int":
			n, err := strconv.ParseInt(value, 0, 32)
			if err != nil {
				return cfg, fmt.Errorf("invalid int parameter %q", value)
			}
			cfg = cfg.WithInt(int32(n))
		case "float":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return cfg, fmt.Errorf("invalid float parameter %q", value)
			}
			cfg = cfg.WithFloat(f)
		case "string":
			cfg = cfg.WithString(value)
		case "byte":
			n, err := strconv.ParseUint(value, 0, 8)
			if err != nil {
				return cfg, fmt.Errorf("invalid byte parameter %q", value)
			}
			cfg = cfg.WithByte(uint8(n))
		default:
			return cfg, fmt.Errorf("unknown bus parameter %q (uint, int, float, string, byte)", key)
		}
	}
	return cfg, nil
}

// parseParams builds a flat parameter tree from key=value words. Values
// are typed as integer, float or bool when they parse as one.
func parseParams(args []string) (*wire.Tree, error) {
	tree := wire.NewTree()
	for _, kv := range args {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: parameter %q is not key=value", errUsage, kv)
		}
		if err := tree.SetParam(key, paramValue(value)); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func paramValue(s string) wire.Value {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return wire.IntValue(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return wire.FloatValue(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return wire.BoolValue(b)
	}
	return wire.StringValue(s)
}

func (e *executor) cmdNotify(ctx context.Context, args []string, alert bool) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: target required", errUsage)
	}
	access, err := wire.ParseAccessTarget(args[0])
	if err != nil {
		return err
	}
	if err := e.client.Notify(ctx, access, alert); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "OK")
	return nil
}

func (e *executor) cmdStatus() error {
	if e.conn == nil {
		fmt.Fprintln(e.out, "Connection: unmanaged")
		return nil
	}
	fmt.Fprintf(e.out, "Connection: %s\n", e.conn.State())
	return nil
}

// parseNumber parses a 32-bit unsigned number in decimal or 0x hex.
func parseNumber(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(n), nil
}

// formatUnits renders values as zero-padded hex of the given width.
func formatUnits(values []uint32, width wire.DataWidth) string {
	digits := width.Size() * 2
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("0x%0*X", digits, v)
	}
	return strings.Join(parts, " ")
}
