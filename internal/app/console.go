package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
	"eveBot/internal/strategy"
)

// ErrUnknownCommand is returned for console input outside the command set.
var ErrUnknownCommand = errors.New("unknown command")

// Commander is the operator surface of the Service.
type Commander interface {
	Buy(ctx context.Context, name string) (strategy.Strategy, error)
	Sell(ctx context.Context, name string) (strategy.Strategy, error)
	Cancel(ctx context.Context, orderID string) error
	Snapshots() []domain.Snapshot
}

var _ Commander = (*Service)(nil)

// Console executes operator commands read line by line:
//
//	buy <strategy>
//	sell <strategy>
//	cancel <order id>
//	status
type Console struct {
	cmd    Commander
	out    io.Writer
	logger ports.Logger
}

// NewConsole creates a Console writing results to out.
func NewConsole(cmd Commander, out io.Writer, logger ports.Logger) *Console {
	return &Console{cmd: cmd, out: out, logger: logger}
}

// Run reads commands from in until it is exhausted or ctx ends. A failing
// command is reported and does not stop the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if err := c.Execute(ctx, line); err != nil {
				c.logger.Warn(ctx, "Command failed", map[string]interface{}{"command": line, "error": err.Error()})
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

// Execute runs a single command line. Blank lines are ignored.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch verb := strings.ToLower(fields[0]); {
	case (verb == "buy" || verb == "sell") && len(fields) == 2:
		start := c.cmd.Buy
		if verb == "sell" {
			start = c.cmd.Sell
		}
		s, err := start(ctx, fields[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "started %s %s strategy %s\n", s.Name(), s.Side(), s.ID())
		return nil
	case verb == "cancel" && len(fields) == 2:
		if err := c.cmd.Cancel(ctx, fields[1]); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "canceling %s\n", fields[1])
		return nil
	case verb == "status" && len(fields) == 1:
		enc := json.NewEncoder(c.out)
		for _, snap := range c.cmd.Snapshots() {
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
}
