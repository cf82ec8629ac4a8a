package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// DefaultSettle is how long Command waits after the restart command exits,
// giving the speech service time to load its model.
const DefaultSettle = 15 * time.Second

// Recoverer brings the speech service back after transport faults.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// Noop does nothing. Used when no restart command is configured.
type Noop struct{}

func (Noop) Recover(context.Context) error { return nil }

// Command runs an external restart command, for example
// "docker restart kokoro-tts".
type Command struct {
	args   []string
	settle time.Duration
	log    *slog.Logger
}

// NewCommand parses line with shell quoting rules. A non-positive settle
// uses DefaultSettle.
func NewCommand(line string, settle time.Duration, log *slog.Logger) (*Command, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse restart command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("restart command empty")
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	if log == nil {
		log = slog.Default()
	}
	return &Command{args: args, settle: settle, log: log}, nil
}

// Args returns the parsed command line.
func (c *Command) Args() []string {
	return append([]string(nil), c.args...)
}

func (c *Command) Recover(ctx context.Context) error {
	c.log.Warn("restarting speech service", "command", strings.Join(c.args, " "))

	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	out, err := cmd.CombinedOutput()
	if text := strings.TrimSpace(string(out)); text != "" {
		c.log.Info("restart command output", "output", text)
	}
	if err != nil {
		return fmt.Errorf("run restart command: %w", err)
	}

	c.log.Info("waiting for speech service", "settle", c.settle.String())
	t := time.NewTimer(c.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// New returns a Command for a non-empty line and Noop otherwise.
func New(line string, settle time.Duration, log *slog.Logger) (Recoverer, error) {
	if strings.TrimSpace(line) == "" {
		return Noop{}, nil
	}
	return NewCommand(line, settle, log)
}
