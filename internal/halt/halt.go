package halt

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultCommand is the host command that powers the machine down.
const DefaultCommand = "halt"

// Action is invoked once when the match count exceeds the threshold.
type Action interface {
	Halt(ctx context.Context, count, threshold int) error
}

// ActionFunc adapts a plain function to Action.
type ActionFunc func(ctx context.Context, count, threshold int) error

func (f ActionFunc) Halt(ctx context.Context, count, threshold int) error {
	return f(ctx, count, threshold)
}

// Exceeded reports whether count is strictly greater than threshold.
func Exceeded(count, threshold int) bool {
	return count > threshold
}

// Command runs a host command. Only Linux is supported.
type Command struct {
	Name string
	Args []string
	Log  logrus.FieldLogger

	goos string
}

func (c Command) Halt(ctx context.Context, count, threshold int) error {
	goos := c.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" {
		return fmt.Errorf("halt not implemented for %s", goos)
	}

	name := c.Name
	if name == "" {
		name = DefaultCommand
	}
	if c.Log != nil {
		c.Log.WithFields(logrus.Fields{"matched": count, "threshold": threshold}).
			Warnf("running %s", strings.TrimSpace(name+" "+strings.Join(c.Args, " ")))
	}

	cmd := exec.CommandContext(ctx, name, c.Args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to run %s: %w (%s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// DryRun only logs what would have happened.
type DryRun struct {
	Log logrus.FieldLogger
}

func (d DryRun) Halt(_ context.Context, count, threshold int) error {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"matched": count, "threshold": threshold}).Warn("dry run, not halting")
	return nil
}
