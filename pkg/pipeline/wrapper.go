package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LinkWrapper derives the wrapped-link dataset from the store. It only reads
// the store and is never run while a sync holds the store lock.
type LinkWrapper interface {
	Wrap(ctx context.Context) error
}

// CommandWrapper runs an external link generator with inherited stdio.
type CommandWrapper struct {
	// Command is the program followed by its arguments.
	Command []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

// Wrap runs the command and waits for it to exit.
func (w *CommandWrapper) Wrap(ctx context.Context) error {
	if len(w.Command) == 0 {
		return fmt.Errorf("wrap command is not configured")
	}

	cmd := exec.CommandContext(ctx, w.Command[0], w.Command[1:]...)
	cmd.Dir = w.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(w.Env) > 0 {
		cmd.Env = append(os.Environ(), w.Env...)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", w.Command[0], err)
	}
	return nil
}
