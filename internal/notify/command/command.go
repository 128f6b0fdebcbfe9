// Package command delivers reminders by running a local program with an allowlist.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// defaultAllowed lists the desktop notification programs accepted without configuration.
var defaultAllowed = []string{"notify-send", "terminal-notifier", "logger", "wall"}

// Command runs Program with Args for every reminder. The placeholders
// {owner} and {text} are substituted in each argument and the text is also
// written to the program's stdin.
type Command struct {
	program string
	args    []string
	allowed map[string]bool
}

// New creates a command notifier. extraAllowed extends the built-in allowlist.
func New(program string, args []string, extraAllowed ...string) *Command {
	allowed := make(map[string]bool)
	for _, p := range defaultAllowed {
		allowed[p] = true
	}
	for _, p := range extraAllowed {
		allowed[p] = true
	}
	return &Command{program: program, args: args, allowed: allowed}
}

// Name returns the notifier identifier.
func (c *Command) Name() string {
	return "command"
}

// IsAllowed reports whether the configured program is in the allowlist.
// Only the base name is compared, so /usr/bin/notify-send is accepted.
func (c *Command) IsAllowed() bool {
	return c.allowed[filepath.Base(c.program)]
}

// Send runs the program. A non-zero exit is a delivery failure.
func (c *Command) Send(ctx context.Context, owner, text string) error {
	if !c.IsAllowed() {
		return fmt.Errorf("notify program not allowed: %s", c.program)
	}

	replacer := strings.NewReplacer("{owner}", owner, "{text}", text)
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = replacer.Replace(a)
	}

	execCmd := exec.CommandContext(ctx, c.program, args...)
	execCmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	if err := execCmd.Run(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%s exited with %d: %s", c.program, exitError.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("exec error: %w", err)
	}
	return nil
}
