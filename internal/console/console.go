// Package console implements the operator command set. The same cobra
// tree backs the interactive REPL on the serve process and the
// one-shot `seedclaw admin` subcommand.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seedclaw/seedclaw/internal/connwatch"
	"github.com/seedclaw/seedclaw/internal/hardware"
	"github.com/seedclaw/seedclaw/internal/rules"
	"github.com/seedclaw/seedclaw/internal/settings"
	"github.com/seedclaw/seedclaw/internal/usage"
)

// Resetter clears the user conversation.
type Resetter interface {
	Reset()
}

// Checker forces an autonomous check.
type Checker interface {
	Check(ctx context.Context) (report string, ok bool)
}

// Sender posts text to the chat channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// UsageSource summarizes recorded token usage.
type UsageSource interface {
	SummaryByRole(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// HealthSource reports dependency health.
type HealthSource interface {
	Status() []connwatch.ServiceStatus
}

// Deps are the collaborators commands act on. Rules and Settings are
// required; commands whose collaborator is nil report it as
// unavailable.
type Deps struct {
	Rules    *rules.Store
	Settings *settings.Store
	Board    hardware.Capability
	Agent    Resetter
	Monitor  Checker
	Chat     Sender
	Usage    UsageSource
	Health   HealthSource

	// PollInterval converts the check interval to seconds for display.
	PollInterval   time.Duration
	DefaultPWMFreq int
	Version        string
	Uptime         func() time.Duration
	Now            func() time.Time
}

// ErrUnavailable is returned by commands whose collaborator is not
// wired in this process.
var ErrUnavailable = errors.New("not available in this mode")

// NewRoot builds the command tree.
func NewRoot(d Deps) *cobra.Command {
	if d.Now == nil {
		d.Now = time.Now
	}
	root := &cobra.Command{
		Use:           "seedclaw",
		Short:         "SeedClaw admin console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		ruleCmd(d),
		autoCmd(d),
		gpioCmd(d),
		adcCmd(d),
		pwmCmd(d),
		statusCmd(d),
		resetCmd(d),
		checkCmd(d),
		settingCmd(d, "prompt [text]", "Show or set the system prompt", settings.SystemPrompt, true),
		settingCmd(d, "model [name]", "Show or set the LLM model", settings.Model, false),
		settingCmd(d, "api-key [key]", "Show or set the Anthropic API key", settings.APIKey, false),
		discordCmd(d),
	)
	return root
}

// Execute runs one command line against a fresh tree.
func Execute(ctx context.Context, d Deps, out io.Writer, args []string) error {
	root := NewRoot(d)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// REPL reads command lines from in until EOF, "exit" or ctx
// cancellation, writing results to out.
func REPL(ctx context.Context, d Deps, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	fmt.Fprint(out, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			fields := strings.Fields(line)
			switch {
			case len(fields) == 0:
			case fields[0] == "exit" || fields[0] == "quit":
				return nil
			default:
				if err := Execute(ctx, d, out, fields); err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
				}
			}
			fmt.Fprint(out, "> ")
		}
	}
}
