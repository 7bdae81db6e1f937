// SeedClaw is an LLM agent that controls a microcontroller board from a
// Discord channel.
//
// It polls one channel for messages, answers them with an Anthropic
// model that can call GPIO, ADC, PWM, web fetch and rule tools, and
// runs autonomous monitoring checks against operator-defined rules.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	seedclaw serve              Poll Discord and run the admin console on stdin
//	seedclaw ask <message>      Run one message through the agent and print the reply
//	seedclaw admin <command>    Run one admin console command
//	seedclaw init [dir]         Write an example config.yaml
//	seedclaw version            Print version and build information
//	seedclaw -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/seedclaw/seedclaw/internal/buildinfo"
	"github.com/seedclaw/seedclaw/internal/config"
	"github.com/seedclaw/seedclaw/internal/console"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are parameters so
// the whole lifecycle can be driven from tests. Structured logs go to
// stderr; command output goes to stdout.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	// Admin subcommands are parsed by cobra; only the top level is
	// parsed by hand.
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdin, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: seedclaw ask <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "admin":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: seedclaw admin <command> [args]")
		}
		return runAdmin(ctx, stdout, stderr, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "platform"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "SeedClaw - LLM agent for a microcontroller board, driven from Discord")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: seedclaw [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve            Poll Discord and run the admin console on stdin")
	fmt.Fprintln(w, "  ask <message>    Run one message through the agent")
	fmt.Fprintln(w, "  admin <command>  Run one admin command (try: seedclaw admin help)")
	fmt.Fprintln(w, "  init [dir]       Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version          Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runAsk runs one message through the agent without Discord and prints
// the reply.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	a, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.loop.Run(ctx, strings.Join(args, " "))
	a.logger.Info("ask complete",
		"request_id", resp.RequestID,
		"finish", resp.FinishReason,
		"rounds", resp.Rounds,
		"elapsed", resp.Elapsed)
	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runAdmin runs a single console command against the persisted state.
// The conversation lives only inside a serve process, so reset is not
// available here.
func runAdmin(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	a, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := a.consoleDeps()
	deps.Agent = nil
	return console.Execute(ctx, deps, stdout, args)
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; anything else
// falls back to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates, parses and validates the configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
