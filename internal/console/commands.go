package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seedclaw/seedclaw/internal/rules"
	"github.com/seedclaw/seedclaw/internal/settings"
	"github.com/seedclaw/seedclaw/internal/usage"
)

func ruleCmd(d Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage monitoring rules",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:                "add <text>",
			Short:              "Add a monitoring rule",
			Args:               cobra.MinimumNArgs(1),
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := d.Rules.Add(strings.Join(args, " "))
				if errors.Is(err, rules.ErrFull) {
					return fmt.Errorf("cannot add rule (max %d reached)", d.Rules.MaxRules())
				}
				if err != nil {
					return err
				}
				list := d.Rules.List()
				fmt.Fprintf(cmd.OutOrStdout(), "Rule added (%d/%d): %s\n", n, d.Rules.MaxRules(), list[n-1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List monitoring rules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, interval := d.Rules.Snapshot()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "=== Monitoring Rules (%d/%d) ===\n", len(list), d.Rules.MaxRules())
				if len(list) == 0 {
					fmt.Fprintln(out, "No monitoring rules defined.")
				}
				for i, r := range list {
					fmt.Fprintf(out, "  [%d] %s\n", i, r)
				}
				fmt.Fprintf(out, "Auto interval: %d polls (0=disabled)\n", interval)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <index>",
			Short: "Remove a rule by its 0-based index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				i, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("index %q is not a number", args[0])
				}
				if err := d.Rules.Remove(i); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rule %d removed (%d remaining).\n", i, d.Rules.Count())
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every rule and disable monitoring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := d.Rules.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All monitoring rules cleared.")
				return nil
			},
		},
	)
	return cmd
}

func autoCmd(d Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Control autonomous monitoring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "interval <polls>",
			Short: "Run a check every N poll cycles (0 disables)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("interval %q is not a number", args[0])
				}
				applied, err := d.Rules.SetInterval(n)
				if err != nil {
					return err
				}
				printInterval(cmd, d, applied)
				return nil
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Disable autonomous monitoring",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := d.Rules.SetInterval(0); err != nil {
					return err
				}
				printInterval(cmd, d, 0)
				return nil
			},
		},
	)
	return cmd
}

func printInterval(cmd *cobra.Command, d Deps, n int) {
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Autonomous monitoring disabled.")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Auto check interval set to %d polls (~%ds).\n", n, checkSeconds(d, n))
}

func checkSeconds(d Deps, n int) int {
	return int((time.Duration(n) * d.PollInterval).Seconds())
}

func gpioCmd(d Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpio",
		Short: "Read, write and inspect digital pins",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "read <pin>",
			Short: "Read a digital pin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if d.Board == nil {
					return ErrUnavailable
				}
				pin, err := pinArgs(args, 1)
				if err != nil {
					return err
				}
				v, err := d.Board.DigitalRead(pin[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "GPIO%d = %d\n", pin[0], v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "write <pin> <0|1>",
			Short: "Drive a digital pin",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if d.Board == nil {
					return ErrUnavailable
				}
				v, err := pinArgs(args, 2)
				if err != nil {
					return err
				}
				if err := d.Board.DigitalWrite(v[0], v[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "GPIO%d set to %d\n", v[0], v[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show every pin in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if d.Board == nil {
					return ErrUnavailable
				}
				data, err := json.Marshal(d.Board.Status())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
	)
	return cmd
}

func adcCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "adc <pin>",
		Short: "Read an analog pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Board == nil {
				return ErrUnavailable
			}
			pin, err := pinArgs(args, 1)
			if err != nil {
				return err
			}
			r, err := d.Board.AnalogRead(pin[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ADC GPIO%d: raw=%d, voltage=%dmV, %d%%\n",
				pin[0], r.Raw, r.VoltageMV, r.Percentage)
			return nil
		},
	}
}

func pwmCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "pwm <pin> <duty> [freq]",
		Short: "Set PWM duty (0-100) and optional frequency",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Board == nil {
				return ErrUnavailable
			}
			v, err := pinArgs(args, len(args))
			if err != nil {
				return err
			}
			freq := d.DefaultPWMFreq
			if len(v) == 3 {
				freq = v[2]
			}
			p, err := d.Board.SetPWM(v[0], v[1], freq)
			if err != nil {
				return fmt.Errorf("failed to set PWM on GPIO%d: %w", v[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PWM GPIO%d: duty=%d%%, freq=%dHz\n", v[0], p.Duty, p.FreqHz)
			return nil
		},
	}
}

// pinArgs parses the first n args as integers.
func pinArgs(args []string, n int) ([]int, error) {
	out := make([]int, n)
	for i := range n {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", args[i])
		}
		out[i] = v
	}
	return out, nil
}

func statusCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== SeedClaw System Status ===")
			if d.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", d.Version)
			}
			if d.Uptime != nil {
				fmt.Fprintf(out, "Uptime: %s\n", d.Uptime().Truncate(time.Second))
			}
			fmt.Fprintf(out, "Model: %s\n", d.Settings.Display(settings.Model))

			list, interval := d.Rules.Snapshot()
			fmt.Fprintf(out, "Monitoring rules: %d/%d\n", len(list), d.Rules.MaxRules())
			if interval > 0 {
				fmt.Fprintf(out, "Auto check: every %d polls (~%ds)\n", interval, checkSeconds(d, interval))
			} else {
				fmt.Fprintln(out, "Auto check: disabled")
			}

			if d.Health != nil {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "SERVICE\tREADY\tLAST CHECK\tLAST ERROR\n")
				for _, s := range d.Health.Status() {
					last := "never"
					if !s.LastCheck.IsZero() {
						last = s.LastCheck.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", s.Name, s.Ready, last, s.LastError)
				}
				tw.Flush()
			}

			if d.Usage != nil {
				now := d.Now()
				start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
				byRole, err := d.Usage.SummaryByRole(cmd.Context(), start, now)
				if err != nil {
					return fmt.Errorf("usage summary: %w", err)
				}
				if len(byRole) == 0 {
					fmt.Fprintln(out, "Tokens today: none")
				}
				for _, role := range []string{usage.RoleInteractive, usage.RoleAutonomous} {
					s, ok := byRole[role]
					if !ok {
						continue
					}
					fmt.Fprintf(out, "Tokens today (%s): %d in, %d out, %d requests\n",
						role, s.TotalInputTokens, s.TotalOutputTokens, s.TotalRecords)
				}
			}
			return nil
		},
	}
}

func resetCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Agent == nil {
				return ErrUnavailable
			}
			d.Agent.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation history cleared.")
			return nil
		},
	}
}

func checkCmd(d Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run an autonomous check now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.Monitor == nil {
				return ErrUnavailable
			}
			if d.Rules.Count() == 0 {
				return errors.New("no monitoring rules defined")
			}
			report, ok := d.Monitor.Check(cmd.Context())
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Check complete: nothing to report.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			if d.Chat != nil {
				if err := d.Chat.Send(cmd.Context(), report); err != nil {
					return fmt.Errorf("send report: %w", err)
				}
			}
			return nil
		},
	}
}

// settingCmd shows key with no args, sets it otherwise. --reset drops
// the override. joinArgs keeps free text intact.
func settingCmd(d Deps, use, short string, key settings.Key, joinArgs bool) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return applySetting(cmd, d, key, args, reset, joinArgs)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "revert to the configured default")
	return cmd
}

func applySetting(cmd *cobra.Command, d Deps, key settings.Key, args []string, reset, joinArgs bool) error {
	out := cmd.OutOrStdout()
	switch {
	case reset:
		if err := d.Settings.Reset(key); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s reset to default: %s\n", key, d.Settings.Display(key))
	case len(args) == 0:
		fmt.Fprintf(out, "%s: %s\n", key, d.Settings.Display(key))
	case !joinArgs && len(args) > 1:
		return fmt.Errorf("%s takes a single value", key)
	default:
		if err := d.Settings.Set(key, strings.Join(args, " ")); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s updated: %s\n", key, d.Settings.Display(key))
	}
	return nil
}

func discordCmd(d Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discord",
		Short: "Show or set Discord credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range []settings.Key{settings.DiscordToken, settings.DiscordChannel, settings.DiscordWebhook} {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, d.Settings.Display(k))
			}
			return nil
		},
	}
	cmd.AddCommand(
		settingCmd(d, "token [value]", "Bot token", settings.DiscordToken, false),
		settingCmd(d, "channel [id]", "Channel ID to poll", settings.DiscordChannel, false),
		settingCmd(d, "webhook [url]", "Webhook URL for replies", settings.DiscordWebhook, false),
	)
	return cmd
}
