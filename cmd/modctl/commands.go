package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/engine"
	"github.com/spf13/cobra"
)

type (
	applyFunc  func(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	revokeFunc func(ctx context.Context, target string, staff domain.Staff) (bool, error)
)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "modctl",
		Short:        "Operate the warden punishment engine from the console",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("server", "", "server origin recorded on new punishments")

	root.AddCommand(
		punishCmd(open, "ban <player> [reason...]", "Permanently ban a player", false, func(op operator) applyFunc { return op.Ban }),
		punishCmd(open, "tempban <player> <duration> [reason...]", "Temporarily ban a player", true, func(op operator) applyFunc { return op.TempBan }),
		punishCmd(open, "ipban <player> [reason...]", "Ban a player's last known address", false, func(op operator) applyFunc { return op.IPBan }),
		punishCmd(open, "mute <player> [reason...]", "Permanently mute a player", false, func(op operator) applyFunc { return op.Mute }),
		punishCmd(open, "tempmute <player> <duration> [reason...]", "Temporarily mute a player", true, func(op operator) applyFunc { return op.TempMute }),
		punishCmd(open, "voicemute <player> [reason...]", "Voice mute a player", false, func(op operator) applyFunc { return op.VoiceMute }),
		punishCmd(open, "warn <player> [reason...]", "Warn a player", false, func(op operator) applyFunc { return op.Warn }),
		punishCmd(open, "kick <player> [reason...]", "Kick a player", false, func(op operator) applyFunc { return op.Kick }),
		revokeCmd(open, "unban <player>", "Lift a player's active ban", func(op operator) revokeFunc { return op.Unban }),
		revokeCmd(open, "unmute <player>", "Lift a player's active mute", func(op operator) revokeFunc { return op.Unmute }),
		revokeCmd(open, "revoke <id>", "Lift a punishment by its public id", func(op operator) revokeFunc { return op.RevokeByPublicID }),
		historyCmd(open),
		lookupCmd(open),
		scheduleCmd(open),
		appealsCmd(open),
		migrateCmd(),
		tokenCmd(),
	)
	return root
}

// withOperator opens an operator for the duration of fn.
func withOperator(cmd *cobra.Command, open opener, fn func(ctx context.Context, op operator) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	op, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, op)
}

func punishCmd(open opener, use, short string, timed bool, pick func(operator) applyFunc) *cobra.Command {
	minArgs := 1
	if timed {
		minArgs = 2
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromArgs(cmd, args, timed)
			if err != nil {
				return err
			}
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				p, err := pick(op)(ctx, req)
				if err != nil {
					return err
				}
				printPunishment(cmd.OutOrStdout(), *p)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("silent", "s", false, "toggle the broadcast default for this punishment")
	return cmd
}

func requestFromArgs(cmd *cobra.Command, args []string, timed bool) (engine.Request, error) {
	req := engine.Request{TargetName: args[0], Staff: domain.Console()}
	rest := args[1:]
	if timed {
		d, err := domain.ParseDuration(args[1])
		if err != nil {
			return req, err
		}
		req.Duration = d
		rest = args[2:]
	}
	req.Reason = strings.Join(rest, " ")
	req.Silent, _ = cmd.Flags().GetBool("silent")
	req.ServerOrigin, _ = cmd.Flags().GetString("server")
	return req, nil
}

func revokeCmd(open opener, use, short string, pick func(operator) revokeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				ok, err := pick(op)(ctx, args[0], domain.Console())
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s has nothing active to lift", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lifted %s\n", args[0])
				return nil
			})
		},
	}
}

func historyCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <player>",
		Short: "Show a player's punishments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				ident, err := op.LookupIdentity(ctx, args[0])
				if err != nil {
					return err
				}
				list, err := op.GetHistory(ctx, ident.UUID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", ident.Name, ident.UUID)
				if len(list) == 0 {
					fmt.Fprintln(out, "no punishments")
				}
				for _, p := range list {
					printPunishment(out, p)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "maximum records to show")
	return cmd
}

func lookupCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id>",
		Short: "Show a punishment by its public id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				p, err := op.FindByPublicID(ctx, args[0])
				if err != nil {
					return err
				}
				printPunishment(cmd.OutOrStdout(), *p)
				return nil
			})
		},
	}
}

func scheduleCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <type> <player> [reason...]",
		Short: "Schedule a punishment to apply later",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := domain.ParsePunishmentType(args[0])
			if !ok {
				return fmt.Errorf("unknown punishment type %q", args[0])
			}
			at, err := scheduleTime(cmd, time.Now())
			if err != nil {
				return err
			}
			req, err := requestFromArgs(cmd, args[1:], false)
			if err != nil {
				return err
			}
			if s, _ := cmd.Flags().GetString("duration"); s != "" {
				if req.Duration, err = domain.ParseDuration(s); err != nil {
					return err
				}
			}
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				sp, err := op.Schedule(ctx, t, req, at)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s for %s at %s\n",
					sp.Type, sp.TargetName, time.UnixMilli(sp.ExecutionTime).UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().String("at", "", "RFC 3339 execution time")
	cmd.Flags().String("in", "", "execute after this delay, e.g. 2h30m")
	cmd.Flags().String("duration", "", "length of a temporary punishment, e.g. 1d")
	cmd.Flags().BoolP("silent", "s", false, "toggle the broadcast default for this punishment")
	return cmd
}

func scheduleTime(cmd *cobra.Command, now time.Time) (time.Time, error) {
	at, _ := cmd.Flags().GetString("at")
	in, _ := cmd.Flags().GetString("in")
	switch {
	case at != "" && in != "":
		return time.Time{}, fmt.Errorf("use either --at or --in")
	case at != "":
		return time.Parse(time.RFC3339, at)
	case in != "":
		secs, err := domain.ParseDuration(in)
		if err != nil {
			return time.Time{}, err
		}
		if secs <= 0 {
			return time.Time{}, fmt.Errorf("--in must be a positive delay")
		}
		return now.Add(time.Duration(secs) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("one of --at or --in is required")
	}
}

func appealsCmd(open opener) *cobra.Command {
	appeals := &cobra.Command{
		Use:   "appeals",
		Short: "Review punishment appeals",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending appeals, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				list, err := op.ListPendingAppeals(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "no pending appeals")
				}
				for _, a := range list {
					fmt.Fprintf(out, "%d\t#%s\t%s\t%s\n", a.ID, a.PublicID, a.UUID, a.Message)
				}
				return nil
			})
		},
	}
	list.Flags().IntP("limit", "n", 20, "maximum appeals to show")

	resolve := &cobra.Command{
		Use:   "resolve <appeal-id> accept|deny",
		Short: "Accept or deny an appeal; accepting lifts the punishment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("appeal id: %w", err)
			}
			var accept bool
			switch args[1] {
			case "accept":
				accept = true
			case "deny":
			default:
				return fmt.Errorf("decision must be accept or deny, got %q", args[1])
			}
			return withOperator(cmd, open, func(ctx context.Context, op operator) error {
				a, err := op.ResolveAppeal(ctx, id, accept, domain.Console())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appeal %d %s\n", a.ID, a.Status)
				return nil
			})
		},
	}

	appeals.AddCommand(list, resolve)
	return appeals
}

func printPunishment(w io.Writer, p domain.Punishment) {
	length := "permanent"
	if !p.IsPermanent() {
		length = "until " + time.UnixMilli(p.ExpiresAt).UTC().Format(time.RFC3339)
	}
	state := "active"
	if !p.Active {
		state = "inactive"
	}
	fmt.Fprintf(w, "#%s\t%s\t%s\t%s\t%s\tby %s\t%s\n",
		p.PublicID, p.Type, p.TargetName, state, length, p.StaffName, p.Reason)
}
