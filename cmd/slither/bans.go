package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/siohaza/slither/internal/bans"

	"github.com/spf13/cobra"
)

var (
	banReason   string
	banBy       string
	banDuration time.Duration
	banNickname bool
)

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "Manage the ban list",
}

var bansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active bans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openBans(cmd)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tTARGET\tREASON\tBY\tEXPIRES")
		for _, ban := range m.List() {
			target, expires := ban.IP, "never"
			if ban.Type == bans.BanTypeNickname {
				target = ban.Nickname
			}
			if !ban.Permanent {
				expires = ban.ExpiresAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ban.Type, target, ban.Reason, ban.BannedBy, expires)
		}
		return w.Flush()
	},
}

var bansAddCmd = &cobra.Command{
	Use:   "add <ip|nickname>",
	Short: "Ban an address, or a nickname with --nickname",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openBans(cmd)
		if err != nil {
			return err
		}
		if banNickname {
			return m.AddBanByName(args[0], banReason, banBy, banDuration)
		}
		return m.AddBan(args[0], banReason, banBy, banDuration)
	},
}

var bansRemoveCmd = &cobra.Command{
	Use:   "remove <ip|nickname>",
	Short: "Lift a ban",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openBans(cmd)
		if err != nil {
			return err
		}
		if banNickname {
			return m.RemoveBanByName(args[0])
		}
		return m.RemoveBan(args[0])
	},
}

var bansCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop expired bans from the file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openBans(cmd)
		if err != nil {
			return err
		}
		return m.Cleanup()
	},
}

func init() {
	bansAddCmd.Flags().StringVar(&banReason, "reason", "", "reason shown in the ban list")
	bansAddCmd.Flags().StringVar(&banBy, "by", "console", "who issued the ban")
	bansAddCmd.Flags().DurationVar(&banDuration, "duration", 0, "ban length, permanent when zero")

	for _, c := range []*cobra.Command{bansAddCmd, bansRemoveCmd} {
		c.Flags().BoolVar(&banNickname, "nickname", false, "target a nickname instead of an address")
	}

	bansCmd.AddCommand(bansListCmd, bansAddCmd, bansRemoveCmd, bansCleanupCmd)
}

func openBans(cmd *cobra.Command) (*bans.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	m, err := bans.NewManager(cfg.Bans.File)
	if err != nil {
		return nil, err
	}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}
