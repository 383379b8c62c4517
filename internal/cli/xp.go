package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quizhub/quizhub/internal/domain"
)

func init() {
	xpAwardCmd.Flags().StringVar(&xpSource, "source", string(domain.XPManual),
		"Source: quiz_completed, quiz_created, streak_bonus or manual")
	xpHistoryCmd.Flags().IntVar(&xpLimit, "limit", 20, "Number of events to show")

	xpCmd.AddCommand(xpAwardCmd, xpHistoryCmd, xpShowCmd)
	rootCmd.AddCommand(xpCmd)
}

var (
	xpSource string
	xpLimit  int
)

var xpCmd = &cobra.Command{
	Use:   "xp",
	Short: "Award and inspect experience points",
}

var xpAwardCmd = &cobra.Command{
	Use:   "award <user> <amount>",
	Short: "Add XP to a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runXPAward,
}

var xpHistoryCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "List a user's most recent XP events",
	Args:  cobra.ExactArgs(1),
	RunE:  runXPHistory,
}

var xpShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's XP total and title",
	Args:  cobra.ExactArgs(1),
	RunE:  runXPShow,
}

func runXPAward(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be an integer, got %q", args[1])
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	award, err := d.Service.AwardXP(cmd.Context(), args[0], amount, domain.XPSource(xpSource))
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), award, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "AWARDED\t+%d (%s)\n", award.Event.Amount, award.Event.Source)
		if award.RankedUp {
			fmt.Fprintf(tw, "RANK UP\t%s\n", titleLabel(award.Title.Current))
		}
		writeTitleStatus(tw, award.Title)
	})
}

func runXPHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	events, err := d.Service.XPHistory(cmd.Context(), args[0], xpLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 && output == formatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "No XP yet. Run 'quizhub xp award %s <amount>' to add some.\n", args[0])
		return nil
	}
	return render(cmd.OutOrStdout(), events, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "WHEN\tAMOUNT\tSOURCE\tID")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t+%d\t%s\t%s\n", formatTime(e.CreatedAt), e.Amount, e.Source, e.ID)
		}
	})
}

func runXPShow(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	st, err := d.Service.Title(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), st, func(tw *tabwriter.Writer) {
		writeTitleStatus(tw, st)
	})
}
