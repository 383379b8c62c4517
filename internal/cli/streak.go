package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quizhub/quizhub/internal/domain"
)

func init() {
	for _, c := range []*cobra.Command{streakShowCmd, streakCompleteCmd, streakFreezeCmd} {
		c.Flags().StringVar(&streakDate, "date", "", "Day to evaluate as YYYY-MM-DD (default: today)")
		streakCmd.AddCommand(c)
	}
	streakCmd.AddCommand(streakDaysCmd)
	rootCmd.AddCommand(streakCmd)
}

var streakDate string

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show and update daily quiz streaks",
}

var streakShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's streak",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreakShow,
}

var streakCompleteCmd = &cobra.Command{
	Use:   "complete <user>",
	Short: "Record a completed quiz for the day",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreakComplete,
}

var streakFreezeCmd = &cobra.Command{
	Use:   "freeze <user>",
	Short: "Spend a freeze to cover yesterday",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreakFreeze,
}

var streakDaysCmd = &cobra.Command{
	Use:   "days <user>",
	Short: "List every day the user completed a quiz",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreakDays,
}

func runStreakShow(cmd *cobra.Command, args []string) error {
	day, err := parseDay(streakDate)
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	view, err := d.Service.Streak(cmd.Context(), args[0], day)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), view, func(tw *tabwriter.Writer) {
		writeStreakView(tw, view)
	})
}

func runStreakComplete(cmd *cobra.Command, args []string) error {
	day, err := parseDay(streakDate)
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Service.CompleteActivity(cmd.Context(), args[0], day)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "RESULT\t%s\n", res.Message)
		writeStreakView(tw, res.Streak)
	})
}

func runStreakFreeze(cmd *cobra.Command, args []string) error {
	day, err := parseDay(streakDate)
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	view, err := d.Service.UseFreeze(cmd.Context(), args[0], day)
	var fe *domain.FreezeError
	if errors.As(err, &fe) {
		return fmt.Errorf("%w (%s)", err, freezeHint(fe.Reason))
	}
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), view, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "RESULT\tfreeze used, yesterday is covered\n")
		writeStreakView(tw, view)
	})
}

func runStreakDays(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	days, err := d.Service.CompletionDays(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(days) == 0 && output == formatTable {
		fmt.Fprintf(cmd.OutOrStdout(), "No completed days yet for %s.\n", args[0])
		return nil
	}
	return render(cmd.OutOrStdout(), days, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "DAY\tWEEKDAY")
		for _, day := range days {
			fmt.Fprintf(tw, "%s\t%s\n", day, day.Time().Weekday())
		}
		fmt.Fprintf(tw, "TOTAL\t%d\n", len(days))
	})
}

func freezeHint(r domain.FreezeReason) string {
	switch r {
	case domain.FreezeNoStreak:
		return "there is no active streak to protect"
	case domain.FreezeNoGap:
		return "yesterday is already covered"
	case domain.FreezeGapTooLarge:
		return "more than one day was missed"
	case domain.FreezeNoTokens:
		return "no freezes left this month"
	}
	return string(r)
}
