package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(titleCmd)
	rootCmd.AddCommand(titlesCmd)
}

var titleCmd = &cobra.Command{
	Use:   "title <xp>",
	Short: "Show the title for an XP total",
	Args:  cobra.ExactArgs(1),
	RunE:  runTitle,
}

var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "List the title ladder",
	Args:  cobra.NoArgs,
	RunE:  runTitles,
}

func runTitle(cmd *cobra.Command, args []string) error {
	xp, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("xp must be an integer, got %q", args[0])
	}
	ladder, err := cfg.Ladder()
	if err != nil {
		return err
	}

	st := ladder.Status(xp)
	return render(cmd.OutOrStdout(), st, func(tw *tabwriter.Writer) {
		writeTitleStatus(tw, st)
	})
}

func runTitles(cmd *cobra.Command, args []string) error {
	ladder, err := cfg.Ladder()
	if err != nil {
		return err
	}

	ranks := ladder.Ranks()
	return render(cmd.OutOrStdout(), ranks, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "MIN XP\tTITLE\tCOLOR")
		for _, r := range ranks {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", r.MinXP, titleLabel(r), orDash(r.Color))
		}
	})
}
