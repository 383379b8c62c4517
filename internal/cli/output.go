package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quizhub/quizhub/internal/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table with a tabwriter.
func render(w io.Writer, v interface{}, table func(tw *tabwriter.Writer)) error {
	switch output {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// parseDay resolves --date, defaulting to today in the configured timezone.
func parseDay(raw string) (domain.Date, error) {
	if raw != "" {
		return domain.ParseDate(raw)
	}
	loc, err := cfg.Location()
	if err != nil {
		return domain.Date{}, err
	}
	return domain.Today(loc), nil
}

func titleLabel(r domain.TitleRank) string {
	if r.Emoji == "" {
		return r.Title
	}
	return r.Emoji + " " + r.Title
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeTitleStatus(tw *tabwriter.Writer, st domain.TitleStatus) {
	fmt.Fprintf(tw, "XP\t%d\n", st.TotalXP)
	fmt.Fprintf(tw, "TITLE\t%s\n", titleLabel(st.Current))
	if st.Next == nil {
		fmt.Fprintf(tw, "NEXT\tmax rank reached\n")
		return
	}
	fmt.Fprintf(tw, "NEXT\t%s (%d XP to go)\n", titleLabel(st.Next.TitleRank), st.Next.XPNeeded)
	fmt.Fprintf(tw, "PROGRESS\t%.0f%%\n", st.Progress)
}

func writeStreakView(tw *tabwriter.Writer, v domain.StreakView) {
	fmt.Fprintf(tw, "DAY\t%s\n", v.Today)
	fmt.Fprintf(tw, "STATUS\t%s\n", v.Status)
	fmt.Fprintf(tw, "STREAK\t%d (longest %d)\n", v.CurrentStreak, v.LongestStreak)
	fmt.Fprintf(tw, "LAST COMPLETION\t%s\n", orDash(v.LastCompletion.String()))
	fmt.Fprintf(tw, "DONE TODAY\t%t\n", v.HasCompletedToday)
	fmt.Fprintf(tw, "FREEZES\t%d (usable now: %t)\n", v.FreezesRemaining, v.CanUseFreeze)
	fmt.Fprintf(tw, "THIS MONTH\t%d/%d days (%d%%)\n", v.MonthlyCount, v.DaysElapsedInMonth, v.MonthlyPercentage)
	fmt.Fprintf(tw, "TOTAL QUIZ DAYS\t%d\n", v.TotalQuizDays)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
