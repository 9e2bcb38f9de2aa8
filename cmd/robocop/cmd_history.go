package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ryubing/robocop-go/internal/storage"
)

type historyFlags struct {
	days   int
	limit  int
	failed bool
	stats  bool
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	hf := &historyFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently analysed uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if !cfg.EnableDatabase {
				return fmt.Errorf("history is disabled (ENABLE_DATABASE=false)")
			}

			store, err := storage.New(cfg.DatabasePath, quietLogger())
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer func() { _ = store.Close() }()

			filter := &storage.Filter{GuildID: cfg.DiscordGuildID}
			if hf.failed {
				filter.Status = storage.StatusFailed
			}

			if hf.stats {
				return printStats(cmd, store, filter)
			}
			return printRecent(cmd, store, hf, filter)
		},
	}

	f := cmd.Flags()
	f.IntVar(&hf.days, "days", 7, "How many days back to look")
	f.IntVar(&hf.limit, "limit", 20, "Maximum number of rows")
	f.BoolVar(&hf.failed, "failed", false, "Only show failed analyses")
	f.BoolVar(&hf.stats, "stats", false, "Show statistics instead of rows")
	return cmd
}

func printRecent(cmd *cobra.Command, store *storage.Storage, hf *historyFlags, filter *storage.Filter) error {
	rows, err := store.RecentAnalyses(cmd.Context(), hf.days, hf.limit, filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintf(out, "No analyses in the last %d days.\n", hf.days)
		return nil
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		}).
		Headers("WHEN", "FILE", "AUTHOR", "RESULT", "GAME", "NOTES")
	for _, a := range rows {
		result := a.Status
		if a.Status == storage.StatusFailed {
			result = a.ErrorKind
		}
		t.Row(humanize.Time(a.Timestamp), a.Filename, a.Author, result, a.Game,
			fmt.Sprintf("%d critical, %d warnings", a.CriticalNotes, a.WarningNotes))
	}
	_, err = fmt.Fprintln(out, t.Render())
	return err
}

func printStats(cmd *cobra.Command, store *storage.Storage, filter *storage.Filter) error {
	st, err := store.GetStatistics(cmd.Context(), filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyses:    %s\n", humanize.Comma(int64(st.Total)))
	fmt.Fprintf(out, "Succeeded:   %d\n", st.ByStatus[storage.StatusOK])
	fmt.Fprintf(out, "Failed:      %d\n", st.ByStatus[storage.StatusFailed])
	fmt.Fprintf(out, "Downloaded:  %s\n", st.DownloadedHuman())
	if len(st.ByErrorKind) > 0 {
		fmt.Fprintln(out, "Errors:")
		for _, kind := range slices.Sorted(maps.Keys(st.ByErrorKind)) {
			fmt.Fprintf(out, "  %s: %d\n", kind, st.ByErrorKind[kind])
		}
	}
	if len(st.TopGames) > 0 {
		fmt.Fprintln(out, "Top games:")
		for i, g := range st.TopGames {
			fmt.Fprintf(out, "  %d. %s (%d)\n", i+1, g.Game, g.Count)
		}
	}
	return nil
}
