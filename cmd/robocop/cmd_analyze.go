package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryubing/robocop-go/internal/analyzer"
	"github.com/ryubing/robocop-go/internal/fetch"
	"github.com/ryubing/robocop-go/internal/notification"
)

type analyzeFlags struct {
	json   bool
	author string
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	af := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <file|url>",
		Short: "Analyse a log file and print the report",
		Long: "Analyse a Ryujinx log file from disk or from a URL and print the report the bot\n" +
			"would post. URLs are downloaded with the same byte range as in Discord.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readLog(cmd.Context(), flags, args[0])
			if err != nil {
				return err
			}

			report, err := analyzer.AnalyzeSafely(text)
			if err != nil {
				return fmt.Errorf("analysis failed (%s): %w", analyzer.ErrorKind(err), err)
			}
			if af.author != "" {
				report = report.WithFooter(af.author)
			}

			out := cmd.OutOrStdout()
			if af.json {
				return notification.WriteJSON(out, report)
			}
			return notification.NewTerminal(out).Render(report)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&af.json, "json", false, "Print the report as JSON")
	f.StringVar(&af.author, "author", "", "Uploader name for the report footer")
	return cmd
}

func readLog(ctx context.Context, flags *rootFlags, source string) (string, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("failed to read log file: %w", err)
		}
		return string(data), nil
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return "", fmt.Errorf("configuration error: %w", err)
	}
	fetcher, err := fetch.New(fetch.Config{
		HeadBytes:      int(cfg.FetchHeadBytes),
		TailBytes:      int(cfg.FetchTailBytes),
		MaxBytes:       cfg.FetchMaxBytes,
		TimeoutSeconds: cfg.FetchTimeoutSeconds,
		ProxyURL:       cfg.GetProxyURL(strings.HasPrefix(source, "https://")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to initialize fetcher: %w", err)
	}
	return fetcher.Fetch(ctx, source)
}
