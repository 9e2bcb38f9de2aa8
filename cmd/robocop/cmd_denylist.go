package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryubing/robocop-go/internal/denylist"
)

func newDenylistCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "denylist",
		Short: "Manage disabled application and build ids",
	}

	open := func() (*denylist.Store, error) {
		cfg, err := flags.loadConfig()
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		return denylist.Open(cfg.StateDir)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List disabled ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			set, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printIDs(cmd, "Application ids", set.AppIDs)
			printIDs(cmd, "Build ids", set.BuildIDs)
			if len(set.AppIDs) == 0 && len(set.BuildIDs) == 0 {
				fmt.Fprintln(out, "No ids are disabled.")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <app|build> <id>",
		Short: "Check whether an id is disabled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			var disabled bool
			switch args[0] {
			case "app":
				disabled, err = store.IsAppIDDisabled(args[1])
			case "build":
				disabled, err = store.IsBuildIDDisabled(args[1])
			default:
				return fmt.Errorf("unknown id kind %q, want app or build", args[0])
			}
			if err != nil {
				return err
			}
			state := "not disabled"
			if disabled {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[1], state)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <app|build> <id> [note...]",
		Short: "Disable an id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			note := strings.Join(args[2:], " ")
			var added bool
			switch args[0] {
			case "app":
				added, err = store.AddAppID(args[1], note)
			case "build":
				added, err = store.AddBuildID(args[1], note)
			default:
				return fmt.Errorf("unknown id kind %q, want app or build", args[0])
			}
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was already disabled\n", args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s disabled\n", args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <app|build> <id>",
		Short: "Re-enable an id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			var removed bool
			switch args[0] {
			case "app":
				removed, err = store.RemoveAppID(args[1])
			case "build":
				removed, err = store.RemoveBuildID(args[1])
			default:
				return fmt.Errorf("unknown id kind %q, want app or build", args[0])
			}
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not disabled\n", args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled\n", args[1])
			return nil
		},
	})

	return cmd
}

func printIDs(cmd *cobra.Command, title string, ids map[string]string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	for _, k := range keys {
		if note := ids[k]; note != "" {
			fmt.Fprintf(out, "  %s  %s\n", k, note)
		} else {
			fmt.Fprintf(out, "  %s\n", k)
		}
	}
}
