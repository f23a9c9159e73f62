package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/config"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/output"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/scan"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create loghist.toml and the index directory here",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			created, err := config.Scaffold(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(created) == 0 {
				fmt.Fprintln(out, "All files already exist, nothing to create.")
				return nil
			}
			for _, path := range created {
				fmt.Fprintf(out, "Created %s\n", path)
			}
			if config.DetectLogsRoot(dir) == "" {
				fmt.Fprintln(out, "No game data directory found; set [logs] root in loghist.toml.")
			}
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print a character's log entries in a time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			character, _ := flags.GetString("character")
			logType, _ := flags.GetString("type")
			fromFlag, _ := flags.GetString("from")
			toFlag, _ := flags.GetString("to")
			contains, _ := flags.GetStringSlice("contains")
			source, _ := flags.GetString("source")
			jsonOut, _ := flags.GetBool("json")

			now := time.Now()
			from, err := parseTimeFlag(fromFlag, false, now)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			to, err := parseTimeFlag(toFlag, true, now)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := scan.Params{
				Character: character,
				LogType:   logType,
				From:      from,
				To:        to,
				Contains:  contains,
				Source:    source,
			}
			return runScan(cmd.Context(), a.svc, p, output.New(cmd.OutOrStdout(), jsonOut, true))
		},
	}
	cmd.Flags().StringP("character", "c", "", "character name (required)")
	cmd.Flags().StringP("type", "t", "_Event", "log type, e.g. _Event, _Skills, Local")
	cmd.Flags().String("from", "today", "range start: date, date and time, \"today\" or a duration like -48h")
	cmd.Flags().String("to", "now", "range end (inclusive; a bare date means the end of that day)")
	cmd.Flags().StringSlice("contains", nil, "only entries containing all of these (case-insensitive)")
	cmd.Flags().String("source", "", "only entries spoken by this name")
	cmd.Flags().Bool("json", false, "print JSON lines")
	_ = cmd.MarkFlagRequired("character")
	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Show the day index of one monthly log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runIndex(cmd.Context(), a.svc, path, output.New(cmd.OutOrStdout(), jsonOut, true))
		},
	}
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List discovered monthly log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			character, _ := cmd.Flags().GetString("character")
			logType, _ := cmd.Flags().GetString("type")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runFiles(a.svc.Catalog(), character, logType, output.New(cmd.OutOrStdout(), jsonOut, true))
		},
	}
	cmd.Flags().StringP("character", "c", "", "character name (default: all)")
	cmd.Flags().StringP("type", "t", "", "log type (default: all)")
	cmd.Flags().Bool("json", false, "print JSON lines")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep day indexes current while the game is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			noTUI, _ := cmd.Flags().GetBool("no-tui")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.Watch.Enabled {
				return fmt.Errorf("watching is disabled ([watch] enabled = false)")
			}
			if !jsonOut && !noTUI && isTerminal(cmd.OutOrStdout()) {
				return runWatchTUI(cmd.Context(), a)
			}
			return runWatch(cmd.Context(), a, output.New(cmd.OutOrStdout(), jsonOut, true))
		},
	}
	cmd.Flags().Bool("json", false, "print notifications as JSON lines")
	cmd.Flags().Bool("no-tui", false, "print notifications as plain lines even on a terminal")
	return cmd
}

// openApp loads the configuration named by --config and wires the service.
func openApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, cmd.ErrOrStderr())
}
