package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cara/internal/logging"
	"cara/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		asJSON bool
		filter logs.Filter
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent entries from the cara log file",
		Long: "Show recent entries from the cara log file.\n\n" +
			"Pass the correlation ID printed by a failed `cara generate` to see every\n" +
			"entry for that request, including retries and key diagnostics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return errors.New("no log directory configured")
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)

			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printEntries(out, result.Entries, asJSON); err != nil {
				return err
			}
			if !follow {
				if len(result.Entries) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No matching log entries")
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   time.Minute,
					Filter: filter,
				})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				offset = next.Offset
				if err := printEntries(out, next.Entries, asJSON); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON lines")
	cmd.Flags().StringVar(&filter.CorrelationID, "correlation-id", "", "Only entries for this request")
	cmd.Flags().StringVarP(&filter.Provider, "provider", "p", "", "Only entries for this provider")
	cmd.Flags().StringVar(&filter.Section, "section", "", "Only entries for this section")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

func printEntries(w io.Writer, entries []logs.Entry, raw bool) error {
	for _, entry := range entries {
		var err error
		if raw || entry.Level == "" {
			_, err = fmt.Fprintln(w, entry.Raw)
		} else {
			_, err = fmt.Fprintln(w, formatEntry(entry))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func formatEntry(entry logs.Entry) string {
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, "[%s] ", entry.Component)
	}
	b.WriteString(entry.Message)
	for _, part := range []struct{ key, value string }{
		{logging.FieldProvider, entry.Provider},
		{logging.FieldSection, entry.Section},
		{logging.FieldCorrelationID, entry.CorrelationID},
	} {
		if part.value != "" {
			fmt.Fprintf(&b, " %s=%s", part.key, part.value)
		}
	}
	keys := make([]string, 0, len(entry.Attrs))
	for key := range entry.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Attrs[key])
	}
	return b.String()
}
