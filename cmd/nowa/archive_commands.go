package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nowa-go/internal/app"
)

// ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Archive new media from the configured source roots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, cfg, err := newApp(app.Options{Operation: "ingest"})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		report, err := a.Ingest(cmd.Context())
		if report != nil {
			fmt.Fprintln(cmd.OutOrStdout(), renderSessionReport(report, cfg.ArchivePath))
		}
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		if report.Failed() {
			return fmt.Errorf("session finished with %d error(s) and %d missing source root(s), see %s",
				report.Stats.Errors, len(report.MissingRoots), report.LogPath)
		}
		return nil
	},
}

// apply-tags command
var applyTagsCmd = &cobra.Command{
	Use:   "apply-tags FILE",
	Short: "Replace folder tags from an edited tag review file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(app.Options{Operation: "apply-tags", Parameters: args[0]})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		report, err := a.ApplyTags(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("applying tags: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated tags on %d media in %d folder(s); metadata export rewritten (%d records)\n",
			report.Replaced, report.Folders-len(report.Skipped), report.Exported)
		if len(report.Skipped) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d folder(s) with unknown source roots: %s\n",
				len(report.Skipped), strings.Join(report.Skipped, ", "))
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the archive directory against the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(app.Options{Operation: "verify", ReadOnly: true})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		result, err := a.Verify(cmd.Context())
		if err != nil {
			return fmt.Errorf("verifying archive: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderVerifyResult(result))
		if !result.OK() {
			return fmt.Errorf("archive does not match the database")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp(app.Options{Operation: "history", ReadOnly: true})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No operations recorded.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderHistory(ops))
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(app.Options{Operation: "stats", ReadOnly: true})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		counts, err := a.Counts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderCounts(counts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(applyTagsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(statsCmd)
}
