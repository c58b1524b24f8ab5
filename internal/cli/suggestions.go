package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/client"
	"github.com/lazypower/polymath/internal/store"
)

var (
	suggestionsLimit  int
	suggestionsRemote bool
	runsLimit         int
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "List recent suggestions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sugs []store.Suggestion
		if suggestionsRemote {
			var err error
			sugs, err = client.New("").Suggestions(cmd.Context(), userID, suggestionsLimit)
			if err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sugs, err = db.RecentSuggestions(cmd.Context(), userID, suggestionsLimit)
			if err != nil {
				return fmt.Errorf("list suggestions: %w", err)
			}
		}
		printSuggestions(cmd.OutOrStdout(), sugs)
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent synthesis runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), userID, runsLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs yet.")
			return nil
		}
		for _, r := range runs {
			started := time.UnixMilli(r.StartedAt).Format(time.DateTime)
			fmt.Fprintf(out, "%s  %s  %-9s  %d/%d accepted, %d skipped",
				r.ID, started, r.Status, r.Accepted, r.Requested, r.Skipped)
			if r.Error != "" {
				fmt.Fprintf(out, "  (%s)", r.Error)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	suggestionsCmd.Flags().IntVarP(&suggestionsLimit, "limit", "n", 20, "Maximum number of suggestions")
	suggestionsCmd.Flags().BoolVar(&suggestionsRemote, "remote", false, "Read from a running polymath server")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs")
}
