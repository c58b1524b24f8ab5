package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/engine"
)

var interestsCmd = &cobra.Command{
	Use:   "interests",
	Short: "Show interests extracted from recent notes",
	Long: "Extract the user's interests from topic mentions inside the configured window. " +
		"The result is also written back as the user's interest markers.",
	Args: cobra.NoArgs,
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

		// Extraction needs the store only; no LLM client.
		eng := engine.New(db, nil, engine.OptionsFromConfig(cfg.Synthesis, cfg.Interests))
		interests, err := eng.Interests(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("extract interests: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(interests) == 0 {
			fmt.Fprintln(out, "No interests yet. Add notes with topics, or lower interests.min_mentions.")
			return nil
		}
		for _, in := range interests {
			fmt.Fprintf(out, "%-30s %-10s %3d mentions  strength %.1f\n", in.Name, in.Type, in.Mentions, in.Strength)
		}
		return nil
	},
}
