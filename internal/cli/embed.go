package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/engine"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed notes that have no vector for the current embedder",
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

		emb := newEmbedder(cmd.Context(), cfg, db, os.Stderr)
		if emb == nil {
			return fmt.Errorf("no embedder available")
		}

		n, err := engine.EmbedMissingNotes(cmd.Context(), db, emb, userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "embedded %d notes with %s\n", n, emb.Model())
		return nil
	},
}
