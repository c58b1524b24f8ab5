package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/ingest"
)

var importEmbed bool

var importCmd = &cobra.Command{
	Use:   "import FILE.jsonl",
	Short: "Import capabilities and notes from a JSONL file",
	Long: `Import one JSON object per line:

  {"kind":"capability","name":"Go","strength":8,"source_project":"polymath"}
  {"kind":"note","body":"...","topics":[{"name":"sourdough","type":"topic"}],"created_at":"2026-01-02T15:04:05Z"}

Malformed lines are reported and skipped.`,
	Args: cobra.ExactArgs(1),
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

		im := &ingest.Importer{Store: db}
		if importEmbed {
			im.Embedder = newEmbedder(cmd.Context(), cfg, db, os.Stderr)
		}

		stats, err := im.ImportFile(cmd.Context(), userID, args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d capabilities, %d notes (%d mentions, %d embedded); %d malformed lines skipped\n",
			stats.Capabilities, stats.Notes, stats.Mentions, stats.Embedded, stats.Malformed)
		return err
	},
}

func init() {
	importCmd.Flags().BoolVar(&importEmbed, "embed", false, "Embed notes as they are imported")
}
