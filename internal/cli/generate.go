package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/client"
	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/store"
	"github.com/lazypower/polymath/internal/telemetry"
)

var (
	generateRemote bool
	generateURL    string
	generateJSON   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a batch of project suggestions",
	Long: "Run one synthesis batch for the user. By default the engine runs in-process " +
		"against the local database; --remote asks a running server instead.",
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateRemote, "remote", false, "Generate on a running polymath server")
	generateCmd.Flags().StringVar(&generateURL, "url", "", "Server URL for --remote (default $POLYMATH_URL or "+client.DefaultServerURL+")")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print the result as JSON")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var (
		result *engine.Result
		err    error
	)
	if generateRemote {
		result, err = client.New(generateURL).Generate(cmd.Context(), userID)
	} else {
		result, err = generateLocal(cmd.Context())
	}
	if errors.Is(err, engine.ErrFatalPrecondition) {
		return fmt.Errorf("%w\nadd capabilities with 'polymath capabilities add' or 'polymath import'", err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if generateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printSuggestions(out, result.Suggestions)
	if result.Skipped > 0 {
		fmt.Fprintf(out, "%d slot(s) skipped after repeated failures.\n", result.Skipped)
	}
	return nil
}

func generateLocal(ctx context.Context) (*engine.Result, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tracing disabled: %v\n", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(sctx)
		}()
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	eng, err := newEngine(ctx, cfg, db)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, userID)
}

// printSuggestions renders suggestions as a numbered list, best first as
// given.
func printSuggestions(w io.Writer, sugs []store.Suggestion) {
	if len(sugs) == 0 {
		fmt.Fprintln(w, "No suggestions.")
		return
	}

	for i, s := range sugs {
		tag := ""
		switch {
		case s.SlotType == "creative":
			tag = " [creative]"
		case s.IsWildcard:
			tag = " [wildcard]"
		}
		fmt.Fprintf(w, "%d. %s (%d pts)%s\n", i+1, s.Title, s.TotalPoints, tag)
		fmt.Fprintf(w, "   novelty %.2f  feasibility %.2f  interest %.2f\n",
			s.NoveltyScore, s.FeasibilityScore, s.InterestScore)
		if s.Description != "" {
			fmt.Fprintf(w, "   %s\n", oneLine(s.Description, 200))
		}
		fmt.Fprintln(w)
	}
}

// oneLine collapses whitespace and cuts s to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
