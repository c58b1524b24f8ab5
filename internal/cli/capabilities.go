package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/polymath/internal/store"
)

var (
	capDescription string
	capStrength    float64
	capProject     string
)

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities",
	Aliases: []string{"caps"},
	Short:   "List the user's capabilities",
	Args:    cobra.NoArgs,
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

		caps, err := db.ListCapabilities(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("list capabilities: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(caps) == 0 {
			fmt.Fprintln(out, "No capabilities. Add one with 'polymath capabilities add NAME'.")
			return nil
		}
		usage, err := db.CapabilityUsage(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("capability usage: %w", err)
		}
		for _, c := range caps {
			fmt.Fprintf(out, "%4d  %-30s strength %4.1f  used %3d", c.ID, c.Name, c.Strength, usage[c.ID])
			if c.SourceProject != "" {
				fmt.Fprintf(out, "  [%s]", c.SourceProject)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var capabilitiesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add or update a capability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if capStrength < 0 {
			return fmt.Errorf("strength cannot be negative: %g", capStrength)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		c := store.Capability{
			Name:          args[0],
			Description:   capDescription,
			Strength:      capStrength,
			SourceProject: capProject,
		}
		if err := db.UpsertCapability(cmd.Context(), userID, &c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "capability %d: %s (strength %.1f)\n", c.ID, c.Name, c.Strength)
		return nil
	},
}

func init() {
	capabilitiesAddCmd.Flags().StringVarP(&capDescription, "description", "d", "", "What the capability covers")
	capabilitiesAddCmd.Flags().Float64VarP(&capStrength, "strength", "s", 5, "Proficiency, roughly 0-10")
	capabilitiesAddCmd.Flags().StringVarP(&capProject, "project", "p", "", "Source project tag")
	capabilitiesCmd.AddCommand(capabilitiesAddCmd)
}
