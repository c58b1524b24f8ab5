package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "polymath",
	Short: "Project suggestions from your skills and interests",
	Long: "Polymath combines what you can do with what you keep thinking about and " +
		"proposes scored project ideas, steering away from what it suggested before.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func defaultUser() string {
	if u := os.Getenv("POLYMATH_USER"); u != "" {
		return u
	}
	return "default"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $POLYMATH_CONFIG or ~/.polymath/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(), "User to act for")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(suggestionsCmd)
	rootCmd.AddCommand(interestsCmd)
	rootCmd.AddCommand(capabilitiesCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
}
