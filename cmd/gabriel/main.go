package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "gabriel",
		Short: "LittleGabriel API server",
		Long: `gabriel serves the LittleGabriel API: accounts and sessions,
prayer requests, the Bible content proxy and pastoral counsel.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a gabriel.yaml file")

	rootCmd.AddCommand(
		serveCmd(&configFile),
		migrateCmd(&configFile),
		usersCmd(&configFile),
		checkCmd(&configFile),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%s", err)
		os.Exit(1)
	}
}
