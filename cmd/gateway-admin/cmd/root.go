// Package cmd implements the gateway-admin CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagServer  string
	flagAPIKey  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gateway-admin",
	Short: "Gateway administration CLI",
	Long: `gateway-admin manages a running gateway over its admin HTTP API.

It can inspect the security event log and traffic analytics, manage
blocked IP addresses, and handle the API key lifecycle.

The admin API requires an API key with the admin role.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("gateway-admin", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Gateway base URL (env: GATEWAY_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Admin API key (env: GATEWAY_API_KEY)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(trafficCmd)
	rootCmd.AddCommand(blockedIPsCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(keysCmd)
}

func initConfig() {
	if flagServer == "" {
		flagServer = os.Getenv("GATEWAY_URL")
	}
	if flagAPIKey == "" {
		flagAPIKey = os.Getenv("GATEWAY_API_KEY")
	}
}

func mustClient() *Client {
	if flagServer == "" {
		fmt.Fprintln(os.Stderr, "Error: gateway URL not configured. Use --server or GATEWAY_URL")
		os.Exit(1)
	}
	if flagAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key not configured. Use --api-key or GATEWAY_API_KEY")
		os.Exit(1)
	}
	return NewClient(flagServer, flagAPIKey, flagVerbose)
}
