// Package cli implements enclavectl, a cobra-based client for the
// enclave sandbox server. Its subcommands cover most of the server's
// HTTP routes; the health, single-sandbox info, tool-schema and
// cleanup routes have no subcommand.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/modelscope/ms-enclave/internal/httpmanager"
)

var (
	verbose bool
	jsonLog bool
	apiURL  string
)

// RootCmd is the base enclavectl command.
var RootCmd = &cobra.Command{
	Use:   "enclavectl",
	Short: "Client and server for the enclave sandbox orchestration layer",
	Long: `enclavectl drives a running enclave sandbox server over HTTP:
create and tear down sandboxes, execute tools against them, manage the
warm pool, and run the server itself.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		if !jsonLog {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func client() *httpmanager.Client {
	return httpmanager.New(apiURL)
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "output logs in JSON format")
	RootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("ENCLAVE_API_URL", "http://localhost:8080"), "enclaved base URL")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
