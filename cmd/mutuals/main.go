package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	harPath       string
	outputPath    string
	noGroups      bool
	noConnections bool
	metricsAddr   string
	logLevel      string

	rootCmd = &cobra.Command{
		Use:   "mutuals",
		Short: "Count shared groups and connections for every account seen in a HAR capture",
		Long: `mutuals reads a browser network capture, finds every account whose avatar
was requested, and asks the API, one account at a time and within its rate
limit, which groups and connections you share with each of them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPoll,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&harPath, "har", "", "HAR capture to read (default requests.har)")
	flags.StringVar(&outputPath, "out", "", "report file to write (default results.txt)")
	flags.BoolVar(&noGroups, "no-groups", false, "skip the shared-group lookup")
	flags.BoolVar(&noConnections, "no-connections", false, "skip the shared-connection lookup")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
