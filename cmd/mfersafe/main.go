// mfersafe supervises a local mfer-node process.
//
// It spawns the node with arguments derived from a persisted JSON config,
// streams the node's output to WebSocket and MQTT subscribers, and restarts
// the node with a new config on request from the HTTP API or an MQTT command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnvVar names the environment variable consulted when --config is not given.
const configEnvVar = "MFERSAFE_CONFIG"

// configFlag holds the value of the persistent --config flag.
var configFlag string

var rootCmd = &cobra.Command{
	Use:   "mfersafe",
	Short: "Supervise a local mfer-node process",
	Long: `mfersafe launches the mfer-node sidecar with arguments built from its
persisted config, relays the node's output to subscribers and restarts the
node with a new config without losing the output stream.

Configuration is read from --config, then $MFERSAFE_CONFIG. With neither set,
built-in defaults and MFERSAFE_* environment overrides are used.`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to the supervisor YAML config")
}

func main() {
	// Cancel on Ctrl+C or SIGTERM so serve can shut the node down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx)
	cancel()
	os.Exit(code)
}

// execute runs the root command and maps its error to an exit code.
func execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// getConfigPath returns the supervisor config path.
// The flag wins over MFERSAFE_CONFIG; an empty result means defaults only.
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return os.Getenv(configEnvVar)
}
