package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mfersafe-core/internal/infrastructure/config"
	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
)

var argsJSON bool

var argsCmd = &cobra.Command{
	Use:   "args",
	Short: "Print the node arguments built from the persisted config",
	Long: `Print the command line the supervisor would start mfer-node with.

The node config is read from supervisor.node_config_path, or
$HOME/.config/mfersafe.json. A missing or invalid document falls back to the
built-in defaults, exactly as serve does; the reason is printed to stderr.`,
	Args: cobra.NoArgs,
	RunE: runArgs,
}

func init() {
	argsCmd.Flags().BoolVar(&argsJSON, "json", false, "print path, config and args as JSON")
	rootCmd.AddCommand(argsCmd)
}

// argsOutput is the --json form of the args command.
type argsOutput struct {
	Path    string            `json:"path"`
	Default bool              `json:"default"`
	Config  nodeconfig.Config `json:"config"`
	Args    []string          `json:"args"`
}

func runArgs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path, err := nodeConfigPath(cfg)
	if err != nil {
		return err
	}

	nodeCfg, loadErr := nodeconfig.LoadStrict(path)
	if loadErr != nil {
		nodeCfg = nodeconfig.Default()
		fmt.Fprintf(cmd.ErrOrStderr(), "using default node config: %v\n", loadErr)
	}

	out := cmd.OutOrStdout()
	if argsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(argsOutput{
			Path:    path,
			Default: loadErr != nil,
			Config:  nodeCfg,
			Args:    nodeCfg.BuildArgs(),
		})
	}

	for _, arg := range nodeCfg.BuildArgs() {
		fmt.Fprintln(out, arg)
	}
	return nil
}

// nodeConfigPath returns the configured node config path or the default one.
func nodeConfigPath(cfg *config.Config) (string, error) {
	if cfg.Supervisor.NodeConfigPath != "" {
		return cfg.Supervisor.NodeConfigPath, nil
	}
	path, err := nodeconfig.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("resolving node config path: %w", err)
	}
	return path, nil
}
