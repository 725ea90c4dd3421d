package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/config"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "seance",
	Short: "Terminal advisor bridge for AI coding assistants",
	Long: `Seance launches an interactive CLI coding assistant inside a
pseudo-terminal, watches its output for questions, consults an external
advisor API, and can type the answer back as if you had.

Run sessions with:
  seance auto <command>    autopilot: detect, consult, auto-respond
  seance watch <command>   watch only: detect and suggest, never type

Configure in:
  - ~/.seance/config.yaml (global)
  - .seance/config.yaml (project-specific)`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("seance %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Override project directory")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds the effective configuration for this invocation.
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	if configFile != "" {
		return loader.LoadFromFile(configFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
