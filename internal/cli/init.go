package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/config"
	"github.com/ihavespoons/seance/internal/logger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and a starter config",
	Long: `Create the data directory, a starter global config file and the
default system prompt. Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	if err := ensureDataDir(cfg); err != nil {
		return err
	}
	fmt.Printf("[seance] data directory ready: %s\n", cfg.DataDir())

	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return err
	}
	path := loader.GlobalConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("[seance] config already exists: %s\n", path)
	} else {
		if err := config.WriteStarter(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("[seance] wrote starter config: %s\n", path)
	}

	fmt.Printf("[seance] system prompt: %s\n", cfg.SystemPromptPath())
	if cfg.Advisor.APIKey == "" {
		fmt.Println("\nSet your API key in the config file or via SEANCE_API_KEY.")
	}
	return nil
}
