package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/advisor"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/prompts"
	"github.com/ihavespoons/seance/internal/transcript"
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask the advisor a one-off question",
	Long: `Ask the advisor a one-off question without running a session.

The most recent transcript lines are sent as context, so you can ask
about output from a previous watch or autopilot run.

Example:
  seance ask "why did the last build fail?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	// Context is best-effort: no transcript yet just means an empty slate.
	var contextText string
	if buf, err := transcript.Open(cfg.BufferPath(), cfg.Session.TailLines); err == nil {
		contextText = buf.TailString(cfg.Session.ContextLines)
		_ = buf.Close()
	}

	client := advisor.NewClient(cfg.Advisor)

	fmt.Println("[seance] consulting advisor...")
	answer, err := client.Ask(ctx, prompts.Load(cfg.SystemPromptPath()), contextText, question)
	if err != nil {
		return fmt.Errorf("consultation failed: %w", err)
	}

	fmt.Println()
	fmt.Println(answer)
	return nil
}
