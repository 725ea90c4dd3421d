package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/history"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

var sessionsLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and transcript state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent watch and autopilot sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessions(sessionsLimit)
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to list")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	fmt.Println("seance status")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("  data dir:       %s\n", cfg.DataDir())
	fmt.Printf("  api key:        %s\n", maskKey(cfg.Advisor.APIKey))
	fmt.Printf("  model:          %s\n", cfg.Advisor.Model)
	fmt.Printf("  response delay: %ds\n", cfg.Session.ResponseDelaySec)
	fmt.Printf("  startup delay:  %ds\n", cfg.Session.StartupDelaySec)
	fmt.Printf("  cooldown:       %ds\n", cfg.Session.CooldownSec)
	fmt.Printf("  context lines:  %d\n", cfg.Session.ContextLines)

	if buf, err := transcript.Open(cfg.BufferPath(), cfg.Session.TailLines); err == nil {
		if lines, size, err := buf.Stats(); err == nil {
			fmt.Printf("  buffer:         %d lines, %d bytes\n", lines, size)
		}
		_ = buf.Close()
	}

	store, err := history.NewSQLiteStore(cfg.HistoryPath())
	if err != nil {
		return nil
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListSessions(1)
	if err != nil || len(records) == 0 {
		return nil
	}
	last := records[0]
	fmt.Printf("  last session:   %s (%s), %d questions\n",
		last.Command, last.Mode, last.Questions)
	return nil
}

func runSessions(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	store, err := history.NewSQLiteStore(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListSessions(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("[seance] no sessions recorded yet")
		return nil
	}

	for _, rec := range records {
		ended := "running?"
		if !rec.EndedAt.IsZero() {
			ended = fmt.Sprintf("exit %d", rec.ExitCode)
		}
		fmt.Printf("%s  %-5s  %-8s  q=%d typed=%d  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04"),
			rec.Mode, ended, rec.Questions, rec.AnswersTyped, rec.Command)
	}
	return nil
}

// maskKey shows only enough of a credential to recognize it.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
