package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/advisor"
	"github.com/ihavespoons/seance/internal/autopilot"
	"github.com/ihavespoons/seance/internal/config"
	"github.com/ihavespoons/seance/internal/detect"
	"github.com/ihavespoons/seance/internal/history"
	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/prompts"
	"github.com/ihavespoons/seance/internal/session"
	"github.com/ihavespoons/seance/internal/transcript"
)

var autoCmd = &cobra.Command{
	Use:   "auto <command> [args...]",
	Short: "Run a command in full autopilot mode",
	Long: `Run a command attached to a pseudo-terminal in full autopilot mode.

Detected questions are sent to the advisor and the answer is typed back
into the command's terminal after the configured response delay.

Example:
  seance auto claude`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(args, true)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <command> [args...]",
	Short: "Run a command in watch-only mode",
	Long: `Run a command attached to a pseudo-terminal in watch-only mode.

Detected questions are sent to the advisor and the suggested answer is
displayed, but nothing is ever typed into the command's terminal.

Example:
  seance watch "npm run dev"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(args, false)
	},
}

func init() {
	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(watchCmd)
}

func runSession(args []string, autoRespond bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := ensureDataDir(cfg); err != nil {
		return err
	}

	logFile := cfg.Settings.LogFile
	if logFile == "" {
		logFile = logger.SessionLogFile(cfg.DataDir())
	}
	logLevel := cfg.Settings.LogLevel
	if verbose {
		logLevel = "debug"
	}
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	// Autopilot without a credential cannot do anything useful; fail fast
	// before a child process is spawned.
	if autoRespond {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
	}

	detector, err := detect.New(cfg.Detect.ExtraPatterns)
	if err != nil {
		return err
	}

	buf, err := transcript.Open(cfg.BufferPath(), cfg.Session.TailLines)
	if err != nil {
		return err
	}
	defer func() { _ = buf.Close() }()

	command := strings.Join(args, " ")
	buf.AppendLine(fmt.Sprintf("[%s] starting: %s", time.Now().Format("2006-01-02 15:04:05"), command))

	var adv autopilot.Advisor
	if cfg.Advisor.APIKey != "" {
		adv = advisor.NewClient(cfg.Advisor)
	}

	mode := "watch"
	if autoRespond {
		mode = "auto"
	}
	printBanner(cfg, command, mode)

	// Session history is best-effort; a broken database must not prevent
	// a session from running.
	var store history.Store
	var rec *history.Record
	if s, err := history.NewSQLiteStore(cfg.HistoryPath()); err != nil {
		logger.Warn().Err(err).Msg("Session history unavailable")
	} else {
		store = s
		defer func() { _ = store.Close() }()
		if r, err := store.StartSession(command, mode); err != nil {
			logger.Warn().Err(err).Msg("Failed to record session start")
		} else {
			rec = r
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Spawn(args, buf, cfg.TypeDelay())
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	go sess.Relay()

	// An interrupt kills the child; the relay then drains and the
	// orchestrator loop ends on its own.
	go func() {
		<-ctx.Done()
		sess.Kill()
	}()

	orch := autopilot.New(sess, adv, buf, detector, autopilot.Options{
		AutoRespond:   autoRespond,
		StartupDelay:  cfg.StartupDelay(),
		ResponseDelay: cfg.ResponseDelay(),
		Cooldown:      cfg.Cooldown(),
		ContextLines:  cfg.Session.ContextLines,
		SystemPrompt:  prompts.Load(cfg.SystemPromptPath()),
	})

	result, runErr := orch.Run(ctx)

	// Drain any chunks still queued so the relay can finish, then wait
	// for the child's exit status.
	go func() {
		for range sess.Output() {
		}
	}()
	sess.Kill()
	<-sess.Done()

	if rec != nil {
		if err := store.FinishSession(rec.ID, sess.ExitCode(), result.QuestionsDetected, result.AnswersTyped); err != nil {
			logger.Warn().Err(err).Msg("Failed to record session end")
		}
	}

	if runErr != nil && ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\n[seance] interrupted")
		return nil
	}

	if code := sess.ExitCode(); code != 0 {
		// A failing child is still a normal end of session.
		fmt.Fprintf(os.Stderr, "\n[seance] command exited with status %d\n", code)
	}
	fmt.Fprintf(os.Stderr, "[seance] session over: %d questions, %d answers typed\n",
		result.QuestionsDetected, result.AnswersTyped)

	return nil
}

func printBanner(cfg *config.Config, command, mode string) {
	fmt.Fprintf(os.Stderr, "seance %s mode\n", mode)
	fmt.Fprintf(os.Stderr, "   command:        %s\n", command)
	if cfg.Advisor.APIKey != "" {
		fmt.Fprintf(os.Stderr, "   model:          %s\n", cfg.Advisor.Model)
	} else {
		fmt.Fprintf(os.Stderr, "   model:          (no API key; questions will only be flagged)\n")
	}
	fmt.Fprintf(os.Stderr, "   response delay: %ds\n", cfg.Session.ResponseDelaySec)
	fmt.Fprintf(os.Stderr, "   startup delay:  %ds\n", cfg.Session.StartupDelaySec)
	fmt.Fprintln(os.Stderr, "\nPress Ctrl+C to exit")
	fmt.Fprintln(os.Stderr, strings.Repeat("=", 40))
}

// ensureDataDir creates the data directory tree and the default system
// prompt on first use.
func ensureDataDir(cfg *config.Config) error {
	dataDir := cfg.DataDir()
	for _, dir := range []string{dataDir, dataDir + "/logs"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := prompts.WriteDefault(cfg.SystemPromptPath()); err != nil {
		return fmt.Errorf("failed to write default system prompt: %w", err)
	}
	return nil
}
