package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/seance/internal/logger"
	"github.com/ihavespoons/seance/internal/transcript"
)

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Print the full transcript buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuffer(0)
	},
}

var lastCmd = &cobra.Command{
	Use:   "last [n]",
	Short: "Print the last n transcript lines (default 25)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 25
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil || parsed < 1 {
				return fmt.Errorf("invalid line count %q", args[0])
			}
			n = parsed
		}
		return runBuffer(n)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the transcript buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClear()
	},
}

func init() {
	rootCmd.AddCommand(bufferCmd)
	rootCmd.AddCommand(lastCmd)
	rootCmd.AddCommand(clearCmd)
}

// runBuffer prints the transcript tail; n < 1 means everything.
func runBuffer(n int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	buf, err := transcript.Open(cfg.BufferPath(), cfg.Session.TailLines)
	if err != nil {
		return err
	}
	defer func() { _ = buf.Close() }()

	if buf.IsEmpty() {
		fmt.Println("[seance] buffer is empty")
		return nil
	}

	if n < 1 {
		lines, _, err := buf.Stats()
		if err != nil {
			return err
		}
		// Stats counts newlines; a file ending mid-line holds one more
		// line than that. Tail caps at what actually exists.
		n = lines + 1
	}

	for _, line := range buf.Tail(n) {
		fmt.Println(line)
	}
	return nil
}

func runClear() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	buf, err := transcript.Open(cfg.BufferPath(), cfg.Session.TailLines)
	if err != nil {
		return err
	}
	defer func() { _ = buf.Close() }()

	if err := buf.Clear(); err != nil {
		return err
	}
	fmt.Println("[seance] buffer cleared")
	return nil
}
