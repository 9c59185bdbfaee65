package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/knowledge-share/backend/internal/config"
	"github.com/DeafMist/knowledge-share/backend/internal/logger"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

func main() {
	if err := newRootCmd(logger.New("cli")).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "kbctl",
		Short:         "Maintenance and content tools for the knowledge sharing platform",
		SilenceUsage: true,
	}

	var processorName string
	root.PersistentFlags().StringVar(&processorName, "processor", "deterministic", "content processor to use")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the schema to the configured database",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), log, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "improve [file]",
			Short: "Print the improved form of content read from file or stdin",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTransform(cmd, args, processorName, processing.Processor.Improve)
			},
		},
		&cobra.Command{
			Use:   "summarize [file]",
			Short: "Print the summary of content read from file or stdin",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTransform(cmd, args, processorName, processing.Processor.Summarize)
			},
		},
	)
	return root
}

func runMigrate(ctx context.Context, log *slog.Logger, out io.Writer) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Open applies the schema.
	db, err := store.Open(ctx, cfg.Driver, cfg.DSN, log)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = fmt.Fprintf(out, "schema applied (%s)\n", cfg.Driver)
	return err
}

func runTransform(cmd *cobra.Command, args []string, processorName string, fn func(processing.Processor, string) string) error {
	p, err := processing.New(processorName)
	if err != nil {
		return err
	}

	content, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), fn(p, content))
	return err
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}
