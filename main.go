package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unb-libraries/NBNDProcessor/config"
	"github.com/unb-libraries/NBNDProcessor/internal/processor"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// processorFactory builds the processor for one invocation.
type processorFactory func(metadataPath, targetPath string, opts ...processor.Option) (processor.Processor, error)

func newIssueProcessor(metadataPath, targetPath string, opts ...processor.Option) (processor.Processor, error) {
	return processor.New(metadataPath, targetPath, opts...)
}

// usageError marks errors caused by how the program was invoked.
type usageError struct {
	error
}

func (e usageError) Unwrap() error { return e.error }

func newRootCmd(newProcessor processorFactory) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "nbnd-processor <metadataFilePath> <targetPath>",
		Short: "Convert a newspaper issue into an Islandora newspaper batch",
		Long: `nbnd-processor reads the YAML metadata file of one newspaper issue, collects
its page scans and writes the issue into targetPath in the Islandora newspaper
batch layout: an issue MODS record and one directory per page holding the OBJ
master, the page MODS record and the configured derivatives.

targetPath is a local directory or a b2://bucket/prefix or s3://bucket/prefix
location. Every flag can also be set through an NBND_ environment variable,
e.g. NBND_LOG_LEVEL=debug.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageError{fmt.Errorf("expected <metadataFilePath> <targetPath>, received %d argument(s)", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("fail to bind flags: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(cmd, v, newProcessor, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "config.json", "path to the JSON configuration file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.Bool("force", false, "rewrite pages even when their outputs are up to date")
	flags.Bool("dry-run", false, "plan the pages and log the layout without writing")
	flags.Bool("progress", false, "show a page progress bar on stderr")
	flags.String("env-file", "", "load environment variables from this file (default: .env when present)")

	v.SetEnvPrefix("NBND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func runIssue(cmd *cobra.Command, v *viper.Viper, newProcessor processorFactory, metadataPath, targetPath string) error {
	if envFile := v.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("fail to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // .env is optional
	}

	logger, err := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"), v.GetString("log-format"))
	if err != nil {
		return usageError{err}
	}
	slog.SetDefault(logger)

	cfgPath := v.GetString("config")
	if !cmd.Flags().Changed("config") && !v.IsSet("config") {
		if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
			cfgPath = ""
		}
	}
	cfg, err := config.InitConfig(cfgPath)
	if err != nil {
		return err
	}
	if v.GetBool("force") {
		cfg.ForceRewrite = true
	}

	opts := []processor.Option{
		processor.WithConfig(cfg),
		processor.WithLogger(logger),
		processor.WithDryRun(v.GetBool("dry-run")),
	}
	if v.GetBool("progress") {
		opts = append(opts, processor.WithProgress(cmd.ErrOrStderr()))
	}

	p, err := newProcessor(metadataPath, targetPath, opts...)
	if errors.Is(err, processor.ErrEmptyMetadataPath) || errors.Is(err, processor.ErrEmptyTargetPath) {
		return usageError{err}
	}
	if err != nil {
		return err
	}

	logger.Info("starting issue processor",
		slog.String("version", version),
		slog.String("metadata_path", metadataPath),
		slog.String("target_path", targetPath),
		slog.String("config_path", cfgPath),
	)

	result, err := p.Process(cmd.Context())
	if result.HasFailures() {
		if err == nil {
			err = errors.New("page processing failed")
		}
		return fmt.Errorf("%d of %d page(s) failed: %w", result.Failed, result.Planned, err)
	}
	return err
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level '%s'", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format '%s'", format)
	}
}

// execute runs cmd with args and maps its outcome to an exit status.
func execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return exitUsage
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(newIssueProcessor), os.Args[1:])
	stop()
	os.Exit(code)
}
