package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/epub2zip/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string
}

// load reads the layered configuration. Command flags are applied by the
// caller afterwards.
func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "epub2zip",
		Short: "Convert EPUB books into ordered ZIP archives of their images",
		Long: `epub2zip pulls every image out of a batch of EPUB files and packs each book
into its own ZIP archive. Output archives are named 001.zip, 002.zip, ... in the
order implied by the volume numbers found in the original file names.

It can run as a one-shot CLI or as an HTTP service with per-session uploads.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return setupLogging(opts.verbose, opts.logFormat)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(newConvertCmd(opts))
	cmd.AddCommand(newPlanCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

func setupLogging(verbose bool, format string) error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		return fmt.Errorf("unknown log format %q (supported: text, json)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
