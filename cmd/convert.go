package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/events"
	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/report"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir      string
		concurrency int
		level       int
		bundle      bool
		bundleName  string
		reportPath  string
	)

	cmd := &cobra.Command{
		Use:   "convert [files or directories...]",
		Short: "Convert EPUB files into numbered ZIP archives",
		Long: `Extracts the images of each EPUB and writes one ZIP archive per book.

Archives are named by volume order (001.zip, 002.zip, ...). A file that fails
does not stop the rest of the batch.`,
		Example: `  # Convert every EPUB in a directory
  epub2zip convert ./books --out ./converted

  # Also write a single bundle and a Parquet report
  epub2zip convert vol1.epub vol2.epub --bundle --report report.parquet`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("out") {
				cfg.OutputDir = outDir
			}
			if flags.Changed("concurrency") {
				cfg.MaxConcurrentJobs = concurrency
			}
			if flags.Changed("level") {
				cfg.CompressionLevel = level
			}
			if flags.Changed("bundle-name") {
				cfg.BundleName = bundleName
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			uploads, err := collectInputs(args)
			if err != nil {
				return err
			}

			sess := session.New(cfg.SessionOptions())
			added, rejected := sess.AddFiles(uploads)
			warnRejected(cmd.ErrOrStderr(), rejected)
			if len(added) == 0 {
				return errors.New("no convertible files")
			}
			sess.Bus().Subscribe(logStatus)

			summary, runErr := sess.Convert(cmd.Context())

			if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			results := sess.Results()
			for _, res := range results {
				if !res.Success {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %s\n", res.OriginalName, res.Error)
					continue
				}
				if err := writeArchive(cfg.OutputDir, res.FileName, res.Archive); err != nil {
					return err
				}
			}

			if bundle {
				art, err := sess.DownloadAll()
				switch {
				case errors.Is(err, archive.ErrNothingToAggregate):
					slog.Warn("Nothing to bundle")
				case err != nil:
					return err
				case art.Wrapped:
					if err := writeArchive(cfg.OutputDir, art.Name, art.Data); err != nil {
						return err
					}
				}
			}

			if reportPath != "" {
				if err := report.Write(reportPath, report.Build(summary, results, cfg)); err != nil {
					return err
				}
				slog.Info("Report written", "path", reportPath)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d succeeded, %d failed\n", summary.Succeeded, summary.Failed)
			if runErr != nil {
				return runErr
			}
			if summary.Succeeded == 0 {
				return errors.New("no files converted")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "converted", "Directory for the output archives")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 3, "Books converted at the same time")
	cmd.Flags().IntVarP(&level, "level", "l", 6, "Deflate level (0 stores without compression)")
	cmd.Flags().BoolVar(&bundle, "bundle", false, "Also write one archive containing every result")
	cmd.Flags().StringVar(&bundleName, "bundle-name", archive.DefaultBundleName, "File name of the bundle archive")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a batch report (.yaml, .json or .parquet)")

	return cmd
}

func writeArchive(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Debug("Wrote archive", "path", path, "size", len(data))
	return nil
}

func logStatus(e events.Event) {
	if e.Type != events.TypeStatus {
		return
	}
	switch e.Status {
	case models.StatusCompleted:
		slog.Info("Converted", "file", e.FileName, "output", e.OutputName)
	case models.StatusError:
		slog.Warn("Conversion failed", "file", e.FileName, "err", e.Message)
	}
}
