package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/epub2zip/internal/epub"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var withMetadata bool

	cmd := &cobra.Command{
		Use:   "plan [files or directories...]",
		Short: "Show the output names a conversion would use",
		Long: `Prints the archive name each EPUB would receive, together with the volume
number it was ordered by. Nothing is written.`,
		Example: `  epub2zip plan ./books
  epub2zip plan ./books --metadata`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			uploads, err := collectInputs(args)
			if err != nil {
				return err
			}

			sess := session.New(cfg.SessionOptions())
			data := make(map[string][]byte, len(uploads))
			var rejected []session.Rejection
			for _, u := range uploads {
				f, err := sess.AddFile(u.Name, u.Data)
				if err != nil {
					rejected = append(rejected, session.Rejection{Name: u.Name, Reason: err.Error()})
					continue
				}
				data[f.ID] = u.Data
			}
			warnRejected(cmd.ErrOrStderr(), rejected)
			if len(data) == 0 {
				return errors.New("no convertible files")
			}
			extractor := epub.New(epub.Options{MaxEntrySize: cfg.MaxEntrySize})

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range sess.Plan() {
				line := fmt.Sprintf("%s <- %s\t%d", m.OutputName, m.OriginalName, m.PrimaryNumber)
				if withMetadata {
					line += "\t" + describe(cmd, extractor, data[m.FileID])
				}
				fmt.Fprintln(tw, line)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&withMetadata, "metadata", false, "Also show title, authors and image count")

	return cmd
}

func describe(cmd *cobra.Command, extractor *epub.Extractor, data []byte) string {
	ext, err := extractor.Extract(cmd.Context(), data)
	if err != nil {
		return "unreadable: " + err.Error()
	}
	title := ext.Metadata.Title
	if title == "" {
		title = "(untitled)"
	}
	if len(ext.Metadata.Authors) > 0 {
		title += " / " + strings.Join(ext.Metadata.Authors, ", ")
	}
	return fmt.Sprintf("%s\t%d images", title, len(ext.Images))
}
