package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

// collectInputs expands the command arguments into uploads. Directories are
// scanned one level deep for .epub files.
func collectInputs(args []string) ([]session.Upload, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".epub") {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		slices.Sort(found)
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files found")
	}

	uploads := make([]session.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		uploads = append(uploads, session.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

func warnRejected(w io.Writer, rejected []session.Rejection) {
	for _, r := range rejected {
		fmt.Fprintf(w, "warning: skipped %s: %s\n", r.Name, r.Reason)
	}
}
