package pdfutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrMergeWrite means the merged dossier could not be written.
var ErrMergeWrite = errors.New("pdf merge write failed")

// DossierSuffix ends every merged file name.
const DossierSuffix = "dossie.pdf"

var disableConfigDir sync.Once

// Files resolves and names documents in the shared directory.
type Files interface {
	NewName(suffix string) string
	Path(name string) (string, error)
	Exists(name string) bool
}

// Merger concatenates stored PDFs into one dossier with pdfcpu.
type Merger struct {
	files  Files
	conf   *model.Configuration
	logger *slog.Logger
}

// NewMerger builds a Merger over files. A nil logger discards output.
func NewMerger(files Files, logger *slog.Logger) *Merger {
	disableConfigDir.Do(api.DisableConfigDir)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Merger{files: files, conf: conf, logger: logger}
}

// Merge writes the pages of names, in order, to a freshly named dossier and
// returns its name. Names that do not resolve to a readable PDF are skipped.
// With nothing left to merge it returns "" and no error.
func (m *Merger) Merge(ctx context.Context, names []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	inputs := make([]string, 0, len(names))
	for _, name := range names {
		if !m.files.Exists(name) {
			m.logger.DebugContext(ctx, "merge input missing", "file", name)
			continue
		}
		path, err := m.files.Path(name)
		if err != nil {
			continue
		}
		if err := api.ValidateFile(path, m.conf); err != nil {
			m.logger.WarnContext(ctx, "merge input is not a valid pdf", "file", name, "error", err)
			continue
		}
		inputs = append(inputs, path)
	}
	if len(inputs) == 0 {
		return "", nil
	}

	out := m.files.NewName(DossierSuffix)
	outPath, err := m.files.Path(out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMergeWrite, err)
	}
	if len(inputs) == 1 {
		if err := copyFile(inputs[0], outPath); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMergeWrite, err)
		}
		return out, nil
	}
	if err := api.MergeCreateFile(inputs, outPath, false, m.conf); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("%w: %v", ErrMergeWrite, err)
	}
	m.logger.InfoContext(ctx, "dossier merged", "file", out, "inputs", len(inputs))
	return out, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}
