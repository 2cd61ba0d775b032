package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"myperf/internal/tabular"
	"myperf/internal/util"

	"github.com/pkg/errors"
)

// Writer places per-query artifacts under one directory per run.
type Writer struct {
	BaseDir string
	Encoder tabular.Encoder

	now    func() time.Time
	create func(name string) (io.WriteCloser, error)
	mu     sync.Mutex
	runs   map[string]string
}

// maxRunDirAttempts bounds the collision suffix search.
const maxRunDirAttempts = 1000

// New creates a writer rooted at baseDir. A nil clock uses time.Now.
func New(baseDir string, clock func() time.Time) *Writer {
	if clock == nil {
		clock = time.Now
	}
	return &Writer{
		BaseDir: baseDir,
		Encoder: tabular.DefaultEncoder,
		now:     clock,
		create:  createFile,
		runs:    make(map[string]string),
	}
}

// NewRunID returns the run identifier for the current clock reading.
func (w *Writer) NewRunID() string {
	return util.RunStamp(w.now())
}

// RunDir returns the directory of runID, creating it on first use. When a
// directory with the same name already exists from another run, suffixes
// -1, -2, ... are tried.
func (w *Writer) RunDir(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" || strings.ContainsAny(runID, `/\`) {
		return "", errors.Errorf("invalid run id %q", runID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if dir, ok := w.runs[runID]; ok {
		return dir, nil
	}
	if err := os.MkdirAll(w.BaseDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", w.BaseDir)
	}
	base := filepath.Join(w.BaseDir, runID)
	for i := 0; i < maxRunDirAttempts; i++ {
		dir := base
		if i > 0 {
			dir = fmt.Sprintf("%s-%d", base, i)
		}
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			w.runs[runID] = dir
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrapf(err, "create run dir %s", dir)
		}
	}
	return "", errors.Errorf("no free run directory for %s after %d attempts", base, maxRunDirAttempts)
}

// Lookup returns the directory of runID if it has been created.
func (w *Writer) Lookup(runID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir, ok := w.runs[runID]
	return dir, ok
}

// Write encodes result into fileName inside the run directory, replacing any
// previous content.
func (w *Writer) Write(runID, queryID, fileName string, result tabular.Result) (string, error) {
	path, err := w.path(runID, fileName)
	if err != nil {
		return "", errors.Wrapf(err, "write %s", queryID)
	}
	err = w.writeFile(path, func(out io.Writer) error {
		return w.Encoder.Encode(out, result)
	})
	if err != nil {
		return "", errors.Wrapf(err, "write %s", queryID)
	}
	util.Detailf("report wrote query=%s rows=%d path=%s", queryID, len(result.Rows), path)
	return path, nil
}

// WriteRaw writes text verbatim into fileName inside the run directory.
func (w *Writer) WriteRaw(runID, fileName, text string) (string, error) {
	path, err := w.path(runID, fileName)
	if err != nil {
		return "", err
	}
	err = w.writeFile(path, func(out io.Writer) error {
		_, err := io.WriteString(out, text)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "write %s", fileName)
	}
	return path, nil
}

// writeFile truncates path and fills it; a failed close fails the write.
func (w *Writer) writeFile(path string, fill func(io.Writer) error) (err error) {
	f, err := w.create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()
	return fill(f)
}

func createFile(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func (w *Writer) path(runID, fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return "", errors.Errorf("invalid file name %q", fileName)
	}
	dir, err := w.RunDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}
