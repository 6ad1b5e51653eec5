package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/talechto/internal/config"
	"go.uber.org/zap"
)

const (
	InputPrefix  = "in_"
	OutputPrefix = "out_"
)

// Workspace is the scratch directory holding per-job artifacts.
type Workspace struct {
	dir string
}

func New(cfg config.Config) (*Workspace, error) {
	dir := strings.TrimSpace(cfg.Convert.WorkDir)
	if dir == "" {
		dir = "./temp"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Job owns the input and output artifacts of one conversion.
type Job struct {
	ID         string
	InputPath  string
	OutputPath string
}

// NewJob reserves collision-free artifact paths. Nothing is created on disk.
func (w *Workspace) NewJob(filename, format string) *Job {
	id := strings.ToLower(ulid.Make().String())
	return &Job{
		ID:         id,
		InputPath:  filepath.Join(w.dir, InputPrefix+id+"_"+SafeName(filename)),
		OutputPath: filepath.Join(w.dir, OutputPrefix+id+"."+format),
	}
}

// WriteInput streams src into the job's input artifact.
func (j *Job) WriteInput(src io.Reader) (int64, error) {
	f, err := os.OpenFile(j.InputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

// Release removes both artifacts. Failures are logged, never returned.
func (j *Job) Release(log *zap.Logger) {
	for _, path := range []string{j.InputPath, j.OutputPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove conversion artifact",
				zap.String("job_id", j.ID),
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// SafeName reduces an uploaded filename to a slug that is safe on disk,
// keeping the extension so the decoder can use it as a hint.
func SafeName(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := filepath.Ext(filename)
	base := slug.Make(strings.TrimSuffix(filename, ext))
	if base == "" {
		base = "upload"
	}
	if ext = slug.Make(strings.TrimPrefix(ext, ".")); ext != "" {
		return base + "." + ext
	}
	return base
}
