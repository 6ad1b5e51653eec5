package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	"go.uber.org/zap"
)

// Janitor removes conversion artifacts that outlived their request, which
// only happens when the process died mid-conversion.
type Janitor struct {
	dir    string
	maxAge time.Duration
	clock  clock.Clock
	log    *zap.Logger
}

func NewJanitor(ws *workspace.Workspace, cfg Config, clk clock.Clock, log *zap.Logger) *Janitor {
	return &Janitor{
		dir:    ws.Dir(),
		maxAge: cfg.MaxAge,
		clock:  clk,
		log:    log.Named("scheduler.janitor"),
	}
}

// Sweep deletes stale artifacts and reports how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, err
	}

	cutoff := j.clock.Now().Add(-j.maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !isArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				j.log.Warn("failed to remove stale artifact", zap.String("path", path), zap.Error(err))
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func isArtifact(name string) bool {
	return strings.HasPrefix(name, workspace.InputPrefix) || strings.HasPrefix(name, workspace.OutputPrefix)
}
