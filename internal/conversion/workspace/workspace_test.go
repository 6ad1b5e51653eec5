package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallbiznis/talechto/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(config.Config{Convert: config.ConvertConfig{WorkDir: filepath.Join(t.TempDir(), "temp")}})
	require.NoError(t, err)
	return ws
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "my-song.wav", SafeName("My Song.WAV"))
	assert.Equal(t, "passwd", SafeName("../../etc/passwd"))
	assert.Equal(t, "evil.mp3", SafeName(`C:\tmp\evil.mp3`))
	assert.Equal(t, "upload.ogg", SafeName("???.ogg"))
	assert.Equal(t, "upload", SafeName(""))
}

func TestJobPathsAreUniqueAndScoped(t *testing.T) {
	ws := newWorkspace(t)
	a := ws.NewJob("a.wav", "mp3")
	b := ws.NewJob("a.wav", "mp3")

	assert.NotEqual(t, a.InputPath, b.InputPath)
	assert.NotEqual(t, a.OutputPath, b.OutputPath)
	assert.Equal(t, ws.Dir(), filepath.Dir(a.InputPath))
	assert.True(t, strings.HasPrefix(filepath.Base(a.InputPath), InputPrefix+a.ID+"_"))
	assert.Equal(t, OutputPrefix+a.ID+".mp3", filepath.Base(a.OutputPath))
}

func TestReleaseRemovesArtifacts(t *testing.T) {
	ws := newWorkspace(t)
	job := ws.NewJob("a.wav", "ogg")

	n, err := job.WriteInput(strings.NewReader("RIFF"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.NoError(t, os.WriteFile(job.OutputPath, []byte("OggS"), 0o600))

	core, logs := observer.New(zap.WarnLevel)
	job.Release(zap.New(core))

	for _, p := range []string{job.InputPath, job.OutputPath} {
		_, err := os.Stat(p)
		assert.True(t, errors.Is(err, os.ErrNotExist), p)
	}
	assert.Zero(t, logs.Len())

	// Releasing twice is quiet.
	job.Release(zap.New(core))
	assert.Zero(t, logs.Len())
}
