package converter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/conversion/domain"
)

const stderrTail = 2048

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	binary string
	policy *config.PolicyHolder
}

func NewFFmpeg(cfg config.Config, policy *config.PolicyHolder) domain.Converter {
	binary := strings.TrimSpace(cfg.Convert.FFmpegPath)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, policy: policy}
}

func (f *FFmpeg) Convert(ctx context.Context, in, out, format string) error {
	if !f.policy.Get().AllowsFormat(format) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, "-y", "-i", in, out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", domain.ErrConversionFailed, err, tail(stderr.String()))
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}
	return s
}
