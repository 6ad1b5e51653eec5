package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/config"
	"github.com/smallbiznis/talechto/internal/conversion/domain"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/talechto/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/talechto/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeRejected = "rejected"

	tierFree    = "free"
	tierPremium = "premium"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Policy    *config.PolicyHolder
	Quota     quotadomain.Service
	Activity  activitydomain.Service
	Converter domain.Converter
	Workspace *workspace.Workspace
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	policy    *config.PolicyHolder
	quota     quotadomain.Service
	activity  activitydomain.Service
	converter domain.Converter
	workspace *workspace.Workspace
	metrics   *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("conversion.service"),
		policy:    p.Policy,
		quota:     p.Quota,
		activity:  p.Activity,
		converter: p.Converter,
		workspace: p.Workspace,
		metrics:   p.Metrics,
	}
}

func (s *Service) Admit(ctx context.Context, principalID string) (quotadomain.Decision, error) {
	decision, err := s.quota.CheckLimit(ctx, principalID)
	if err != nil {
		return quotadomain.Decision{}, err
	}
	if !decision.Allowed {
		s.record(ctx, principalID, activitydomain.ActionLimitReached, "Daily limit reached")
		s.metrics.RecordQuotaDenied(ctx, "daily_limit")
		return decision, domain.ErrQuotaExceeded
	}
	return decision, nil
}

func (s *Service) Convert(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if req.Upload == nil || req.Upload.Open == nil {
		return nil, domain.ErrMissingFile
	}
	policy := s.policy.Get()
	log := obslogger.WithContext(ctx, s.log)

	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = policy.DefaultFormat
	}
	tier := tierFree
	if req.Decision.Unlimited {
		tier = tierPremium
	}

	if !policy.AllowsFormat(format) {
		s.record(ctx, req.PrincipalID, activitydomain.ActionConversionError,
			fmt.Sprintf("Unsupported format %q for %s", format, req.Upload.Filename))
		s.metrics.RecordConversion(ctx, "unsupported", outcomeRejected, tier, 0)
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}

	if !req.Decision.Unlimited && req.Upload.Size > policy.MaxUploadBytes {
		tooLarge := &domain.FileTooLargeError{SizeBytes: req.Upload.Size, LimitBytes: policy.MaxUploadBytes}
		s.record(ctx, req.PrincipalID, activitydomain.ActionSizeExceeded,
			fmt.Sprintf("%s: %d bytes", req.Upload.Filename, req.Upload.Size))
		s.metrics.RecordQuotaDenied(ctx, "file_size")
		return nil, tooLarge
	}

	s.record(ctx, req.PrincipalID, activitydomain.ActionConversionStart,
		fmt.Sprintf("Converting %s to %s", req.Upload.Filename, format))

	started := time.Now()
	job := s.workspace.NewJob(req.Upload.Filename, format)
	defer job.Release(log)

	body, err := s.run(ctx, job, req, format)
	if err != nil {
		log.Error("conversion failed",
			zap.String("job_id", job.ID),
			zap.String("format", format),
			zap.Error(err),
		)
		s.record(ctx, req.PrincipalID, activitydomain.ActionConversionError, err.Error())
		s.metrics.RecordConversion(ctx, format, outcomeError, tier, time.Since(started))
		if errors.Is(err, domain.ErrConversionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrConversionFailed, err)
	}
	s.metrics.RecordConversion(ctx, format, outcomeSuccess, tier, time.Since(started))

	return &domain.Result{
		Filename:         OutputFilename(req.Upload.Filename, format, req.Decision.Unlimited, policy.FreeFilenamePrefix),
		Format:           format,
		ContentType:      "audio/" + format,
		Body:             body,
		RemainingCredits: s.remainingAfter(ctx, req),
	}, nil
}

func (s *Service) run(ctx context.Context, job *workspace.Job, req domain.Request, format string) ([]byte, error) {
	src, err := req.Upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	_, err = job.WriteInput(src)
	src.Close()
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	if err := s.converter.Convert(ctx, job.InputPath, job.OutputPath, format); err != nil {
		return nil, err
	}

	if err := s.quota.Record(ctx, req.PrincipalID); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	s.record(ctx, req.PrincipalID, activitydomain.ActionConversionSuccess,
		fmt.Sprintf("Converted %s to %s", req.Upload.Filename, format))

	body, err := os.ReadFile(job.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return body, nil
}

// remainingAfter re-reads the ledger so overlapping conversions by one
// principal report what is actually left. The admission snapshot is the
// fallback when the read fails.
func (s *Service) remainingAfter(ctx context.Context, req domain.Request) int {
	if req.Decision.Unlimited {
		return req.Decision.AfterConversion()
	}
	decision, err := s.quota.CheckLimit(ctx, req.PrincipalID)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("remaining credits read failed", zap.Error(err))
		return req.Decision.AfterConversion()
	}
	return decision.Remaining
}

func (s *Service) record(ctx context.Context, principalID string, action activitydomain.Action, details string) {
	// Activity failures are logged by the activity service and never fail the request.
	_ = s.activity.Record(ctx, principalID, action, details)
}

// OutputFilename names the converted file for the caller. Free-tier results
// carry the prefix.
func OutputFilename(uploaded, format string, premium bool, freePrefix string) string {
	name := filepath.Base(strings.ReplaceAll(uploaded, "\\", "/"))
	base := name
	if i := strings.LastIndex(name, "."); i > 0 {
		base = name[:i]
	}
	base = strings.Map(func(r rune) rune {
		if r == '"' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "audio"
	}
	if premium {
		return base + "." + format
	}
	return freePrefix + base + "." + format
}

