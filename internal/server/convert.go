package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	conversiondomain "github.com/smallbiznis/talechto/internal/conversion/domain"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	formFieldFile   = "file"
	formFieldFormat = "format"
)

func (s *Server) Convert(c *gin.Context) {
	if !isMultipart(c.GetHeader("Content-Type")) {
		c.String(http.StatusBadRequest, "Content-Type must be multipart/form-data")
		return
	}

	principalID, err := s.resolvePrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := c.Request.Context()

	res, err := s.limiter.Allow(ctx, principalID)
	if err != nil {
		if res != nil && res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		AbortWithError(c, err)
		return
	}
	release, err := s.limiter.Acquire(ctx, principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	decision, err := s.conversion.Admit(ctx, principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fh, err := c.FormFile(formFieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			AbortWithError(c, conversiondomain.ErrMissingFile)
			return
		}
		// Anything else is a broken body after admission.
		s.recordActivity(c, principalID, activitydomain.ActionConversionError, fmt.Sprintf("multipart: %v", err))
		AbortWithError(c, fmt.Errorf("%w: %v", conversiondomain.ErrConversionFailed, err))
		return
	}

	format := strings.TrimSpace(c.PostForm(formFieldFormat))
	c.Set(contextFormatKey, strings.ToLower(format))

	result, err := s.conversion.Convert(ctx, conversiondomain.Request{
		PrincipalID: principalID,
		Decision:    decision,
		Format:      format,
		Upload: &conversiondomain.Upload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextFormatKey, result.Format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Header(HeaderRemainingCredits, strconv.Itoa(result.RemainingCredits))
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "multipart/form-data"
}

func (s *Server) recordActivity(c *gin.Context, principalID string, action activitydomain.Action, details string) {
	ctx := c.Request.Context()
	if err := s.activity.Record(ctx, principalID, action, details); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("activity record failed",
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}
