package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	activitydomain "github.com/smallbiznis/talechto/internal/activity/domain"
	"github.com/smallbiznis/talechto/internal/authorization"
	"github.com/smallbiznis/talechto/pkg/db/pagination"
)

type usageResponse struct {
	Remaining    int        `json:"remaining"`
	Unlimited    bool       `json:"unlimited"`
	IsPremium    bool       `json:"isPremium"`
	PremiumUntil *time.Time `json:"premiumUntil,omitempty"`
}

// Usage reports the caller's credits without consuming any.
func (s *Server) Usage(c *gin.Context) {
	principalID, err := s.resolvePrincipal(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := s.authz.Authorize(ctx, principalID, authorization.ObjectUsage, authorization.ActionView); err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.quotaSvc.CheckLimit(ctx, principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	principal, err := s.principals.Get(ctx, principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, usageResponse{
		Remaining:    decision.Remaining,
		Unlimited:    decision.Unlimited,
		IsPremium:    principal.IsPremium,
		PremiumUntil: principal.PremiumUntil,
	})
}

type listActivityQuery struct {
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
	PrincipalID string `form:"principal_id"`
	Action      string `form:"action"`
}

func (s *Server) ListActivity(c *gin.Context) {
	var query listActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.activity.List(c.Request.Context(), activitydomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PrincipalID: strings.TrimSpace(query.PrincipalID),
		Action:      strings.TrimSpace(query.Action),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}
