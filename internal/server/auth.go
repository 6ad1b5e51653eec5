package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authoauth "github.com/smallbiznis/talechto/internal/auth/oauth"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	"go.uber.org/zap"
)

type authUser struct {
	Email     string `json:"email"`
	IsPremium bool   `json:"isPremium"`
}

type authCallbackResponse struct {
	Success bool     `json:"success"`
	User    authUser `json:"user"`
}

// AuthCallback finishes the Google sign-in: the account becomes (or stays)
// a principal and the caller gets a session cookie.
func (s *Server) AuthCallback(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	if code == "" && c.Request.Method == http.MethodPost {
		code = strings.TrimSpace(c.PostForm("code"))
	}
	if code == "" {
		AbortWithError(c, authoauth.ErrMissingCode)
		return
	}

	ctx := c.Request.Context()
	log := obslogger.WithContext(ctx, s.log)

	account, err := s.oauthSvc.Exchange(ctx, code)
	if err != nil {
		log.Warn("oauth exchange failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	principal, err := s.principals.LinkIdentity(ctx, account.ID, account.Email)
	if err != nil {
		log.Error("link identity failed", zap.String("principal_id", obslogger.ShortID(account.ID)), zap.Error(err))
		AbortWithError(c, authoauth.ErrUserInfo)
		return
	}
	if !principal.IsAdmin && s.cfg.IsAdminEmail(account.Email) {
		if err := s.principals.SetAdmin(ctx, principal.ID, true); err != nil {
			log.Warn("grant admin failed", zap.Error(err))
		}
	}

	signed, _, err := s.issuer.Issue(principal.ID, principal.EmailOrEmpty())
	if err != nil {
		log.Error("issue session failed", zap.Error(err))
		AbortWithError(c, authoauth.ErrUserInfo)
		return
	}
	s.sessions.Set(c, signed)
	s.bindPrincipal(c, principal.ID)

	c.JSON(http.StatusOK, authCallbackResponse{
		Success: true,
		User: authUser{
			Email:     principal.EmailOrEmpty(),
			IsPremium: principal.IsPremium,
		},
	})
}

func (s *Server) Logout(c *gin.Context) {
	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
