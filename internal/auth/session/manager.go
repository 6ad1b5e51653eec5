package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/talechto/internal/auth/token"
	"github.com/smallbiznis/talechto/internal/config"
)

const DefaultCookieName = "auth_token"

// Manager writes and clears the session credential cookie. Reading it back
// is the identity resolver's job.
type Manager struct {
	cookieName string
	secure     bool
	maxAge     time.Duration
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure || cfg.IsProduction(),
		maxAge:     token.TTL,
	}
}

// Set stores a fresh credential. Max-Age is fixed to the credential TTL.
func (m *Manager) Set(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, int(m.maxAge.Seconds()), "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
