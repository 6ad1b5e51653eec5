package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/smallbiznis/talechto/internal/auth/session"
	"github.com/smallbiznis/talechto/internal/auth/token"
	"github.com/smallbiznis/talechto/internal/config"
	obslogger "github.com/smallbiznis/talechto/internal/observability/logger"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoAddress = errors.New("missing_remote_address")

// Request carries the parts of an inbound request identity depends on.
type Request struct {
	CookieHeader  string
	Authorization string
	RemoteAddr    string
}

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Issuer     *token.Issuer
	Principals principaldomain.Service
}

// Resolver maps a request to the principal it is metered as.
type Resolver struct {
	log        *zap.Logger
	issuer     *token.Issuer
	principals principaldomain.Service
	salt       string
}

func NewResolver(p Params) *Resolver {
	return &Resolver{
		log:        p.Log.Named("identity.resolver"),
		issuer:     p.Issuer,
		principals: p.Principals,
		salt:       p.Cfg.IPSalt,
	}
}

// Resolve prefers a valid credential and never touches storage for it.
// Anonymous callers get a salted address hash, persisted on first contact.
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, error) {
	if id, ok := r.AuthenticatedPrincipal(ctx, req); ok {
		return id, nil
	}

	addr := strings.TrimSpace(req.RemoteAddr)
	if addr == "" {
		return "", ErrNoAddress
	}
	id := PseudonymousID(addr, r.salt)
	if err := r.principals.Touch(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// AuthenticatedPrincipal reports the principal behind a valid credential.
// Malformed or expired credentials count as absent.
func (r *Resolver) AuthenticatedPrincipal(ctx context.Context, req Request) (string, bool) {
	for _, raw := range credentialsFrom(req) {
		claims, err := r.issuer.Verify(raw)
		if err != nil {
			obslogger.WithContext(ctx, r.log).Debug("ignoring invalid credential", zap.Error(err))
			continue
		}
		return claims.ID, true
	}
	return "", false
}

// credentialsFrom lists the cookie credential before the bearer one.
func credentialsFrom(req Request) []string {
	var out []string
	if raw := ParseCookieHeader(req.CookieHeader)[session.DefaultCookieName]; raw != "" {
		out = append(out, raw)
	}
	scheme, value, ok := strings.Cut(strings.TrimSpace(req.Authorization), " ")
	if value = strings.TrimSpace(value); ok && strings.EqualFold(scheme, "Bearer") && value != "" {
		out = append(out, value)
	}
	return out
}

// PseudonymousID is hex(sha256(addr || salt)).
func PseudonymousID(addr, salt string) string {
	sum := sha256.Sum256([]byte(addr + salt))
	return hex.EncodeToString(sum[:])
}
