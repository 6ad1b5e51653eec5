package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/talechto/internal/config"
	obstracing "github.com/smallbiznis/talechto/internal/observability/tracing"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	ErrMissingCode   = errors.New("missing_code")
	ErrNotConfigured = errors.New("oauth_not_configured")
	ErrExchange      = errors.New("oauth_exchange_failed")
	ErrUserInfo      = errors.New("oauth_userinfo_failed")
)

// Identity is what the provider tells us about the signed-in account.
type Identity struct {
	ID    string
	Email string
	Name  string
}

type Service interface {
	// Exchange trades an authorization code for the account identity.
	Exchange(ctx context.Context, code string) (Identity, error)
}

type service struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	httpClient   *http.Client
}

func NewService(cfg config.Config) Service {
	return newService(&oauth2.Config{
		ClientID:     cfg.OAuth2ClientID,
		ClientSecret: cfg.OAuth2ClientSecret,
		RedirectURL:  cfg.OAuth2RedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}, googleUserInfoURL, obstracing.WrapHTTPClient(http.DefaultClient))
}

func newService(cfg *oauth2.Config, userInfoURL string, client *http.Client) *service {
	return &service{oauth2Config: cfg, userInfoURL: userInfoURL, httpClient: client}
}

func (s *service) Exchange(ctx context.Context, code string) (Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, ErrMissingCode
	}
	if s.oauth2Config.ClientID == "" || s.oauth2Config.ClientSecret == "" {
		return Identity{}, ErrNotConfigured
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := s.oauth2Config.Client(ctx, tok).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Identity{}, fmt.Errorf("%w: status %d: %s", ErrUserInfo, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info struct {
		ID    string `json:"id"`
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}

	id := strings.TrimSpace(info.ID)
	if id == "" {
		id = strings.TrimSpace(info.Sub)
	}
	if id == "" {
		return Identity{}, fmt.Errorf("%w: missing account id", ErrUserInfo)
	}
	return Identity{
		ID:    id,
		Email: strings.TrimSpace(info.Email),
		Name:  strings.TrimSpace(info.Name),
	}, nil
}
