package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	activityrepo "github.com/smallbiznis/talechto/internal/activity/repository"
	activitysvc "github.com/smallbiznis/talechto/internal/activity/service"
	authoauth "github.com/smallbiznis/talechto/internal/auth/oauth"
	"github.com/smallbiznis/talechto/internal/auth/session"
	"github.com/smallbiznis/talechto/internal/auth/token"
	"github.com/smallbiznis/talechto/internal/authorization"
	"github.com/smallbiznis/talechto/internal/clock"
	"github.com/smallbiznis/talechto/internal/config"
	conversionsvc "github.com/smallbiznis/talechto/internal/conversion/service"
	"github.com/smallbiznis/talechto/internal/conversion/workspace"
	"github.com/smallbiznis/talechto/internal/identity"
	"github.com/smallbiznis/talechto/internal/observability"
	"github.com/smallbiznis/talechto/internal/payment/adapters"
	"github.com/smallbiznis/talechto/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/talechto/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/talechto/internal/payment/repository"
	paymentsvc "github.com/smallbiznis/talechto/internal/payment/service"
	"github.com/smallbiznis/talechto/internal/payment/webhook"
	principaldomain "github.com/smallbiznis/talechto/internal/principal/domain"
	principalrepo "github.com/smallbiznis/talechto/internal/principal/repository"
	principalsvc "github.com/smallbiznis/talechto/internal/principal/service"
	quotarepo "github.com/smallbiznis/talechto/internal/quota/repository"
	quotasvc "github.com/smallbiznis/talechto/internal/quota/service"
	"github.com/smallbiznis/talechto/internal/ratelimit"
	"github.com/smallbiznis/talechto/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_server_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOAuth struct {
	account authoauth.Identity
	err     error
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (authoauth.Identity, error) {
	if f.err != nil {
		return authoauth.Identity{}, f.err
	}
	return f.account, nil
}

type fakeCheckout struct {
	requests []paymentdomain.CheckoutRequest
	err      error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, req paymentdomain.CheckoutRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return "https://checkout.stripe.test/c/pay/cs_1", nil
}

type fakeConverter struct {
	fail error
}

func (f *fakeConverter) Convert(_ context.Context, in, out, format string) error {
	if f.fail != nil {
		return f.fail
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte(format+":"), data...), 0o600)
}

type harness struct {
	engine     *gin.Engine
	clock      *clock.FakeClock
	workdir    string
	oauth      *fakeOAuth
	checkout   *fakeCheckout
	converter  *fakeConverter
	principals principaldomain.Service
}

type harnessOption func(*config.ConversionPolicy, *ratelimit.ConvertLimiter) *ratelimit.ConvertLimiter

func withPolicy(mutate func(*config.ConversionPolicy)) harnessOption {
	return func(p *config.ConversionPolicy, l *ratelimit.ConvertLimiter) *ratelimit.ConvertLimiter {
		mutate(p)
		return l
	}
}

func withLimiter(t *testing.T, burst int) harnessOption {
	return func(_ *config.ConversionPolicy, _ *ratelimit.ConvertLimiter) *ratelimit.ConvertLimiter {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		limiter, err := ratelimit.New(client, config.RateLimitConfig{
			Enabled:            true,
			ConvertRate:        0.01,
			ConvertBurst:       burst,
			ConvertLockSeconds: 60,
		}, zap.NewNop(), nil)
		require.NoError(t, err)
		return limiter
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	policyValues := config.DefaultConversionPolicy()
	var limiter *ratelimit.ConvertLimiter
	for _, opt := range opts {
		limiter = opt(&policyValues, limiter)
	}
	policy := config.NewStaticPolicyHolder(policyValues)

	cfg := config.Config{
		AuthJWTSecret: "server-test-secret",
		IPSalt:        "salt",
		FrontendURL:   "http://localhost:5173",
		AdminEmails:   []string{"admin@talechto.example"},
		Stripe:        config.StripeConfig{WebhookSecret: webhookSecret},
		Convert:       config.ConvertConfig{WorkDir: t.TempDir()},
	}

	principals := principalsvc.NewService(principalsvc.Params{
		DB: db, Log: log, Clock: clk, Repo: principalrepo.Provide(),
	})
	activity := activitysvc.NewService(activitysvc.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: activityrepo.Provide(),
	})
	quota := quotasvc.NewService(quotasvc.Params{
		DB: db, Log: log, Clock: clk, Policy: policy, Repo: quotarepo.Provide(), Principals: principals,
	})
	issuer, err := token.NewIssuer(cfg, clk)
	require.NoError(t, err)
	resolver := identity.NewResolver(identity.Params{
		Cfg: cfg, Log: log, Issuer: issuer, Principals: principals,
	})

	ws, err := workspace.New(cfg)
	require.NoError(t, err)
	converter := &fakeConverter{}
	conversion := conversionsvc.NewService(conversionsvc.Params{
		Log: log, Policy: policy, Quota: quota, Activity: activity, Converter: converter, Workspace: ws,
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log: log, Enforcer: enforcer, Principals: principals,
	})

	checkout := &fakeCheckout{}
	payments := paymentsvc.NewService(paymentsvc.Params{
		Log: log, Cfg: cfg, Policy: policy, Principals: principals, Activity: activity, Checkout: checkout,
	})
	webhooks := webhook.NewService(webhook.Params{
		DB:        db,
		Log:       log,
		Cfg:       cfg,
		GenID:     node,
		Clock:     clk,
		Processor: payments,
		Repo:      paymentrepo.Provide(),
		Adapters:  adapters.NewRegistry(stripe.NewFactory()),
	})

	oauth := &fakeOAuth{}
	engine := NewEngine(observability.Config{Environment: "test"}, cfg, nil)
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        log,
		Resolver:   resolver,
		Issuer:     issuer,
		Sessions:   session.NewManager(cfg),
		OAuthSvc:   oauth,
		Authz:      authz,
		Principals: principals,
		Quota:      quota,
		Activity:   activity,
		Conversion: conversion,
		Webhooks:   webhooks,
		Checkout:   payments,
		Limiter:    limiter,
	})

	return &harness{
		engine:     engine,
		clock:      clk,
		workdir:    ws.Dir(),
		oauth:      oauth,
		checkout:   checkout,
		converter:  converter,
		principals: principals,
	}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func (h *harness) convert(t *testing.T, filename string, content []byte, format string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/convert", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return h.do(req)
}

// login runs the OAuth callback for account and returns the session cookie.
func (h *harness) login(t *testing.T, id, email string) *http.Cookie {
	t.Helper()
	h.oauth.account = authoauth.Identity{ID: id, Email: email}
	w := h.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=ok", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func (h *harness) webhook(t *testing.T, id, typ string, object map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"type":    typ,
		"created": h.clock.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)
	ts := strconv.FormatInt(h.clock.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, stripe.Sign(webhookSecret, ts, payload)))
	return h.do(req)
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func workdirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStatusRoutes(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, statusText, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreflightShortCircuits(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/convert", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := h.do(req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestConvertRejectsOtherMethods(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/convert", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", w.Body.String())
}

func TestConvertRequiresMultipart(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := h.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Content-Type must be multipart/form-data", w.Body.String())
}

func TestConvertMissingFile(t *testing.T) {
	h := newHarness(t)

	w := h.convert(t, "", nil, "mp3")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file was provided", errorBody(t, w))
}

func TestConvertFreeTierSuccess(t *testing.T) {
	h := newHarness(t)

	w := h.convert(t, "My Song.wav", []byte("RIFF"), "ogg")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "audio/ogg", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="talechto_My Song.ogg"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "4", w.Header().Get(HeaderRemainingCredits))
	assert.Equal(t, "ogg:RIFF", w.Body.String())
	assert.Empty(t, workdirEntries(t, h.workdir))
}

func TestConvertDefaultsToMP3(t *testing.T) {
	h := newHarness(t)

	w := h.convert(t, "clip.flac", []byte("fLaC"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mp3", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="talechto_clip.mp3"`, w.Header().Get("Content-Disposition"))
}

func TestConvertDailyLimitAndRollover(t *testing.T) {
	h := newHarness(t)

	for i := 4; i >= 0; i-- {
		w := h.convert(t, "a.wav", []byte("x"), "mp3")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.Itoa(i), w.Header().Get(HeaderRemainingCredits))
	}

	w := h.convert(t, "a.wav", []byte("x"), "mp3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Daily limit reached", errorBody(t, w))

	h.clock.Advance(24 * time.Hour)
	w = h.convert(t, "a.wav", []byte("x"), "mp3")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", w.Header().Get(HeaderRemainingCredits))
}

func TestConvertFileTooLarge(t *testing.T) {
	h := newHarness(t, withPolicy(func(p *config.ConversionPolicy) {
		p.MaxUploadBytes = 1024 * 1024
	}))

	w := h.convert(t, "big.wav", bytes.Repeat([]byte{1}, 1024*1024+1), "mp3")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File too large (1.00 MB). Free tier limit is 1 MB", errorBody(t, w))
	assert.Empty(t, workdirEntries(t, h.workdir))
}

func TestConvertFailureIsGenericAndCleansUp(t *testing.T) {
	h := newHarness(t)
	h.converter.fail = fmt.Errorf("ffmpeg exited 1: Invalid data found when processing input")

	w := h.convert(t, "broken.wav", []byte("junk"), "mp3")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal error trying to convert the audio", errorBody(t, w))
	assert.NotContains(t, w.Body.String(), "ffmpeg")
	assert.Empty(t, workdirEntries(t, h.workdir))
}

func TestConvertUnsupportedFormat(t *testing.T) {
	h := newHarness(t)

	w := h.convert(t, "a.wav", []byte("x"), "../../etc/passwd")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal error trying to convert the audio", errorBody(t, w))
	assert.Empty(t, workdirEntries(t, h.workdir))
}

func TestConvertBurstLimiter(t *testing.T) {
	h := newHarness(t, withLimiter(t, 1))

	w := h.convert(t, "a.wav", []byte("x"), "mp3")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.convert(t, "a.wav", []byte("x"), "mp3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests, slow down", errorBody(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestAuthCallback(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No code provided", errorBody(t, w))

	h.oauth.err = fmt.Errorf("%w: invalid_grant", authoauth.ErrExchange)
	w = h.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=bad", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Authentication failed", errorBody(t, w))

	h.oauth.err = nil
	h.oauth.account = authoauth.Identity{ID: "google-1", Email: "user@talechto.example"}
	w = h.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=ok", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"user":{"email":"user@talechto.example","isPremium":false}}`, w.Body.String())

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "auth_token=")
	assert.Contains(t, setCookie, "Path=/")
	assert.Contains(t, setCookie, "Max-Age=1296000")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Lax")
}

func TestLogoutClearsCookie(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestUsageReportsCredits(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusOK, h.convert(t, "a.wav", []byte("x"), "mp3").Code)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"remaining":4,"unlimited":false,"isPremium":false}`, w.Body.String())
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "You need to login with Google before buying Premium", errorBody(t, w))

	cookie := h.login(t, "google-1", "user@talechto.example")
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.AddCookie(cookie)
	w = h.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"url":"https://checkout.stripe.test/c/pay/cs_1"}`, w.Body.String())
	require.Len(t, h.checkout.requests, 1)
	assert.Equal(t, "google-1", h.checkout.requests[0].PrincipalID)
	assert.Equal(t, "user@talechto.example", h.checkout.requests[0].Email)

	h.checkout.err = fmt.Errorf("stripe down")
	req = httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.AddCookie(cookie)
	w = h.do(req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Couldn't create subscription session", errorBody(t, w))
}

func TestWebhookSignatureErrors(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing stripe-signature header", w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w = h.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Webhook Error: invalid signature", w.Body.String())
}

func TestWebhookRejectsOversizeBodyExplicitly(t *testing.T) {
	h := newHarness(t)

	payload := bytes.Repeat([]byte("a"), maxWebhookBytes+1)
	ts := strconv.FormatInt(h.clock.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, stripe.Sign(webhookSecret, ts, payload)))

	w := h.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Webhook Error: payload too large", w.Body.String())
}

func TestWebhookActivationGrantsUnlimitedConversions(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "google-1", "user@talechto.example")

	w := h.webhook(t, "evt_1", "checkout.session.completed", map[string]any{
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]any{"userId": "google-1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	// Redelivery is acknowledged the same way.
	w = h.webhook(t, "evt_1", "checkout.session.completed", map[string]any{
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]any{"userId": "google-1"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.convert(t, "Live Set.wav", []byte("x"), "flac", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "999", w.Header().Get(HeaderRemainingCredits))
	assert.Equal(t, `attachment; filename="Live Set.flac"`, w.Header().Get("Content-Disposition"))

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.AddCookie(cookie)
	w = h.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already has an active subscription", errorBody(t, w))

	w = h.webhook(t, "evt_2", "customer.subscription.deleted", map[string]any{
		"customer": "cus_1",
		"id":       "sub_1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	premium, err := h.principals.IsPremium(t.Context(), "google-1")
	require.NoError(t, err)
	assert.False(t, premium)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	h := newHarness(t)

	w := h.webhook(t, "evt_9", "customer.created", map[string]any{"id": "cus_9"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestAdminActivityRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.convert(t, "a.wav", []byte("x"), "mp3").Code)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/admin/activity", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	user := h.login(t, "google-2", "user@talechto.example")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/activity", nil)
	req.AddCookie(user)
	w = h.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", errorBody(t, w))

	admin := h.login(t, "google-3", "Admin@Talechto.example")
	req = httptest.NewRequest(http.MethodGet, "/api/admin/activity?action=conversion_success&page_size=10", nil)
	req.AddCookie(admin)
	w = h.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data []struct {
			Action string `json:"action"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "CONVERSION_SUCCESS", body.Data[0].Action)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/activity?page_token=%21%21", nil)
	req.AddCookie(admin)
	w = h.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapErrorNeverLeaksDetail(t *testing.T) {
	status, payload := mapError(fmt.Errorf("dial tcp 10.0.0.1:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", payload.Message)

	status, payload = mapError(fmt.Errorf("wrapped: %w", ErrForbidden))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", payload.Type)
}
