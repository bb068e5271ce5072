// Package client implements the outbound side of the engine: the HTTP client
// that talks to the remote media server for catalog pages, technical
// metadata, and best-effort timeline reporting. All requests carry the
// configured identity headers and an auth token, are rate limited per
// endpoint, and honor the configured per-request deadline.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"teleloop/work/config"
	"teleloop/work/logger"
	"teleloop/work/types"
	"teleloop/work/utils"
)

// tokenHeader carries the auth token on catalog and metadata requests.
// Stream URLs embed the token as a query parameter instead, because media
// players cannot attach custom headers.
const tokenHeader = "X-Media-Token"

// MediaClient wraps http.Client with identity header injection, per-endpoint
// rate limiting, and the error classification the orchestrator's retry logic
// keys off. It implements every collaborator contract the core consumes:
// paged catalog fetch, technical metadata fetch, session supply, and the
// timeline sink.
type MediaClient struct {
	Client   *http.Client
	cfg      *config.Config
	limiters map[string]ratelimit.Limiter // per-endpoint outbound rate limiters
	mu       sync.RWMutex                 // protects limiters
}

// New creates a MediaClient from the application configuration. The
// underlying transport keeps connections alive across catalog pages; the
// per-request deadline comes from context, set by each operation.
func New(cfg *config.Config) *MediaClient {
	return &MediaClient{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		cfg:      cfg,
		limiters: make(map[string]ratelimit.Limiter),
	}
}

// CurrentSession supplies the ordered endpoint and token candidates from
// configuration: primary endpoint first, server token before account token.
func (mc *MediaClient) CurrentSession() types.Session {
	pairs := mc.cfg.Server.Tokens()
	tokens := make([]types.Token, 0, len(pairs))
	for _, p := range pairs {
		tokens = append(tokens, types.Token{Class: types.TokenClass(p.Class), Value: p.Value})
	}
	return types.Session{
		Endpoints: append([]string(nil), mc.cfg.Server.Endpoints...),
		Tokens:    tokens,
		DeviceID:  mc.cfg.Server.DeviceID,
	}
}

// limiterFor returns the rate limiter for an endpoint, creating it on first
// use with the configured requests-per-second budget.
func (mc *MediaClient) limiterFor(endpoint string) ratelimit.Limiter {
	mc.mu.RLock()
	limiter, exists := mc.limiters[endpoint]
	mc.mu.RUnlock()
	if exists {
		return limiter
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if limiter, exists := mc.limiters[endpoint]; exists {
		return limiter
	}
	limiter = ratelimit.New(mc.cfg.Server.RequestsPerSecond)
	mc.limiters[endpoint] = limiter
	return limiter
}

// getJSON performs one rate-limited GET against a specific endpoint+token
// and decodes the JSON body into out. Failures come back as classified
// domain errors so callers can distinguish unauthorized (rotate token) from
// everything else (rotate endpoint).
func (mc *MediaClient) getJSON(ctx context.Context, endpoint string, token types.Token, path string, query url.Values, out any) error {
	mc.limiterFor(endpoint).Take()

	u, err := url.Parse(endpoint)
	if err != nil {
		return types.WrapError(types.ErrInvalidURL, err, "bad endpoint %s", utils.LogURL(mc.cfg.ObfuscateUrls, endpoint))
	}
	u = u.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, mc.cfg.Server.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return types.WrapError(types.ErrInvalidURL, err, "building request for %s", path)
	}
	mc.setHeaders(req, token)

	resp, err := mc.Client.Do(req)
	if err != nil {
		kind := types.ClassifyNetworkError(err)
		return types.WrapError(kind, err, "fetching %s", path)
	}
	defer resp.Body.Close()

	if kind := types.ClassifyStatus(resp.StatusCode); kind != "" {
		return types.NewError(kind, "server returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.WrapError(types.ErrDecode, err, "decoding %s response", path)
	}
	return nil
}

// getJSONAny walks the ordered (endpoint x token) candidates for a catalog
// or metadata request: an unauthorized response rotates to the next token
// before moving to the next endpoint, any other failure rotates endpoints
// with the token order restarted. The first success wins; when every
// combination fails, the last observed error is surfaced.
func (mc *MediaClient) getJSONAny(ctx context.Context, path string, query url.Values, out any) error {
	session := mc.CurrentSession()
	if len(session.Endpoints) == 0 {
		return types.NewError(types.ErrOffline, "no endpoints configured")
	}
	if len(session.Tokens) == 0 {
		return types.NewError(types.ErrUnauthorized, "no tokens configured")
	}

	var lastErr error
	for _, endpoint := range session.Endpoints {
		for _, token := range session.Tokens {
			err := mc.getJSON(ctx, endpoint, token, path, query, out)
			if err == nil {
				return nil
			}
			lastErr = err
			if types.KindOf(err) == types.ErrUnauthorized {
				logger.Debug("{client/client - getJSONAny} Token %s rejected by %s, rotating token", token.Class, utils.LogURL(mc.cfg.ObfuscateUrls, endpoint))
				continue
			}
			// Non-auth failure: this endpoint is unhealthy, move on.
			logger.Debug("{client/client - getJSONAny} Endpoint %s failed (%s), rotating endpoint", utils.LogURL(mc.cfg.ObfuscateUrls, endpoint), types.KindOf(err))
			break
		}
	}
	return lastErr
}

func (mc *MediaClient) setHeaders(req *http.Request, token types.Token) {
	req.Header.Set("User-Agent", mc.cfg.Server.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, token.Value)
	req.Header.Set("X-Device-Id", mc.cfg.Server.DeviceID)
}
