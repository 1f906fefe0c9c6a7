package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/logger"
)

func (c *call) rest(ctx context.Context) (map[string]any, error) {
	if c.req.Endpoint.RequestMethod == http.MethodPost {
		return c.restPost(ctx)
	}
	return c.restGet(ctx)
}

func (c *call) restGet(ctx context.Context) (map[string]any, error) {
	target, err := c.url(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}
	delete(headers, "Content-Type")

	user, pass := c.basicCredentials()
	switch {
	case c.provider.AuthType == domain.AuthOAuth && c.req.Creds.AccessToken != "":
		headers["Authorization"] = "Bearer " + c.req.Creds.AccessToken
	case c.provider.AuthType == domain.AuthBasic && c.req.Creds.AccessToken != "":
		headers["Authorization"] = "Basic " + c.req.Creds.AccessToken
	}

	start := time.Now()
	c.log.Info("http request started", zap.String("url", target))
	defer func() {
		c.log.Info("http request completed", zap.Duration("elapsed", time.Since(start)))
	}()

	for attempt := 1; attempt <= c.engine.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if c.provider.AuthType != domain.AuthOAuth {
			req.SetBasicAuth(user, pass)
		}

		resp, body, err := c.send(req)
		if err != nil {
			c.log.Error("request attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if resp.StatusCode == http.StatusOK {
			decoded, err := decodeBody(body, resp.Header.Get("Content-Type"))
			if err != nil {
				c.log.Error("undecodable response", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return decoded, nil
		}
		c.log.Error("unexpected status",
			zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusUnauthorized && c.provider.AuthType == domain.AuthOAuth:
			if token, err := c.refreshOAuthToken(ctx); err == nil {
				headers["Authorization"] = "Bearer " + token
			} else {
				c.log.Error("oauth refresh failed", zap.Error(err))
			}
		case resp.StatusCode == http.StatusInternalServerError:
			if token, err := c.generateBearerToken(ctx); err == nil {
				headers["Authorization"] = "Bearer " + token
			} else {
				c.log.Error("bearer token generation failed", zap.Error(err))
			}
		case resp.StatusCode == http.StatusUnauthorized && c.provider.AuthType == domain.AuthJCookie:
			if err := c.jcookieAuth(ctx); err != nil {
				c.log.Error("jcookie auth failed", zap.Error(err))
			} else if refreshed, err := c.headers(ctx); err == nil {
				headers = refreshed
				delete(headers, "Content-Type")
			}
		}
	}
	return nil, ErrNoResponse
}

func (c *call) restPost(ctx context.Context) (map[string]any, error) {
	target, err := c.url(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := c.requestPayload(ctx)
	if err != nil {
		return nil, err
	}

	user, pass := "", ""
	if c.provider.AuthType == domain.AuthBasic {
		user, pass = c.basicCredentials()
	}

	start := time.Now()
	c.log.Info("http request started", zap.String("url", target))
	defer func() {
		c.log.Info("http request completed", zap.Duration("elapsed", time.Since(start)))
	}()

	for attempt := 1; attempt <= c.engine.attempts; attempt++ {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		c.log.Info("sending request payload",
			zap.Any("payload", logger.SanitizePayload(payload)))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if user != "" {
			req.SetBasicAuth(user, pass)
		}

		resp, raw, err := c.send(req)
		if err != nil {
			c.log.Error("request attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		decoded, decodeErr := decodeBody(raw, resp.Header.Get("Content-Type"))
		if resp.StatusCode == http.StatusOK && decodeErr == nil {
			if _, hasError := decoded["Error"]; !hasError {
				return decoded, nil
			}
		}
		if decoded == nil {
			decoded = map[string]any{}
		}
		c.log.Error("unexpected response",
			zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))

		switch {
		case c.provider.AuthType == domain.AuthLogin &&
			(resp.StatusCode == http.StatusUnauthorized || isAuthErrorMessage(decoded["Error"])):
			token, err := c.login(ctx)
			if err != nil {
				c.log.Error("provider login failed", zap.Error(err))
				break
			}
			if m, ok := payload.(map[string]any); ok {
				m["Token"] = token
			}
		case c.provider.AuthType == domain.AuthBasicBase64 &&
			(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusInternalServerError):
			token, err := c.basicBase64Token(ctx)
			if err != nil {
				c.log.Error("basic base64 token failed", zap.Error(err))
				break
			}
			headers["Authorization"] = token
		}
	}
	return nil, ErrNoResponse
}

// requestPayload resolves the endpoint's request schema template.
func (c *call) requestPayload(ctx context.Context) (any, error) {
	if len(c.req.Endpoint.RequestSchema) == 0 {
		return map[string]any{}, nil
	}
	var tree any
	if err := json.Unmarshal(c.req.Endpoint.RequestSchema, &tree); err != nil {
		return nil, fmt.Errorf("decode request schema: %w", err)
	}
	return c.tc.Resolve(ctx, tree)
}

// basicCredentials picks the basic auth pair. Providers may pin a
// dedicated pair in their request metadata; otherwise the credential
// row's client pair is used.
func (c *call) basicCredentials() (string, string) {
	if c.provider.AuthType == domain.AuthBasic {
		if reqMeta, ok := c.provider.MetaData["request"].(map[string]any); ok {
			if info, ok := reqMeta["auth_info"].(map[string]any); ok {
				user, _ := info["username"].(string)
				pass, _ := info["password"].(string)
				if user != "" {
					return user, pass
				}
			}
		}
	}
	return c.req.Creds.ClientID, c.req.Creds.ClientSecret
}

func (c *call) send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.engine.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func isAuthErrorMessage(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, msg := range domain.AuthErrorMessages {
		if s == msg {
			return true
		}
	}
	return false
}
