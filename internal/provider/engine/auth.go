package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// refreshOAuthToken posts the provider's oauth_info form to its token
// endpoint and stores the new bearer on the credential.
func (c *call) refreshOAuthToken(ctx context.Context) (string, error) {
	info, ok := c.provider.MetaData["oauth_info"].(map[string]any)
	if !ok {
		return "", errors.New("provider has no oauth_info metadata")
	}
	form := url.Values{}
	for k, v := range info {
		form.Set(k, fmt.Sprint(v))
	}
	body, err := c.postAuth(ctx, c.authURL(), strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	return c.storeToken(ctx, body, "access_token")
}

// generateBearerToken resolves the provider's auth request body template
// and exchanges it for a bearer token.
func (c *call) generateBearerToken(ctx context.Context) (string, error) {
	payload, err := c.authRequestBody(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	if m, ok := payload.(map[string]any); ok {
		for k, v := range m {
			form.Set(k, fmt.Sprint(v))
		}
	}
	body, err := c.postAuth(ctx, c.authURL(), strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	return c.storeToken(ctx, body, "access_token")
}

// login performs the JSON login exchange used by ticketing providers
// whose requests carry a Token field in the body rather than a header.
func (c *call) login(ctx context.Context) (string, error) {
	payload, err := c.authRequestBody(ctx)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	body, err := c.postAuth(ctx, c.authURL(), bytes.NewReader(raw), "application/json")
	if err != nil {
		return "", err
	}
	return c.storeToken(ctx, body, "Token")
}

// basicBase64Token encodes the credential pair and stores it as a
// bearer-style token.
func (c *call) basicBase64Token(ctx context.Context) (string, error) {
	pair := c.req.Creds.ClientID + ":" + c.req.Creds.ClientSecret
	token := "Bearer " + base64.StdEncoding.EncodeToString([]byte(pair))
	if err := c.engine.providers.RefreshToken(ctx, c.engine.db, c.req.Creds.ID, token, nil); err != nil {
		return "", err
	}
	c.req.Creds.AccessToken = token
	return token, nil
}

// jcookieAuth logs in against the provider's declarative auth request
// and stores the session cookie as the credential's access token.
func (c *call) jcookieAuth(ctx context.Context) error {
	spec, err := c.tc.Resolve(ctx, map[string]any(c.provider.MetaData))
	if err != nil {
		return err
	}
	meta, _ := spec.(map[string]any)
	reqSpec, _ := meta["request"].(map[string]any)
	if reqSpec == nil {
		return errors.New("provider has no request metadata for cookie auth")
	}
	method, _ := reqSpec["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	target, _ := reqSpec["url"].(string)
	var body io.Reader
	if b, ok := reqSpec["body"]; ok {
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
	if err != nil {
		return err
	}
	if headers, ok := reqSpec["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	resp, err := c.engine.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cookie auth: status %d", resp.StatusCode)
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return errors.New("cookie auth: no cookie returned")
	}
	last := cookies[len(cookies)-1]
	token := last.Name + "=" + last.Value
	if err := c.engine.providers.RefreshToken(ctx, c.engine.db, c.req.Creds.ID, token, nil); err != nil {
		return err
	}
	c.req.Creds.AccessToken = token
	c.tc.BindCreds(c.req.Creds)
	return nil
}

func (c *call) authURL() string {
	return c.provider.APIEndpoint + c.provider.OAuthPath
}

// authRequestBody resolves the request.body template from the provider
// metadata.
func (c *call) authRequestBody(ctx context.Context) (any, error) {
	reqMeta, ok := c.provider.MetaData["request"].(map[string]any)
	if !ok {
		return nil, errors.New("provider has no request metadata")
	}
	body, ok := reqMeta["body"]
	if !ok {
		return nil, errors.New("provider has no auth request body")
	}
	return c.tc.Resolve(ctx, body)
}

func (c *call) postAuth(ctx context.Context, target string, body io.Reader, contentType string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.engine.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("auth request %s: status %d", target, resp.StatusCode)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// storeToken extracts the token under key, persists it on the credential
// and rebinds the template context so later attempts see it.
func (c *call) storeToken(ctx context.Context, body map[string]any, key string) (string, error) {
	token, _ := body[key].(string)
	if token == "" {
		return "", fmt.Errorf("auth response has no %s", key)
	}
	if err := c.engine.providers.RefreshToken(ctx, c.engine.db, c.req.Creds.ID, token, nil); err != nil {
		return "", err
	}
	c.req.Creds.AccessToken = token
	c.tc.BindCreds(c.req.Creds)
	return token, nil
}
