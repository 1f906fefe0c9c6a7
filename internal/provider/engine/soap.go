package engine

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

func (c *call) soap(ctx context.Context) (map[string]any, error) {
	target, err := c.url(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.log.Info("soap request started", zap.String("url", target))
	defer func() {
		c.log.Info("soap request completed", zap.Duration("elapsed", time.Since(start)))
	}()

	if c.req.Endpoint.RequestMethod == http.MethodPost {
		return c.soapPost(ctx, target)
	}
	return c.soapGet(ctx, target)
}

func (c *call) soapGet(ctx context.Context, target string) (map[string]any, error) {
	user, pass := c.basicCredentials()
	for attempt := 1; attempt <= c.engine.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(user, pass)

		if decoded, ok := c.soapSend(req, attempt); ok {
			return decoded, nil
		}
	}
	return nil, ErrNoResponse
}

func (c *call) soapPost(ctx context.Context, target string) (map[string]any, error) {
	// SOAP envelopes are stored with doubled braces so single braces
	// survive as placeholders.
	envelope := strings.NewReplacer("{{", "{", "}}", "}").Replace(string(c.req.Endpoint.RequestSchema))
	body := c.tc.ResolvePath(envelope)

	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= c.engine.attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		if decoded, ok := c.soapSend(req, attempt); ok {
			return decoded, nil
		}
	}
	return nil, ErrNoResponse
}

func (c *call) soapSend(req *http.Request, attempt int) (map[string]any, bool) {
	resp, raw, err := c.send(req)
	if err != nil {
		c.log.Error("request attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("unexpected status",
			zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
		return nil, false
	}
	decoded, err := xmlToMap(raw)
	if err != nil {
		c.log.Error("undecodable envelope", zap.Int("attempt", attempt), zap.Error(err))
		return nil, false
	}
	return decoded, true
}

// xmlToMap decodes an XML document into the same nested map shape JSON
// responses use. Namespaces are stripped from tag names; repeated tags
// collapse into lists; leaf elements become their text content.
func xmlToMap(data []byte) (map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("xml document has no root element")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			root, err := decodeElement(dec, start)
			if err != nil {
				return nil, err
			}
			if m, ok := root.(map[string]any); ok {
				return m, nil
			}
			return map[string]any{localName(start.Name): root}, nil
		}
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	children := map[string]any{}
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			name := localName(t.Name)
			if existing, ok := children[name]; ok {
				if list, ok := existing.([]any); ok {
					children[name] = append(list, child)
				} else {
					children[name] = []any{existing, child}
				}
			} else {
				children[name] = child
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) > 0 {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}

func localName(n xml.Name) string {
	if i := strings.LastIndex(n.Local, "}"); i >= 0 {
		return n.Local[i+1:]
	}
	return n.Local
}
