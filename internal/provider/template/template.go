// Package template resolves the declarative request templates stored
// alongside provider feature paths. Placeholders of the form
// {model.attribute} are substituted from a bound context of domain
// models before a request is sent.
package template

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// Reserved placeholder names resolved by strategy rather than by
// context lookup.
const (
	reservedCurrentTimestamp = "current_timestamp"
	reservedCurrentUTC       = "current_utc"
	reservedLocationID       = "location_id"
)

// Fetcher downloads a resource for base64-embedded template values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over plain HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Context binds model names to their attribute maps. Placeholders name
// the model and the attribute separated by the first dot, so
// {task.plate_number} reads the plate_number attribute of the bound
// task model.
type Context struct {
	roots   map[string]map[string]any
	aliases map[string]any
	now     func() time.Time
	fetcher Fetcher
}

// NewContext returns a context with no bindings. now supplies the
// reference time for the reserved timestamp placeholders.
func NewContext(now func() time.Time, fetcher Fetcher) *Context {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Context{
		roots:   make(map[string]map[string]any),
		aliases: make(map[string]any),
		now:     now,
		fetcher: fetcher,
	}
}

// Bind registers the attribute map for a model name. Binding the same
// name again replaces the previous attributes.
func (c *Context) Bind(name string, attrs map[string]any) *Context {
	c.roots[name] = attrs
	return c
}

// BindAlias registers a bare placeholder name, used for URL path
// parameters such as {lpr} that carry no model prefix.
func (c *Context) BindAlias(name string, value any) *Context {
	c.aliases[name] = value
	return c
}

// Lookup resolves a placeholder name to its value. The bool reports
// whether a binding was found.
func (c *Context) Lookup(name string) (any, bool) {
	switch name {
	case reservedCurrentTimestamp:
		return c.now().UTC().Format("2006-01-02T15:04:05.000Z"), true
	case reservedCurrentUTC:
		return c.now().UTC().Format("2006-01-02"), true
	case reservedLocationID:
		if attrs, ok := c.roots["provider_connect"]; ok {
			if v, ok := attrs["facility_id"]; ok {
				return v, true
			}
		}
		return nil, false
	}
	if v, ok := c.aliases[name]; ok {
		return v, true
	}
	root, attr, found := strings.Cut(name, ".")
	if !found {
		// Bare attribute names search a fixed model order so that
		// task fields shadow provider and lot fields.
		for _, model := range bareLookupOrder {
			if attrs, ok := c.roots[model]; ok {
				if v, ok := attrs[name]; ok {
					return v, true
				}
			}
		}
		return nil, false
	}
	attrs, ok := c.roots[root]
	if !ok {
		return nil, false
	}
	v, ok := attrs[attr]
	return v, ok
}

var bareLookupOrder = []string{
	"task",
	"sub_task",
	"violation",
	"provider_creds",
	"connect_parkinglot",
	"alert_body",
}

// Resolve walks a decoded JSON tree and substitutes every placeholder.
// Maps and slices are resolved recursively. A string leaf holding a
// single placeholder is replaced by the bound value itself so numeric
// attributes keep their type. A leaf of the form
// {"type": "base64", "value": "{task.image_url}"} downloads the
// resolved URL and embeds the payload base64-encoded, or an empty
// string when no URL is bound.
func (c *Context) Resolve(ctx context.Context, node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if encoded, ok, err := c.resolveBase64(ctx, v); ok || err != nil {
			return encoded, err
		}
		out := make(map[string]any, len(v))
		for key, val := range v {
			resolved, err := c.Resolve(ctx, val)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			resolved, err := c.Resolve(ctx, val)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		return c.resolveString(v), nil
	default:
		return node, nil
	}
}

func (c *Context) resolveBase64(ctx context.Context, node map[string]any) (any, bool, error) {
	kind, _ := node["type"].(string)
	if kind != "base64" {
		return nil, false, nil
	}
	raw, _ := node["value"].(string)
	target := fmt.Sprint(c.resolveString(raw))
	if target == "" || strings.Contains(target, "{") {
		return "", true, nil
	}
	if c.fetcher == nil {
		return "", true, nil
	}
	body, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, true, fmt.Errorf("base64 template value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), true, nil
}

// resolveString substitutes placeholders in a string. When the whole
// string is one placeholder the bound value is returned as-is,
// preserving its type; otherwise resolved values are interpolated as
// text. Unbound placeholders are left untouched.
func (c *Context) resolveString(s string) any {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		if v, ok := c.Lookup(s[matches[0][2]:matches[0][3]]); ok {
			return v
		}
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := c.Lookup(name); ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// ResolvePath substitutes placeholders in a URL path.
func (c *Context) ResolvePath(path string) string {
	return fmt.Sprint(c.resolveString(path))
}

// QueryParam describes one declarative query parameter. Type selects a
// formatting strategy; timestamp parameters support an add or subtract
// operation over a named duration unit, and time parameters render the
// reference time URL-encoded in the given layout.
type QueryParam struct {
	Key       string   `json:"key"`
	Type      string   `json:"type"`
	Value     any      `json:"value"`
	Format    string   `json:"format"`
	Operation *ParamOp `json:"operation"`
}

// ParamOp shifts a timestamp parameter by Value units of Key.
type ParamOp struct {
	Operator string  `json:"operator"`
	Key      string  `json:"key"`
	Value    float64 `json:"value"`
}

// FormatQuery renders the declarative query parameter list into URL
// values. Non-typed parameters resolve their value against the bound
// context.
func (c *Context) FormatQuery(params []QueryParam) url.Values {
	out := url.Values{}
	now := c.now().UTC()
	for _, p := range params {
		switch p.Type {
		case "timestamp":
			at := now
			if p.Operation != nil {
				d := opDuration(p.Operation)
				if p.Operation.Operator == "subtract" {
					at = at.Add(-d)
				} else {
					at = at.Add(d)
				}
			}
			layout := p.Format
			if layout == "" {
				layout = "2006-01-02T15:04:05Z"
			}
			out.Set(p.Key, at.Format(layout))
		case "time":
			layout := p.Format
			if layout == "" {
				layout = "2006-01-02 15:04:05-0700"
			}
			out.Set(p.Key, now.Format(layout))
		default:
			if s, ok := p.Value.(string); ok {
				out.Set(p.Key, fmt.Sprint(c.resolveString(s)))
			} else if p.Value != nil {
				out.Set(p.Key, fmt.Sprint(p.Value))
			}
		}
	}
	return out
}

func opDuration(op *ParamOp) time.Duration {
	unit := time.Duration(0)
	switch op.Key {
	case "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	}
	return time.Duration(float64(unit) * op.Value)
}
