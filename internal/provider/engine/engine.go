// Package engine executes declarative provider requests. An endpoint
// template row selects transport (REST or SOAP), method, auth strategy
// and payload templates; the engine resolves the templates against the
// task being verified and drives the call with a bounded attempt
// budget.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/metrics"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/tracing"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/template"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
)

// ErrNoResponse reports that every attempt against the provider failed.
// Callers treat it as "provider had no answer", not as a hard fault.
var ErrNoResponse = errors.New("provider request: no usable response")

// Request carries the resolved models for one provider call. Violation
// and AlertBody are optional and only bound when the caller has them.
type Request struct {
	Task      *taskdomain.Task
	SubTask   *taskdomain.SubTask
	Endpoint  *providerdomain.FeatureURLPath
	Creds     *providerdomain.ProviderCreds
	Lot       *providerdomain.ConnectParkinglot
	Violation *violationdomain.Violation
	AlertBody map[string]any
}

// Engine drives provider calls.
type Engine struct {
	db        *gorm.DB
	client    *http.Client
	log       *zap.Logger
	attempts  int
	providers providerdomain.Repository
	fetcher   template.Fetcher
}

// New builds an engine with the configured attempt budget and timeout.
func New(db *gorm.DB, cfg config.Config, log *zap.Logger, providers providerdomain.Repository) *Engine {
	client := tracing.WrapHTTPClient(&http.Client{Timeout: cfg.RequestTimeout})
	return &Engine{
		db:        db,
		client:    client,
		log:       log.Named("provider.engine"),
		attempts:  cfg.RequestAttempts,
		providers: providers,
		fetcher:   template.HTTPFetcher{Client: client},
	}
}

// Execute resolves the endpoint template for req and performs the call.
// The decoded response tree is returned; SOAP and XML bodies are
// normalized to the same map shape as JSON ones.
func (e *Engine) Execute(ctx context.Context, req Request) (map[string]any, error) {
	provider, err := e.providers.ProviderForCreds(ctx, e.db, req.Creds.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for creds %d: %w", req.Creds.ID, err)
	}
	connect, err := e.providers.ConnectForCreds(ctx, e.db, req.Lot.ParkingLotID, req.Creds.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("resolve provider connect: %w", err)
	}

	tc := template.NewContext(nil, e.fetcher).
		BindTask(req.Task).
		BindSubTask(req.SubTask).
		BindProvider(provider).
		BindCreds(req.Creds).
		BindConnect(connect).
		BindLot(req.Lot).
		BindViolation(req.Violation).
		BindAlertBody(req.AlertBody)

	call := &call{
		engine:   e,
		provider: provider,
		connect:  connect,
		req:      req,
		tc:       tc,
		log: e.log.With(
			zap.Int64("task_id", req.Task.ID.Int64()),
			zap.String("plate_number", req.Task.PlateNumber),
			zap.String("provider", provider.Name),
		),
	}

	transport := "rest"
	if req.Endpoint.APIType == domain.APITypeSOAP {
		transport = "soap"
	}
	var record map[string]any
	if transport == "soap" {
		record, err = call.soap(ctx)
	} else {
		record, err = call.rest(ctx)
	}
	metrics.Tasks().IncProviderCall(transport, callResult(record, err))
	return record, err
}

func callResult(record map[string]any, err error) string {
	switch {
	case err != nil:
		return "error"
	case len(record) == 0:
		return "empty"
	default:
		return "ok"
	}
}

// call is the per-request state shared by the transport methods.
type call struct {
	engine   *Engine
	provider *providerdomain.Provider
	connect  *providerdomain.ProviderConnect
	req      Request
	tc       *template.Context
	log      *zap.Logger
}

// url assembles the endpoint URL: base endpoint, optional tenant path
// segment from the provider metadata, feature path, declarative query
// parameters, then placeholder resolution.
func (c *call) url(ctx context.Context) (string, error) {
	base := c.provider.APIEndpoint
	if reqMeta, ok := c.provider.MetaData["request"].(map[string]any); ok {
		if urlTemplate, ok := reqMeta["url"]; ok {
			resolved, err := c.tc.Resolve(ctx, urlTemplate)
			if err != nil {
				return "", err
			}
			if m, ok := resolved.(map[string]any); ok {
				if tenant, ok := m["tenant_id"]; ok {
					base = c.provider.APIEndpoint + "/" + fmt.Sprint(tenant)
				}
			}
		}
	}
	full := base + c.req.Endpoint.Path

	if params := c.queryParams(); len(params) > 0 {
		encoded := c.tc.FormatQuery(params).Encode()
		if encoded != "" {
			full = full + "?" + encoded
		}
	}
	return c.tc.ResolvePath(full), nil
}

// queryParams decodes the endpoint's query parameter declaration, which
// is either a parameter list or a flat key-value object.
func (c *call) queryParams() []template.QueryParam {
	raw := c.req.Endpoint.QueryParams
	if len(raw) == 0 {
		return nil
	}
	var list []template.QueryParam
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].Key != "" {
		return list
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		c.log.Warn("undecodable query params", zap.Error(err))
		return nil
	}
	out := make([]template.QueryParam, 0, len(flat))
	for k, v := range flat {
		out = append(out, template.QueryParam{Key: k, Value: v})
	}
	return out
}

// headers resolves the endpoint's header templates against the bound
// credential, defaulting to a JSON content type.
func (c *call) headers(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if len(c.req.Endpoint.Headers) == 0 {
		out["Content-Type"] = "application/json"
		return out, nil
	}
	resolved, err := c.tc.Resolve(ctx, map[string]any(c.req.Endpoint.Headers))
	if err != nil {
		return nil, err
	}
	if m, ok := resolved.(map[string]any); ok {
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// decodeBody turns a response body into the canonical map shape. XML
// payloads are converted with namespaces stripped so response schemas
// can address plain tag names.
func decodeBody(body []byte, contentType string) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "xml") || strings.HasPrefix(trimmed, "<") {
		return xmlToMap(body)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		// Some providers answer with a bare JSON array.
		var arr []any
		if arrErr := json.Unmarshal(body, &arr); arrErr == nil {
			return map[string]any{"data": arr}, nil
		}
		return nil, err
	}
	return out, nil
}
