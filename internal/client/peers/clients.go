package peers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/tracing"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	"go.uber.org/zap"
)

const microserviceAttempts = 2

// Client calls the payment and enforcement microservices that front
// providers not integrated directly, and syncs violation configuration.
type Client struct {
	http *http.Client
	cfg  config.Peers
	log  *zap.Logger
	pool *RetryPool
}

// New builds the peer-service client.
func New(cfg config.Config, log *zap.Logger, pool *RetryPool) *Client {
	return &Client{
		http: tracing.WrapHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		cfg:  cfg.Peers,
		log:  log.Named("client.peers"),
		pool: pool,
	}
}

// PaymentQuery carries the inputs for a routed payment check.
type PaymentQuery struct {
	ParkingLotID   int64
	Plate          string
	Provider       string
	Feature        string
	FacilityID     string
	GracePeriod    int
	MatchThreshold int
}

// CheckPayment asks the payment microservice whether a payment exists for
// the plate. Two attempts; nil result means no payment found.
func (c *Client) CheckPayment(ctx context.Context, endpoint string, creds *providerdomain.ProviderCreds, q PaymentQuery) map[string]any {
	params := url.Values{}
	params.Set("parking_lot_id", strconv.FormatInt(q.ParkingLotID, 10))
	params.Set("lpr", q.Plate)
	params.Set("provider", q.Provider)
	params.Set("feature", q.Feature)
	params.Set("facility_id", q.FacilityID)
	params.Set("provider_api_key", creds.APIKey)
	params.Set("grace_period", strconv.Itoa(q.GracePeriod))
	params.Set("lpr_text_match_threshold", strconv.Itoa(q.MatchThreshold))
	for key, value := range creds.MetaData {
		switch key {
		case "client_id", "client_secret", "facility_id", "requestDict":
			continue
		}
		params.Set(key, fmt.Sprint(value))
	}

	requestURL := endpoint + "/api/v1/connect/payments/sg-connect?" + params.Encode()
	for attempt := 0; attempt < microserviceAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil
		}
		req.Header.Set("client_id", creds.ClientID)
		req.Header.Set("client_secret", creds.ClientSecret)

		body, status, err := c.do(req)
		if err != nil {
			c.log.Warn("payment-service request failed",
				zap.String("provider", q.Provider), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if status != http.StatusOK {
			continue
		}
		var parsed struct {
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.log.Warn("payment-service response malformed", zap.Error(err))
			continue
		}
		if len(parsed.Data) > 0 {
			return parsed.Data
		}
	}
	return nil
}

// CitationRequest is the routed enforcement payload.
type CitationRequest struct {
	ParkingLotID  int64          `json:"parking_lot_id"`
	PlateNumber   string         `json:"plate_number"`
	SpotName      string         `json:"spot_name,omitempty"`
	ViolationType string         `json:"violation_type"`
	Amount        float64        `json:"amount"`
	Provider      string         `json:"provider"`
	FacilityID    string         `json:"facility_id,omitempty"`
	ImageURLs     []string       `json:"image_urls,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CreateCitation sends a citation to the enforcement microservice. Two
// attempts; nil result means the citation was not created.
func (c *Client) CreateCitation(ctx context.Context, endpoint string, creds *providerdomain.ProviderCreds, payload CitationRequest) map[string]any {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	for attempt := 0; attempt < microserviceAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			endpoint+"/api/v1/connect/violation/sg-connect", bytes.NewReader(encoded))
		if err != nil {
			return nil
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("client_id", creds.ClientID)
		req.Header.Set("client_secret", creds.ClientSecret)

		body, status, err := c.do(req)
		if err != nil {
			c.log.Warn("enforcement-service request failed",
				zap.String("provider", payload.Provider), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if status != http.StatusCreated {
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			continue
		}
		if data, ok := parsed["data"]; ok && data != nil {
			return parsed
		}
	}
	return nil
}

// UpsertViolationConfigs pushes violation pricing rows to the violation
// service. Best effort: failures retry on the background pool and never
// block the caller's transaction.
func (c *Client) UpsertViolationConfigs(ctx context.Context, configurations []map[string]any) {
	if c.cfg.ViolationBaseURL == "" || len(configurations) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{"configurations": configurations})
	if err != nil {
		return
	}
	key := "violation-config-bulk-" + uuid.NewString()
	err = c.pool.Do(ctx, key, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.ViolationBaseURL+"/api/v1/lots/violation_configurations/bulk", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		_, status, err := c.do(req)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("bulk upsert violation configs: status %d", status)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("violation config upsert failed, retrying in background", zap.Error(err))
	}
}

// SyncProviderCreds pushes credential instances to the payment service so
// routed providers stay in sync. Best effort like UpsertViolationConfigs.
func (c *Client) SyncProviderCreds(ctx context.Context, instances []map[string]any) {
	if c.cfg.PaymentBaseURL == "" || len(instances) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{"instances": instances})
	if err != nil {
		return
	}
	key := "payment-creds-bulk-" + uuid.NewString()
	err = c.pool.Do(ctx, key, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.PaymentBaseURL+"/api/v1/connect/payments/credentials/bulk", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		_, status, err := c.do(req)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("bulk sync provider creds: status %d", status)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("provider creds sync failed, retrying in background", zap.Error(err))
	}
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
