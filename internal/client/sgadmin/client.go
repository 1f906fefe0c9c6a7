// Package sgadmin talks to the parking-management platform: lot status,
// privilege permits, exit checks and the alert lifecycle.
package sgadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/cache"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/tracing"
	"go.uber.org/zap"
)

const tokenCacheKey = "sg-connect-admin-api-client"

// Client is the bearer-token HTTP client for the platform's external API.
// A 401 triggers one re-authentication and one retry.
type Client struct {
	http   *http.Client
	cfg    config.SGAdmin
	log    *zap.Logger
	tokens cache.Cache[string, string]
}

// New builds the platform client.
func New(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		http:   tracing.WrapHTTPClient(&http.Client{Timeout: cfg.SGAdmin.RequestTimeout}),
		cfg:    cfg.SGAdmin,
		log:    log.Named("client.sgadmin"),
		tokens: cache.NewTTLCache[string, string](),
	}
}

// Permit is the privilege permit check result.
type Permit struct {
	IsPrivilegePermit bool    `json:"is_privilege_permit"`
	ExpiryAt          *string `json:"expiry_at"`
	Message           string  `json:"message,omitempty"`
}

// LotStatus carries the per-lot runtime knobs the processors read.
type LotStatus struct {
	LprMatchThreshold *int `json:"lpr_number_plate_text_matching_distance_thresh"`
}

// SpotStatus is the live occupancy state of one spot.
type SpotStatus struct {
	SpotStatus string `json:"spot_status"`
	IsUnknown  bool   `json:"is_unknown"`
}

// CheckPermit asks whether the plate holds a privilege permit on the lot.
func (c *Client) CheckPermit(ctx context.Context, lotID int64, plate string) (*Permit, error) {
	var permit Permit
	path := fmt.Sprintf("/api/external/v1/parking_lot/%d/check_permit/%s", lotID, url.PathEscape(plate))
	if err := c.getJSON(ctx, path, &permit); err != nil {
		return nil, err
	}
	return &permit, nil
}

// LotStatus fetches the lot's runtime configuration.
func (c *Client) LotStatus(ctx context.Context, lotID int64) (*LotStatus, error) {
	var status LotStatus
	path := fmt.Sprintf("/api/external/v1/parking_lot/%d/lot_status", lotID)
	if err := c.getJSON(ctx, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// LprExited reports whether the platform has recorded an exit for the LPR
// record. Errors degrade to false so a flaky check never blocks enforcement.
func (c *Client) LprExited(ctx context.Context, lotID int64, lprRecordID int64) bool {
	var resp struct {
		LprExited bool `json:"lpr_exited"`
	}
	path := fmt.Sprintf("/api/external/v1/parking_lot/%d/check_lpr_exit/%d", lotID, lprRecordID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		c.log.Warn("lpr exit check failed", zap.Int64("lpr_record_id", lprRecordID), zap.Error(err))
		return false
	}
	return resp.LprExited
}

// SpotFree reports whether the spot is currently free. Unknown states count
// as occupied.
func (c *Client) SpotFree(ctx context.Context, lotID int64, spotName string) bool {
	var status SpotStatus
	path := fmt.Sprintf("/api/external/v1/parking_lot/%d/%s/spot_status", lotID, url.PathEscape(spotName))
	if err := c.getJSON(ctx, path, &status); err != nil {
		c.log.Warn("spot status check failed", zap.String("spot", spotName), zap.Error(err))
		return false
	}
	if status.IsUnknown {
		return false
	}
	return status.SpotStatus == "available" || status.SpotStatus == "free"
}

// Alert type ids registered on the platform per violation kind.
var alertTypeIDs = map[string]int64{
	"payment.violation":  39,
	"overstay.violation": 2,
}

// AlertTypeID maps a violation type to its platform alert type id.
func AlertTypeID(violationType string) int64 {
	return alertTypeIDs[violationType]
}

// ViolationAmount fetches the configured violation fee metadata for the lot
// and violation kind. The returned map carries an "amount" key.
func (c *Client) ViolationAmount(ctx context.Context, lotID int64, violationType string) (map[string]any, error) {
	return c.ViolationAmountByTypeID(ctx, lotID, AlertTypeID(violationType))
}

// ViolationAmountByTypeID fetches the fee metadata by raw platform alert
// type id, used for externally sourced violations which carry their own id.
func (c *Client) ViolationAmountByTypeID(ctx context.Context, lotID int64, alertTypeID int64) (map[string]any, error) {
	var meta map[string]any
	path := fmt.Sprintf("/api/external/v1/parking_lot/%d/alert_type/%d/violation", lotID, alertTypeID)
	if err := c.getJSON(ctx, path, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// AlertCreate is the payload for raising a platform alert.
type AlertCreate struct {
	Title              string   `json:"title"`
	Severity           string   `json:"severity"`
	Category           string   `json:"category"`
	Subcategory        string   `json:"subcategory"`
	AlertType          string   `json:"alert_type"`
	AlertTypeID        int64    `json:"alert_type_id"`
	ParkingLotID       int64    `json:"parking_lot_id"`
	ParkingSpotID      *int64   `json:"parking_spot_id,omitempty"`
	LicensePlateNumber string   `json:"license_plate_number,omitempty"`
	Details            string   `json:"details,omitempty"`
	ImageBase64s       []string `json:"image_base64s,omitempty"`
	AlertState         string   `json:"alert_state"`
	AlertTriggerState  string   `json:"alert_trigger_state"`
}

// AlertUpdate is the payload for changing an alert's state.
type AlertUpdate struct {
	AlertID           int64  `json:"alert_id"`
	AlertState        string `json:"alert_state"`
	AlertTriggerState string `json:"alert_trigger_state"`
	Reason            string `json:"reason,omitempty"`
}

// CreateAlert raises an alert and returns its platform id.
func (c *Client) CreateAlert(ctx context.Context, payload AlertCreate) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	resp, err := c.doStatic(ctx, http.MethodPost, "/api/external/v1/create_alert", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("create alert: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("create alert: decode response: %w", err)
	}
	return created.ID, nil
}

// UpdateAlert changes an alert's state and trigger state.
func (c *Client) UpdateAlert(ctx context.Context, payload AlertUpdate) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.doStatic(ctx, http.MethodPut, "/api/external/v1/update_alert", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update alert %d: status %d: %s", payload.AlertID, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// doStatic performs a call authorized with the static alert API token.
func (c *Client) doStatic(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AlertToken)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	token, err := c.token(ctx, false)
	if err != nil {
		return err
	}
	status, err := c.getOnce(ctx, path, token, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		token, err = c.token(ctx, true)
		if err != nil {
			return err
		}
		status, err = c.getOnce(ctx, path, token, out)
		if err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, status)
	}
	return nil
}

func (c *Client) getOnce(ctx context.Context, path, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return resp.StatusCode, nil
}

// token returns the cached client-credentials token, fetching a fresh one
// when missing or forced.
func (c *Client) token(ctx context.Context, force bool) (string, error) {
	if !force {
		if token, ok := c.tokens.Get(tokenCacheKey); ok {
			return token, nil
		}
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	token := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	c.tokens.Set(tokenCacheKey, token, time.Hour)
	return token, nil
}
