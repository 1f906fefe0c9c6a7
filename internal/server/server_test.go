package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	providerrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/repository"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	sessionrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/session/repository"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	taskrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/task/repository"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
	violationrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/repository"
)

func newTestServer(t *testing.T, apiToken string) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&providerdomain.Provider{},
		&providerdomain.ProviderTypeRow{},
		&providerdomain.ProviderCreds{},
		&providerdomain.ConnectParkinglot{},
		&providerdomain.ProviderConnect{},
		&providerdomain.Feature{},
		&providerdomain.FeatureURLPath{},
		&providerdomain.ParkinglotProviderFeature{},
		&providerdomain.EventTypeRow{},
		&providerdomain.FeatureEventType{},
		&providerdomain.ParkingTime{},
		&sessiondomain.Session{},
		&sessiondomain.SessionLog{},
		&taskdomain.Task{},
		&taskdomain.SubTask{},
		&violationdomain.Violation{},
		&violationdomain.Config{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seed := []any{
		&providerdomain.ConnectParkinglot{
			ID:                1,
			ParkingLotID:      42,
			GracePeriod:       20,
			RetryMechanism:    1,
			ParkingOperations: domain.OperationPaid24Hours,
		},
		// Lot 77 has no provider wired at all.
		&providerdomain.ConnectParkinglot{
			ID:                2,
			ParkingLotID:      77,
			GracePeriod:       20,
			RetryMechanism:    1,
			ParkingOperations: domain.OperationPaid24Hours,
		},
		&providerdomain.ProviderTypeRow{ID: 1, TextKey: string(domain.ProviderTypePayment), Name: "Payment"},
		&providerdomain.Provider{ID: 1, Name: "ParkPay", TextKey: "parkpay", ProviderTypeID: 1},
		&providerdomain.ProviderCreds{ID: 1, TextKey: "parkpay", ProviderID: 1},
		&providerdomain.ProviderConnect{ID: 1, ConnectID: 1, ProviderCredsID: 1},
		&providerdomain.Feature{ID: 1, TextKey: domain.FeaturePaymentCheckLpr, Name: "Payment Check LPR"},
		&providerdomain.FeatureURLPath{ID: 1, ProviderID: 1, FeatureID: 1, Path: "/payments", RequestMethod: "GET"},
		&providerdomain.ParkinglotProviderFeature{ID: 1, ProviderConnectID: 1, FeatureID: 1},
		&providerdomain.EventTypeRow{ID: 1, TextKey: domain.EventCarEntry, Name: "Car Entry"},
		&providerdomain.FeatureEventType{ID: 1, ParkinglotProviderFeatureID: 1, EventTypeID: 1, FeatureURLPathID: 1},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	cfg := config.Config{
		APIToken: apiToken,
		SGAdmin:  config.SGAdmin{BaseURL: "http://sgadmin.invalid", RequestTimeout: time.Second},
	}
	log := zap.NewNop()
	dispatch := dispatcher.New(dispatcher.Params{
		DB:         db,
		Log:        log,
		Clock:      clock.Fixed{At: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		Providers:  providerrepo.Provide(),
		Tasks:      taskrepo.Provide(node),
		Sessions:   sessionrepo.Provide(node),
		Violations: violationrepo.Provide(node),
		Admin:      sgadmin.New(cfg, log),
	})

	engine := gin.New()
	srv := NewServer(Params{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Engine:     engine,
		Dispatcher: dispatch,
	})
	srv.RegisterAPIRoutes()
	return srv, db
}

func postEvent(srv *Server, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestPostEventAcceptsEntry(t *testing.T) {
	srv, db := newTestServer(t, "")

	rec := postEvent(srv, "", `{
		"parking_lot_id": 42,
		"event_key": "lpr_entry",
		"license_plate": "ABC123"
	}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "accepted" || resp["event_key"] != "lpr_entry" {
		t.Fatalf("unexpected response: %v", resp)
	}

	var session sessiondomain.Session
	if err := db.First(&session, "lpr_number = ?", "ABC123").Error; err != nil {
		t.Fatalf("session should be opened: %v", err)
	}
	if !session.IsActive || !session.IsWaitingForPayment {
		t.Fatalf("unexpected session state: %+v", session)
	}
}

func TestPostEventRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := postEvent(srv, "", `{"parking_lot_id": "not a number"`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostEventUnregisteredLot(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := postEvent(srv, "", `{
		"parking_lot_id": 999,
		"event_key": "lpr_entry",
		"license_plate": "ABC123"
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestPostEventNoProviderConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := postEvent(srv, "", `{
		"parking_lot_id": 77,
		"event_key": "lpr_entry",
		"license_plate": "ABC123"
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	detail, _ := resp["detail"].(string)
	if !strings.Contains(detail, "no provider configured") {
		t.Fatalf("detail = %q", detail)
	}
}

func TestTokenRequired(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	body := `{
		"parking_lot_id": 42,
		"event_key": "lpr_entry",
		"license_plate": "ABC123"
	}`

	if rec := postEvent(srv, "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}
	if rec := postEvent(srv, "wrong", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}
	if rec := postEvent(srv, "s3cret", body); rec.Code != http.StatusAccepted {
		t.Fatalf("valid token status = %d, want 202", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}
