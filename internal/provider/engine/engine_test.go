package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	providerrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/repository"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

func newEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&providerdomain.Provider{},
		&providerdomain.ProviderCreds{},
		&providerdomain.ConnectParkinglot{},
		&providerdomain.ProviderConnect{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type engineFixture struct {
	engine *Engine
	db     *gorm.DB
	creds  *providerdomain.ProviderCreds
	lot    *providerdomain.ConnectParkinglot
}

func newEngineFixture(t *testing.T, endpoint string, authType domain.AuthType, meta datatypes.JSONMap) *engineFixture {
	t.Helper()
	db := newEngineDB(t)

	lot := &providerdomain.ConnectParkinglot{
		ID:                1,
		ParkingLotID:      42,
		ParkingLotName:    "North Garage",
		ParkingOperations: domain.OperationPaid24Hours,
	}
	provider := &providerdomain.Provider{
		ID:             1,
		Name:           "acme-parking",
		TextKey:        "acme",
		APIEndpoint:    endpoint,
		OAuthPath:      "/token",
		AuthType:       authType,
		ProviderTypeID: 1,
		MetaData:       meta,
	}
	creds := &providerdomain.ProviderCreds{
		ID:           1,
		ProviderID:   1,
		ClientID:     "client-a",
		ClientSecret: "secret-a",
	}
	connect := &providerdomain.ProviderConnect{
		ID:              1,
		ConnectID:       1,
		ProviderCredsID: 1,
		FacilityID:      "FAC-7",
	}
	for _, row := range []any{lot, provider, creds, connect} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}

	cfg := config.Config{
		RequestAttempts: 2,
		RequestTimeout:  5 * time.Second,
	}
	return &engineFixture{
		engine: New(db, cfg, zap.NewNop(), providerrepo.Provide()),
		db:     db,
		creds:  creds,
		lot:    lot,
	}
}

func verificationTask() *taskdomain.Task {
	return &taskdomain.Task{
		ID:             snowflake.ID(9001),
		Status:         domain.TaskStatusPending,
		EventType:      domain.EventCarEntry,
		FeatureTextKey: domain.FeaturePaymentCheckLpr,
		ParkingLotID:   42,
		PlateNumber:    "ABC123",
		SessionID:      snowflake.ID(5001),
	}
}

func TestExecuteRestGet(t *testing.T) {
	var gotPath, gotQuery, gotAuthUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("plate")
		gotAuthUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": [{"plate_number": "ABC123", "paid": true}]}`)
	}))
	defer srv.Close()

	f := newEngineFixture(t, srv.URL, domain.AuthBasic, nil)
	record, err := f.engine.Execute(context.Background(), Request{
		Task: verificationTask(),
		Endpoint: &providerdomain.FeatureURLPath{
			ID:            1,
			ProviderID:    1,
			Path:          "/api/vehicles/{lpr}",
			RequestMethod: http.MethodGet,
			APIType:       domain.APITypeREST,
			QueryParams:   datatypes.JSON(`{"plate": "{task.plate_number}"}`),
		},
		Creds: f.creds,
		Lot:   f.lot,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/api/vehicles/ABC123" {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotQuery != "ABC123" {
		t.Fatalf("plate query = %q", gotQuery)
	}
	if gotAuthUser != "client-a" {
		t.Fatalf("basic auth user = %q", gotAuthUser)
	}
	rows, ok := record["data"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected response shape: %v", record)
	}
}

func TestExecuteRestPostResolvesPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status": "ok"}`)
	}))
	defer srv.Close()

	f := newEngineFixture(t, srv.URL, domain.AuthBasic, nil)
	record, err := f.engine.Execute(context.Background(), Request{
		Task: verificationTask(),
		Endpoint: &providerdomain.FeatureURLPath{
			ID:            1,
			ProviderID:    1,
			Path:          "/api/check",
			RequestMethod: http.MethodPost,
			APIType:       domain.APITypeREST,
			RequestSchema: datatypes.JSON(`{"plate": "{task.plate_number}", "facility": "{location_id}"}`),
		},
		Creds: f.creds,
		Lot:   f.lot,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record["status"] != "ok" {
		t.Fatalf("unexpected response: %v", record)
	}
	if gotBody["plate"] != "ABC123" {
		t.Fatalf("payload plate = %v", gotBody["plate"])
	}
	if gotBody["facility"] != "FAC-7" {
		t.Fatalf("payload facility = %v", gotBody["facility"])
	}
}

func TestExecuteExhaustsAttemptBudget(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newEngineFixture(t, srv.URL, domain.AuthBasic, nil)
	_, err := f.engine.Execute(context.Background(), Request{
		Task: verificationTask(),
		Endpoint: &providerdomain.FeatureURLPath{
			ID:            1,
			ProviderID:    1,
			Path:          "/api/vehicles",
			RequestMethod: http.MethodGet,
			APIType:       domain.APITypeREST,
		},
		Creds: f.creds,
		Lot:   f.lot,
	})
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestExecuteRefreshesOAuthTokenOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token": "fresh-token"}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	meta := datatypes.JSONMap{
		"oauth_info": map[string]any{
			"grant_type":    "client_credentials",
			"client_id":     "client-a",
			"client_secret": "secret-a",
		},
	}
	f := newEngineFixture(t, srv.URL, domain.AuthOAuth, meta)
	f.creds.AccessToken = "stale-token"
	if err := f.db.Save(f.creds).Error; err != nil {
		t.Fatalf("save creds: %v", err)
	}

	record, err := f.engine.Execute(context.Background(), Request{
		Task: verificationTask(),
		Endpoint: &providerdomain.FeatureURLPath{
			ID:            1,
			ProviderID:    1,
			Path:          "/api/vehicles",
			RequestMethod: http.MethodGet,
			APIType:       domain.APITypeREST,
		},
		Creds: f.creds,
		Lot:   f.lot,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := record["data"]; !ok {
		t.Fatalf("unexpected response: %v", record)
	}

	var stored providerdomain.ProviderCreds
	if err := f.db.First(&stored, "id = ?", f.creds.ID).Error; err != nil {
		t.Fatalf("reload creds: %v", err)
	}
	if stored.AccessToken != "fresh-token" {
		t.Fatalf("stored token = %q", stored.AccessToken)
	}
}

func TestExecuteSoapPost(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <CheckResponse>
      <Valid>true</Valid>
      <Plate>ABC123</Plate>
    </CheckResponse>
  </soap:Body>
</soap:Envelope>`)
	}))
	defer srv.Close()

	f := newEngineFixture(t, srv.URL, domain.AuthBasic, nil)
	record, err := f.engine.Execute(context.Background(), Request{
		Task: verificationTask(),
		Endpoint: &providerdomain.FeatureURLPath{
			ID:            1,
			ProviderID:    1,
			Path:          "/soap/check",
			RequestMethod: http.MethodPost,
			APIType:       domain.APITypeSOAP,
			Headers:       datatypes.JSONMap{"Content-Type": "text/xml"},
			RequestSchema: datatypes.JSON(`<Check><Plate>{{task.plate_number}}</Plate></Check>`),
		},
		Creds: f.creds,
		Lot:   f.lot,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotBody != "<Check><Plate>ABC123</Plate></Check>" {
		t.Fatalf("soap body = %q", gotBody)
	}
	body, ok := record["Body"].(map[string]any)
	if !ok {
		t.Fatalf("missing soap body: %v", record)
	}
	check, ok := body["CheckResponse"].(map[string]any)
	if !ok || check["Valid"] != "true" {
		t.Fatalf("unexpected envelope decode: %v", body)
	}
}

func TestDecodeBodyBareJSONArray(t *testing.T) {
	decoded, err := decodeBody([]byte(`[{"plate": "ABC123"}]`), "application/json")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rows, ok := decoded["data"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("array should be wrapped under data, got %v", decoded)
	}
}

func TestXMLToMapCollapsesRepeatedTags(t *testing.T) {
	decoded, err := xmlToMap([]byte(`<List><Item>a</Item><Item>b</Item></List>`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	items, ok := decoded["Item"].([]any)
	if !ok || len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("repeated tags = %v", decoded)
	}
}
