// Package domain models the provider integration registry: the read-only
// lookup graph answering which credentials and endpoint templates apply for
// an event on a lot.
package domain

import (
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/datatypes"
)

// Provider is one third-party integration.
type Provider struct {
	ID             int64              `gorm:"primaryKey" json:"id"`
	Name           string             `gorm:"type:text;not null" json:"name"`
	TextKey        string             `gorm:"type:text;not null;uniqueIndex" json:"text_key"`
	APIEndpoint    string             `gorm:"type:text" json:"api_endpoint"`
	OAuthPath      string             `gorm:"type:text" json:"oauth_path,omitempty"`
	AuthType       domain.AuthType    `gorm:"type:text" json:"auth_type"`
	ProviderTypeID int64              `gorm:"not null" json:"provider_type_id"`
	MetaData       datatypes.JSONMap  `gorm:"type:jsonb" json:"meta_data,omitempty"`
	RequestKind    domain.RequestKind `gorm:"column:provider_api_request_type;type:text;default:sgconnect" json:"provider_api_request_type"`

	// Endpoint of the peer microservice handling this provider, when the
	// provider is not called directly.
	APIRequestEndpoint string `gorm:"type:text" json:"api_request_endpoint,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Provider) TableName() string { return "provider" }

// ProviderTypeRow categorizes providers (payment, reservation, enforcement,
// violation).
type ProviderTypeRow struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"type:text" json:"name"`
	TextKey string `gorm:"type:text;not null;uniqueIndex" json:"text_key"`
}

// TableName sets the database table name.
func (ProviderTypeRow) TableName() string { return "provider_types" }

// ProviderCreds is one credential set for a provider. AccessToken holds the
// OAuth bearer or the J-Cookie value depending on auth type.
type ProviderCreds struct {
	ID           int64             `gorm:"primaryKey" json:"id"`
	TextKey      string            `gorm:"type:text" json:"text_key"`
	ProviderID   int64             `gorm:"not null;index" json:"provider_id"`
	ClientID     string            `gorm:"type:text" json:"client_id,omitempty"`
	ClientSecret string            `gorm:"type:text" json:"client_secret,omitempty"`
	APIKey       string            `gorm:"type:text" json:"api_key,omitempty"`
	AccessToken  string            `gorm:"type:text" json:"access_token,omitempty"`
	ExpireTime   *time.Time        `gorm:"" json:"expire_time,omitempty"`
	MetaData     datatypes.JSONMap `gorm:"type:jsonb" json:"meta_data,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ProviderCreds) TableName() string { return "provider_creds" }

// ConnectParkinglot is the per-lot integration configuration.
type ConnectParkinglot struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	ParkingLotID   int64  `gorm:"not null;uniqueIndex" json:"parking_lot_id"`
	ParkingLotName string `gorm:"type:text" json:"parking_lot_name"`
	OrganizationID int64  `gorm:"" json:"organization_id"`
	ContactEmail   string `gorm:"type:text" json:"contact_email,omitempty"`
	ContactName    string `gorm:"type:text" json:"contact_name,omitempty"`

	// GracePeriod is minutes before re-checking payment; RetryMechanism caps
	// how many not-paid passes reschedule.
	GracePeriod    int `gorm:"not null;default:20" json:"grace_period"`
	RetryMechanism int `gorm:"not null;default:1" json:"retry_mechanism"`

	IsInOutPolicy         bool                    `gorm:"not null;default:false" json:"is_in_out_policy"`
	ParkingOperations     domain.ParkingOperation `gorm:"type:text;not null" json:"parking_operations"`
	MaximumParkTimeInMins *int                    `gorm:"column:maximum_park_time_in_minutes" json:"maximum_park_time_in_minutes,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ConnectParkinglot) TableName() string { return "connect_parkinglot" }

// ProviderConnect wires one credential to one lot, optionally pinned to a
// provider-side facility id.
type ProviderConnect struct {
	ID              int64  `gorm:"primaryKey" json:"id"`
	ConnectID       int64  `gorm:"not null;index" json:"connect_id"`
	ProviderCredsID int64  `gorm:"not null;index" json:"provider_creds_id"`
	FacilityID      string `gorm:"type:text" json:"facility_id,omitempty"`
}

// TableName sets the database table name.
func (ProviderConnect) TableName() string { return "provider_connect" }

// Feature is one verification capability a provider can expose.
type Feature struct {
	ID          int64             `gorm:"primaryKey" json:"id"`
	TextKey     domain.FeatureKey `gorm:"type:text;not null;uniqueIndex" json:"text_key"`
	Name        string            `gorm:"type:text" json:"name"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	FeatureType string            `gorm:"type:text" json:"feature_type,omitempty"`
	IsEnabled   bool              `gorm:"not null;default:true" json:"is_enabled"`
}

// TableName sets the database table name.
func (Feature) TableName() string { return "feature" }

// FeatureURLPath is the declarative endpoint template for one (provider,
// feature) pair: path, method, transport and request/response templates.
type FeatureURLPath struct {
	ID            int64             `gorm:"primaryKey" json:"id"`
	ProviderID    int64             `gorm:"not null;index" json:"provider_id"`
	FeatureID     int64             `gorm:"column:provider_feature_id;not null;index" json:"provider_feature_id"`
	Path          string            `gorm:"type:text" json:"path"`
	RequestMethod string            `gorm:"type:text;not null;default:GET" json:"request_method"`
	APIType       domain.APIType    `gorm:"type:text;not null;default:REST" json:"api_type"`
	Headers       datatypes.JSONMap `gorm:"type:jsonb" json:"headers,omitempty"`

	// QueryParams is either a declarative parameter list or a plain
	// key-value object depending on the endpoint.
	QueryParams   datatypes.JSON `gorm:"type:jsonb" json:"query_params,omitempty"`
	RequestSchema datatypes.JSON `gorm:"type:jsonb" json:"request_schema,omitempty"`

	// ResponseSchema declares the projection keys for the response mapper.
	ResponseSchema datatypes.JSON `gorm:"type:jsonb" json:"response_schema,omitempty"`
}

// TableName sets the database table name.
func (FeatureURLPath) TableName() string { return "feature_url_path" }

// ParkinglotProviderFeature enables a feature for one provider connection.
type ParkinglotProviderFeature struct {
	ID                int64 `gorm:"primaryKey" json:"id"`
	ProviderConnectID int64 `gorm:"not null;index" json:"provider_connect_id"`
	FeatureID         int64 `gorm:"not null;index" json:"feature_id"`
}

// TableName sets the database table name.
func (ParkinglotProviderFeature) TableName() string { return "parkinglot_provider_feature" }

// EventTypeRow names one platform event kind.
type EventTypeRow struct {
	ID      int64            `gorm:"primaryKey" json:"id"`
	TextKey domain.EventType `gorm:"type:text;not null;uniqueIndex" json:"text_key"`
	Name    string           `gorm:"type:text" json:"name"`
}

// TableName sets the database table name.
func (EventTypeRow) TableName() string { return "event_types" }

// FeatureEventType binds an enabled lot feature to the event kinds that
// trigger it, pinned to one endpoint template.
type FeatureEventType struct {
	ID                          int64 `gorm:"primaryKey" json:"id"`
	ParkinglotProviderFeatureID int64 `gorm:"not null;index" json:"parkinglot_provider_feature_id"`
	EventTypeID                 int64 `gorm:"not null;index" json:"event_type_id"`
	FeatureURLPathID            int64 `gorm:"not null" json:"feature_url_path_id"`
}

// TableName sets the database table name.
func (FeatureEventType) TableName() string { return "feature_event_type" }

// ParkingTime is one scheduled payment window (time of day, UTC) for a lot
// running in scheduled-windows mode.
type ParkingTime struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	ParkingLotID int64  `gorm:"not null;index" json:"parking_lot_id"`
	StartTime    string `gorm:"type:text;not null" json:"start_time"`
	EndTime      string `gorm:"type:text;not null" json:"end_time"`
}

// TableName sets the database table name.
func (ParkingTime) TableName() string { return "parking_time" }
