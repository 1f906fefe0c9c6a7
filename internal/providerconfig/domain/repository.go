package domain

import (
	"context"
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/gorm"
)

// ProviderBinding is one resolved (credential, endpoint) pairing for an event
// on a lot, grouped by feature key at dispatch time.
type ProviderBinding struct {
	ProviderConnectID int64
	ProviderCredsID   int64
	FeatureURLPathID  int64
	FeatureTextKey    domain.FeatureKey
	ProviderTypeKey   domain.ProviderType
}

// Repository reads the provider integration graph. The orchestration core
// never mutates it except for credential token refresh.
type Repository interface {
	LotConfig(ctx context.Context, db *gorm.DB, lotID int64) (*ConnectParkinglot, error)

	// BindingsForEvent resolves every (credential, feature, endpoint) triple
	// wired for the event type on the lot, grouped by feature key.
	BindingsForEvent(ctx context.Context, db *gorm.DB, lotID int64, eventType domain.EventType) (map[domain.FeatureKey][]ProviderBinding, error)

	Creds(ctx context.Context, db *gorm.DB, credsID int64) (*ProviderCreds, error)
	ProviderForCreds(ctx context.Context, db *gorm.DB, credsID int64) (*Provider, error)
	ProviderTypeKey(ctx context.Context, db *gorm.DB, providerTypeID int64) (domain.ProviderType, error)
	FeatureURLPath(ctx context.Context, db *gorm.DB, id int64) (*FeatureURLPath, error)
	FeatureURLPathFor(ctx context.Context, db *gorm.DB, providerID int64, featureKey domain.FeatureKey) (*FeatureURLPath, error)
	ConnectForCreds(ctx context.Context, db *gorm.DB, lotID int64, credsID int64) (*ProviderConnect, error)

	ParkingTimes(ctx context.Context, db *gorm.DB, lotID int64) ([]ParkingTime, error)
	HasFeature(ctx context.Context, db *gorm.DB, lotID int64, featureKey domain.FeatureKey) (bool, error)

	// RefreshToken stores a newly obtained access token on the credential.
	RefreshToken(ctx context.Context, db *gorm.DB, credsID int64, token string, expireAt *time.Time) error
}
