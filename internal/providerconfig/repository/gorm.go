// Package repository implements the provider integration graph lookups.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	"gorm.io/gorm"
)

type gormRepository struct{}

// Provide constructs the provider config repository.
func Provide() providerdomain.Repository {
	return &gormRepository{}
}

func (r *gormRepository) LotConfig(ctx context.Context, db *gorm.DB, lotID int64) (*providerdomain.ConnectParkinglot, error) {
	var lot providerdomain.ConnectParkinglot
	err := db.WithContext(ctx).First(&lot, "parking_lot_id = ?", lotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

type bindingRow struct {
	ProviderConnectID int64
	ProviderCredsID   int64
	FeatureURLPathID  int64
	FeatureTextKey    domain.FeatureKey
	ProviderTypeKey   domain.ProviderType
}

func (r *gormRepository) BindingsForEvent(ctx context.Context, db *gorm.DB, lotID int64, eventType domain.EventType) (map[domain.FeatureKey][]providerdomain.ProviderBinding, error) {
	var rows []bindingRow
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT
		        pc.id AS provider_connect_id,
		        pc.provider_creds_id,
		        fet.feature_url_path_id,
		        f.text_key AS feature_text_key,
		        pt.text_key AS provider_type_key
		 FROM provider_connect pc
		 JOIN connect_parkinglot cp ON cp.id = pc.connect_id
		 JOIN parkinglot_provider_feature ppf ON ppf.provider_connect_id = pc.id
		 JOIN feature f ON f.id = ppf.feature_id
		 JOIN feature_event_type fet ON fet.parkinglot_provider_feature_id = ppf.id
		 JOIN event_types et ON et.id = fet.event_type_id
		 JOIN provider_creds cr ON cr.id = pc.provider_creds_id
		 JOIN provider p ON p.id = cr.provider_id
		 JOIN provider_types pt ON pt.id = p.provider_type_id
		 WHERE cp.parking_lot_id = ? AND et.text_key = ?
		 ORDER BY pc.id`,
		lotID, eventType,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	grouped := make(map[domain.FeatureKey][]providerdomain.ProviderBinding, len(rows))
	for _, row := range rows {
		grouped[row.FeatureTextKey] = append(grouped[row.FeatureTextKey], providerdomain.ProviderBinding{
			ProviderConnectID: row.ProviderConnectID,
			ProviderCredsID:   row.ProviderCredsID,
			FeatureURLPathID:  row.FeatureURLPathID,
			FeatureTextKey:    row.FeatureTextKey,
			ProviderTypeKey:   row.ProviderTypeKey,
		})
	}
	return grouped, nil
}

func (r *gormRepository) Creds(ctx context.Context, db *gorm.DB, credsID int64) (*providerdomain.ProviderCreds, error) {
	var creds providerdomain.ProviderCreds
	err := db.WithContext(ctx).First(&creds, "id = ?", credsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

func (r *gormRepository) ProviderForCreds(ctx context.Context, db *gorm.DB, credsID int64) (*providerdomain.Provider, error) {
	var provider providerdomain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT p.* FROM provider p
		 JOIN provider_creds cr ON cr.provider_id = p.id
		 WHERE cr.id = ?`,
		credsID,
	).Scan(&provider).Error
	if err != nil {
		return nil, err
	}
	if provider.ID == 0 {
		return nil, nil
	}
	return &provider, nil
}

func (r *gormRepository) ProviderTypeKey(ctx context.Context, db *gorm.DB, providerTypeID int64) (domain.ProviderType, error) {
	var row providerdomain.ProviderTypeRow
	err := db.WithContext(ctx).First(&row, "id = ?", providerTypeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.ProviderType(row.TextKey), nil
}

func (r *gormRepository) FeatureURLPath(ctx context.Context, db *gorm.DB, id int64) (*providerdomain.FeatureURLPath, error) {
	var path providerdomain.FeatureURLPath
	err := db.WithContext(ctx).First(&path, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &path, nil
}

func (r *gormRepository) FeatureURLPathFor(ctx context.Context, db *gorm.DB, providerID int64, featureKey domain.FeatureKey) (*providerdomain.FeatureURLPath, error) {
	var path providerdomain.FeatureURLPath
	err := db.WithContext(ctx).Raw(
		`SELECT fup.* FROM feature_url_path fup
		 JOIN feature f ON f.id = fup.provider_feature_id
		 WHERE fup.provider_id = ? AND f.text_key = ?
		 ORDER BY fup.id LIMIT 1`,
		providerID, featureKey,
	).Scan(&path).Error
	if err != nil {
		return nil, err
	}
	if path.ID == 0 {
		return nil, nil
	}
	return &path, nil
}

func (r *gormRepository) ConnectForCreds(ctx context.Context, db *gorm.DB, lotID int64, credsID int64) (*providerdomain.ProviderConnect, error) {
	var connect providerdomain.ProviderConnect
	err := db.WithContext(ctx).Raw(
		`SELECT pc.* FROM provider_connect pc
		 JOIN connect_parkinglot cp ON cp.id = pc.connect_id
		 WHERE cp.parking_lot_id = ? AND pc.provider_creds_id = ?
		 ORDER BY pc.id LIMIT 1`,
		lotID, credsID,
	).Scan(&connect).Error
	if err != nil {
		return nil, err
	}
	if connect.ID == 0 {
		return nil, nil
	}
	return &connect, nil
}

func (r *gormRepository) ParkingTimes(ctx context.Context, db *gorm.DB, lotID int64) ([]providerdomain.ParkingTime, error) {
	var times []providerdomain.ParkingTime
	err := db.WithContext(ctx).
		Where("parking_lot_id = ?", lotID).
		Order("start_time").
		Find(&times).Error
	if err != nil {
		return nil, err
	}
	return times, nil
}

func (r *gormRepository) HasFeature(ctx context.Context, db *gorm.DB, lotID int64, featureKey domain.FeatureKey) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM parkinglot_provider_feature ppf
		 JOIN provider_connect pc ON pc.id = ppf.provider_connect_id
		 JOIN connect_parkinglot cp ON cp.id = pc.connect_id
		 JOIN feature f ON f.id = ppf.feature_id
		 WHERE cp.parking_lot_id = ? AND f.text_key = ?`,
		lotID, featureKey,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) RefreshToken(ctx context.Context, db *gorm.DB, credsID int64, token string, expireAt *time.Time) error {
	return db.WithContext(ctx).
		Model(&providerdomain.ProviderCreds{}).
		Where("id = ?", credsID).
		Updates(map[string]any{
			"access_token": token,
			"expire_time":  expireAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}
