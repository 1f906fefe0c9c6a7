// Package seed bootstraps the static lookup vocabulary the dispatcher
// joins against: provider types, features and event types.
package seed

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
)

// EnsureVocabulary inserts any missing provider type, feature and event
// type rows. Existing rows are left untouched, so operators can flip
// feature enablement without the seed reverting it.
func EnsureVocabulary(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureProviderTypes(ctx, tx); err != nil {
			return err
		}
		if err := ensureFeatures(ctx, tx); err != nil {
			return err
		}
		return ensureEventTypes(ctx, tx)
	})
}

func ensureProviderTypes(ctx context.Context, tx *gorm.DB) error {
	rows := []providerdomain.ProviderTypeRow{
		{ID: 1, Name: "Payment", TextKey: string(domain.ProviderTypePayment)},
		{ID: 2, Name: "Reservation", TextKey: string(domain.ProviderTypeReservation)},
		{ID: 3, Name: "Enforcement", TextKey: string(domain.ProviderTypeEnforcement)},
		{ID: 4, Name: "Violation", TextKey: string(domain.ProviderTypeViolation)},
	}
	for _, row := range rows {
		if err := ensureRow(ctx, tx, &providerdomain.ProviderTypeRow{}, "text_key = ?", row.TextKey, &row); err != nil {
			return err
		}
	}
	return nil
}

func ensureFeatures(ctx context.Context, tx *gorm.DB) error {
	rows := []providerdomain.Feature{
		{ID: 1, TextKey: domain.FeaturePaymentCheckLpr, Name: "Payment Check By LPR", IsEnabled: true},
		{ID: 2, TextKey: domain.FeaturePaymentCheckSpot, Name: "Payment Check By Spot", IsEnabled: true},
		{ID: 3, TextKey: domain.FeatureReservationCheckLpr, Name: "Reservation Check By LPR", IsEnabled: true},
		{ID: 4, TextKey: domain.FeatureEnforcementCitation, Name: "Enforcement Citation", IsEnabled: true},
		{ID: 5, TextKey: domain.FeatureNotifySGAdmin, Name: "Notify SG Admin", IsEnabled: true},
		{ID: 6, TextKey: domain.FeatureInactivation, Name: "Enforcement Inactivation", IsEnabled: true},
	}
	for _, row := range rows {
		if err := ensureRow(ctx, tx, &providerdomain.Feature{}, "text_key = ?", string(row.TextKey), &row); err != nil {
			return err
		}
	}
	return nil
}

func ensureEventTypes(ctx context.Context, tx *gorm.DB) error {
	rows := []providerdomain.EventTypeRow{
		{ID: 1, TextKey: domain.EventCarEntry, Name: "Car Entry"},
		{ID: 2, TextKey: domain.EventCarExit, Name: "Car Exit"},
		{ID: 3, TextKey: domain.EventSpotOccupied, Name: "Spot Occupied"},
		{ID: 4, TextKey: domain.EventSpotFree, Name: "Spot Free"},
		{ID: 5, TextKey: domain.EventPaymentViolation, Name: "Payment Violation"},
		{ID: 6, TextKey: domain.EventOverstayViolation, Name: "Overstay Violation"},
		{ID: 7, TextKey: domain.EventParkingViolation, Name: "Parking Violation"},
		{ID: 8, TextKey: domain.EventViolationInactivate, Name: "Violation Inactivation"},
	}
	for _, row := range rows {
		if err := ensureRow(ctx, tx, &providerdomain.EventTypeRow{}, "text_key = ?", string(row.TextKey), &row); err != nil {
			return err
		}
	}
	return nil
}

func ensureRow(ctx context.Context, tx *gorm.DB, probe any, query string, arg any, row any) error {
	err := tx.WithContext(ctx).Where(query, arg).First(probe).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return tx.WithContext(ctx).Create(row).Error
}
