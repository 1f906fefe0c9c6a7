// Package repository implements the violation repository on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
	"gorm.io/gorm"
)

type gormRepository struct {
	node *snowflake.Node
}

// Provide constructs the violation repository.
func Provide(node *snowflake.Node) violationdomain.Repository {
	return &gormRepository{node: node}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, violation *violationdomain.Violation) error {
	if violation.ID == 0 {
		violation.ID = r.node.Generate()
	}
	if violation.Status == "" {
		violation.Status = domain.ViolationOpen
	}
	if violation.Timestamp.IsZero() {
		violation.Timestamp = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(violation).Error
}

func (r *gormRepository) FindOpenByType(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, violationType domain.EventType) (*violationdomain.Violation, error) {
	var violation violationdomain.Violation
	err := db.WithContext(ctx).
		Where("session_id = ? AND violation_type = ? AND status = ?", sessionID, violationType, domain.ViolationOpen).
		Order("id").
		First(&violation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &violation, nil
}

func (r *gormRepository) FindByTaskAndSession(ctx context.Context, db *gorm.DB, taskID, sessionID snowflake.ID) (*violationdomain.Violation, error) {
	var violation violationdomain.Violation
	err := db.WithContext(ctx).
		Where("task_id = ? AND session_id = ?", taskID, sessionID).
		Order("id").
		First(&violation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &violation, nil
}

func (r *gormRepository) FindAwaitingInactivation(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]violationdomain.Violation, error) {
	var violations []violationdomain.Violation
	err := db.WithContext(ctx).
		Where("session_id = ? AND citation_inactivation_id IS NULL", sessionID).
		Order("id").
		Find(&violations).Error
	if err != nil {
		return nil, err
	}
	return violations, nil
}

func (r *gormRepository) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	attrs["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&violationdomain.Violation{}).
		Where("id = ?", id).
		Updates(attrs).Error
}

func (r *gormRepository) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ViolationStatus) error {
	return r.Update(ctx, db, id, map[string]any{"status": status})
}

func (r *gormRepository) AccrueOpen(ctx context.Context, db *gorm.DB, plate string, spotID *int64, featureKey domain.FeatureKey, amount float64) (*violationdomain.Violation, error) {
	var violation violationdomain.Violation
	query := db.WithContext(ctx).Where("status = ?", domain.ViolationOpen)
	switch featureKey {
	case domain.FeaturePaymentCheckSpot:
		query = query.Where("plate_number = ?", plate)
	case domain.FeaturePaymentCheckLpr:
		query = query.Where("parking_spot_id = ?", spotID)
	default:
		return nil, nil
	}
	err := query.Order("id").First(&violation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.Update(ctx, db, violation.ID, map[string]any{
		"amount_due": gorm.Expr("amount_due + ?", amount),
	}); err != nil {
		return nil, err
	}
	violation.AmountDue += amount
	return &violation, nil
}

func (r *gormRepository) CloseForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&violationdomain.Violation{}).
		Where("session_id = ? AND status = ?", sessionID, domain.ViolationOpen).
		Updates(map[string]any{"status": domain.ViolationClosed, "updated_at": time.Now().UTC()}).Error
}

func (r *gormRepository) ConfigForLot(ctx context.Context, db *gorm.DB, lotID int64) (*violationdomain.Config, error) {
	var cfg violationdomain.Config
	err := db.WithContext(ctx).
		Where("parking_lot_id = ?", lotID).
		Order("id DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
