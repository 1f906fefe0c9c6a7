// Package repository implements the session repository on gorm.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	"gorm.io/gorm"
)

type gormRepository struct {
	node *snowflake.Node
}

// Provide constructs the session repository.
func Provide(node *snowflake.Node) sessiondomain.Repository {
	return &gormRepository{node: node}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, session *sessiondomain.Session) error {
	if session.ID == 0 {
		session.ID = r.node.Generate()
	}
	return db.WithContext(ctx).Create(session).Error
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*sessiondomain.Session, error) {
	var session sessiondomain.Session
	err := db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) FindActiveByPlate(ctx context.Context, db *gorm.DB, lotID int64, plate string) (*sessiondomain.Session, error) {
	return r.findActive(ctx, db, "parking_lot_id = ? AND lpr_number = ? AND is_active = ? AND deleted_at IS NULL", lotID, plate, true)
}

func (r *gormRepository) FindActiveBySpot(ctx context.Context, db *gorm.DB, lotID int64, spotID int64) (*sessiondomain.Session, error) {
	return r.findActive(ctx, db, "parking_lot_id = ? AND spot_id = ? AND is_active = ? AND deleted_at IS NULL", lotID, spotID, true)
}

func (r *gormRepository) findActive(ctx context.Context, db *gorm.DB, where string, args ...any) (*sessiondomain.Session, error) {
	var session sessiondomain.Session
	err := db.WithContext(ctx).
		Where(where, args...).
		Order("id DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	attrs["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&sessiondomain.Session{}).
		Where("id = ?", id).
		Updates(attrs).Error
}

func (r *gormRepository) BumpCounter(ctx context.Context, db *gorm.DB, id snowflake.ID, paid bool) error {
	if paid {
		return r.Update(ctx, db, id, map[string]any{"not_paid_counter": 0})
	}
	return db.WithContext(ctx).
		Model(&sessiondomain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"not_paid_counter": gorm.Expr("not_paid_counter + 1"),
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *gormRepository) AppendLog(ctx context.Context, db *gorm.DB, log *sessiondomain.SessionLog) (bool, error) {
	if action := baseAction(log.ActionType); domain.MetaFor(action).SkipIfRepeated {
		last, err := r.LastLog(ctx, db, log.SessionID)
		if err != nil {
			return false, err
		}
		if last != nil && last.ActionType == log.ActionType {
			return false, nil
		}
	}
	if log.ID == 0 {
		log.ID = r.node.Generate()
	}
	if log.EventAt.IsZero() {
		log.EventAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(log).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *gormRepository) LastLog(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*sessiondomain.SessionLog, error) {
	var log sessiondomain.SessionLog
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *gormRepository) LastActionIn(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, actions []string) (bool, error) {
	last, err := r.LastLog(ctx, db, sessionID)
	if err != nil || last == nil {
		return false, err
	}
	base := string(baseAction(last.ActionType))
	for _, action := range actions {
		if base == action {
			return true, nil
		}
	}
	return false, nil
}

func (r *gormRepository) HasEntryOrExitLog(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, action string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&sessiondomain.SessionLog{}).
		Where("session_id = ? AND action_type = ?", sessionID, action).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) HasSessionOnDay(ctx context.Context, db *gorm.DB, lotID int64, plate string, day time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&sessiondomain.Session{}).
		Where("parking_lot_id = ? AND lpr_number = ? AND DATE(created_at) = ?",
			lotID, plate, day.UTC().Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) FindByPlateAndRecordID(ctx context.Context, db *gorm.DB, plate string, lprRecordID int64) (*sessiondomain.Session, error) {
	return r.findActive(ctx, db, "lpr_number = ? AND lpr_record_id = ? AND is_active = ? AND deleted_at IS NULL", plate, lprRecordID, true)
}

func (r *gormRepository) FindForViolation(ctx context.Context, db *gorm.DB, lotID int64, plate string, lprRecordID *int64) (*sessiondomain.Session, error) {
	if lprRecordID != nil {
		session, err := r.findActive(ctx, db,
			"parking_lot_id = ? AND lpr_number = ? AND lpr_record_id = ? AND deleted_at IS NULL",
			lotID, plate, *lprRecordID)
		if session != nil || err != nil {
			return session, err
		}
	}
	return r.findActive(ctx, db, "parking_lot_id = ? AND lpr_number = ? AND deleted_at IS NULL", lotID, plate)
}

// baseAction strips a duration suffix like "Paid: 2.50 Hr" back to "Paid".
func baseAction(actionType string) domain.LogAction {
	if idx := strings.Index(actionType, ":"); idx >= 0 {
		return domain.LogAction(strings.TrimSpace(actionType[:idx]))
	}
	return domain.LogAction(actionType)
}
