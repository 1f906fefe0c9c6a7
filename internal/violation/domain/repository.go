package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/gorm"
)

// Repository persists violations and reads the per-lot pricing config.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, violation *Violation) error
	FindOpenByType(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, violationType domain.EventType) (*Violation, error)
	FindByTaskAndSession(ctx context.Context, db *gorm.DB, taskID, sessionID snowflake.ID) (*Violation, error)

	// FindAwaitingInactivation returns the session's violations that have not
	// been inactivated on the provider side yet, regardless of status.
	FindAwaitingInactivation(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]Violation, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ViolationStatus) error

	// AccrueOpen adds the per-pass amount to the open violation matching the
	// identity dimension of the feature, if one exists.
	AccrueOpen(ctx context.Context, db *gorm.DB, plate string, spotID *int64, featureKey domain.FeatureKey, amount float64) (*Violation, error)

	// CloseForSession flips every open violation of a session to CLOSED.
	CloseForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error

	ConfigForLot(ctx context.Context, db *gorm.DB, lotID int64) (*Config, error)
}
