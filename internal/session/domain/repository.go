package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists sessions and their append-only log.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Session, error)
	FindActiveByPlate(ctx context.Context, db *gorm.DB, lotID int64, plate string) (*Session, error)
	FindActiveBySpot(ctx context.Context, db *gorm.DB, lotID int64, spotID int64) (*Session, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error

	// BumpCounter resets not_paid_counter on payment and increments it on a
	// not-paid pass.
	BumpCounter(ctx context.Context, db *gorm.DB, id snowflake.ID, paid bool) error

	// AppendLog writes a log entry, honoring the skip-if-repeated rule for
	// the entry's action type.
	AppendLog(ctx context.Context, db *gorm.DB, log *SessionLog) (bool, error)
	LastLog(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*SessionLog, error)

	// LastActionIn reports whether the most recent log entry carries one of
	// the given base actions, ignoring any appended duration suffix.
	LastActionIn(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, actions []string) (bool, error)

	// HasEntryOrExitLog reports whether an Entry/Exit style action was
	// already recorded for the session.
	HasEntryOrExitLog(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, action string) (bool, error)

	// HasSessionOnDay reports whether the plate already opened a session on
	// the lot on the given calendar day.
	HasSessionOnDay(ctx context.Context, db *gorm.DB, lotID int64, plate string, day time.Time) (bool, error)

	// FindByPlateAndRecordID locates the session a plate read maps to.
	FindByPlateAndRecordID(ctx context.Context, db *gorm.DB, plate string, lprRecordID int64) (*Session, error)

	// FindForViolation locates the session a platform violation alert
	// belongs to, by plate and record id on the lot.
	FindForViolation(ctx context.Context, db *gorm.DB, lotID int64, plate string, lprRecordID *int64) (*Session, error)
}
