package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/gorm"
)

// Repository persists tasks and sub-tasks. The scheduler's claim query is
// deliberately not part of this interface; claiming needs raw row locking and
// lives with the scheduler.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) error
	InsertSubTask(ctx context.Context, db *gorm.DB, subTask *SubTask) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Task, error)
	FindOpenViolationTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Task, error)
	FindDueViolationTasks(ctx context.Context, db *gorm.DB, lotID int64, plate string, now time.Time) ([]Task, error)
	SubTasks(ctx context.Context, db *gorm.DB, taskID snowflake.ID) ([]SubTask, error)

	// FindAlertTasks returns the session's violation-notify tasks whose
	// alert is still open, oldest first.
	FindAlertTasks(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]Task, error)

	// FindAlertTaskByEvent returns the oldest open-alert violation task of
	// the given violation kind, or nil.
	FindAlertTaskByEvent(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, eventType domain.EventType) (*Task, error)

	// FindExitTask locates the latest exit task recorded for the identity,
	// used to remap stray events onto the exiting session.
	FindExitTask(ctx context.Context, db *gorm.DB, lotID int64, plate string) (*Task, error)
	FindFreeTask(ctx context.Context, db *gorm.DB, lotID int64, spotID int64) (*Task, error)

	// FindSpotTask returns a session task that carries spot details.
	FindSpotTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Task, error)

	// HasProviderTypeTask reports whether the session has any task for the
	// given provider class.
	HasProviderTypeTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, providerType domain.ProviderType) (bool, error)

	// HasActiveTaskForPlates reports whether any of the plates has an open
	// task on the lot.
	HasActiveTaskForPlates(ctx context.Context, db *gorm.DB, lotID int64, plates []string) (bool, error)

	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.TaskStatus) error
	UpdateSubTaskStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.TaskStatus) error
	UpdateSubTasksSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, spotID int64, spotName string) error

	// Close fans out on exit events: every other open task of the session
	// closes too, except inactivation-notify tasks.
	Close(ctx context.Context, db *gorm.DB, task *Task) error

	// CloseByPlate closes open tasks for the plate on the lot. Exit tasks
	// are flipped back to PENDING instead so they still run.
	CloseByPlate(ctx context.Context, db *gorm.DB, lotID int64, plate string) error
	CloseByPlateAndSession(ctx context.Context, db *gorm.DB, lotID int64, plate string, sessionID snowflake.ID) error
	CloseBySpot(ctx context.Context, db *gorm.DB, lotID int64, spotID int64, sessionID snowflake.ID) error
	CloseForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error

	// CloseSubTasksForTask closes every open sub-task under the task.
	CloseSubTasksForTask(ctx context.Context, db *gorm.DB, taskID snowflake.ID) error

	// CloseSubTasksOnPaid closes every sub-task under the task and marks the
	// one that found the payment COMPLETED.
	CloseSubTasksOnPaid(ctx context.Context, db *gorm.DB, taskID, paidSubTaskID snowflake.ID) error

	// AppendEventValue sets one key on the stored event payload of every task
	// in the session.
	AppendEventValue(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, key string, value any) error

	// CloseSiblingTask closes the session's open task with the given
	// feature and event type, returning it when one was closed.
	CloseSiblingTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, eventType domain.EventType, featureKey domain.FeatureKey) (*Task, error)

	// CountByStatus returns the task count per status.
	CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.TaskStatus]int64, error)
}
