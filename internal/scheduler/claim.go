package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// claimDueTasks locks a batch of due PENDING tasks and flips them to
// IN_PROGRESS so concurrent workers never pick the same task twice. The
// claimed batch is then ordered for processing: tasks group by session, and
// within a session the platform alert must land before the reservation and
// payment checks that may close it.
func (w *Worker) claimDueTasks(ctx context.Context, now time.Time, limit int) ([]taskdomain.Task, error) {
	// sqlite has no row locks; the transaction alone serializes there.
	locking := ""
	if w.db.Dialector.Name() == "postgres" {
		locking = "FOR UPDATE SKIP LOCKED"
	}

	var ids []snowflake.ID
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT id
			 FROM task
			 WHERE status = ? AND next_at < ?
			 ORDER BY id `+locking+`
			 LIMIT ?`,
			domain.TaskStatusPending,
			now,
			limit,
		).Scan(&ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&taskdomain.Task{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": domain.TaskStatusInProgress, "updated_at": now}).Error
	})
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	var tasks []taskdomain.Task
	err = w.db.WithContext(ctx).Raw(
		`SELECT *
		 FROM task
		 WHERE status = ? AND next_at < ?
		 ORDER BY session_id,
		          CASE feature_text_key
		               WHEN ? THEN 1
		               WHEN ? THEN 2
		               WHEN ? THEN 3
		               ELSE 4
		          END,
		          id
		 LIMIT ?`,
		domain.TaskStatusInProgress,
		now,
		domain.FeatureNotifySGAdmin,
		domain.FeatureReservationCheckLpr,
		domain.FeaturePaymentCheckLpr,
		limit,
	).Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// claimSubTasks flips the task's open sub-tasks to IN_PROGRESS and returns
// them.
func (w *Worker) claimSubTasks(ctx context.Context, taskID snowflake.ID) ([]taskdomain.SubTask, error) {
	err := w.db.WithContext(ctx).
		Model(&taskdomain.SubTask{}).
		Where("task_id = ? AND status IN ?", taskID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Updates(map[string]any{"status": domain.TaskStatusInProgress, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, err
	}
	var subTasks []taskdomain.SubTask
	err = w.db.WithContext(ctx).
		Where("task_id = ? AND status = ?", taskID, domain.TaskStatusInProgress).
		Order("id").
		Find(&subTasks).Error
	if err != nil {
		return nil, err
	}
	return subTasks, nil
}
