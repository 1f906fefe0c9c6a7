// Package repository implements the task repository on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	"gorm.io/gorm"
)

type gormRepository struct {
	node *snowflake.Node
}

// Provide constructs the task repository.
func Provide(node *snowflake.Node) taskdomain.Repository {
	return &gormRepository{node: node}
}

func (r *gormRepository) Insert(ctx context.Context, db *gorm.DB, task *taskdomain.Task) error {
	if task.ID == 0 {
		task.ID = r.node.Generate()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	return db.WithContext(ctx).Create(task).Error
}

func (r *gormRepository) InsertSubTask(ctx context.Context, db *gorm.DB, subTask *taskdomain.SubTask) error {
	if subTask.ID == 0 {
		subTask.ID = r.node.Generate()
	}
	if subTask.Status == "" {
		subTask.Status = domain.TaskStatusPending
	}
	return db.WithContext(ctx).Create(subTask).Error
}

func (r *gormRepository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) FindOpenViolationTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).
		Where("session_id = ? AND provider_type = ? AND status IN ?",
			sessionID, domain.ProviderTypeViolation,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Order("id").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) FindDueViolationTasks(ctx context.Context, db *gorm.DB, lotID int64, plate string, now time.Time) ([]taskdomain.Task, error) {
	var tasks []taskdomain.Task
	err := db.WithContext(ctx).
		Where("parking_lot_id = ? AND plate_number = ? AND provider_type = ? AND status = ? AND next_at < ?",
			lotID, plate, domain.ProviderTypeViolation, domain.TaskStatusPending, now).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *gormRepository) FindAlertTasks(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]taskdomain.Task, error) {
	var tasks []taskdomain.Task
	err := db.WithContext(ctx).
		Where("session_id = ? AND provider_type = ? AND (alert_status <> ? OR alert_status IS NULL OR alert_status = '')",
			sessionID, domain.ProviderTypeViolation, domain.ViolationClosed).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *gormRepository) FindAlertTaskByEvent(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, eventType domain.EventType) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).
		Where("session_id = ? AND provider_type = ? AND event_type = ? AND (alert_status <> ? OR alert_status IS NULL OR alert_status = '')",
			sessionID, domain.ProviderTypeViolation, eventType, domain.ViolationClosed).
		Order("id").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) FindExitTask(ctx context.Context, db *gorm.DB, lotID int64, plate string) (*taskdomain.Task, error) {
	return r.findLatest(ctx, db, "parking_lot_id = ? AND plate_number = ? AND event_type = ?", lotID, plate, domain.EventCarExit)
}

func (r *gormRepository) FindFreeTask(ctx context.Context, db *gorm.DB, lotID int64, spotID int64) (*taskdomain.Task, error) {
	return r.findLatest(ctx, db, "parking_lot_id = ? AND parking_spot_id = ? AND event_type = ?", lotID, spotID, domain.EventSpotFree)
}

func (r *gormRepository) FindSpotTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*taskdomain.Task, error) {
	return r.findLatest(ctx, db, "session_id = ? AND parking_spot_id IS NOT NULL", sessionID)
}

func (r *gormRepository) findLatest(ctx context.Context, db *gorm.DB, where string, args ...any) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).
		Where(where, args...).
		Order("id DESC").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *gormRepository) HasProviderTypeTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, providerType domain.ProviderType) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where("session_id = ? AND provider_type = ?", sessionID, providerType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) HasActiveTaskForPlates(ctx context.Context, db *gorm.DB, lotID int64, plates []string) (bool, error) {
	if len(plates) == 0 {
		return false, nil
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where("parking_lot_id = ? AND plate_number IN ? AND status IN ?", lotID, plates,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) SubTasks(ctx context.Context, db *gorm.DB, taskID snowflake.ID) ([]taskdomain.SubTask, error) {
	var subTasks []taskdomain.SubTask
	err := db.WithContext(ctx).
		Where("task_id = ? AND deleted_at IS NULL", taskID).
		Order("id").
		Find(&subTasks).Error
	if err != nil {
		return nil, err
	}
	return subTasks, nil
}

func (r *gormRepository) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, attrs map[string]any) error {
	if len(attrs) == 0 {
		return nil
	}
	attrs["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where("id = ?", id).
		Updates(attrs).Error
}

func (r *gormRepository) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.TaskStatus) error {
	return r.Update(ctx, db, id, map[string]any{"status": status})
}

func (r *gormRepository) UpdateSubTaskStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.TaskStatus) error {
	return db.WithContext(ctx).
		Model(&taskdomain.SubTask{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *gormRepository) UpdateSubTasksSpot(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, spotID int64, spotName string) error {
	return db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where("session_id = ? AND status IN ?", sessionID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Updates(map[string]any{
			"parking_spot_id":   spotID,
			"parking_spot_name": spotName,
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *gormRepository) Close(ctx context.Context, db *gorm.DB, task *taskdomain.Task) error {
	if domain.IsExitEvent(task.EventType) {
		err := db.WithContext(ctx).
			Model(&taskdomain.Task{}).
			Where("session_id = ? AND feature_text_key <> ?", task.SessionID, domain.FeatureInactivation).
			Updates(map[string]any{"status": domain.TaskStatusClosed, "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return err
		}
	}
	return r.UpdateStatus(ctx, db, task.ID, domain.TaskStatusClosed)
}

// CloseByPlate flips open tasks for the plate to CLOSED; exit tasks go back
// to PENDING so the exit still gets processed. Inactivation tasks survive.
func (r *gormRepository) CloseByPlate(ctx context.Context, db *gorm.DB, lotID int64, plate string) error {
	return r.closeOpen(ctx, db,
		"plate_number = ? AND parking_lot_id = ? AND event_type <> ?",
		[]any{plate, lotID, domain.EventViolationInactivate},
		domain.EventCarExit)
}

func (r *gormRepository) CloseByPlateAndSession(ctx context.Context, db *gorm.DB, lotID int64, plate string, sessionID snowflake.ID) error {
	return r.closeOpen(ctx, db,
		"plate_number = ? AND parking_lot_id = ? AND session_id = ? AND event_type <> ?",
		[]any{plate, lotID, sessionID, domain.EventViolationInactivate},
		domain.EventCarExit)
}

func (r *gormRepository) CloseBySpot(ctx context.Context, db *gorm.DB, lotID int64, spotID int64, sessionID snowflake.ID) error {
	return r.closeOpen(ctx, db,
		"parking_spot_id = ? AND parking_lot_id = ? AND session_id = ? AND event_type <> ?",
		[]any{spotID, lotID, sessionID, domain.EventViolationInactivate},
		domain.EventSpotFree)
}

func (r *gormRepository) CloseForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where("session_id = ? AND status IN ?", sessionID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Updates(map[string]any{"status": domain.TaskStatusClosed, "updated_at": time.Now().UTC()}).Error
}

func (r *gormRepository) CloseSubTasksForTask(ctx context.Context, db *gorm.DB, taskID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&taskdomain.SubTask{}).
		Where("task_id = ? AND status IN ?", taskID,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Updates(map[string]any{"status": domain.TaskStatusClosed, "updated_at": time.Now().UTC()}).Error
}

func (r *gormRepository) CloseSubTasksOnPaid(ctx context.Context, db *gorm.DB, taskID, paidSubTaskID snowflake.ID) error {
	now := time.Now().UTC()
	err := db.WithContext(ctx).
		Model(&taskdomain.SubTask{}).
		Where("task_id = ?", taskID).
		Updates(map[string]any{"status": domain.TaskStatusClosed, "updated_at": now}).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&taskdomain.SubTask{}).
		Where("id = ?", paidSubTaskID).
		Updates(map[string]any{"status": domain.TaskStatusCompleted, "updated_at": now}).Error
}

func (r *gormRepository) AppendEventValue(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, key string, value any) error {
	var tasks []taskdomain.Task
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&tasks).Error; err != nil {
		return err
	}
	for i := range tasks {
		payload := tasks[i].EventPayload
		if payload == nil {
			payload = map[string]any{}
		}
		payload[key] = value
		err := db.WithContext(ctx).
			Model(&taskdomain.Task{}).
			Where("id = ?", tasks[i].ID).
			Updates(map[string]any{"sg_event_response": payload, "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *gormRepository) CloseSiblingTask(ctx context.Context, db *gorm.DB, sessionID snowflake.ID, eventType domain.EventType, featureKey domain.FeatureKey) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := db.WithContext(ctx).
		Where("session_id = ? AND event_type = ? AND feature_text_key = ? AND status IN ?",
			sessionID, eventType, featureKey,
			[]domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}).
		Order("id").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.UpdateStatus(ctx, db, task.ID, domain.TaskStatusClosed); err != nil {
		return nil, err
	}
	if err := r.CloseSubTasksForTask(ctx, db, task.ID); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatusClosed
	return &task, nil
}

func (r *gormRepository) closeOpen(ctx context.Context, db *gorm.DB, where string, args []any, keepPending domain.EventType) error {
	now := time.Now().UTC()
	open := []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusInProgress}

	err := db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where(where, args...).
		Where("status IN ? AND event_type = ?", open, keepPending).
		Updates(map[string]any{"status": domain.TaskStatusPending, "updated_at": now}).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Where(where, args...).
		Where("status IN ? AND event_type <> ?", open, keepPending).
		Updates(map[string]any{"status": domain.TaskStatusClosed, "updated_at": now}).Error
}

func (r *gormRepository) CountByStatus(ctx context.Context, db *gorm.DB) (map[domain.TaskStatus]int64, error) {
	var rows []struct {
		Status domain.TaskStatus
		Count  int64
	}
	err := db.WithContext(ctx).
		Model(&taskdomain.Task{}).
		Select("status, COUNT(1) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
