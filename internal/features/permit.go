package features

import (
	"context"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// privilegePermit asks the platform whether the plate holds a privilege
// permit. A permit already present in the session log short-circuits the
// call so lots wired with both payment and reservation features do not log
// the permit twice. A fresh permit is logged on the session timeline. Returns
// nil when no permit applies.
func (r *Registry) privilegePermit(ctx context.Context, task *taskdomain.Task) (*sgadmin.Permit, error) {
	logged, err := r.sessions.LastActionIn(ctx, r.db, task.SessionID,
		[]string{string(domain.ActionPrivilegePermit)})
	if err != nil {
		return nil, err
	}
	if logged {
		return &sgadmin.Permit{IsPrivilegePermit: true}, nil
	}

	permit, err := r.admin.CheckPermit(ctx, task.ParkingLotID, task.PlateNumber)
	if err != nil {
		r.log.Warn("privilege permit check failed",
			zap.Int64("task_id", task.ID.Int64()),
			zap.String("plate_number", task.PlateNumber), zap.Error(err))
		return nil, nil
	}
	if permit == nil || !permit.IsPrivilegePermit {
		return nil, nil
	}

	r.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  string(domain.ActionPrivilegePermit),
		Description: string(domain.ActionPrivilegePermit),
		EventAt:     r.clock.Now(),
	})
	return permit, nil
}

// applyPermit closes the task's sub-tasks and parks the session until the
// permit expiry, when the permit carries one.
func (r *Registry) applyPermit(ctx context.Context, task *taskdomain.Task, permit *sgadmin.Permit) error {
	if err := r.tasks.CloseSubTasksForTask(ctx, r.db, task.ID); err != nil {
		return err
	}
	if permit.ExpiryAt != nil {
		if expiry := timeOf(*permit.ExpiryAt); expiry != nil {
			if err := r.dispatch.RebuildTask(ctx, task, *expiry); err != nil {
				return err
			}
		}
	}
	return r.sessions.Update(ctx, r.db, task.SessionID, map[string]any{"is_waiting_for_payment": false})
}
