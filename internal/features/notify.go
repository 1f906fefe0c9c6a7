package features

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// notifyAdmin raises the platform alert for a violation task. The raised
// alert id is stored on the task so later closes can resolve it, and the
// alert image is folded back into the session's event payloads. When the
// vehicle already left, or the platform refuses the alert, the paired
// citation task closes too since a citation without an alert must not fire.
func (r *Registry) notifyAdmin(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
	session, err := r.sessions.FindByID(ctx, r.db, task.SessionID)
	if err != nil {
		return err
	}

	exited := false
	switch {
	case task.PlateNumber != "" && session != nil && session.LprRecordID != nil:
		exited = r.admin.LprExited(ctx, task.ParkingLotID, *session.LprRecordID)
	case task.ParkingSpotName != "":
		exited = r.admin.SpotFree(ctx, task.ParkingLotID, task.ParkingSpotName)
	}
	if exited {
		r.closeSiblingCitation(ctx, task, "vehicle already exited")
		return nil
	}

	lot, err := r.providers.LotConfig(ctx, r.db, task.ParkingLotID)
	if err != nil {
		return err
	}
	if lot == nil {
		return fmt.Errorf("parking lot %d is not registered", task.ParkingLotID)
	}

	for i := range subTasks {
		st := &subTasks[i]
		b, err := r.resolve(ctx, st)
		if err != nil {
			return err
		}

		resp, err := r.engine.Execute(ctx, engine.Request{
			Task:      task,
			SubTask:   st,
			Endpoint:  b.endpoint,
			Creds:     b.creds,
			Lot:       lot,
			AlertBody: alertBody(session, task),
		})
		if err != nil {
			if !errors.Is(err, engine.ErrNoResponse) {
				r.log.Error("alert request failed",
					zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
			}
			r.closeSiblingCitation(ctx, task, "no response from alert endpoint")
			continue
		}

		record := projectOne(resp, schemaMap(b.endpoint.ResponseSchema))
		if record == nil {
			r.closeSiblingCitation(ctx, task, "response carried no alert")
			continue
		}

		alertID, ok := int64Of(record["response_id"])
		if !ok {
			r.closeSiblingCitation(ctx, task, "response carried no alert id")
			continue
		}
		task.SetAlertIDs([]int64{alertID})
		if err := r.tasks.Update(ctx, r.db, task.ID, map[string]any{
			"sgadmin_alerts_ids": task.SGAdminAlertIDs,
		}); err != nil {
			return err
		}
		if image := record["vehicle_image"]; image != nil {
			if err := r.tasks.AppendEventValue(ctx, r.db, task.SessionID, "lr_image", image); err != nil {
				r.log.Warn("storing alert image failed",
					zap.Int64("session_id", task.SessionID.Int64()), zap.Error(err))
			}
		}

		r.log.Info("violation alert raised",
			zap.Int64("task_id", task.ID.Int64()),
			zap.String("identity", taskIdentity(task)),
			zap.Int64("alert_id", alertID))

		action := domain.ActionPaymentAlertSent
		if task.EventType == domain.EventOverstayViolation {
			action = domain.ActionOverstayAlertSent
		}
		r.dispatch.LogSession(ctx, dispatcher.LogEntry{
			SessionID:   task.SessionID,
			ActionType:  string(action),
			Description: string(action),
			EventAt:     r.clock.Now(),
		})
	}
	return nil
}

// closeSiblingCitation closes the session's open citation task of the same
// event kind.
func (r *Registry) closeSiblingCitation(ctx context.Context, task *taskdomain.Task, cause string) {
	closed, err := r.tasks.CloseSiblingTask(ctx, r.db, task.SessionID, task.EventType, domain.FeatureEnforcementCitation)
	if err != nil {
		r.log.Warn("closing citation task failed",
			zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
		return
	}
	if closed != nil {
		r.log.Info("closed paired citation task",
			zap.Int64("task_id", task.ID.Int64()),
			zap.Int64("citation_task_id", closed.ID.Int64()),
			zap.String("cause", cause))
	}
}
