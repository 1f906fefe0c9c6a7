package dispatcher

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// CloseAlerts marks every open platform alert of the task's session inactive
// with the given reason and logs the closure on the timeline. When a newer
// exit or free task exists for the same identity, the task is remapped onto
// that session so follow-up writes land on the surviving one.
func (s *Service) CloseAlerts(ctx context.Context, task *taskdomain.Task, reason domain.AlertReason) error {
	alertTasks, err := s.tasks.FindAlertTasks(ctx, s.db, task.SessionID)
	if err != nil {
		return err
	}

	for i := range alertTasks {
		violationTask := &alertTasks[i]
		for _, alertID := range violationTask.AlertIDs() {
			update := sgadmin.AlertUpdate{
				AlertID:           alertID,
				AlertState:        "open",
				AlertTriggerState: "inactive",
				Reason:            string(reason),
			}
			if err := s.admin.UpdateAlert(ctx, update); err != nil {
				s.log.Warn("alert update failed",
					zap.Int64("alert_id", alertID),
					zap.Int64("session_id", task.SessionID.Int64()), zap.Error(err))
			}

			action := domain.ActionPaymentAlertClosed
			if violationTask.EventType == domain.EventOverstayViolation {
				action = domain.ActionOverstayAlertClosed
			}
			s.LogSession(ctx, LogEntry{
				SessionID:   task.SessionID,
				ActionType:  string(action),
				Description: string(action),
			})

			if err := s.tasks.Update(ctx, s.db, violationTask.ID,
				map[string]any{"alert_status": domain.ViolationClosed}); err != nil {
				s.log.Warn("alert status update failed",
					zap.Int64("task_id", violationTask.ID.Int64()), zap.Error(err))
			}
		}
	}

	var latest *taskdomain.Task
	if task.PlateNumber != "" {
		latest, err = s.tasks.FindExitTask(ctx, s.db, task.ParkingLotID, task.PlateNumber)
	} else if task.ParkingSpotID != nil {
		latest, err = s.tasks.FindFreeTask(ctx, s.db, task.ParkingLotID, *task.ParkingSpotID)
	}
	if err != nil {
		return err
	}
	if latest != nil {
		task.SessionID = latest.SessionID
	}
	return nil
}

// CloseSessionTasksAndAlerts tears a session down: alerts, violations and
// open tasks all close, then the inactivation replay fires if the lot wants
// one. Sessions with no tasks have nothing to close.
func (s *Service) CloseSessionTasksAndAlerts(ctx context.Context, sessionID snowflake.ID, reason domain.AlertReason) error {
	task, err := s.tasks.FindBySessionID(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	if err := s.CloseAlerts(ctx, task, reason); err != nil {
		return err
	}
	if err := s.violations.CloseForSession(ctx, s.db, task.SessionID); err != nil {
		return err
	}
	if err := s.tasks.CloseByPlateAndSession(ctx, s.db, task.ParkingLotID, task.PlateNumber, task.SessionID); err != nil {
		return err
	}
	return s.DispatchInactivation(ctx, task.ParkingLotID, task.SessionID)
}
