package payment

import (
	"context"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/window"
)

// ManageWindowOutcome drives the not-paid branch of a verification pass.
// Inside a paid window the pass raises a payment violation. Outside one, the
// first pass only logs the remaining free time; later passes raise an
// overstay violation and wake up when the free phase ends. actionOverride
// replaces the default Not Paid label when set.
func (s *Service) ManageWindowOutcome(ctx context.Context, task *taskdomain.Task, lot *providerdomain.ConnectParkinglot, session *sessiondomain.Session, win window.Result, actionOverride domain.LogAction) error {
	nextAt := win.NextAt
	hasNphTask, violationFlag := false, false

	var actionType string
	var violationType domain.EventType
	if win.Status {
		actionType = string(domain.ActionNotPaid)
		if actionOverride != "" {
			actionType = string(actionOverride)
		}
		violationType = domain.EventPaymentViolation
		violationFlag = true
	} else {
		violationType = domain.EventOverstayViolation
		if !session.HasNphTask {
			hasNphTask = true
			remaining := window.RemainingLabel(s.clock.Now(), nextAt)
			actionType = string(domain.ActionNonBillable) + ":" + remaining
		} else {
			violationFlag = true
			nextAt = win.EndTime
			actionType = string(domain.ActionOverstay)
		}
	}

	if err := s.NotPaid(ctx, task, violationType, violationFlag); err != nil {
		s.log.Error("raising violation failed",
			zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
	}

	s.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  actionType,
		Description: actionType,
		Attrs: map[string]any{
			"is_waiting_for_payment": false,
			"has_nph_task":           hasNphTask,
		},
	})

	if violationFlag {
		s.log.Debug("violation found",
			zap.String("action_type", actionType),
			zap.String("plate_number", task.PlateNumber))
		// Always-free lots never reschedule after an overstay violation.
		if lot.ParkingOperations == domain.OperationLprBasedFree24 {
			return nil
		}
	}

	if !win.Status || session.NotPaidCounter < lot.RetryMechanism {
		if task.EventType != domain.EventCarExit {
			if err := s.dispatch.RebuildTask(ctx, task, nextAt); err != nil {
				return err
			}
			s.log.Debug("task completed, new task created",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("plate_number", task.PlateNumber))
			return s.sessions.BumpCounter(ctx, s.db, task.SessionID, false)
		}
	}
	return nil
}

// CloseOverstayViolation closes the session's open overstay alert, if any,
// dispatching the inactivation replay first when the lot wants one.
func (s *Service) CloseOverstayViolation(ctx context.Context, task *taskdomain.Task, reason domain.AlertReason) error {
	violationTask, err := s.tasks.FindAlertTaskByEvent(ctx, s.db, task.SessionID, domain.EventOverstayViolation)
	if err != nil {
		return err
	}
	if violationTask == nil {
		return nil
	}

	if err := s.dispatch.DispatchInactivation(ctx, task.ParkingLotID, task.SessionID); err != nil {
		s.log.Warn("inactivation dispatch failed",
			zap.Int64("session_id", task.SessionID.Int64()), zap.Error(err))
	}
	return s.closeViolation(ctx, violationTask, task, domain.EventOverstayViolation, domain.ActionOverstayAlertClosed, reason)
}

// ClosePaymentViolation closes the session's open payment alert, if any.
func (s *Service) ClosePaymentViolation(ctx context.Context, task *taskdomain.Task, reason domain.AlertReason) error {
	violationTask, err := s.tasks.FindAlertTaskByEvent(ctx, s.db, task.SessionID, domain.EventPaymentViolation)
	if err != nil {
		return err
	}
	if violationTask == nil {
		return nil
	}
	return s.closeViolation(ctx, violationTask, task, domain.EventPaymentViolation, domain.ActionPaymentAlertClosed, reason)
}

// closeViolation inactivates each platform alert of the violation task, logs
// the closure and flips the matching violation row to CLOSED.
func (s *Service) closeViolation(ctx context.Context, violationTask, task *taskdomain.Task, violationType domain.EventType, action domain.LogAction, reason domain.AlertReason) error {
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

		if err := s.tasks.Update(ctx, s.db, violationTask.ID,
			map[string]any{"alert_status": domain.ViolationClosed}); err != nil {
			return err
		}

		s.dispatch.LogSession(ctx, dispatcher.LogEntry{
			SessionID:   task.SessionID,
			ActionType:  string(action),
			Description: string(action),
		})

		violation, err := s.violations.FindOpenByType(ctx, s.db, task.SessionID, violationType)
		if err != nil {
			return err
		}
		if violation != nil {
			if err := s.violations.UpdateStatus(ctx, s.db, violation.ID, domain.ViolationClosed); err != nil {
				return err
			}
			s.log.Info("violation inactivated",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("identity", identity(task)),
				zap.Int64("violation_id", violation.ID.Int64()),
				zap.Int64("alert_id", alertID))
		} else {
			s.log.Info("violation inactivated",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("identity", identity(task)),
				zap.Int64("alert_id", alertID))
		}
	}
	return nil
}
