package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// ErrNoProviderConfigured reports an event the lot has no feature bound for.
// Exit events never raise it: the session still gets finished through the
// bare NA task path.
var ErrNoProviderConfigured = errors.New("no provider configured for event")

// Execute creates the verification tasks an event calls for: one task per
// wired feature, one sub-task per (credential, endpoint) binding. The last
// created task is returned so violation ingestion can reference it.
func (s *Service) Execute(ctx context.Context, event domain.Event, sessionID snowflake.ID) (*taskdomain.Task, error) {
	var alertIDs []int64
	if event.AlertID != nil {
		alertIDs = []int64{*event.AlertID}
	}
	return s.execute(ctx, event, sessionID, nil, alertIDs)
}

func (s *Service) execute(ctx context.Context, event domain.Event, sessionID snowflake.ID, override *time.Time, alertIDs []int64) (*taskdomain.Task, error) {
	lot, err := s.providers.LotConfig(ctx, s.db, event.ParkingLotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, fmt.Errorf("parking lot %d is not registered", event.ParkingLotID)
	}

	eventType := event.EventType()
	occurred := event.OccurredAt(s.clock.Now())

	bindings, err := s.providers.BindingsForEvent(ctx, s.db, event.ParkingLotID, eventType)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		if !domain.IsExitEvent(eventType) {
			return nil, fmt.Errorf("parking lot %d, event %s: %w",
				event.ParkingLotID, eventType, ErrNoProviderConfigured)
		}
		return s.unavailableProviderExit(ctx, event, sessionID, occurred)
	}

	win, err := s.paymentWindow(ctx, lot)
	if err != nil {
		return nil, err
	}
	nextAt := s.nextAt(event, lot, override, win.Status, occurred)

	var created *taskdomain.Task
	for featureKey, group := range bindings {
		task := &taskdomain.Task{
			Status:          domain.TaskStatusPending,
			EventType:       eventType,
			FeatureTextKey:  featureKey,
			ParkingLotID:    event.ParkingLotID,
			ParkingSpotID:   event.ParkingSpotID,
			ParkingSpotName: event.ParkingSpotName,
			PlateNumber:     event.LicensePlate,
			State:           event.Region,
			SessionID:       sessionID,
			ProviderType:    group[0].ProviderTypeKey,
			NextAt:          nextAt,
			EventPayload:    event.ToMap(),
		}
		if len(alertIDs) > 0 {
			task.SetAlertIDs(alertIDs)
		}

		if domain.IsExitEvent(eventType) {
			if err := s.CloseAlerts(ctx, task, domain.ReasonExitDetect); err != nil {
				s.log.Warn("closing alerts on exit failed",
					zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
			}
		}

		s.recordEventLog(ctx, event, eventType, sessionID, win.Status, occurred)

		if err := s.tasks.Insert(ctx, s.db, task); err != nil {
			return nil, err
		}
		for _, binding := range group {
			sub := &taskdomain.SubTask{
				TaskID:           task.ID,
				ProviderCredsID:  binding.ProviderCredsID,
				FeatureURLPathID: binding.FeatureURLPathID,
			}
			if err := s.tasks.InsertSubTask(ctx, s.db, sub); err != nil {
				return nil, err
			}
		}

		s.log.Debug("task created",
			zap.String("event_type", string(eventType)),
			zap.String("feature", string(featureKey)),
			zap.Int64("task_id", task.ID.Int64()),
			zap.Int64("session_id", sessionID.Int64()),
			zap.String("identity", event.Identity()))
		created = task
	}
	return created, nil
}

// unavailableProviderExit handles exits on lots with no providers wired: the
// session still needs its alerts closed and its timeline finished, so a bare
// NA task records the exit.
func (s *Service) unavailableProviderExit(ctx context.Context, event domain.Event, sessionID snowflake.ID, occurred time.Time) (*taskdomain.Task, error) {
	reason := domain.ReasonExitDetect
	description := ""
	if event.ManuallyTriggered {
		reason = domain.ReasonForcedExit
		description = domain.DescForcedExit
	}

	if err := s.DispatchInactivation(ctx, event.ParkingLotID, sessionID); err != nil {
		s.log.Warn("inactivation dispatch failed",
			zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
	}

	task := &taskdomain.Task{
		Status:          domain.TaskStatusPending,
		EventType:       event.EventType(),
		FeatureTextKey:  domain.FeatureNone,
		ParkingLotID:    event.ParkingLotID,
		ParkingSpotID:   event.ParkingSpotID,
		ParkingSpotName: event.ParkingSpotName,
		PlateNumber:     event.LicensePlate,
		State:           event.Region,
		SessionID:       sessionID,
		ProviderType:    domain.ProviderTypePayment,
		NextAt:          occurred,
		EventPayload:    event.ToMap(),
	}
	if err := s.tasks.Insert(ctx, s.db, task); err != nil {
		return nil, err
	}

	if err := s.CloseAlerts(ctx, task, reason); err != nil {
		s.log.Warn("closing alerts on exit failed",
			zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
	}

	action := string(actionForEvent(event.EventType()))
	if event.ManuallyTriggered {
		action = string(domain.ActionSystemClosed)
	}
	if description == "" {
		description = action
	}
	s.LogSession(ctx, LogEntry{
		SessionID:   sessionID,
		ActionType:  action,
		Description: description,
		EventAt:     occurred,
	})
	return task, nil
}

// recordEventLog writes the occupancy timeline entry for the event and flips
// the session's waiting-for-payment flag. Violation and inactivation events
// never log here, and a repeated entry/exit for the session is dropped.
func (s *Service) recordEventLog(ctx context.Context, event domain.Event, eventType domain.EventType, sessionID snowflake.ID, windowPaid bool, occurred time.Time) {
	action := actionForEvent(eventType)
	if action == "" {
		return
	}
	exists, err := s.sessions.HasEntryOrExitLog(ctx, s.db, sessionID, string(action))
	if err != nil {
		s.log.Warn("session log lookup failed",
			zap.Int64("session_id", sessionID.Int64()), zap.Error(err))
		return
	}
	if exists {
		return
	}

	attrs := map[string]any{}
	if !windowPaid && domain.IsEntryEvent(eventType) {
		attrs["is_waiting_for_payment"] = false
	} else if !event.DisableSpotPayment {
		if waiting, ok := domain.WaitingForPayment(eventType); ok {
			attrs["is_waiting_for_payment"] = waiting
		}
	}

	s.LogSession(ctx, LogEntry{
		SessionID:   sessionID,
		ActionType:  string(action),
		Description: string(action),
		EventAt:     occurred,
		Attrs:       attrs,
	})
}

// nextAt schedules the task's first pick-up. Explicit overrides win; inside a
// paid window the grace period defers the check, outside it runs immediately.
func (s *Service) nextAt(event domain.Event, lot *providerdomain.ConnectParkinglot, override *time.Time, windowPaid bool, occurred time.Time) time.Time {
	if override != nil {
		return *override
	}
	if event.NextAtOverride != nil {
		return *event.NextAtOverride
	}
	grace := time.Duration(lot.GracePeriod) * time.Minute
	if event.SpotPaymentGracePeriod != nil && event.LicensePlate == "" {
		grace = time.Duration(*event.SpotPaymentGracePeriod) * time.Minute
	}
	if windowPaid {
		return occurred.Add(grace)
	}
	return occurred
}

// RebuildTask replays the session's entry event as a fresh task scheduled at
// nextAt, carrying the source task's alert ids forward.
func (s *Service) RebuildTask(ctx context.Context, task *taskdomain.Task, nextAt time.Time) error {
	session, err := s.sessions.FindByID(ctx, s.db, task.SessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("rebuild task %d: session %d not found", task.ID, task.SessionID)
	}
	replay, err := domain.EventFromMap(session.EntryEvent)
	if err != nil {
		return fmt.Errorf("rebuild task %d: decode entry event: %w", task.ID, err)
	}
	replay.ParkingSpotID = session.SpotID
	replay.ParkingSpotName = session.ParkingSpotName

	_, err = s.execute(ctx, replay, session.ID, &nextAt, task.AlertIDs())
	if errors.Is(err, ErrNoProviderConfigured) {
		s.log.Debug("rebuild skipped, lot no longer wired",
			zap.Int64("session_id", session.ID.Int64()))
		return nil
	}
	return err
}

// DispatchViolationEvent replays the session's entry event under a violation
// event key so the violation-notify feature picks it up immediately. The
// created task is returned when one was wired.
func (s *Service) DispatchViolationEvent(ctx context.Context, sessionID snowflake.ID, violationType domain.EventType) (*taskdomain.Task, error) {
	session, err := s.sessions.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("violation dispatch: session %d not found", sessionID)
	}
	replay, err := domain.EventFromMap(session.EntryEvent)
	if err != nil {
		return nil, fmt.Errorf("violation dispatch: decode entry event: %w", err)
	}
	replay.EventKey = domain.EventKey(violationType)
	replay.ParkingSpotID = session.SpotID
	replay.ParkingSpotName = session.ParkingSpotName

	now := s.clock.Now()
	task, err := s.execute(ctx, replay, session.ID, &now, nil)
	if errors.Is(err, ErrNoProviderConfigured) {
		return nil, nil
	}
	return task, err
}

// DispatchInactivation replays the session's entry event as an inactivation
// event when the lot has the inactivation feature and the session holds
// violations not yet inactivated upstream. Anything else is a no-op.
func (s *Service) DispatchInactivation(ctx context.Context, lotID int64, sessionID snowflake.ID) error {
	enabled, err := s.providers.HasFeature(ctx, s.db, lotID, domain.FeatureInactivation)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	pending, err := s.violations.FindAwaitingInactivation(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	session, err := s.sessions.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("inactivation dispatch: session %d not found", sessionID)
	}
	replay, err := domain.EventFromMap(session.EntryEvent)
	if err != nil {
		return fmt.Errorf("inactivation dispatch: decode entry event: %w", err)
	}
	replay.EventKey = domain.EventKeyInactivateTask
	replay.ParkingSpotID = session.SpotID
	replay.ParkingSpotName = session.ParkingSpotName

	s.log.Info("creating inactivation task",
		zap.Int64("session_id", sessionID.Int64()),
		zap.String("plate_number", session.LprNumber))
	_, err = s.execute(ctx, replay, session.ID, nil, nil)
	if errors.Is(err, ErrNoProviderConfigured) {
		return nil
	}
	return err
}
