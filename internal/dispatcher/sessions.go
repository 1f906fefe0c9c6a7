package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
)

// HandleEvent is the ingress entrypoint: it reconciles the event against the
// session store and dispatches task creation.
func (s *Service) HandleEvent(ctx context.Context, event domain.Event) error {
	lot, err := s.providers.LotConfig(ctx, s.db, event.ParkingLotID)
	if err != nil {
		return err
	}
	if lot == nil {
		return fmt.Errorf("parking lot %d is not registered", event.ParkingLotID)
	}

	if event.IsUnknown {
		return s.handleUnknown(ctx, event)
	}

	switch event.EventKey {
	case domain.EventKeyLprEntry:
		return s.handleEntry(ctx, event)
	case domain.EventKeyLprExit:
		return s.handleExit(ctx, event)
	case domain.EventKeySpotUpdates:
		if event.EventType() == domain.EventSpotFree {
			return s.handleSpotFree(ctx, event)
		}
		return s.handleSpotOccupied(ctx, event)
	case domain.EventKeyViolation:
		return s.handleViolation(ctx, event)
	case domain.EventKeyLprToSpot:
		return s.handleLprToSpot(ctx, event)
	case domain.EventKeyLprToSpotFree:
		return s.handleLprToSpotFree(ctx, event)
	default:
		return fmt.Errorf("unsupported event key %q", event.EventKey)
	}
}

func (s *Service) handleEntry(ctx context.Context, event domain.Event) error {
	occurred := event.OccurredAt(s.clock.Now())

	existing, err := s.sessions.FindActiveByPlate(ctx, s.db, event.ParkingLotID, event.LicensePlate)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.closeDuplicate(ctx, existing, domain.ReasonSameLprEntry, domain.DescSameLprEntry); err != nil {
			return err
		}
	}

	session := &sessiondomain.Session{
		ParkingLotID:        event.ParkingLotID,
		LprNumber:           event.LicensePlate,
		SpotID:              event.ParkingSpotID,
		ParkingSpotName:     event.ParkingSpotName,
		LprRecordID:         event.LprRecordID,
		IsActive:            true,
		IsWaitingForPayment: true,
		SessionStartTime:    &occurred,
		EntryEvent:          event.ToMap(),
	}
	if err := s.sessions.Insert(ctx, s.db, session); err != nil {
		return err
	}
	s.log.Debug("session opened",
		zap.String("event_key", string(event.EventKey)),
		zap.String("plate_number", event.LicensePlate),
		zap.Int64("session_id", session.ID.Int64()))

	_, err = s.Execute(ctx, event, session.ID)
	return err
}

func (s *Service) handleExit(ctx context.Context, event domain.Event) error {
	occurred := event.OccurredAt(s.clock.Now())

	session, err := s.sessions.FindActiveByPlate(ctx, s.db, event.ParkingLotID, event.LicensePlate)
	if err != nil {
		return err
	}
	if session != nil {
		attrs := map[string]any{
			"exit_event":             event.ToMap(),
			"is_waiting_for_payment": false,
		}
		if err := s.sessions.Update(ctx, s.db, session.ID, attrs); err != nil {
			return err
		}
	} else {
		session = &sessiondomain.Session{
			ParkingLotID:     event.ParkingLotID,
			LprNumber:        event.LicensePlate,
			SpotID:           event.ParkingSpotID,
			ParkingSpotName:  event.ParkingSpotName,
			LprRecordID:      event.LprRecordID,
			IsActive:         true,
			SessionStartTime: &occurred,
			ExitEvent:        event.ToMap(),
		}
		if err := s.sessions.Insert(ctx, s.db, session); err != nil {
			return err
		}
	}

	_, err = s.Execute(ctx, event, session.ID)
	return err
}

func (s *Service) handleSpotOccupied(ctx context.Context, event domain.Event) error {
	if event.ParkingSpotID == nil {
		return fmt.Errorf("spot event without parking_spot_id")
	}
	occurred := event.OccurredAt(s.clock.Now())

	existing, err := s.sessions.FindActiveBySpot(ctx, s.db, event.ParkingLotID, *event.ParkingSpotID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.closeDuplicate(ctx, existing, domain.ReasonSameOccupiedEvent, domain.DescSameOccupied); err != nil {
			return err
		}
	}

	session := &sessiondomain.Session{
		ParkingLotID:        event.ParkingLotID,
		SpotID:              event.ParkingSpotID,
		ParkingSpotName:     event.ParkingSpotName,
		IsActive:            true,
		IsWaitingForPayment: !event.DisableSpotPayment,
		SessionStartTime:    &occurred,
		EntryEvent:          event.ToMap(),
	}
	if err := s.sessions.Insert(ctx, s.db, session); err != nil {
		return err
	}
	s.log.Debug("session opened",
		zap.String("event_key", string(event.EventKey)),
		zap.String("spot_name", event.ParkingSpotName),
		zap.Int64("session_id", session.ID.Int64()))

	_, err = s.Execute(ctx, event, session.ID)
	return err
}

func (s *Service) handleSpotFree(ctx context.Context, event domain.Event) error {
	if event.ParkingSpotID == nil {
		return fmt.Errorf("spot event without parking_spot_id")
	}
	occurred := event.OccurredAt(s.clock.Now())

	session, err := s.sessions.FindActiveBySpot(ctx, s.db, event.ParkingLotID, *event.ParkingSpotID)
	if err != nil {
		return err
	}
	if session != nil {
		attrs := map[string]any{
			"exit_event":             event.ToMap(),
			"is_waiting_for_payment": false,
		}
		if err := s.sessions.Update(ctx, s.db, session.ID, attrs); err != nil {
			return err
		}
	} else {
		session = &sessiondomain.Session{
			ParkingLotID:     event.ParkingLotID,
			SpotID:           event.ParkingSpotID,
			ParkingSpotName:  event.ParkingSpotName,
			IsActive:         true,
			SessionStartTime: &occurred,
			ExitEvent:        event.ToMap(),
		}
		if err := s.sessions.Insert(ctx, s.db, session); err != nil {
			return err
		}
	}

	_, err = s.Execute(ctx, event, session.ID)
	return err
}

// handleViolation ingests an externally detected violation: it lands on the
// matching session when one exists, otherwise on a fresh inactive one, and a
// violation record is opened against the created task.
func (s *Service) handleViolation(ctx context.Context, event domain.Event) error {
	occurred := event.OccurredAt(s.clock.Now())

	session, err := s.sessions.FindForViolation(ctx, s.db, event.ParkingLotID, event.LicensePlate, event.LprRecordID)
	if err != nil {
		return err
	}
	if session != nil {
		if event.ParkingSpotID == nil {
			spotTask, err := s.tasks.FindSpotTask(ctx, s.db, session.ID)
			if err != nil {
				return err
			}
			if spotTask != nil {
				event.ParkingSpotID = spotTask.ParkingSpotID
				event.ParkingSpotName = spotTask.ParkingSpotName
			}
		}
	} else {
		session = &sessiondomain.Session{
			ParkingLotID:     event.ParkingLotID,
			LprNumber:        event.LicensePlate,
			SpotID:           event.ParkingSpotID,
			ParkingSpotName:  event.ParkingSpotName,
			IsActive:         false,
			SessionStartTime: &occurred,
		}
		if err := s.sessions.Insert(ctx, s.db, session); err != nil {
			return err
		}
	}

	task, err := s.Execute(ctx, event, session.ID)
	if errors.Is(err, ErrNoProviderConfigured) {
		s.log.Info("violation event not connected with any enforcement provider",
			zap.Int64("parking_lot_id", event.ParkingLotID),
			zap.String("plate_number", event.LicensePlate))
		return nil
	}
	if err != nil {
		return err
	}

	var meta map[string]any
	if event.AlertTypeID != nil {
		meta, err = s.admin.ViolationAmountByTypeID(ctx, event.ParkingLotID, *event.AlertTypeID)
		if err != nil {
			s.log.Warn("violation amount lookup failed",
				zap.Int64("parking_lot_id", event.ParkingLotID), zap.Error(err))
		}
	}

	violation := &violationdomain.Violation{
		Name:           event.AlertTitle,
		Status:         domain.ViolationOpen,
		Description:    event.Violation,
		ViolationType:  event.EventType(),
		AmountDue:      amountFrom(meta),
		ParkingLotID:   event.ParkingLotID,
		ParkingSpotID:  event.ParkingSpotID,
		PlateNumber:    event.LicensePlate,
		SessionID:      session.ID,
		TaskID:         task.ID,
		MetaData:       meta,
		ViolationEvent: event.ToMap(),
		Timestamp:      occurred,
	}
	return s.violations.Insert(ctx, s.db, violation)
}

// handleLprToSpot maps an ANPR session onto a physical spot. The first match
// just annotates the session; a second match on a different spot means the
// vehicle moved, so the old tasks close and the entry replays with the new
// spot.
func (s *Service) handleLprToSpot(ctx context.Context, event domain.Event) error {
	if event.LprRecordID == nil {
		s.log.Debug("lpr-to-spot event without record id",
			zap.String("plate_number", event.LicensePlate))
		return nil
	}
	occurred := event.OccurredAt(s.clock.Now())

	session, err := s.sessions.FindByPlateAndRecordID(ctx, s.db, event.LicensePlate, *event.LprRecordID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	attrs := map[string]any{
		"spot_id":           event.ParkingSpotID,
		"parking_spot_name": event.ParkingSpotName,
	}
	if err := s.sessions.Update(ctx, s.db, session.ID, attrs); err != nil {
		return err
	}

	action := fmt.Sprintf("Spot Matched: %s", event.ParkingSpotName)
	description := fmt.Sprintf("LPR Match To Spot Name: %s", event.ParkingSpotName)

	if session.IsLprToSpot {
		replay, err := domain.EventFromMap(session.EntryEvent)
		if err != nil {
			return fmt.Errorf("lpr-to-spot: decode entry event: %w", err)
		}
		replay.ParkingSpotID = event.ParkingSpotID
		replay.ParkingSpotName = event.ParkingSpotName

		s.LogSession(ctx, LogEntry{
			SessionID:   session.ID,
			ActionType:  action,
			Description: description,
			EventAt:     occurred,
		})
		if err := s.CloseSessionTasksAndAlerts(ctx, session.ID, domain.ReasonLprSpotDetected); err != nil {
			return err
		}
		if err := s.sessions.Update(ctx, s.db, session.ID, map[string]any{"has_nph_task": false}); err != nil {
			return err
		}
		if _, err := s.Execute(ctx, replay, session.ID); err != nil && !errors.Is(err, ErrNoProviderConfigured) {
			return err
		}
		return nil
	}

	s.LogSession(ctx, LogEntry{
		SessionID:   session.ID,
		ActionType:  action,
		Description: description,
		EventAt:     occurred,
		Attrs:       map[string]any{"is_lpr_to_spot": true},
	})
	if event.ParkingSpotID != nil {
		return s.tasks.UpdateSubTasksSpot(ctx, s.db, session.ID, *event.ParkingSpotID, event.ParkingSpotName)
	}
	return nil
}

func (s *Service) handleLprToSpotFree(ctx context.Context, event domain.Event) error {
	if event.ParkingSpotID == nil {
		return fmt.Errorf("spot event without parking_spot_id")
	}
	occurred := event.OccurredAt(s.clock.Now())

	session, err := s.sessions.FindActiveBySpot(ctx, s.db, event.ParkingLotID, *event.ParkingSpotID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	s.LogSession(ctx, LogEntry{
		SessionID:   session.ID,
		ActionType:  fmt.Sprintf("Spot Free: %s", event.ParkingSpotName),
		Description: fmt.Sprintf("LPR Match To Spot Free Name: %s", event.ParkingSpotName),
		EventAt:     occurred,
	})
	if err := s.CloseSessionTasksAndAlerts(ctx, session.ID, domain.ReasonLprToSpotFree); err != nil {
		return err
	}
	return s.sessions.Update(ctx, s.db, session.ID, map[string]any{"is_waiting_for_payment": false})
}

// handleUnknown closes the spot's session outright. Unknown events come from
// camera restarts and similar glitches; nothing downstream should keep
// running against them.
func (s *Service) handleUnknown(ctx context.Context, event domain.Event) error {
	if event.ParkingSpotID == nil {
		return nil
	}
	session, err := s.sessions.FindActiveBySpot(ctx, s.db, event.ParkingLotID, *event.ParkingSpotID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if err := s.closeDuplicate(ctx, session, domain.ReasonUnknownEvent, domain.DescUnknownEvent); err != nil {
		return err
	}
	task, err := s.tasks.FindBySessionID(ctx, s.db, session.ID)
	if err != nil {
		return err
	}
	if task != nil {
		return s.tasks.CloseSubTasksForTask(ctx, s.db, task.ID)
	}
	return nil
}

// closeDuplicate retires a superseded session: deactivate, close its tasks
// and alerts, and record the system closure on its timeline.
func (s *Service) closeDuplicate(ctx context.Context, session *sessiondomain.Session, reason domain.AlertReason, description string) error {
	attrs := map[string]any{
		"is_active":              false,
		"is_waiting_for_payment": false,
	}
	if err := s.sessions.Update(ctx, s.db, session.ID, attrs); err != nil {
		return err
	}
	if err := s.tasks.CloseForSession(ctx, s.db, session.ID); err != nil {
		return err
	}
	task, err := s.tasks.FindBySessionID(ctx, s.db, session.ID)
	if err != nil {
		return err
	}
	if task != nil {
		if err := s.CloseAlerts(ctx, task, reason); err != nil {
			return err
		}
	}
	s.LogSession(ctx, LogEntry{
		SessionID:   session.ID,
		ActionType:  string(domain.ActionSystemClosed),
		Description: description,
	})
	return nil
}
