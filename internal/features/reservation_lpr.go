package features

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/mapper"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// checkReservationByLPR verifies a plate's reservation. A found reservation
// settles every open task of the session; a miss raises the not-paid path
// only when no payment provider shares the session, since payment checks own
// the violation then.
func (r *Registry) checkReservationByLPR(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
	lot, err := r.providers.LotConfig(ctx, r.db, task.ParkingLotID)
	if err != nil {
		return err
	}
	if lot == nil {
		return fmt.Errorf("parking lot %d is not registered", task.ParkingLotID)
	}
	session, err := r.sessions.FindByID(ctx, r.db, task.SessionID)
	if err != nil {
		return err
	}

	permit, err := r.privilegePermit(ctx, task)
	if err != nil {
		return err
	}
	if permit != nil {
		return r.applyPermit(ctx, task, permit)
	}

	threshold := r.matchThreshold(ctx, task.ParkingLotID)

	for i := range subTasks {
		st := &subTasks[i]
		b, err := r.resolve(ctx, st)
		if err != nil {
			return err
		}

		resp, err := r.engine.Execute(ctx, engine.Request{
			Task:     task,
			SubTask:  st,
			Endpoint: b.endpoint,
			Creds:    b.creds,
			Lot:      lot,
		})
		if err != nil && !errors.Is(err, engine.ErrNoResponse) {
			r.log.Warn("provider request failed",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("provider", b.provider.Name), zap.Error(err))
		}

		if resp != nil {
			mapping := schemaMap(b.endpoint.ResponseSchema)
			rows := mapper.Project(resp, mapping)
			match := mapper.FindClosestMatch(rows, task.PlateNumber, threshold, r.clock.Now())
			record, err := mapper.FilterTiba(ctx, b.creds.TextKey, match, task.ParkingLotID, r.secondaryPlateCheck)
			if err != nil {
				return err
			}
			if record != nil {
				res, _ := paymentResult(record, mapping)
				if err := r.payment.Paid(ctx, task, st, res); err != nil {
					return err
				}
				if err := r.tasks.CloseForSession(ctx, r.db, task.SessionID); err != nil {
					return err
				}
				if err := r.tasks.CloseSubTasksOnPaid(ctx, r.db, task.ID, st.ID); err != nil {
					return err
				}
				if task.EventType != domain.EventCarExit && res.ExpiryDate != nil {
					if err := r.dispatch.RebuildTask(ctx, task, *res.ExpiryDate); err != nil {
						return err
					}
					r.log.Debug("reservation found, follow-up created at expiry",
						zap.Int64("task_id", task.ID.Int64()),
						zap.String("plate_number", task.PlateNumber))
				}
				return nil
			}
		}

		r.closeSubTask(ctx, st)
	}

	hasPayment, err := r.tasks.HasProviderTypeTask(ctx, r.db, task.SessionID, domain.ProviderTypePayment)
	if err != nil {
		return err
	}
	action, err := r.reservationMissAction(ctx, task)
	if err != nil {
		return err
	}
	if !hasPayment {
		return r.reservationNotPaid(ctx, task, lot, session, action)
	}

	r.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  string(action),
		Description: string(action),
		EventAt:     r.clock.Now(),
	})
	return nil
}

// reservationMissAction picks the timeline label for a reservation miss:
// Reservation Expired when the session was previously reserved, Unreserved
// otherwise.
func (r *Registry) reservationMissAction(ctx context.Context, task *taskdomain.Task) (domain.LogAction, error) {
	wasReserved, err := r.sessions.LastActionIn(ctx, r.db, task.SessionID, []string{
		string(domain.ActionReservationRemaining),
		string(domain.ActionMonthlyPass),
	})
	if err != nil {
		return "", err
	}
	if wasReserved {
		return domain.ActionReservationExpired, nil
	}
	return domain.ActionUnreserved, nil
}

// reservationNotPaid raises the violation for a reservation miss and
// reschedules the check after the violation grace period while the retry
// budget lasts.
func (r *Registry) reservationNotPaid(ctx context.Context, task *taskdomain.Task, lot *providerdomain.ConnectParkinglot, session *sessiondomain.Session, action domain.LogAction) error {
	if err := r.payment.NotPaid(ctx, task, domain.EventPaymentViolation, true); err != nil {
		r.log.Warn("raising reservation violation failed",
			zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
	}

	r.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  string(action),
		Description: string(action),
		EventAt:     r.clock.Now(),
	})

	if session == nil || session.NotPaidCounter >= lot.RetryMechanism || task.EventType == domain.EventCarExit {
		return nil
	}
	nextAt := r.clock.Now().Add(r.cfg.ViolationGracePeriod)
	if err := r.dispatch.RebuildTask(ctx, task, nextAt); err != nil {
		return err
	}
	r.log.Debug("reservation re-check scheduled",
		zap.Int64("task_id", task.ID.Int64()), zap.Time("next_at", nextAt))
	return r.sessions.BumpCounter(ctx, r.db, task.SessionID, false)
}
