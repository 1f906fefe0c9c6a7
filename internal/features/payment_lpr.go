package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/peers"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/payment"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/mapper"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// checkPaymentByLPR verifies a plate's payment against every bound provider.
// Privilege permits bypass the check entirely. Inside a paid window each
// sub-task is tried until one provider reports a valid payment; outside one
// the open payment violation closes and the session coasts until the window
// flips back.
func (r *Registry) checkPaymentByLPR(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
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

	win, err := r.paymentWindow(ctx, lot)
	if err != nil {
		return err
	}

	actionOverride := domain.LogAction("")
	if win.Status {
		if err := r.payment.CloseOverstayViolation(ctx, task, domain.ReasonFreeToPaymentWindow); err != nil {
			r.log.Warn("closing overstay violation failed",
				zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
		}
		threshold := r.matchThreshold(ctx, task.ParkingLotID)

		for i := range subTasks {
			st := &subTasks[i]
			b, err := r.resolve(ctx, st)
			if err != nil {
				return err
			}
			mapping := schemaMap(b.endpoint.ResponseSchema)

			var record map[string]any
			if b.provider.RequestKind != domain.RequestKindConnect {
				record = r.routedPaymentCheck(ctx, task, b, lot.GracePeriod, threshold)
				if record == nil && stringOf(mapping["action_type"]) == string(domain.ActionValidPermit) {
					wasPermit, err := r.sessions.LastActionIn(ctx, r.db, task.SessionID,
						[]string{string(domain.ActionValidPermit)})
					if err != nil {
						return err
					}
					if wasPermit {
						actionOverride = domain.ActionPermitExpired
					}
				}
			} else {
				record, err = r.directPaymentCheck(ctx, task, b, lot, mapping, threshold)
				if err != nil {
					return err
				}
			}

			if record != nil {
				res, paidDate := paymentResult(record, mapping)
				if res.ExpiryDate != nil || res.PricePaid != nil {
					laterEntry := entryAfter(task, paidDate)
					sessionToday, err := r.sessions.HasSessionOnDay(ctx, r.db,
						task.ParkingLotID, task.PlateNumber, r.clock.Now())
					if err != nil {
						return err
					}
					if lot.IsInOutPolicy || !(laterEntry && sessionToday) {
						return r.processPayment(ctx, task, st, b, res)
					}
				}
			}
			r.log.Info("payment not found",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("identity", taskIdentity(task)),
				zap.String("provider", b.provider.Name))
			r.closeSubTask(ctx, st)
		}
	} else {
		if err := r.payment.ClosePaymentViolation(ctx, task, domain.ReasonPaymentWindowToFree); err != nil {
			r.log.Warn("closing payment violation failed",
				zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
		}
		if err := r.dispatch.DispatchInactivation(ctx, task.ParkingLotID, task.SessionID); err != nil {
			r.log.Warn("inactivation dispatch failed",
				zap.Int64("session_id", task.SessionID.Int64()), zap.Error(err))
		}
	}

	return r.payment.ManageWindowOutcome(ctx, task, lot, session, win, actionOverride)
}

// routedPaymentCheck asks the payment microservice handling the provider.
func (r *Registry) routedPaymentCheck(ctx context.Context, task *taskdomain.Task, b *binding, gracePeriod, threshold int) map[string]any {
	facility := ""
	connect, err := r.providers.ConnectForCreds(ctx, r.db, task.ParkingLotID, b.creds.ID)
	if err == nil && connect != nil {
		facility = connect.FacilityID
	}
	return r.peers.CheckPayment(ctx, b.provider.APIRequestEndpoint, b.creds, peers.PaymentQuery{
		ParkingLotID:   task.ParkingLotID,
		Plate:          task.PlateNumber,
		Provider:       b.provider.TextKey,
		Feature:        "lpr",
		FacilityID:     facility,
		GracePeriod:    gracePeriod,
		MatchThreshold: threshold,
	})
}

// directPaymentCheck calls the provider through the request engine and picks
// the record matching the task's plate.
func (r *Registry) directPaymentCheck(ctx context.Context, task *taskdomain.Task, b *binding, lot *providerdomain.ConnectParkinglot, mapping map[string]any, threshold int) (map[string]any, error) {
	resp, err := r.engine.Execute(ctx, engine.Request{
		Task:     task,
		SubTask:  b.subTask,
		Endpoint: b.endpoint,
		Creds:    b.creds,
		Lot:      lot,
	})
	if err != nil {
		if !errors.Is(err, engine.ErrNoResponse) {
			r.log.Warn("provider request failed",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("provider", b.provider.Name), zap.Error(err))
		}
		return nil, nil
	}
	rows := mapper.Project(resp, mapping)
	match := mapper.FindClosestMatch(rows, task.PlateNumber, threshold, r.clock.Now())
	return mapper.FilterTiba(ctx, b.creds.TextKey, match, task.ParkingLotID, r.secondaryPlateCheck)
}

// processPayment records the found payment and reschedules the check at the
// payment's expiry, except on exits.
func (r *Registry) processPayment(ctx context.Context, task *taskdomain.Task, st *taskdomain.SubTask, b *binding, res payment.Result) error {
	r.log.Info("payment found",
		zap.Int64("task_id", task.ID.Int64()),
		zap.String("identity", taskIdentity(task)),
		zap.String("provider", b.provider.Name),
		zap.Timep("until", res.ExpiryDate))

	if err := r.payment.Paid(ctx, task, st, res); err != nil {
		return err
	}
	if err := r.tasks.CloseSubTasksOnPaid(ctx, r.db, task.ID, st.ID); err != nil {
		return err
	}
	if task.EventType != domain.EventCarExit && res.ExpiryDate != nil {
		if err := r.dispatch.RebuildTask(ctx, task, *res.ExpiryDate); err != nil {
			return err
		}
		r.log.Debug("task completed, follow-up created at payment expiry",
			zap.Int64("task_id", task.ID.Int64()))
	}
	return nil
}

// entryAfter reports whether the vehicle entered after the payment started,
// which means the payment belongs to an earlier visit.
func entryAfter(task *taskdomain.Task, paidDate *time.Time) bool {
	if paidDate == nil {
		return false
	}
	entry := timeOf(task.EventPayload["entry_time"])
	return entry != nil && entry.After(*paidDate)
}
