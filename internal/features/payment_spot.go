package features

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// checkPaymentBySpot verifies payment for a spot-keyed session. Spots flagged
// as reserved on fully-paid or spot-free lots skip the check entirely. The
// first provider record with an unexpired payment settles the task.
func (r *Registry) checkPaymentBySpot(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
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

	if truthy(task.EventPayload["disable_spot_payment"]) &&
		(lot.ParkingOperations == domain.OperationPaid24Hours ||
			lot.ParkingOperations == domain.OperationSpotBasedFree24) {
		r.log.Debug("spot payment disabled for reserved spot",
			zap.Int64("task_id", task.ID.Int64()),
			zap.String("identity", taskIdentity(task)),
			zap.String("parking_operation", string(lot.ParkingOperations)))
		return r.tasks.CloseSubTasksForTask(ctx, r.db, task.ID)
	}

	win, err := r.paymentWindow(ctx, lot)
	if err != nil {
		return err
	}

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

		mapping := schemaMap(b.endpoint.ResponseSchema)
		record := projectOne(resp, mapping)
		if record != nil {
			expiry := timeOf(record["expiry_date"])
			if expiry != nil && expiry.After(r.clock.Now()) {
				res, _ := paymentResult(record, mapping)
				if res.ExpiryDate != nil || res.PricePaid != nil {
					return r.processPayment(ctx, task, st, b, res)
				}
				r.log.Info("payment not found",
					zap.Int64("task_id", task.ID.Int64()),
					zap.String("identity", taskIdentity(task)),
					zap.String("provider", b.provider.Name))
			} else if record["expiry_date"] != nil {
				r.log.Info("payment found but expired",
					zap.Int64("task_id", task.ID.Int64()),
					zap.String("identity", taskIdentity(task)),
					zap.String("provider", b.provider.Name),
					zap.Any("expired_on", record["expiry_date"]))
			}
		} else {
			r.log.Info("payment not found",
				zap.Int64("task_id", task.ID.Int64()),
				zap.String("identity", taskIdentity(task)),
				zap.String("provider", b.provider.Name))
		}

		r.closeSubTask(ctx, st)
	}

	return r.payment.ManageWindowOutcome(ctx, task, lot, session, win, "")
}
