package features

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// inactivateViolations tells the provider's dashboard that the session's
// violations no longer stand. Each violation that has never been inactivated
// is pushed once; the provider's reference is stored so the push never
// repeats.
func (r *Registry) inactivateViolations(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
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

		violations, err := r.violations.FindAwaitingInactivation(ctx, r.db, task.SessionID)
		if err != nil {
			return err
		}
		for j := range violations {
			violation := &violations[j]
			r.log.Info("violation inactivation started",
				zap.Int64("session_id", task.SessionID.Int64()),
				zap.String("violation", violation.Name))

			resp, err := r.engine.Execute(ctx, engine.Request{
				Task:      task,
				SubTask:   st,
				Endpoint:  b.endpoint,
				Creds:     b.creds,
				Lot:       lot,
				Violation: violation,
			})
			if err != nil {
				if !errors.Is(err, engine.ErrNoResponse) {
					r.log.Warn("inactivation request failed",
						zap.Int64("task_id", task.ID.Int64()),
						zap.String("provider", b.provider.Name), zap.Error(err))
				}
				continue
			}
			r.log.Info("inactivation response received",
				zap.String("provider", b.provider.Name), zap.Any("response", resp))

			record := projectOne(resp, schemaMap(b.endpoint.ResponseSchema))
			if record == nil || !truthy(record["status"]) {
				continue
			}
			if err := r.violations.Update(ctx, r.db, violation.ID, map[string]any{
				"citation_inactivation_id": stringOf(record["response_id"]),
			}); err != nil {
				return err
			}
			r.log.Info("violation inactivation completed",
				zap.Int64("session_id", task.SessionID.Int64()),
				zap.String("violation", violation.Name))
		}

		r.closeSubTask(ctx, st)
	}
	return nil
}
