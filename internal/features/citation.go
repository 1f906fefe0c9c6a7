package features

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/peers"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
)

// createCitation issues the enforcement citation for a violation. The task
// status is re-read first: the alert pipeline closes citation tasks when no
// platform alert was raised, and a close landing between claim and run must
// win. A car that already left never gets cited.
func (r *Registry) createCitation(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
	current, err := r.tasks.FindByID(ctx, r.db, task.ID)
	if err != nil {
		return err
	}
	if current != nil && current.Status == domain.TaskStatusClosed {
		r.log.Info("citation task already closed",
			zap.Int64("task_id", task.ID.Int64()),
			zap.String("identity", taskIdentity(task)))
		return nil
	}

	session, err := r.sessions.FindByID(ctx, r.db, task.SessionID)
	if err != nil {
		return err
	}
	exited := false
	switch {
	case task.ParkingSpotName != "":
		exited = r.admin.SpotFree(ctx, task.ParkingLotID, task.ParkingSpotName)
	case task.PlateNumber != "" && session != nil && session.LprRecordID != nil:
		exited = r.admin.LprExited(ctx, task.ParkingLotID, *session.LprRecordID)
	}
	if exited {
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
		violation, err := r.violations.FindByTaskAndSession(ctx, r.db, task.ID, task.SessionID)
		if err != nil {
			return err
		}
		if violation == nil {
			r.log.Warn("no violation recorded for citation task",
				zap.Int64("task_id", task.ID.Int64()))
			r.closeSubTask(ctx, st)
			continue
		}

		var resp map[string]any
		if b.provider.RequestKind != domain.RequestKindConnect {
			resp = r.routedCitation(ctx, task, b, violation)
		} else {
			resp, err = r.engine.Execute(ctx, engine.Request{
				Task:      task,
				SubTask:   st,
				Endpoint:  b.endpoint,
				Creds:     b.creds,
				Lot:       lot,
				Violation: violation,
			})
			if err != nil && !errors.Is(err, engine.ErrNoResponse) {
				r.log.Error("citation request failed",
					zap.Int64("task_id", task.ID.Int64()),
					zap.String("provider", b.provider.Name), zap.Error(err))
			}
		}
		r.log.Info("citation response received",
			zap.String("provider", b.provider.Name), zap.Any("response", resp))

		if resp != nil {
			record := projectOne(resp, schemaMap(b.endpoint.ResponseSchema))
			if record != nil && truthy(record["status"]) {
				return r.recordCitation(ctx, task, b, violation, record)
			}
		}

		r.closeSubTask(ctx, st)
	}
	return nil
}

// routedCitation sends the citation through the enforcement microservice.
func (r *Registry) routedCitation(ctx context.Context, task *taskdomain.Task, b *binding, violation *violationdomain.Violation) map[string]any {
	facility := ""
	connect, err := r.providers.ConnectForCreds(ctx, r.db, task.ParkingLotID, b.creds.ID)
	if err == nil && connect != nil {
		facility = connect.FacilityID
	}
	meta := map[string]any{
		"citation_id":    strconv.FormatInt(violation.ID.Int64(), 10),
		"violation_time": violation.Timestamp,
		"entry_time":     task.EventPayload["timestamp"],
		"make":           task.EventPayload["make"],
		"color":          task.EventPayload["color"],
		"body":           task.EventPayload["model"],
	}
	if task.State != "" {
		meta["state"] = task.State
	}
	amount, _ := floatOf(violation.MetaData["amount"])
	return r.peers.CreateCitation(ctx, b.provider.APIRequestEndpoint, b.creds, peers.CitationRequest{
		ParkingLotID:  task.ParkingLotID,
		PlateNumber:   task.PlateNumber,
		SpotName:      task.ParkingSpotName,
		ViolationType: violation.Name,
		Amount:        amount,
		Provider:      b.provider.TextKey,
		FacilityID:    facility,
		Metadata:      meta,
	})
}

// recordCitation maps the provider's citation reference onto the violation
// and logs the issued citation on the session timeline.
func (r *Registry) recordCitation(ctx context.Context, task *taskdomain.Task, b *binding, violation *violationdomain.Violation, record map[string]any) error {
	reference := stringOf(record["response_id"])
	if err := r.violations.Update(ctx, r.db, violation.ID, map[string]any{
		"citation_id": reference,
	}); err != nil {
		return err
	}
	r.log.Info("citation created",
		zap.Int64("task_id", task.ID.Int64()),
		zap.String("identity", taskIdentity(task)),
		zap.String("reference", reference))

	amount, _ := floatOf(violation.MetaData["amount"])
	description := fmt.Sprintf("Reference #: %s,Violation name: %s, Violation penalty: $%v",
		reference, violation.Name, amount)
	if code := stringOf(record["viocode"]); code != "" {
		description += ", Code: " + code
	}
	r.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  fmt.Sprintf("%s: %s", domain.ActionViolationSent, violation.Name),
		Description: description,
		Provider:    b.provider.Name,
		EventAt:     r.clock.Now(),
	})
	return nil
}
