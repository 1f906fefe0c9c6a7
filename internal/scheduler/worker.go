// Package scheduler drains the task queue: due tasks are claimed with row
// locks, routed to their feature processor and closed, whatever the outcome,
// so a wedged provider can never stall the queue.
package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/features"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/metrics"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/observability/tracing"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

// Params collects the worker dependencies.
type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Tasks    taskdomain.Repository
	Features *features.Registry
}

// Worker is the task queue drain loop.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.Config
	tasks    taskdomain.Repository
	features *features.Registry
	tracer   trace.Tracer
}

// NewWorker builds the scheduler worker.
func NewWorker(p Params) *Worker {
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		cfg:      p.Config,
		tasks:    p.Tasks,
		features: p.Features,
		tracer:   otel.Tracer("spotgenius-connect/scheduler"),
	}
}

// RunForever polls the queue until the context ends.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes one batch of due tasks.
func (w *Worker) RunOnce(ctx context.Context) error {
	_, err := w.processBatch(ctx, w.cfg.TaskPickingLimit)
	return err
}

func (w *Worker) processBatch(ctx context.Context, limit int) (int, error) {
	tasks, err := w.claimDueTasks(ctx, w.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	now := w.clock.Now()
	for i := range tasks {
		metrics.Tasks().ObservePickupLag(string(tasks[i].FeatureTextKey), now.Sub(tasks[i].NextAt))
		w.processTask(ctx, &tasks[i])
		processed++
	}
	w.publishBacklog(ctx)
	return processed, nil
}

// publishBacklog reports the queue depth per status. A failed count only
// skips the gauge update.
func (w *Worker) publishBacklog(ctx context.Context) {
	counts, err := w.tasks.CountByStatus(ctx, w.db)
	if err != nil {
		w.log.Debug("backlog count failed", zap.Error(err))
		return
	}
	for status, count := range counts {
		metrics.Tasks().SetBacklog(string(status), float64(count))
	}
}

// processTask runs one claimed task. Failures are logged, never propagated:
// the task still closes, and any follow-up the processor scheduled before
// failing stays scheduled.
func (w *Worker) processTask(ctx context.Context, task *taskdomain.Task) {
	ctx, span := w.tracer.Start(ctx, "scheduler.process_task",
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.Int64("task.id", task.ID.Int64()),
			attribute.String("task.feature", string(task.FeatureTextKey)),
			attribute.String("task.event_type", string(task.EventType)),
		)...))
	defer span.End()

	started := w.clock.Now()
	result := "success"
	log := w.log.With(
		zap.Int64("task_id", task.ID.Int64()),
		zap.String("identity", taskIdentity(task)))
	log.Debug("task processing begins")

	if task.Status != domain.TaskStatusClosed {
		subTasks, err := w.claimSubTasks(ctx, task.ID)
		if err != nil {
			log.Error("sub-task claim failed", zap.Error(err))
		} else if err := w.features.Process(ctx, task, subTasks); err != nil {
			span.RecordError(tracing.SafeError(err))
			log.Error("task processing failed", zap.Error(err))
			result = "failed"
		}
	}

	if err := w.tasks.Close(ctx, w.db, task); err != nil {
		log.Error("task close failed", zap.Error(err))
		result = "failed"
	}
	metrics.Tasks().IncProcessed(string(task.FeatureTextKey), result)
	log.Info("task completed", zap.Duration("took", w.clock.Now().Sub(started)))
}

// taskIdentity renders the LPR-or-spot identity used in worker logs.
func taskIdentity(task *taskdomain.Task) string {
	if task.PlateNumber != "" {
		return "LPR: " + task.PlateNumber
	}
	return "SPOT: " + task.ParkingSpotName
}
