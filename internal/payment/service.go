// Package payment applies the outcome of a provider check to the session:
// recording found payments, raising and pricing violations when none was
// found, and closing violation alerts when the state resolves.
package payment

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/window"
)

// variableAccrual is the per-pass amount added to an open variable-priced
// violation on every unpaid re-check.
const variableAccrual = 10

// Params collects the payment service dependencies.
type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Providers  providerdomain.Repository
	Tasks      taskdomain.Repository
	Sessions   sessiondomain.Repository
	Violations violationdomain.Repository
	Admin      *sgadmin.Client
	Dispatcher *dispatcher.Service
}

// Service applies payment outcomes.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	providers  providerdomain.Repository
	tasks      taskdomain.Repository
	sessions   sessiondomain.Repository
	violations violationdomain.Repository
	admin      *sgadmin.Client
	dispatch   *dispatcher.Service
}

// New builds the payment service.
func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment"),
		clock:      p.Clock,
		providers:  p.Providers,
		tasks:      p.Tasks,
		sessions:   p.Sessions,
		violations: p.Violations,
		admin:      p.Admin,
		dispatch:   p.Dispatcher,
	}
}

// Result is a normalized payment or reservation record a provider returned.
type Result struct {
	Action     domain.LogAction
	PricePaid  *float64
	ExpiryDate *time.Time
	Meta       datatypes.JSONMap
}

// Paid records a found payment: the session stops waiting, the paid amount
// accrues, the timeline gets the paid entry with the remaining duration, and
// any open payment violation closes.
func (s *Service) Paid(ctx context.Context, task *taskdomain.Task, subTask *taskdomain.SubTask, res Result) error {
	provider, err := s.providers.ProviderForCreds(ctx, s.db, subTask.ProviderCredsID)
	if err != nil {
		return err
	}

	label := string(res.Action)
	if domain.MetaFor(res.Action).AppendDuration && res.ExpiryDate != nil {
		label += ":" + window.RemainingLabel(s.clock.Now(), *res.ExpiryDate)
	}

	attrs := map[string]any{"is_waiting_for_payment": false}
	session, err := s.sessions.FindByID(ctx, s.db, task.SessionID)
	if err != nil {
		return err
	}
	if session != nil && res.PricePaid != nil {
		attrs["total_paid_amount"] = session.TotalPaidAmount + *res.PricePaid
	}

	providerName := ""
	if provider != nil {
		providerName = provider.Name
	}
	s.dispatch.LogSession(ctx, dispatcher.LogEntry{
		SessionID:   task.SessionID,
		ActionType:  label,
		Description: label,
		Provider:    providerName,
		Meta:        res.Meta,
		Attrs:       attrs,
	})

	if err := s.ClosePaymentViolation(ctx, task, domain.ReasonPaymentFound); err != nil {
		s.log.Warn("closing payment violation failed",
			zap.Int64("task_id", task.ID.Int64()), zap.Error(err))
	}
	return s.dispatch.DispatchInactivation(ctx, task.ParkingLotID, task.SessionID)
}

// NotPaid raises or accrues a violation for a task that found no payment.
// Variable-priced lots accrue on the open violation per pass; fixed-priced
// lots create a single violation through the violation-notify pipeline.
func (s *Service) NotPaid(ctx context.Context, task *taskdomain.Task, violationType domain.EventType, violationFlag bool) error {
	s.log.Warn("no payment was found from any provider",
		zap.Int64("task_id", task.ID.Int64()),
		zap.String("identity", identity(task)))

	cfg, err := s.violations.ConfigForLot(ctx, s.db, task.ParkingLotID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}

	meta, err := s.admin.ViolationAmount(ctx, task.ParkingLotID, string(violationType))
	if err != nil {
		s.log.Warn("violation amount lookup failed",
			zap.Int64("parking_lot_id", task.ParkingLotID), zap.Error(err))
	}

	existing, err := s.violations.FindOpenByType(ctx, s.db, task.SessionID, violationType)
	if err != nil {
		return err
	}

	switch cfg.PricingType {
	case domain.PricingVariable:
		if existing != nil {
			updated, err := s.violations.AccrueOpen(ctx, s.db, task.PlateNumber, task.ParkingSpotID, task.FeatureTextKey, variableAccrual)
			if err != nil {
				return err
			}
			if updated != nil {
				s.log.Info("violation updated",
					zap.Int64("task_id", task.ID.Int64()),
					zap.Int64("violation_id", updated.ID.Int64()),
					zap.String("identity", identity(task)))
			}
			return nil
		}
		violation := violationRecord(task, violationType, meta, s.clock.Now())
		if err := s.violations.Insert(ctx, s.db, violation); err != nil {
			return err
		}
		s.log.Info("violation created",
			zap.Int64("task_id", task.ID.Int64()),
			zap.Int64("violation_id", violation.ID.Int64()),
			zap.String("identity", identity(task)))
		return nil

	case domain.PricingFixed:
		if existing != nil || !violationFlag {
			return nil
		}
		violationTask, err := s.dispatch.DispatchViolationEvent(ctx, task.SessionID, violationType)
		if err != nil {
			return err
		}
		if violationTask == nil {
			return nil
		}
		violation := violationRecord(violationTask, violationType, meta, s.clock.Now())
		if err := s.violations.Insert(ctx, s.db, violation); err != nil {
			return err
		}
		s.log.Info("violation created",
			zap.Int64("task_id", violationTask.ID.Int64()),
			zap.Int64("violation_id", violation.ID.Int64()),
			zap.String("identity", identity(task)))
		return nil
	}
	return nil
}

// violationRecord builds the violation row for the task and kind.
func violationRecord(task *taskdomain.Task, violationType domain.EventType, meta map[string]any, now time.Time) *violationdomain.Violation {
	name, description := violationdomain.NamePayment, violationdomain.DescPayment
	if violationType == domain.EventOverstayViolation {
		name, description = violationdomain.NameOverstay, violationdomain.DescOverstay
	}
	return &violationdomain.Violation{
		Name:          name,
		Status:        domain.ViolationOpen,
		Description:   description,
		ViolationType: violationType,
		AmountDue:     amountFrom(meta),
		ParkingLotID:  task.ParkingLotID,
		ParkingSpotID: task.ParkingSpotID,
		PlateNumber:   task.PlateNumber,
		SessionID:     task.SessionID,
		TaskID:        task.ID,
		MetaData:      meta,
		Timestamp:     now,
	}
}

func amountFrom(meta map[string]any) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta["amount"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// identity renders the task's vehicle identity for log lines.
func identity(task *taskdomain.Task) string {
	if task.PlateNumber != "" {
		return "LPR: " + task.PlateNumber
	}
	return "SPOT: " + task.ParkingSpotName
}
