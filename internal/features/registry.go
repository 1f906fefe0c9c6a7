// Package features hosts the per-feature task processors. Each processor
// consumes one claimed task together with its open sub-tasks, drives the
// wired provider calls and hands verdicts to the payment service.
package features

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/peers"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/dispatcher"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/payment"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/provider/engine"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/window"
)

// Params collects the processor dependencies.
type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Providers  providerdomain.Repository
	Tasks      taskdomain.Repository
	Sessions   sessiondomain.Repository
	Violations violationdomain.Repository
	Admin      *sgadmin.Client
	Peers      *peers.Client
	Engine     *engine.Engine
	Payment    *payment.Service
	Dispatcher *dispatcher.Service
}

// Registry routes claimed tasks to the processor for their feature.
type Registry struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	cfg        config.Config
	providers  providerdomain.Repository
	tasks      taskdomain.Repository
	sessions   sessiondomain.Repository
	violations violationdomain.Repository
	admin      *sgadmin.Client
	peers      *peers.Client
	engine     *engine.Engine
	payment    *payment.Service
	dispatch   *dispatcher.Service
}

// New builds the processor registry.
func New(p Params) *Registry {
	return &Registry{
		db:         p.DB,
		log:        p.Log.Named("features"),
		clock:      p.Clock,
		cfg:        p.Config,
		providers:  p.Providers,
		tasks:      p.Tasks,
		sessions:   p.Sessions,
		violations: p.Violations,
		admin:      p.Admin,
		peers:      p.Peers,
		engine:     p.Engine,
		payment:    p.Payment,
		dispatch:   p.Dispatcher,
	}
}

// Process runs the processor for the task's feature.
func (r *Registry) Process(ctx context.Context, task *taskdomain.Task, subTasks []taskdomain.SubTask) error {
	switch task.FeatureTextKey {
	case domain.FeaturePaymentCheckLpr:
		return r.checkPaymentByLPR(ctx, task, subTasks)
	case domain.FeaturePaymentCheckSpot:
		return r.checkPaymentBySpot(ctx, task, subTasks)
	case domain.FeatureReservationCheckLpr:
		return r.checkReservationByLPR(ctx, task, subTasks)
	case domain.FeatureEnforcementCitation:
		r.log.Info("processing enforcement citation task", zap.Int64("task_id", task.ID.Int64()))
		return r.createCitation(ctx, task, subTasks)
	case domain.FeatureNotifySGAdmin:
		return r.notifyAdmin(ctx, task, subTasks)
	case domain.FeatureInactivation:
		r.log.Info("processing provider violation inactivation task", zap.Int64("task_id", task.ID.Int64()))
		return r.inactivateViolations(ctx, task, subTasks)
	}
	r.log.Debug("feature has no processor", zap.String("feature", string(task.FeatureTextKey)))
	return nil
}

// binding is the resolved row set behind one sub-task.
type binding struct {
	subTask  *taskdomain.SubTask
	endpoint *providerdomain.FeatureURLPath
	creds    *providerdomain.ProviderCreds
	provider *providerdomain.Provider
}

func (r *Registry) resolve(ctx context.Context, st *taskdomain.SubTask) (*binding, error) {
	endpoint, err := r.providers.FeatureURLPath(ctx, r.db, st.FeatureURLPathID)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint %d: %w", st.FeatureURLPathID, err)
	}
	creds, err := r.providers.Creds(ctx, r.db, st.ProviderCredsID)
	if err != nil {
		return nil, fmt.Errorf("resolve creds %d: %w", st.ProviderCredsID, err)
	}
	provider, err := r.providers.ProviderForCreds(ctx, r.db, st.ProviderCredsID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for creds %d: %w", st.ProviderCredsID, err)
	}
	return &binding{subTask: st, endpoint: endpoint, creds: creds, provider: provider}, nil
}

// paymentWindow evaluates the lot's window with the lot's own grace period.
func (r *Registry) paymentWindow(ctx context.Context, lot *providerdomain.ConnectParkinglot) (window.Result, error) {
	slots, err := r.providers.ParkingTimes(ctx, r.db, lot.ParkingLotID)
	if err != nil {
		return window.Result{}, err
	}
	calc := window.NewCalculator(r.clock, time.Duration(lot.GracePeriod)*time.Minute)
	return calc.Check(lot, slots)
}

// matchThreshold reads the lot's plate matching distance, falling back to the
// configured default when the platform does not expose one.
func (r *Registry) matchThreshold(ctx context.Context, lotID int64) int {
	status, err := r.admin.LotStatus(ctx, lotID)
	if err != nil {
		r.log.Warn("lot status lookup failed", zap.Int64("parking_lot_id", lotID), zap.Error(err))
		return r.cfg.PlateMatchMaxDistance
	}
	if status == nil || status.LprMatchThreshold == nil {
		return r.cfg.PlateMatchMaxDistance
	}
	return *status.LprMatchThreshold
}

// secondaryPlateCheck backs the peer-car filter for shared reservations.
func (r *Registry) secondaryPlateCheck(ctx context.Context, parkingLotID int64, plates []string) (bool, error) {
	return r.tasks.HasActiveTaskForPlates(ctx, r.db, parkingLotID, plates)
}

func (r *Registry) closeSubTask(ctx context.Context, st *taskdomain.SubTask) {
	if err := r.tasks.UpdateSubTaskStatus(ctx, r.db, st.ID, domain.TaskStatusClosed); err != nil {
		r.log.Warn("sub-task close failed", zap.Int64("sub_task_id", st.ID.Int64()), zap.Error(err))
	}
}

// taskIdentity renders the LPR-or-spot identity used in processor logs.
func taskIdentity(task *taskdomain.Task) string {
	if task.PlateNumber != "" {
		return "LPR: " + task.PlateNumber
	}
	return "SPOT: " + task.ParkingSpotName
}
