// Package dispatcher turns platform events into sessions, session logs and
// verification tasks. It owns the session lifecycle (open, duplicate close,
// exit, unknown) and the alert fan-out that accompanies it.
package dispatcher

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/client/sgadmin"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	violationdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/violation/domain"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/window"
)

// Params collects the dispatcher's dependencies.
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
}

// Service is the event dispatcher.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	providers  providerdomain.Repository
	tasks      taskdomain.Repository
	sessions   sessiondomain.Repository
	violations violationdomain.Repository
	admin      *sgadmin.Client
}

// New builds the dispatcher.
func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dispatcher"),
		clock:      p.Clock,
		providers:  p.Providers,
		tasks:      p.Tasks,
		sessions:   p.Sessions,
		violations: p.Violations,
		admin:      p.Admin,
	}
}

// LogEntry is one session-log write. Attrs, when set, are applied to the
// session row before the log line is appended.
type LogEntry struct {
	SessionID   snowflake.ID
	ActionType  string
	Description string
	Provider    string
	Meta        datatypes.JSONMap
	EventAt     time.Time
	Attrs       map[string]any
}

// LogSession updates session attributes and appends a timeline entry. Log
// failures are reported but never fail the caller; the timeline is advisory.
func (s *Service) LogSession(ctx context.Context, entry LogEntry) {
	if len(entry.Attrs) > 0 {
		if err := s.sessions.Update(ctx, s.db, entry.SessionID, entry.Attrs); err != nil {
			s.log.Error("session update failed",
				zap.Int64("session_id", entry.SessionID.Int64()), zap.Error(err))
		}
	}
	record := &sessiondomain.SessionLog{
		SessionID:   entry.SessionID,
		ActionType:  entry.ActionType,
		Description: entry.Description,
		Provider:    entry.Provider,
		MetaInfo:    entry.Meta,
		EventAt:     entry.EventAt,
	}
	if _, err := s.sessions.AppendLog(ctx, s.db, record); err != nil {
		s.log.Error("session log write failed",
			zap.Int64("session_id", entry.SessionID.Int64()),
			zap.String("action_type", entry.ActionType), zap.Error(err))
	}
}

// paymentWindow evaluates the lot's window with the lot's own grace period.
func (s *Service) paymentWindow(ctx context.Context, lot *providerdomain.ConnectParkinglot) (window.Result, error) {
	slots, err := s.providers.ParkingTimes(ctx, s.db, lot.ParkingLotID)
	if err != nil {
		return window.Result{}, err
	}
	calc := window.NewCalculator(s.clock, time.Duration(lot.GracePeriod)*time.Minute)
	return calc.Check(lot, slots)
}

// amountFrom pulls the fee out of the platform's violation metadata.
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

// actionForEvent maps an occupancy event type to its timeline label.
func actionForEvent(t domain.EventType) domain.LogAction {
	switch t {
	case domain.EventCarEntry:
		return domain.ActionEntry
	case domain.EventCarExit:
		return domain.ActionExit
	case domain.EventSpotOccupied:
		return domain.ActionOccupied
	case domain.EventSpotFree:
		return domain.ActionFree
	}
	return ""
}
