package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/clock"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/config"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
	taskrepo "github.com/sharmadiveshwins/spotgenius-connect/internal/task/repository"
)

var schedulerNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newWorkerFixture(t *testing.T) (*Worker, *gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&taskdomain.Task{}, &taskdomain.SubTask{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	w := &Worker{
		db:    db,
		log:   zap.NewNop(),
		clock: clock.Fixed{At: schedulerNow},
		cfg:   config.Config{TaskPickingLimit: 10},
		tasks: taskrepo.Provide(node),
	}
	return w, db, node
}

func seedDueTask(t *testing.T, db *gorm.DB, node *snowflake.Node, sessionID snowflake.ID, feature domain.FeatureKey, nextAt time.Time) *taskdomain.Task {
	t.Helper()
	task := &taskdomain.Task{
		ID:             node.Generate(),
		Status:         domain.TaskStatusPending,
		EventType:      domain.EventCarEntry,
		FeatureTextKey: feature,
		ParkingLotID:   42,
		PlateNumber:    "ABC123",
		SessionID:      sessionID,
		NextAt:         nextAt,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func TestClaimDueTasksIsExactlyOnce(t *testing.T) {
	w, db, node := newWorkerFixture(t)
	ctx := context.Background()
	sessionID := node.Generate()

	seedDueTask(t, db, node, sessionID, domain.FeaturePaymentCheckLpr, schedulerNow.Add(-time.Minute))
	seedDueTask(t, db, node, sessionID, domain.FeaturePaymentCheckLpr, schedulerNow.Add(-time.Second))
	future := seedDueTask(t, db, node, sessionID, domain.FeaturePaymentCheckLpr, schedulerNow.Add(time.Hour))

	claimed, err := w.claimDueTasks(ctx, schedulerNow, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d tasks, want 2", len(claimed))
	}
	for _, task := range claimed {
		if task.Status != domain.TaskStatusInProgress {
			t.Fatalf("claimed task %d status = %s", task.ID, task.Status)
		}
		if task.ID == future.ID {
			t.Fatal("future task must not be claimed")
		}
	}

	again, err := w.claimDueTasks(ctx, schedulerNow, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim picked %d tasks, want 0", len(again))
	}

	var futureRow taskdomain.Task
	if err := db.First(&futureRow, "id = ?", future.ID).Error; err != nil {
		t.Fatalf("reload future task: %v", err)
	}
	if futureRow.Status != domain.TaskStatusPending {
		t.Fatalf("future task status = %s", futureRow.Status)
	}
}

func TestClaimDueTasksOrdersAlertsFirstWithinSession(t *testing.T) {
	w, db, node := newWorkerFixture(t)
	ctx := context.Background()
	sessionID := node.Generate()

	payment := seedDueTask(t, db, node, sessionID, domain.FeaturePaymentCheckLpr, schedulerNow.Add(-time.Minute))
	notify := seedDueTask(t, db, node, sessionID, domain.FeatureNotifySGAdmin, schedulerNow.Add(-time.Minute))
	reservation := seedDueTask(t, db, node, sessionID, domain.FeatureReservationCheckLpr, schedulerNow.Add(-time.Minute))

	claimed, err := w.claimDueTasks(ctx, schedulerNow, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed %d tasks, want 3", len(claimed))
	}
	want := []snowflake.ID{notify.ID, reservation.ID, payment.ID}
	for i, task := range claimed {
		if task.ID != want[i] {
			t.Fatalf("claim order[%d] = %s, want %s (notify, reservation, payment)",
				i, task.FeatureTextKey, want[i])
		}
	}
}

func TestClaimDueTasksHonorsLimit(t *testing.T) {
	w, db, node := newWorkerFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedDueTask(t, db, node, node.Generate(), domain.FeaturePaymentCheckLpr, schedulerNow.Add(-time.Minute))
	}

	claimed, err := w.claimDueTasks(ctx, schedulerNow, 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed %d tasks, want 3", len(claimed))
	}
}

func TestClaimSubTasks(t *testing.T) {
	w, db, node := newWorkerFixture(t)
	ctx := context.Background()
	taskID := node.Generate()

	open := &taskdomain.SubTask{
		ID:               node.Generate(),
		Status:           domain.TaskStatusPending,
		TaskID:           taskID,
		ProviderCredsID:  1,
		FeatureURLPathID: 1,
	}
	closed := &taskdomain.SubTask{
		ID:               node.Generate(),
		Status:           domain.TaskStatusClosed,
		TaskID:           taskID,
		ProviderCredsID:  2,
		FeatureURLPathID: 2,
	}
	for _, sub := range []*taskdomain.SubTask{open, closed} {
		if err := db.Create(sub).Error; err != nil {
			t.Fatalf("seed sub task: %v", err)
		}
	}

	claimed, err := w.claimSubTasks(ctx, taskID)
	if err != nil {
		t.Fatalf("claim sub tasks: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d sub tasks, want 1", len(claimed))
	}
	if claimed[0].ID != open.ID || claimed[0].Status != domain.TaskStatusInProgress {
		t.Fatalf("claimed sub task = %v", claimed[0])
	}
}
