package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	taskdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/task/domain"
)

func newTaskDB(t *testing.T) (*gorm.DB, taskdomain.Repository, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&taskdomain.Task{}, &taskdomain.SubTask{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return db, Provide(node), node
}

func insertTask(t *testing.T, repo taskdomain.Repository, db *gorm.DB, task *taskdomain.Task) *taskdomain.Task {
	t.Helper()
	if task.FeatureTextKey == "" {
		task.FeatureTextKey = domain.FeaturePaymentCheckLpr
	}
	if err := repo.Insert(context.Background(), db, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return task
}

func taskStatus(t *testing.T, db *gorm.DB, id snowflake.ID) domain.TaskStatus {
	t.Helper()
	var task taskdomain.Task
	if err := db.First(&task, "id = ?", id).Error; err != nil {
		t.Fatalf("load task %d: %v", id, err)
	}
	return task.Status
}

func TestCloseExitFansOutToSessionTasks(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()
	sessionID := node.Generate()

	entry := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})
	inactivation := insertTask(t, repo, db, &taskdomain.Task{
		EventType:      domain.EventViolationInactivate,
		FeatureTextKey: domain.FeatureInactivation,
		ParkingLotID:   42,
		PlateNumber:    "ABC123",
		SessionID:      sessionID,
	})
	other := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "XYZ987",
		SessionID:    node.Generate(),
	})
	exit := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarExit,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})

	if err := repo.Close(ctx, db, exit); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := taskStatus(t, db, exit.ID); got != domain.TaskStatusClosed {
		t.Fatalf("exit task status = %s", got)
	}
	if got := taskStatus(t, db, entry.ID); got != domain.TaskStatusClosed {
		t.Fatalf("session entry task status = %s", got)
	}
	if got := taskStatus(t, db, inactivation.ID); got != domain.TaskStatusPending {
		t.Fatalf("inactivation task must survive an exit close, got %s", got)
	}
	if got := taskStatus(t, db, other.ID); got != domain.TaskStatusPending {
		t.Fatalf("unrelated session task status = %s", got)
	}
}

func TestCloseNonExitOnlyClosesItself(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()
	sessionID := node.Generate()

	first := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})
	second := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})

	if err := repo.Close(ctx, db, first); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := taskStatus(t, db, first.ID); got != domain.TaskStatusClosed {
		t.Fatalf("closed task status = %s", got)
	}
	if got := taskStatus(t, db, second.ID); got != domain.TaskStatusPending {
		t.Fatalf("sibling task status = %s", got)
	}
}

func TestCloseByPlateKeepsExitPending(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()
	sessionID := node.Generate()

	entry := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})
	exit := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarExit,
		Status:       domain.TaskStatusInProgress,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    sessionID,
	})

	if err := repo.CloseByPlate(ctx, db, 42, "ABC123"); err != nil {
		t.Fatalf("close by plate: %v", err)
	}
	if got := taskStatus(t, db, entry.ID); got != domain.TaskStatusClosed {
		t.Fatalf("entry task status = %s", got)
	}
	if got := taskStatus(t, db, exit.ID); got != domain.TaskStatusPending {
		t.Fatalf("exit task should return to pending, got %s", got)
	}
}

func TestCloseSubTasksOnPaid(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()

	task := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventCarEntry,
		ParkingLotID: 42,
		PlateNumber:  "ABC123",
		SessionID:    node.Generate(),
	})
	var subs []*taskdomain.SubTask
	for i := 0; i < 3; i++ {
		sub := &taskdomain.SubTask{
			TaskID:           task.ID,
			ProviderCredsID:  int64(i + 1),
			FeatureURLPathID: 1,
		}
		if err := repo.InsertSubTask(ctx, db, sub); err != nil {
			t.Fatalf("insert sub task: %v", err)
		}
		subs = append(subs, sub)
	}

	if err := repo.CloseSubTasksOnPaid(ctx, db, task.ID, subs[1].ID); err != nil {
		t.Fatalf("close sub tasks: %v", err)
	}

	var rows []taskdomain.SubTask
	if err := db.Order("provider_creds_id").Find(&rows).Error; err != nil {
		t.Fatalf("load sub tasks: %v", err)
	}
	if rows[0].Status != domain.TaskStatusClosed || rows[2].Status != domain.TaskStatusClosed {
		t.Fatalf("sibling sub tasks should close, got %s and %s", rows[0].Status, rows[2].Status)
	}
	if rows[1].Status != domain.TaskStatusCompleted {
		t.Fatalf("paid sub task status = %s, want COMPLETED", rows[1].Status)
	}
}

func TestFindAlertTaskByEventSkipsClosedAlerts(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()
	sessionID := node.Generate()

	closed := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventPaymentViolation,
		ProviderType: domain.ProviderTypeViolation,
		AlertStatus:  string(domain.ViolationClosed),
		ParkingLotID: 42,
		SessionID:    sessionID,
	})
	open := insertTask(t, repo, db, &taskdomain.Task{
		EventType:    domain.EventPaymentViolation,
		ProviderType: domain.ProviderTypeViolation,
		ParkingLotID: 42,
		SessionID:    sessionID,
	})
	_ = closed

	found, err := repo.FindAlertTaskByEvent(ctx, db, sessionID, domain.EventPaymentViolation)
	if err != nil {
		t.Fatalf("find alert task: %v", err)
	}
	if found == nil || found.ID != open.ID {
		t.Fatalf("expected the open alert task, got %v", found)
	}

	none, err := repo.FindAlertTaskByEvent(ctx, db, sessionID, domain.EventOverstayViolation)
	if err != nil {
		t.Fatalf("find alert task: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no overstay alert task, got %v", none)
	}
}

func TestCountByStatus(t *testing.T) {
	db, repo, node := newTaskDB(t)
	ctx := context.Background()

	for _, status := range []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusPending,
		domain.TaskStatusClosed,
	} {
		insertTask(t, repo, db, &taskdomain.Task{
			Status:       status,
			EventType:    domain.EventCarEntry,
			ParkingLotID: 42,
			SessionID:    node.Generate(),
		})
	}

	counts, err := repo.CountByStatus(ctx, db)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[domain.TaskStatusPending] != 2 {
		t.Fatalf("pending count = %d", counts[domain.TaskStatusPending])
	}
	if counts[domain.TaskStatusClosed] != 1 {
		t.Fatalf("closed count = %d", counts[domain.TaskStatusClosed])
	}
}
