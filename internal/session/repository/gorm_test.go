package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	sessiondomain "github.com/sharmadiveshwins/spotgenius-connect/internal/session/domain"
)

func newSessionDB(t *testing.T) (*gorm.DB, sessiondomain.Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&sessiondomain.Session{}, &sessiondomain.SessionLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return db, Provide(node)
}

func seedSession(t *testing.T, repo sessiondomain.Repository, db *gorm.DB, lotID int64, plate string) *sessiondomain.Session {
	t.Helper()
	session := &sessiondomain.Session{
		ParkingLotID: lotID,
		LprNumber:    plate,
		IsActive:     true,
	}
	if err := repo.Insert(context.Background(), db, session); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return session
}

func TestAppendLogSkipsRepeatedNotPaid(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	written, err := repo.AppendLog(ctx, db, &sessiondomain.SessionLog{
		SessionID:  session.ID,
		ActionType: string(domain.ActionNotPaid),
	})
	if err != nil || !written {
		t.Fatalf("first append = %v, %v", written, err)
	}
	written, err = repo.AppendLog(ctx, db, &sessiondomain.SessionLog{
		SessionID:  session.ID,
		ActionType: string(domain.ActionNotPaid),
	})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if written {
		t.Fatal("repeated Not Paid entry should be dropped")
	}

	var count int64
	if err := db.Model(&sessiondomain.SessionLog{}).Count(&count).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("log count = %d, want 1", count)
	}
}

func TestAppendLogAllowsRepeatAfterOtherAction(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	for _, action := range []string{
		string(domain.ActionNotPaid),
		string(domain.ActionEntry),
		string(domain.ActionNotPaid),
	} {
		written, err := repo.AppendLog(ctx, db, &sessiondomain.SessionLog{
			SessionID:  session.ID,
			ActionType: action,
		})
		if err != nil {
			t.Fatalf("append %q: %v", action, err)
		}
		if !written {
			t.Fatalf("append %q should not be dropped", action)
		}
	}
}

func TestAppendLogDecoratedActionsAlwaysWrite(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	for i := 0; i < 2; i++ {
		written, err := repo.AppendLog(ctx, db, &sessiondomain.SessionLog{
			SessionID:  session.ID,
			ActionType: "Paid:2.50 Hr",
		})
		if err != nil || !written {
			t.Fatalf("append %d = %v, %v", i, written, err)
		}
	}
}

func TestBumpCounter(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	for i := 0; i < 2; i++ {
		if err := repo.BumpCounter(ctx, db, session.ID, false); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}
	loaded, err := repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if loaded.NotPaidCounter != 2 {
		t.Fatalf("counter = %d, want 2", loaded.NotPaidCounter)
	}

	if err := repo.BumpCounter(ctx, db, session.ID, true); err != nil {
		t.Fatalf("reset: %v", err)
	}
	loaded, err = repo.FindByID(ctx, db, session.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if loaded.NotPaidCounter != 0 {
		t.Fatalf("counter after payment = %d, want 0", loaded.NotPaidCounter)
	}
}

func TestFindActiveByPlatePicksNewest(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()

	older := seedSession(t, repo, db, 42, "ABC123")
	newer := seedSession(t, repo, db, 42, "ABC123")
	if err := repo.Update(ctx, db, older.ID, map[string]any{"is_active": false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	found, err := repo.FindActiveByPlate(ctx, db, 42, "ABC123")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if found == nil || found.ID != newer.ID {
		t.Fatalf("expected newest active session, got %v", found)
	}

	none, err := repo.FindActiveByPlate(ctx, db, 42, "XYZ987")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no session for unknown plate, got %v", none)
	}
}

func TestHasSessionOnDay(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	var created sessiondomain.Session
	if err := db.First(&created, "id = ?", session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}

	has, err := repo.HasSessionOnDay(ctx, db, 42, "ABC123", created.CreatedAt)
	if err != nil {
		t.Fatalf("has session: %v", err)
	}
	if !has {
		t.Fatal("expected a session on the creation day")
	}

	has, err = repo.HasSessionOnDay(ctx, db, 42, "ABC123", created.CreatedAt.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("has session: %v", err)
	}
	if has {
		t.Fatal("expected no session on the following day")
	}
}

func TestLastActionInStripsDurationSuffix(t *testing.T) {
	db, repo := newSessionDB(t)
	ctx := context.Background()
	session := seedSession(t, repo, db, 42, "ABC123")

	if _, err := repo.AppendLog(ctx, db, &sessiondomain.SessionLog{
		SessionID:  session.ID,
		ActionType: "Paid:2.50 Hr",
		EventAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := repo.LastActionIn(ctx, db, session.ID, []string{string(domain.ActionPaid)})
	if err != nil {
		t.Fatalf("last action: %v", err)
	}
	if !ok {
		t.Fatal("decorated Paid entry should match the base action")
	}

	ok, err = repo.LastActionIn(ctx, db, session.ID, []string{string(domain.ActionNotPaid)})
	if err != nil {
		t.Fatalf("last action: %v", err)
	}
	if ok {
		t.Fatal("Paid entry should not match Not Paid")
	}
}
