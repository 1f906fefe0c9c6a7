package seed

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	providerdomain "github.com/sharmadiveshwins/spotgenius-connect/internal/providerconfig/domain"
)

func newSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&providerdomain.ProviderTypeRow{},
		&providerdomain.Feature{},
		&providerdomain.EventTypeRow{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func countOf(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestEnsureVocabularyIsIdempotent(t *testing.T) {
	db := newSeedDB(t)

	for i := 0; i < 2; i++ {
		if err := EnsureVocabulary(db); err != nil {
			t.Fatalf("seed run %d: %v", i+1, err)
		}
	}

	if n := countOf(t, db, &providerdomain.ProviderTypeRow{}); n != 4 {
		t.Fatalf("provider types = %d, want 4", n)
	}
	if n := countOf(t, db, &providerdomain.Feature{}); n != 6 {
		t.Fatalf("features = %d, want 6", n)
	}
	if n := countOf(t, db, &providerdomain.EventTypeRow{}); n != 8 {
		t.Fatalf("event types = %d, want 8", n)
	}
}

func TestEnsureVocabularyKeepsOperatorEdits(t *testing.T) {
	db := newSeedDB(t)
	if err := EnsureVocabulary(db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := db.Model(&providerdomain.Feature{}).
		Where("text_key = ?", string(domain.FeatureEnforcementCitation)).
		Update("is_enabled", false).Error
	if err != nil {
		t.Fatalf("disable feature: %v", err)
	}

	if err := EnsureVocabulary(db); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	var feature providerdomain.Feature
	err = db.Where("text_key = ?", string(domain.FeatureEnforcementCitation)).
		First(&feature).Error
	if err != nil {
		t.Fatalf("load feature: %v", err)
	}
	if feature.IsEnabled {
		t.Fatal("re-seed must not revert the operator's enablement flip")
	}
}

func TestEnsureVocabularyRequiresDB(t *testing.T) {
	if err := EnsureVocabulary(nil); err == nil {
		t.Fatal("expected an error for a nil database handle")
	}
}
