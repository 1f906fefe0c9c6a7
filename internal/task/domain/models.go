// Package domain contains persistence models for verification tasks.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/datatypes"
)

// Task is one schedulable verification unit tied to an event, a lot and a
// feature kind. Terminal states are COMPLETED and CLOSED.
type Task struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Status         domain.TaskStatus `gorm:"type:text;not null;default:PENDING;index" json:"status"`
	EventType      domain.EventType  `gorm:"type:text;not null" json:"event_type"`
	FeatureTextKey domain.FeatureKey `gorm:"type:text;not null" json:"feature_text_key"`

	ParkingLotID    int64  `gorm:"not null;index" json:"parking_lot_id"`
	ParkingSpotID   *int64 `gorm:"index" json:"parking_spot_id,omitempty"`
	ParkingSpotName string `gorm:"type:text" json:"parking_spot_name,omitempty"`
	PlateNumber     string `gorm:"type:text;index" json:"plate_number,omitempty"`
	State           string `gorm:"type:text" json:"state,omitempty"`

	SessionID    snowflake.ID        `gorm:"index" json:"session_id"`
	ProviderType domain.ProviderType `gorm:"type:text" json:"provider_type"`

	NextAt      time.Time `gorm:"not null;index" json:"next_at"`
	AlertStatus string    `gorm:"type:text" json:"alert_status,omitempty"`

	// External alert ids raised for this task, JSON array of int64.
	SGAdminAlertIDs datatypes.JSON `gorm:"type:jsonb" json:"sgadmin_alerts_ids,omitempty"`

	// Snapshot of the triggering event, replayed when rescheduling.
	EventPayload datatypes.JSONMap `gorm:"type:jsonb" json:"sg_event_response,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Task) TableName() string { return "task" }

// SubTask is one (provider credential, feature endpoint) attempt under a
// Task. Sub-tasks close individually as their provider call resolves.
type SubTask struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Status           domain.TaskStatus `gorm:"type:text;not null;default:PENDING" json:"status"`
	TaskID           snowflake.ID      `gorm:"not null;index" json:"task_id"`
	ProviderCredsID  int64             `gorm:"not null" json:"provider_creds_id"`
	FeatureURLPathID int64             `gorm:"not null" json:"feature_url_path_id"`

	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	DeletedAt *time.Time `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (SubTask) TableName() string { return "sub_task" }

// AlertIDs decodes the task's external alert id list.
func (t *Task) AlertIDs() []int64 {
	if len(t.SGAdminAlertIDs) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(t.SGAdminAlertIDs, &ids); err != nil {
		return nil
	}
	return ids
}

// SetAlertIDs encodes the external alert id list onto the task.
func (t *Task) SetAlertIDs(ids []int64) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	t.SGAdminAlertIDs = datatypes.JSON(raw)
}
