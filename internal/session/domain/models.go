// Package domain contains persistence models for occupancy sessions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Session tracks one vehicle/spot occupancy from entry/occupied to exit/free.
type Session struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	ParkingLotID    int64  `gorm:"not null;index" json:"parking_lot_id"`
	LprNumber       string `gorm:"type:text;index" json:"lpr_number,omitempty"`
	SpotID          *int64 `gorm:"index" json:"spot_id,omitempty"`
	ParkingSpotName string `gorm:"type:text" json:"parking_spot_name,omitempty"`
	LprRecordID     *int64 `gorm:"" json:"lpr_record_id,omitempty"`

	IsActive            bool `gorm:"not null;default:true;index" json:"is_active"`
	IsWaitingForPayment bool `gorm:"not null;default:false" json:"is_waiting_for_payment"`
	IsLprToSpot         bool `gorm:"not null;default:false" json:"is_lpr_to_spot"`
	HasNphTask          bool `gorm:"not null;default:false" json:"has_nph_task"`

	NotPaidCounter  int     `gorm:"not null;default:0" json:"not_paid_counter"`
	TotalPaidAmount float64 `gorm:"not null;default:0" json:"total_paid_amount"`

	EntryEvent datatypes.JSONMap `gorm:"type:jsonb" json:"entry_event,omitempty"`
	ExitEvent  datatypes.JSONMap `gorm:"type:jsonb" json:"exit_event,omitempty"`

	SessionStartTime *time.Time `gorm:"" json:"session_start_time,omitempty"`
	SessionEndTime   *time.Time `gorm:"" json:"session_end_time,omitempty"`
	SessionTotalTime *int64     `gorm:"" json:"session_total_time,omitempty"`

	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	DeletedAt *time.Time `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// SessionLog is the append-only audit trail rendered on the session timeline.
type SessionLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	SessionID   snowflake.ID      `gorm:"not null;index" json:"session_id"`
	ActionType  string            `gorm:"type:text;not null" json:"action_type"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Provider    string            `gorm:"type:text" json:"provider,omitempty"`
	MetaInfo    datatypes.JSONMap `gorm:"type:jsonb" json:"meta_info,omitempty"`
	EventAt     time.Time         `gorm:"not null" json:"event_at"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (SessionLog) TableName() string { return "session_log" }
