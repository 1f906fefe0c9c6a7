// Package domain contains persistence models for violations and their
// per-lot pricing configuration.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	"gorm.io/datatypes"
)

// Violation is one open-or-closed record per (session, violation type). At
// most one OPEN violation may exist per pair.
type Violation struct {
	ID     snowflake.ID           `gorm:"primaryKey" json:"id"`
	Name   string                 `gorm:"type:text" json:"name"`
	Status domain.ViolationStatus `gorm:"type:text;not null;default:OPEN;index" json:"status"`

	Description   string           `gorm:"type:text" json:"description,omitempty"`
	ViolationType domain.EventType `gorm:"type:text;not null" json:"violation_type"`
	AmountDue     float64          `gorm:"not null;default:0" json:"amount_due"`

	ParkingLotID  int64  `gorm:"not null;index" json:"parking_lot_id"`
	ParkingSpotID *int64 `gorm:"" json:"parking_spot_id,omitempty"`
	PlateNumber   string `gorm:"type:text" json:"plate_number,omitempty"`

	SessionID snowflake.ID `gorm:"index" json:"session_id"`
	TaskID    snowflake.ID `gorm:"index" json:"task_id"`

	// External enforcement references.
	CitationID             *string `gorm:"type:text" json:"citation_id,omitempty"`
	CitationInactivationID *string `gorm:"type:text" json:"citation_inactivation_id,omitempty"`

	MetaData       datatypes.JSONMap `gorm:"type:jsonb" json:"meta_data,omitempty"`
	ViolationEvent datatypes.JSONMap `gorm:"type:jsonb" json:"violation_event,omitempty"`

	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Violation) TableName() string { return "violation" }

// Config is the per-lot violation pricing row, synced from the violation
// configuration microservice.
type Config struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	ParkingLotID   int64              `gorm:"not null;index" json:"parking_lot_id"`
	PricingType    domain.PricingType `gorm:"type:text;not null" json:"pricing_type"`
	Duration       int                `gorm:"not null;default:0" json:"duration"`
	DurationAmount float64            `gorm:"not null;default:0" json:"duration_amount"`
	CreatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Config) TableName() string { return "violation_configuration" }

// Canonical violation names and descriptions used when creating records.
const (
	NameOverstay = "Overstay Violation"
	DescOverstay = "Vehicle overstayed"
	NamePayment  = "Payment Violation"
	DescPayment  = "Payment not found"
)
