package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SyncHistoryModel is one backend write attempt in the sync audit log.
type SyncHistoryModel struct {
	ID                  uint    `gorm:"primarykey"`
	Operation           string  `gorm:"not null;size:20;index:idx_sync_operation"` // sync, purchase
	Trigger             string  `gorm:"not null;size:20"`
	ProductID           string  `gorm:"not null;size:255;index:idx_sync_product"`
	TransactionID       string  `gorm:"size:255"`
	ProposedStatus      string  `gorm:"not null;size:20"`
	WillRenew           bool    `gorm:"not null;default:false"`
	RenewalUndetermined bool    `gorm:"not null;default:false"`
	ResultStatus        *string `gorm:"size:50"`
	Success             bool    `gorm:"not null;index:idx_sync_success"`
	ErrorMessage        *string `gorm:"size:1000"`
	DurationMs          int64
	Metadata            datatypes.JSON
	AttemptedAt         time.Time `gorm:"not null;index:idx_sync_attempted_at"`
	CreatedAt           time.Time
}

// TableName specifies the table name for GORM
func (SyncHistoryModel) TableName() string {
	return "entitlement_sync_histories"
}

// BeforeCreate hook for GORM
func (m *SyncHistoryModel) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return nil
}
