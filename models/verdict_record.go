package models

import (
	"time"

	"gorm.io/datatypes"
)

// VerdictRecord speichert ein gefälltes Urteil im Ledger.
type VerdictRecord struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
	RunID       string         `json:"run_id" gorm:"index"`
	IssueNumber int            `json:"issue_number" gorm:"index"`
	UserLogin   string         `json:"user_login"`
	UserID      int64          `json:"user_id"`
	Valid       bool           `json:"valid"`
	Reason      string         `json:"reason" gorm:"index"`
	Label       string         `json:"label"`
	ReportName  string         `json:"report_name,omitempty"`
	Details     datatypes.JSON `json:"details,omitempty"`
}
