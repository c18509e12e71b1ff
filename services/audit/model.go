// Package audit records hosting events into the audit table.
package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Entry is one recorded event.
type Entry struct {
	ID      int64          `json:"id"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Object  string         `json:"object"`
	Details map[string]any `json:"details,omitempty"`
	At      time.Time      `json:"at"`
}

type auditModel struct {
	ID      int64             `gorm:"primaryKey;autoIncrement"`
	Actor   string            `gorm:"type:text;not null"`
	Action  string            `gorm:"type:text;not null"`
	Obj     string            `gorm:"type:text"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz"`
}

func (auditModel) TableName() string { return "audit" }

func (m auditModel) toEntry() Entry {
	return Entry{
		ID:      m.ID,
		Actor:   m.Actor,
		Action:  m.Action,
		Object:  m.Obj,
		Details: map[string]any(m.Details),
		At:      m.At,
	}
}
