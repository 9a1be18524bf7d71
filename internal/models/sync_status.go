package models

import (
	"database/sql"
	"time"
)

// TableSyncStatus holds one bookkeeping row per source
const TableSyncStatus = "sync_status"

// Service identifies an external catalog source
type Service string

const (
	ServiceDiscogs   Service = "discogs"
	ServiceBGG       Service = "bgg"
	ServiceHardcover Service = "hardcover"
)

// AllServices returns every known source in a stable order
func AllServices() []Service {
	return []Service{ServiceDiscogs, ServiceBGG, ServiceHardcover}
}

// ParseService maps a user supplied name onto a known source
func ParseService(name string) (Service, bool) {
	for _, s := range AllServices() {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// SyncStatus tracks the last pass of one source
type SyncStatus struct {
	ID           int64          `db:"id" json:"id"`
	Service      string         `db:"service" json:"service"`
	LastSyncAt   sql.NullTime   `db:"last_sync_at" json:"last_sync_at"`
	InProgress   bool           `db:"in_progress" json:"in_progress"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

func (SyncStatus) Collection() string { return TableSyncStatus }

// Identity returns the unique service column used for upserts
func (s SyncStatus) Identity() (string, string) { return "service", s.Service }

// Failed reports whether the most recent finished pass recorded an error
func (s SyncStatus) Failed() bool {
	return s.ErrorMessage.Valid && s.ErrorMessage.String != ""
}
