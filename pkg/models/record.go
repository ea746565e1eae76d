package models

import "time"

// SyncRecord is one ledger row for a transferred file. A record is
// written exactly once, right after a successful upload, and is never
// updated afterwards.
type SyncRecord struct {
	FileURL  string
	FileName string
	Course   string
	SyncedAt time.Time
}

// TransferItem describes one file available to sync. It is produced by
// the portal enumerator and consumed once per sync pass; it is never
// persisted.
type TransferItem struct {
	Name       string
	SourceURL  string
	CourseName string
}
