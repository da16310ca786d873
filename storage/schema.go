package storage

import "time"

// Draft caches unsent composer text per session. Drafts are local-only
// state and never leave this machine.
type Draft struct {
	SessionID string `gorm:"primaryKey"`
	Text      string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CacheEntry is a generic durable key-value slot (last viewed changelog
// version, review prompt timestamps, push token, ...)
type CacheEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CachedRecord stores raw (still encrypted) message log items so a cold
// start can render transcripts before the first network round trip.
// EventAt is the event's own timestamp in ms, distinct from the
// gorm-managed row times.
type CachedRecord struct {
	SessionID string `gorm:"primaryKey;index:idx_session_seq,priority:1"`
	RecordID  string `gorm:"primaryKey"`
	Seq       int64  `gorm:"not null;index:idx_session_seq,priority:2"`
	Body      []byte `gorm:"not null"`
	EventAt   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
