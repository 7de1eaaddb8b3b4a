package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention prunes sqlite rows older than this. 0 keeps everything.
	Retention time.Duration
}

// DeliveryRecord is one delivery attempt.
type DeliveryRecord struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Appender  string    `json:"appender"`
	Recipient string    `json:"recipient"`
	Level     string    `json:"level"`
	Color     string    `json:"color"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}
