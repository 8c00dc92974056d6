package models

import "time"

// RateCounter is a fixed-window request counter, unique on
// (user_id, endpoint, window_start).
type RateCounter struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	WindowStart  time.Time `json:"window_start" db:"window_start"`
	RequestCount int       `json:"request_count" db:"request_count"`
}
