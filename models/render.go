package models

import "time"

// RenderRecord is the persisted outcome of one completed mix.
type RenderRecord struct {
	Room       string    `json:"room"`
	Generation uint64    `json:"generation"`
	OutputPath string    `json:"output_path"`
	Sources    int       `json:"sources"`
	Skipped    []string  `json:"skipped,omitempty"`
	Peak       float64   `json:"peak"`
	Limited    bool      `json:"limited"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
