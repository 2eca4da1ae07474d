package db

import "time"

// Schema defines the SQLite database schema for firmware update runs.
// It creates the runs table with indexes for listing and pruning history.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    serial TEXT NOT NULL DEFAULT '',
    product_line TEXT NOT NULL DEFAULT '',
    current_version TEXT NOT NULL DEFAULT '',
    bundled_version TEXT NOT NULL DEFAULT '',
    post_version TEXT NOT NULL DEFAULT '',
    image_path TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    outcome TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_serial ON runs(serial);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run represents a firmware update run record
type Run struct {
	ID             string
	Serial         string
	ProductLine    string
	CurrentVersion string
	BundledVersion string
	PostVersion    string
	ImagePath      string
	State          string
	Outcome        string
	ErrorKind      string
	ErrorMessage   string
	CreatedAt      string
	UpdatedAt      string
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// Created parses CreatedAt as stored by SQLite (UTC)
func (r *Run) Created() (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, r.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way SQLite's CURRENT_TIMESTAMP does
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
