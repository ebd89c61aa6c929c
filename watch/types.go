package watch

import (
	"context"
	"io/fs"
	"time"

	"gro/scanner"
)

// Op is the kind of change a watcher reports.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event represents a debounced change under a watched root
type Event struct {
	Time  time.Time   `json:"time"`
	Op    Op          `json:"op"`
	Path  string      `json:"path"` // relative path, forward slashes
	IsDir bool        `json:"is_dir,omitempty"`
	Info  fs.FileInfo `json:"-"` // nil for deletes
}

// Watcher reports changes under one root directory.
type Watcher interface {
	// Init performs the initial scan and starts watching. The returned files
	// are in walk order.
	Init(ctx context.Context) ([]scanner.FileInfo, error)
	// Events delivers changes after Init, one at a time. It is closed by Close.
	Events() <-chan Event
	Close() error
}

// State represents the dev session snapshot that `gro status` reads
type State struct {
	UpdatedAt    time.Time           `json:"updated_at"`
	PID          int                 `json:"pid"`
	Dev          bool                `json:"dev"`
	FileCount    int                 `json:"file_count"`
	BuildCount   int                 `json:"build_count"`
	Hubs         []string            `json:"hubs"`
	Importers    map[string][]string `json:"importers"`          // file -> files that import it
	Imports      map[string][]string `json:"imports"`            // file -> files it imports
	Failures     map[string]string   `json:"failures,omitempty"` // source id -> last build error
	RecentEvents []Event             `json:"recent_events"`      // last 50 events for timeline
}
