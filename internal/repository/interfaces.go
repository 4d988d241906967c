// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"makino-adapter/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot is stored for a machine
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository defines the durable snapshot history
type SnapshotRepository interface {
	Save(ctx context.Context, machineID string, data *model.ToolLifeData) (uuid.UUID, error)
	Latest(ctx context.Context, machineID string) (*model.ToolLifeData, error)
	List(ctx context.Context, machineID string, limit, offset int) ([]*SnapshotSummary, int, error)

	// Prune keeps the newest snapshots of a machine and deletes the rest
	Prune(ctx context.Context, machineID string, keep int) (int64, error)
}

// SnapshotCache holds the last published snapshot for other processes
type SnapshotCache interface {
	Put(ctx context.Context, machineID string, data *model.ToolLifeData) error
	Get(ctx context.Context, machineID string) (*model.ToolLifeData, error)
	PublishEvent(ctx context.Context, event model.AdapterEvent) error
}

// SnapshotSummary is one row of the snapshot history
type SnapshotSummary struct {
	ID              uuid.UUID `json:"id"`
	ProtocolVersion string    `json:"protocol_version"`
	ToolCount       int       `json:"tool_count"`
	Missing         []string  `json:"missing_fields"`
	AcquiredAt      time.Time `json:"acquired_at"`
}
