package repository

import (
	"context"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// RecordFilter narrows a provider fetch. Zero value means the full population.
type RecordFilter struct {
	EntityIDs []string               `json:"entity_ids,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// RecordProvider fetches point-in-time-consistent snapshots of one side's
// records. The core treats records as opaque flat maps; domain-specific fetch
// logic lives behind this boundary.
type RecordProvider interface {
	FetchRecords(ctx context.Context, entityType entity.EntityType, side entity.System, filter RecordFilter) ([]entity.Record, error)
}
