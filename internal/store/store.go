package store

import (
	"context"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
)

// FindParams selects metadata rows across entities. Zero ids and empty
// strings mean "any".
type FindParams struct {
	NameID        int64
	ValueID       int64
	EntityType    string
	EntitySubtype string
	SiteGUID      int64
	Limit         int
	Offset        int
	// OrderBy is a whitelisted sort key; see postgres.parseMetadataSort.
	OrderBy string
	Access  query.AccessFunc
}

// Store defines the persistence interface for metadata and metastrings.
// Lookups that find nothing return sql.ErrNoRows.
type Store interface {
	// Metastrings
	InternString(ctx context.Context, s string) (int64, error)
	LookupString(ctx context.Context, s string) (int64, error)
	ResolveString(ctx context.Context, id int64) (string, error)

	// Entities (read side; the host owns their lifecycle)
	GetEntity(ctx context.Context, guid int64) (*model.Entity, error)
	PutEntity(ctx context.Context, e *model.Entity) error
	ListEntities(ctx context.Context, q *query.EntityQuery) ([]*model.Entity, error)
	CountEntities(ctx context.Context, q *query.EntityQuery) (int, error)

	// Metadata rows
	InsertMetadata(ctx context.Context, md *model.Metadata) error
	UpdateMetadata(ctx context.Context, md *model.Metadata) error
	DeleteMetadata(ctx context.Context, id int64) error
	GetMetadata(ctx context.Context, id int64, access query.AccessFunc) (*model.Metadata, error)
	FindExisting(ctx context.Context, entityGUID, nameID int64) (*model.Metadata, error)
	ListMetadataByName(ctx context.Context, entityGUID, nameID int64, access query.AccessFunc) ([]*model.Metadata, error)
	ListMetadataForEntity(ctx context.Context, entityGUID int64, access query.AccessFunc) ([]*model.Metadata, error)
	FindMetadata(ctx context.Context, p FindParams) ([]*model.Metadata, error)
	ListAllMetadata(ctx context.Context) ([]*model.Metadata, error)

	// Id and key listings used by bulk paths
	ListMetadataIDs(ctx context.Context, entityGUID, nameID, valueID int64) ([]int64, error)
	ListMetadataIDsByOwner(ctx context.Context, ownerGUID int64) ([]int64, error)
	ListMetadataNameIDs(ctx context.Context, entityGUID int64) ([]int64, error)

	// Bulk statements, no per-record notifications
	DeleteMetadataForEntity(ctx context.Context, entityGUID int64) (int64, error)
	UpdateMetadataAccess(ctx context.Context, entityGUID int64, accessID int) (int64, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
