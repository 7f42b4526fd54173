package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMetadata scans a single row into a model.Metadata.
// The row must contain columns in the order defined by metadataColumns.
func scanMetadata(row scannable) (*model.Metadata, error) {
	var (
		md        model.Metadata
		valueType string
	)
	err := row.Scan(
		&md.ID,
		&md.EntityGUID,
		&md.NameID,
		&md.ValueID,
		&md.Name,
		&md.Value,
		&valueType,
		&md.OwnerGUID,
		&md.AccessID,
		&md.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	md.ValueType = model.ValueType(valueType)
	return &md, nil
}

// scanMetadataRows scans multiple rows into a slice of model.Metadata pointers.
func scanMetadataRows(rows *sql.Rows) ([]*model.Metadata, error) {
	var mds []*model.Metadata
	for rows.Next() {
		md, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		mds = append(mds, md)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return mds, nil
}

// scanEntity scans a single row into a model.Entity.
// The row must contain columns in the order defined by entityColumns.
func scanEntity(row scannable) (*model.Entity, error) {
	var (
		e       model.Entity
		subtype sql.NullString
	)
	err := row.Scan(
		&e.GUID,
		&e.Type,
		&subtype,
		&e.OwnerGUID,
		&e.ContainerGUID,
		&e.SiteGUID,
		&e.AccessID,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Subtype = subtype.String
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]*model.Entity, error) {
	var entities []*model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}
