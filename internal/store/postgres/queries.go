package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
	"github.com/alfredjeanlab/kmeta/internal/store"
)

// metadataColumns is the column list used for SELECT statements on metadata
// joined with its name (n) and value (v) metastrings.
const metadataColumns = `m.id, m.entity_guid, m.name_id, m.value_id, n.string, v.string,
	m.value_type, m.owner_guid, m.access_id, m.time_created`

const metadataFrom = `metadata m
	JOIN metastrings n ON m.name_id = n.id
	JOIN metastrings v ON m.value_id = v.id`

// metadataWithEntity also joins the owning entity as e for access checks.
const metadataWithEntity = metadataFrom + `
	JOIN entities e ON m.entity_guid = e.guid`

const entityColumns = `guid, type, subtype, owner_guid, container_guid, site_guid, access_id, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- metastrings ---

// queryInternString inserts s unless present and returns its id. A concurrent
// insert of the same string makes ON CONFLICT return no row; the id is then
// read back instead of failing.
func queryInternString(ctx context.Context, db executor, s string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO metastrings (string) VALUES ($1)
		ON CONFLICT (string) DO NOTHING
		RETURNING id`, s).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return queryLookupString(ctx, db, s)
	}
	if err != nil {
		return 0, fmt.Errorf("intern string: %w", err)
	}
	return id, nil
}

func queryLookupString(ctx context.Context, db executor, s string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM metastrings WHERE string = $1`, s).Scan(&id)
	return id, err
}

func queryResolveString(ctx context.Context, db executor, id int64) (string, error) {
	var s string
	err := db.QueryRowContext(ctx, `SELECT string FROM metastrings WHERE id = $1`, id).Scan(&s)
	return s, err
}

// --- entities ---

func queryGetEntity(ctx context.Context, db executor, guid int64) (*model.Entity, error) {
	row := db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE guid = $1`, guid)
	return scanEntity(row)
}

// queryPutEntity upserts an entity. A zero GUID lets the database assign one.
func queryPutEntity(ctx context.Context, db executor, e *model.Entity) error {
	if e.GUID == 0 {
		return db.QueryRowContext(ctx, `
			INSERT INTO entities (type, subtype, owner_guid, container_guid, site_guid, access_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING guid, created_at`,
			e.Type, e.Subtype, e.OwnerGUID, e.ContainerGUID, e.SiteGUID, e.AccessID,
		).Scan(&e.GUID, &e.CreatedAt)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO entities (guid, type, subtype, owner_guid, container_guid, site_guid, access_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guid) DO UPDATE SET
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			owner_guid = EXCLUDED.owner_guid,
			container_guid = EXCLUDED.container_guid,
			site_guid = EXCLUDED.site_guid,
			access_id = EXCLUDED.access_id
		RETURNING created_at`,
		e.GUID, e.Type, e.Subtype, e.OwnerGUID, e.ContainerGUID, e.SiteGUID, e.AccessID,
	).Scan(&e.CreatedAt)
}

func queryListEntities(ctx context.Context, db executor, q *query.EntityQuery) ([]*model.Entity, error) {
	stmt, args := q.SQL()
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	return entities, nil
}

func queryCountEntities(ctx context.Context, db executor, q *query.EntityQuery) (int, error) {
	counted := *q
	counted.Count = true
	stmt, args := counted.SQL()

	var n int
	if err := db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

// --- metadata rows ---

func queryInsertMetadata(ctx context.Context, db executor, md *model.Metadata) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO metadata (entity_guid, name_id, value_id, value_type, owner_guid, access_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, time_created`,
		md.EntityGUID, md.NameID, md.ValueID, string(md.ValueType), md.OwnerGUID, md.AccessID,
	).Scan(&md.ID, &md.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	return nil
}

// queryUpdateMetadata rewrites value, type, owner and access of a row. The
// name is part of the match, so renaming a row through update matches
// nothing and reports sql.ErrNoRows.
func queryUpdateMetadata(ctx context.Context, db executor, md *model.Metadata) error {
	res, err := db.ExecContext(ctx, `
		UPDATE metadata SET value_id = $1, value_type = $2, owner_guid = $3, access_id = $4
		WHERE id = $5 AND name_id = $6`,
		md.ValueID, string(md.ValueType), md.OwnerGUID, md.AccessID, md.ID, md.NameID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryDeleteMetadata(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM metadata WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// queryGetMetadata reads one row visible to the caller. Both the owning
// entity and the row itself must pass the access predicate.
func queryGetMetadata(ctx context.Context, db executor, id int64, access query.AccessFunc) (*model.Metadata, error) {
	if access == nil {
		access = query.AllowAll
	}
	args := query.NewArgs()
	stmt := `SELECT ` + metadataColumns + ` FROM ` + metadataWithEntity +
		` WHERE m.id = ` + args.Add(id) +
		` AND ` + access("e", args) +
		` AND ` + access("m", args)
	return scanMetadata(db.QueryRowContext(ctx, stmt, args.Values()...))
}

// queryFindExisting returns the oldest row for (entity, name) regardless of
// access, so that single-valued writes land on the same row.
func queryFindExisting(ctx context.Context, db executor, entityGUID, nameID int64) (*model.Metadata, error) {
	row := db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM `+metadataFrom+`
		WHERE m.entity_guid = $1 AND m.name_id = $2
		ORDER BY m.id ASC LIMIT 1`, entityGUID, nameID)
	return scanMetadata(row)
}

func queryListMetadataByName(ctx context.Context, db executor, entityGUID, nameID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	if access == nil {
		access = query.AllowAll
	}
	args := query.NewArgs()
	stmt := `SELECT ` + metadataColumns + ` FROM ` + metadataWithEntity +
		` WHERE m.entity_guid = ` + args.Add(entityGUID) +
		` AND m.name_id = ` + args.Add(nameID) +
		` AND ` + access("e", args) +
		` AND ` + access("m", args) +
		` ORDER BY m.id ASC`
	return listMetadata(ctx, db, stmt, args.Values())
}

func queryListMetadataForEntity(ctx context.Context, db executor, entityGUID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	if access == nil {
		access = query.AllowAll
	}
	args := query.NewArgs()
	stmt := `SELECT ` + metadataColumns + ` FROM ` + metadataWithEntity +
		` WHERE m.entity_guid = ` + args.Add(entityGUID) +
		` AND ` + access("e", args) +
		` AND ` + access("m", args) +
		` ORDER BY m.id ASC`
	return listMetadata(ctx, db, stmt, args.Values())
}

func queryFindMetadata(ctx context.Context, db executor, p store.FindParams) ([]*model.Metadata, error) {
	access := p.Access
	if access == nil {
		access = query.AllowAll
	}
	args := query.NewArgs()
	var where []string

	if p.NameID != 0 {
		where = append(where, "m.name_id = "+args.Add(p.NameID))
	}
	if p.ValueID != 0 {
		where = append(where, "m.value_id = "+args.Add(p.ValueID))
	}
	if p.EntityType != "" {
		where = append(where, "e.type = "+args.Add(p.EntityType))
	}
	if p.EntitySubtype != "" {
		where = append(where, "e.subtype = "+args.Add(p.EntitySubtype))
	}
	if p.SiteGUID != 0 {
		where = append(where, "e.site_guid = "+args.Add(p.SiteGUID))
	}
	where = append(where, access("e", args), access("m", args))

	stmt := `SELECT ` + metadataColumns + ` FROM ` + metadataWithEntity +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + parseMetadataSort(p.OrderBy)
	if p.Limit > 0 {
		stmt += " LIMIT " + args.Add(p.Limit)
	}
	if p.Offset > 0 {
		stmt += " OFFSET " + args.Add(p.Offset)
	}
	return listMetadata(ctx, db, stmt, args.Values())
}

func queryListAllMetadata(ctx context.Context, db executor) ([]*model.Metadata, error) {
	return listMetadata(ctx, db, `SELECT `+metadataColumns+` FROM `+metadataFrom+` ORDER BY m.id ASC`, nil)
}

func listMetadata(ctx context.Context, db executor, stmt string, args []any) ([]*model.Metadata, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	mds, err := scanMetadataRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	return mds, nil
}

// --- bulk paths ---

// queryListMetadataIDs lists ids for (entity, name), restricted to one value
// when valueID is non-zero.
func queryListMetadataIDs(ctx context.Context, db executor, entityGUID, nameID, valueID int64) ([]int64, error) {
	if valueID != 0 {
		return listIDs(ctx, db, `SELECT id FROM metadata
			WHERE entity_guid = $1 AND name_id = $2 AND value_id = $3 ORDER BY id`,
			entityGUID, nameID, valueID)
	}
	return listIDs(ctx, db, `SELECT id FROM metadata
		WHERE entity_guid = $1 AND name_id = $2 ORDER BY id`,
		entityGUID, nameID)
}

func queryListMetadataIDsByOwner(ctx context.Context, db executor, ownerGUID int64) ([]int64, error) {
	return listIDs(ctx, db, `SELECT id FROM metadata WHERE owner_guid = $1 ORDER BY id`, ownerGUID)
}

func queryListMetadataNameIDs(ctx context.Context, db executor, entityGUID int64) ([]int64, error) {
	return listIDs(ctx, db, `SELECT DISTINCT name_id FROM metadata WHERE entity_guid = $1 ORDER BY name_id`, entityGUID)
}

func listIDs(ctx context.Context, db executor, stmt string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryDeleteMetadataForEntity(ctx context.Context, db executor, entityGUID int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM metadata WHERE entity_guid = $1`, entityGUID)
	if err != nil {
		return 0, fmt.Errorf("clear metadata: %w", err)
	}
	return res.RowsAffected()
}

func queryUpdateMetadataAccess(ctx context.Context, db executor, entityGUID int64, accessID int) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE metadata SET access_id = $1 WHERE entity_guid = $2`, accessID, entityGUID)
	if err != nil {
		return 0, fmt.Errorf("update metadata access: %w", err)
	}
	return res.RowsAffected()
}

// parseMetadataSort maps a sort key like "-time_created" onto an ORDER BY
// clause, falling back to newest first for unknown columns.
func parseMetadataSort(sort string) string {
	const fallback = "m.time_created DESC, m.id DESC"
	if sort == "" {
		return fallback
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]string{
		"id":           "m.id",
		"time_created": "m.time_created",
		"entity_guid":  "m.entity_guid",
		"owner_guid":   "m.owner_guid",
		"name":         "n.string",
		"value":        "v.string",
	}
	expr, ok := allowed[col]
	if !ok {
		return fallback
	}
	if desc {
		return expr + " DESC"
	}
	return expr + " ASC"
}
