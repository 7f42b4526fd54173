// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
	"github.com/alfredjeanlab/kmeta/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies pending migrations to the database at databaseURL and
// reports the resulting schema version.
func Migrate(databaseURL string) (uint, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		return 0, err
	}
	var version uint
	if err := db.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InternString(ctx context.Context, str string) (int64, error) {
	return queryInternString(ctx, s.db, str)
}

func (s *PostgresStore) LookupString(ctx context.Context, str string) (int64, error) {
	return queryLookupString(ctx, s.db, str)
}

func (s *PostgresStore) ResolveString(ctx context.Context, id int64) (string, error) {
	return queryResolveString(ctx, s.db, id)
}

func (s *PostgresStore) GetEntity(ctx context.Context, guid int64) (*model.Entity, error) {
	return queryGetEntity(ctx, s.db, guid)
}

func (s *PostgresStore) PutEntity(ctx context.Context, e *model.Entity) error {
	return queryPutEntity(ctx, s.db, e)
}

func (s *PostgresStore) ListEntities(ctx context.Context, q *query.EntityQuery) ([]*model.Entity, error) {
	return queryListEntities(ctx, s.db, q)
}

func (s *PostgresStore) CountEntities(ctx context.Context, q *query.EntityQuery) (int, error) {
	return queryCountEntities(ctx, s.db, q)
}

func (s *PostgresStore) InsertMetadata(ctx context.Context, md *model.Metadata) error {
	return queryInsertMetadata(ctx, s.db, md)
}

func (s *PostgresStore) UpdateMetadata(ctx context.Context, md *model.Metadata) error {
	return queryUpdateMetadata(ctx, s.db, md)
}

func (s *PostgresStore) DeleteMetadata(ctx context.Context, id int64) error {
	return queryDeleteMetadata(ctx, s.db, id)
}

func (s *PostgresStore) GetMetadata(ctx context.Context, id int64, access query.AccessFunc) (*model.Metadata, error) {
	return queryGetMetadata(ctx, s.db, id, access)
}

func (s *PostgresStore) FindExisting(ctx context.Context, entityGUID, nameID int64) (*model.Metadata, error) {
	return queryFindExisting(ctx, s.db, entityGUID, nameID)
}

func (s *PostgresStore) ListMetadataByName(ctx context.Context, entityGUID, nameID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	return queryListMetadataByName(ctx, s.db, entityGUID, nameID, access)
}

func (s *PostgresStore) ListMetadataForEntity(ctx context.Context, entityGUID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	return queryListMetadataForEntity(ctx, s.db, entityGUID, access)
}

func (s *PostgresStore) FindMetadata(ctx context.Context, p store.FindParams) ([]*model.Metadata, error) {
	return queryFindMetadata(ctx, s.db, p)
}

func (s *PostgresStore) ListAllMetadata(ctx context.Context) ([]*model.Metadata, error) {
	return queryListAllMetadata(ctx, s.db)
}

func (s *PostgresStore) ListMetadataIDs(ctx context.Context, entityGUID, nameID, valueID int64) ([]int64, error) {
	return queryListMetadataIDs(ctx, s.db, entityGUID, nameID, valueID)
}

func (s *PostgresStore) ListMetadataIDsByOwner(ctx context.Context, ownerGUID int64) ([]int64, error) {
	return queryListMetadataIDsByOwner(ctx, s.db, ownerGUID)
}

func (s *PostgresStore) ListMetadataNameIDs(ctx context.Context, entityGUID int64) ([]int64, error) {
	return queryListMetadataNameIDs(ctx, s.db, entityGUID)
}

func (s *PostgresStore) DeleteMetadataForEntity(ctx context.Context, entityGUID int64) (int64, error) {
	return queryDeleteMetadataForEntity(ctx, s.db, entityGUID)
}

func (s *PostgresStore) UpdateMetadataAccess(ctx context.Context, entityGUID int64, accessID int) (int64, error) {
	return queryUpdateMetadataAccess(ctx, s.db, entityGUID, accessID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InternString(ctx context.Context, str string) (int64, error) {
	return queryInternString(ctx, s.tx, str)
}

func (s *txStore) LookupString(ctx context.Context, str string) (int64, error) {
	return queryLookupString(ctx, s.tx, str)
}

func (s *txStore) ResolveString(ctx context.Context, id int64) (string, error) {
	return queryResolveString(ctx, s.tx, id)
}

func (s *txStore) GetEntity(ctx context.Context, guid int64) (*model.Entity, error) {
	return queryGetEntity(ctx, s.tx, guid)
}

func (s *txStore) PutEntity(ctx context.Context, e *model.Entity) error {
	return queryPutEntity(ctx, s.tx, e)
}

func (s *txStore) ListEntities(ctx context.Context, q *query.EntityQuery) ([]*model.Entity, error) {
	return queryListEntities(ctx, s.tx, q)
}

func (s *txStore) CountEntities(ctx context.Context, q *query.EntityQuery) (int, error) {
	return queryCountEntities(ctx, s.tx, q)
}

func (s *txStore) InsertMetadata(ctx context.Context, md *model.Metadata) error {
	return queryInsertMetadata(ctx, s.tx, md)
}

func (s *txStore) UpdateMetadata(ctx context.Context, md *model.Metadata) error {
	return queryUpdateMetadata(ctx, s.tx, md)
}

func (s *txStore) DeleteMetadata(ctx context.Context, id int64) error {
	return queryDeleteMetadata(ctx, s.tx, id)
}

func (s *txStore) GetMetadata(ctx context.Context, id int64, access query.AccessFunc) (*model.Metadata, error) {
	return queryGetMetadata(ctx, s.tx, id, access)
}

func (s *txStore) FindExisting(ctx context.Context, entityGUID, nameID int64) (*model.Metadata, error) {
	return queryFindExisting(ctx, s.tx, entityGUID, nameID)
}

func (s *txStore) ListMetadataByName(ctx context.Context, entityGUID, nameID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	return queryListMetadataByName(ctx, s.tx, entityGUID, nameID, access)
}

func (s *txStore) ListMetadataForEntity(ctx context.Context, entityGUID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	return queryListMetadataForEntity(ctx, s.tx, entityGUID, access)
}

func (s *txStore) FindMetadata(ctx context.Context, p store.FindParams) ([]*model.Metadata, error) {
	return queryFindMetadata(ctx, s.tx, p)
}

func (s *txStore) ListAllMetadata(ctx context.Context) ([]*model.Metadata, error) {
	return queryListAllMetadata(ctx, s.tx)
}

func (s *txStore) ListMetadataIDs(ctx context.Context, entityGUID, nameID, valueID int64) ([]int64, error) {
	return queryListMetadataIDs(ctx, s.tx, entityGUID, nameID, valueID)
}

func (s *txStore) ListMetadataIDsByOwner(ctx context.Context, ownerGUID int64) ([]int64, error) {
	return queryListMetadataIDsByOwner(ctx, s.tx, ownerGUID)
}

func (s *txStore) ListMetadataNameIDs(ctx context.Context, entityGUID int64) ([]int64, error) {
	return queryListMetadataNameIDs(ctx, s.tx, entityGUID)
}

func (s *txStore) DeleteMetadataForEntity(ctx context.Context, entityGUID int64) (int64, error) {
	return queryDeleteMetadataForEntity(ctx, s.tx, entityGUID)
}

func (s *txStore) UpdateMetadataAccess(ctx context.Context, entityGUID int64, accessID int) (int64, error) {
	return queryUpdateMetadataAccess(ctx, s.tx, entityGUID, accessID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
