// Package metadata is the record store for entity metadata. It owns the
// create/update/delete rules, the read-through cache on name lookups, the
// access cascade policy and the adapter into entity listings.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/alfredjeanlab/kmeta/internal/cache"
	"github.com/alfredjeanlab/kmeta/internal/metastrings"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
	"github.com/alfredjeanlab/kmeta/internal/store"
)

// Host is the entity subsystem the service runs inside.
type Host interface {
	// ResolveEntity returns the entity if it exists and is visible to the
	// caller, or an error wrapping model.ErrNotFound.
	ResolveEntity(ctx context.Context, guid int64) (*model.Entity, error)
	CanEdit(ctx context.Context, e *model.Entity) bool
	CanEditMetadata(ctx context.Context, e *model.Entity, md *model.Metadata) bool
	// CanSee reports whether the caller may read md on e. It must agree with
	// AccessPredicate.
	CanSee(ctx context.Context, e *model.Entity, md *model.Metadata) bool
	CurrentPrincipal(ctx context.Context) int64
	AccessPredicate(ctx context.Context) query.AccessFunc
}

// Notifier receives mutation notifications and may veto them.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) bool
}

type acceptAll struct{}

func (acceptAll) Notify(context.Context, model.Notification) bool { return true }

// DefaultFindLimit is the page size Find uses when none is given.
const DefaultFindLimit = 10

// Service implements metadata CRUD over a store.Store.
type Service struct {
	store    store.Store
	strings  *metastrings.Interner
	cache    *cache.MetadataCache
	host     Host
	notifier Notifier
	logger   *slog.Logger

	mu          sync.RWMutex
	independent map[string]bool
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the read-through cache on GetByName.
func WithCache(c *cache.MetadataCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier routes create/update/delete notifications to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Service over st. Without options it has no cache and
// accepts every notification.
func New(st store.Store, host Host, opts ...Option) *Service {
	s := &Service{
		store:       st,
		strings:     metastrings.New(st),
		host:        host,
		notifier:    acceptAll{},
		logger:      slog.Default(),
		independent: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strings exposes the service's interner.
func (s *Service) Strings() *metastrings.Interner {
	return s.strings
}

// CreateParams describes a metadata write. A nil Value means "unset": on a
// single-valued name it deletes the existing record.
type CreateParams struct {
	EntityGUID int64
	Name       string
	Value      *string
	// ValueType is detected from the value when empty.
	ValueType model.ValueType
	// OwnerGUID defaults to the current principal when zero.
	OwnerGUID     int64
	AccessID      int
	AllowMultiple bool
}

// UpdateParams carries the new state of a record. The name must match the
// record's current name.
type UpdateParams struct {
	Name      string
	Value     string
	ValueType model.ValueType
	OwnerGUID int64
	AccessID  int
}

// Create writes metadata on an entity and returns the record id. When the
// name is single-valued and already set, the existing record is updated in
// place and its id returned; an unset value deletes it and returns 0.
func (s *Service) Create(ctx context.Context, p CreateParams) (int64, error) {
	e, err := s.host.ResolveEntity(ctx, p.EntityGUID)
	if err != nil {
		return 0, fmt.Errorf("create metadata on %d: %w", p.EntityGUID, err)
	}
	nameID, err := s.strings.InternName(ctx, p.Name)
	if err != nil {
		return 0, err
	}

	if !p.AllowMultiple {
		existing, err := s.store.FindExisting(ctx, e.GUID, nameID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("find existing metadata: %w", err)
		}
		if existing != nil {
			if p.Value == nil {
				if err := s.Delete(ctx, existing.ID); err != nil {
					return 0, err
				}
				return 0, nil
			}
			err := s.Update(ctx, existing.ID, UpdateParams{
				Name:      p.Name,
				Value:     *p.Value,
				ValueType: p.ValueType,
				OwnerGUID: p.OwnerGUID,
				AccessID:  p.AccessID,
			})
			if err != nil {
				return 0, err
			}
			return existing.ID, nil
		}
	}

	if p.Value == nil {
		return 0, fmt.Errorf("%w: metadata %q needs a value", model.ErrInvalidArgument, p.Name)
	}

	md := &model.Metadata{
		EntityGUID: e.GUID,
		NameID:     nameID,
		Name:       model.NormalizeName(p.Name),
		OwnerGUID:  s.ownerOrPrincipal(ctx, p.OwnerGUID),
		AccessID:   p.AccessID,
	}
	if err := s.encodeValue(ctx, md, *p.Value, p.ValueType); err != nil {
		return 0, err
	}

	s.cache.Evict(ctx, md.EntityGUID, md.NameID)
	if err := s.store.InsertMetadata(ctx, md); err != nil {
		return 0, err
	}

	if !s.notifier.Notify(ctx, metadataNotification(model.EventCreate, md)) {
		if err := s.store.DeleteMetadata(ctx, md.ID); err != nil {
			s.logger.Error("metadata: rollback of rejected create failed", "id", md.ID, "err", err)
		}
		s.cache.Evict(ctx, md.EntityGUID, md.NameID)
		return 0, fmt.Errorf("create metadata %q on %d: %w", md.Name, md.EntityGUID, model.ErrRejected)
	}
	return md.ID, nil
}

// Update rewrites a record's value, type, owner and access. The cache entry
// for the record is evicted before the write. A vetoed update deletes the
// row and evicts again; readers may see the intermediate state.
func (s *Service) Update(ctx context.Context, id int64, p UpdateParams) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	e, err := s.host.ResolveEntity(ctx, current.EntityGUID)
	if err != nil {
		return fmt.Errorf("update metadata %d: %w", id, err)
	}
	if !s.host.CanEditMetadata(ctx, e, current) {
		return fmt.Errorf("update metadata %d: %w", id, model.ErrForbidden)
	}

	s.cache.Evict(ctx, current.EntityGUID, current.NameID)

	nameID, err := s.strings.InternName(ctx, p.Name)
	if err != nil {
		return err
	}
	md := &model.Metadata{
		ID:         id,
		EntityGUID: current.EntityGUID,
		NameID:     nameID,
		Name:       model.NormalizeName(p.Name),
		OwnerGUID:  s.ownerOrPrincipal(ctx, p.OwnerGUID),
		AccessID:   p.AccessID,
		CreatedAt:  current.CreatedAt,
	}
	if err := s.encodeValue(ctx, md, p.Value, p.ValueType); err != nil {
		return err
	}

	if err := s.store.UpdateMetadata(ctx, md); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("metadata %d named %q: %w", id, md.Name, model.ErrNotFound)
		}
		return fmt.Errorf("update metadata %d: %w", id, err)
	}
	if md.NameID != current.NameID {
		s.cache.Evict(ctx, md.EntityGUID, md.NameID)
	}

	if !s.notifier.Notify(ctx, metadataNotification(model.EventUpdate, md)) {
		if err := s.store.DeleteMetadata(ctx, id); err != nil {
			s.logger.Error("metadata: delete after rejected update failed", "id", id, "err", err)
		}
		// A listener may have read the updated row back into the cache.
		s.cache.Evict(ctx, md.EntityGUID, md.NameID)
		return fmt.Errorf("update metadata %d: %w", id, model.ErrRejected)
	}
	return nil
}

// Get returns a record if both it and its entity are visible to the caller.
func (s *Service) Get(ctx context.Context, id int64) (*model.Metadata, error) {
	md, err := s.store.GetMetadata(ctx, id, s.host.AccessPredicate(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metadata %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %d: %w", id, err)
	}
	return md, nil
}

// Delete removes a record. The cache is evicted before the edit check and the
// delete notification run.
func (s *Service) Delete(ctx context.Context, id int64) error {
	md, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.cache.Evict(ctx, md.EntityGUID, md.NameID)

	e, err := s.host.ResolveEntity(ctx, md.EntityGUID)
	if err != nil {
		return fmt.Errorf("delete metadata %d: %w", id, err)
	}
	if !s.host.CanEditMetadata(ctx, e, md) {
		return fmt.Errorf("delete metadata %d: %w", id, model.ErrForbidden)
	}
	if !s.notifier.Notify(ctx, metadataNotification(model.EventDelete, md)) {
		return fmt.Errorf("delete metadata %d: %w", id, model.ErrRejected)
	}

	if err := s.store.DeleteMetadata(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("metadata %d: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("delete metadata %d: %w", id, err)
	}
	return nil
}

// GetByName returns the visible records of one name on an entity, oldest
// first. A single element means a single-valued name. Nil means none.
//
// The cache holds every row for the name regardless of who asked, so
// visibility is applied after the read on hits and misses alike.
func (s *Service) GetByName(ctx context.Context, entityGUID int64, name string) ([]*model.Metadata, error) {
	nameID, err := s.strings.Lookup(ctx, model.NormalizeName(name))
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records, ok := s.cache.Load(ctx, entityGUID, nameID)
	if !ok {
		records, err = s.store.ListMetadataByName(ctx, entityGUID, nameID, query.AllowAll)
		if err != nil {
			return nil, fmt.Errorf("get metadata %q on %d: %w", name, entityGUID, err)
		}
		if len(records) == 0 {
			return nil, nil
		}
		s.cache.Save(ctx, entityGUID, nameID, records)
	}
	return s.filterVisible(ctx, entityGUID, records)
}

// filterVisible drops the records the caller may not read. Nothing is visible on an
// entity the caller cannot resolve.
func (s *Service) filterVisible(ctx context.Context, entityGUID int64, records []*model.Metadata) ([]*model.Metadata, error) {
	if len(records) == 0 {
		return nil, nil
	}
	e, err := s.host.ResolveEntity(ctx, entityGUID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata on %d: %w", entityGUID, err)
	}
	var out []*model.Metadata
	for _, md := range records {
		if s.host.CanSee(ctx, e, md) {
			out = append(out, md)
		}
	}
	return out, nil
}

// GetForEntity returns every visible record on an entity.
func (s *Service) GetForEntity(ctx context.Context, entityGUID int64) ([]*model.Metadata, error) {
	records, err := s.store.ListMetadataForEntity(ctx, entityGUID, s.host.AccessPredicate(ctx))
	if err != nil {
		return nil, fmt.Errorf("get metadata for %d: %w", entityGUID, err)
	}
	return records, nil
}

// FindOptions selects records across entities. Empty fields match anything.
type FindOptions struct {
	Name          string
	Value         string
	EntityType    string
	EntitySubtype string
	SiteGUID      int64
	Limit         int
	Offset        int
	OrderBy       string
}

// Find returns visible records matching o. A name or value that was never
// stored matches nothing.
func (s *Service) Find(ctx context.Context, o FindOptions) ([]*model.Metadata, error) {
	p := store.FindParams{
		EntityType:    o.EntityType,
		EntitySubtype: o.EntitySubtype,
		SiteGUID:      o.SiteGUID,
		Limit:         o.Limit,
		Offset:        o.Offset,
		OrderBy:       o.OrderBy,
		Access:        s.host.AccessPredicate(ctx),
	}
	if p.Limit <= 0 {
		p.Limit = DefaultFindLimit
	}

	var err error
	if o.Name != "" {
		if p.NameID, err = s.lookup(ctx, o.Name); err != nil {
			return noMatch(err)
		}
	}
	if o.Value != "" {
		if p.ValueID, err = s.lookup(ctx, o.Value); err != nil {
			return noMatch(err)
		}
	}

	records, err := s.store.FindMetadata(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("find metadata: %w", err)
	}
	return records, nil
}

// Clear deletes every record on an entity in one statement. It needs edit
// rights on the entity and fires no per-record notifications.
func (s *Service) Clear(ctx context.Context, entityGUID int64) (int64, error) {
	e, err := s.host.ResolveEntity(ctx, entityGUID)
	if err != nil {
		return 0, fmt.Errorf("clear metadata on %d: %w", entityGUID, err)
	}
	if !s.host.CanEdit(ctx, e) {
		return 0, fmt.Errorf("clear metadata on %d: %w", entityGUID, model.ErrForbidden)
	}
	var n int64
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := s.evictEntity(ctx, tx, entityGUID); err != nil {
			return err
		}
		var err error
		n, err = tx.DeleteMetadataForEntity(ctx, entityGUID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear metadata on %d: %w", entityGUID, err)
	}
	s.logger.Debug("metadata: cleared", "entity_guid", entityGUID, "rows", n)
	return n, nil
}

// ClearByOwner deletes the records owned by a principal one at a time, each
// checked and notified like Delete. It returns how many were deleted.
func (s *Service) ClearByOwner(ctx context.Context, ownerGUID int64) (int, error) {
	ids, err := s.store.ListMetadataIDsByOwner(ctx, ownerGUID)
	if err != nil {
		return 0, fmt.Errorf("list metadata of owner %d: %w", ownerGUID, err)
	}
	deleted := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Info("metadata: clear by owner skipped record", "id", id, "owner_guid", ownerGUID, "err", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Remove deletes the records of a name on an entity, or only those holding
// value when it is not empty. It returns how many were deleted; failures of
// individual deletes are joined into the error.
func (s *Service) Remove(ctx context.Context, entityGUID int64, name, value string) (int, error) {
	nameID, err := s.lookup(ctx, model.NormalizeName(name))
	if errors.Is(err, model.ErrNoMatch) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var valueID int64
	if value != "" {
		valueID, err = s.lookup(ctx, value)
		if errors.Is(err, model.ErrNoMatch) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
	}

	ids, err := s.store.ListMetadataIDs(ctx, entityGUID, nameID, valueID)
	if err != nil {
		return 0, fmt.Errorf("list metadata %q on %d: %w", name, entityGUID, err)
	}
	var errs []error
	deleted := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// CreateFromMap creates one record per entry of values, in key order, using
// the rest of p for every record. It stops at the first failure.
func (s *Service) CreateFromMap(ctx context.Context, p CreateParams, values map[string]string) error {
	if p.EntityGUID == 0 {
		return fmt.Errorf("%w: entity guid is required", model.ErrInvalidArgument)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: no metadata to create", model.ErrInvalidArgument)
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		v := values[name]
		p.Name = name
		p.Value = &v
		if _, err := s.Create(ctx, p); err != nil {
			return fmt.Errorf("create %q: %w", name, err)
		}
	}
	return nil
}

// encodeValue detects and normalizes the value type, then interns the value
// into md.
func (s *Service) encodeValue(ctx context.Context, md *model.Metadata, value string, hint model.ValueType) error {
	if hint != "" && !hint.IsValid() {
		return fmt.Errorf("%w: invalid value type %q", model.ErrInvalidArgument, hint)
	}
	vt := model.DetectValueType(value, hint)
	normalized, err := model.NormalizeValue(value, vt)
	if err != nil {
		return err
	}
	valueID, err := s.strings.Intern(ctx, normalized)
	if err != nil {
		return err
	}
	md.ValueID = valueID
	md.Value = normalized
	md.ValueType = vt
	return nil
}

func (s *Service) ownerOrPrincipal(ctx context.Context, owner int64) int64 {
	if owner == 0 {
		return s.host.CurrentPrincipal(ctx)
	}
	return owner
}

// lookup resolves a search term to its id without interning it.
func (s *Service) lookup(ctx context.Context, term string) (int64, error) {
	id, err := s.strings.Lookup(ctx, term)
	if errors.Is(err, model.ErrNotFound) {
		return 0, fmt.Errorf("%q: %w", term, model.ErrNoMatch)
	}
	return id, err
}

// evictEntity drops the cache entries of every name used on an entity, as
// seen by st.
func (s *Service) evictEntity(ctx context.Context, st store.Store, entityGUID int64) error {
	nameIDs, err := st.ListMetadataNameIDs(ctx, entityGUID)
	if err != nil {
		return fmt.Errorf("list metadata names on %d: %w", entityGUID, err)
	}
	for _, nameID := range nameIDs {
		s.cache.Evict(ctx, entityGUID, nameID)
	}
	return nil
}

func noMatch(err error) ([]*model.Metadata, error) {
	if errors.Is(err, model.ErrNoMatch) {
		return nil, nil
	}
	return nil, err
}

func metadataNotification(kind model.EventKind, md *model.Metadata) model.Notification {
	return model.Notification{Kind: kind, Subject: model.SubjectMetadata, Metadata: md}
}
