// Package host provides the default entity host for the metadata service:
// entities come from the store and the acting principal rides in the
// request context.
package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
)

// EntityReader is the slice of store.Store the host needs.
type EntityReader interface {
	GetEntity(ctx context.Context, guid int64) (*model.Entity, error)
}

// Principal is the acting user. GUID 0 is anonymous.
type Principal struct {
	GUID  int64
	Admin bool
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal in ctx, or the anonymous principal.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// DBHost resolves entities from an EntityReader. Owners and admins may edit;
// everyone sees public rows, logged-in principals also see logged-in rows,
// and owners see their own.
type DBHost struct {
	entities EntityReader
}

// NewDBHost returns a host over r.
func NewDBHost(r EntityReader) *DBHost {
	return &DBHost{entities: r}
}

// ResolveEntity returns the entity if it exists and the principal may see it.
func (h *DBHost) ResolveEntity(ctx context.Context, guid int64) (*model.Entity, error) {
	e, err := h.entities.GetEntity(ctx, guid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %d: %w", guid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %d: %w", guid, err)
	}
	if !canSee(PrincipalFrom(ctx), e.AccessID, e.OwnerGUID) {
		return nil, fmt.Errorf("entity %d: %w", guid, model.ErrNotFound)
	}
	return e, nil
}

// CanEdit reports whether the principal owns e or is an admin.
func (h *DBHost) CanEdit(ctx context.Context, e *model.Entity) bool {
	p := PrincipalFrom(ctx)
	return p.Admin || (p.GUID != 0 && p.GUID == e.OwnerGUID)
}

// CanEditMetadata allows entity editors and the record's own owner.
func (h *DBHost) CanEditMetadata(ctx context.Context, e *model.Entity, md *model.Metadata) bool {
	p := PrincipalFrom(ctx)
	return h.CanEdit(ctx, e) || (p.GUID != 0 && p.GUID == md.OwnerGUID)
}

// CanSee applies the rule Predicate renders to an entity and one of its
// records already in memory.
func (h *DBHost) CanSee(ctx context.Context, e *model.Entity, md *model.Metadata) bool {
	p := PrincipalFrom(ctx)
	return canSee(p, e.AccessID, e.OwnerGUID) && canSee(p, md.AccessID, md.OwnerGUID)
}

// CurrentPrincipal returns the acting principal's guid.
func (h *DBHost) CurrentPrincipal(ctx context.Context) int64 {
	return PrincipalFrom(ctx).GUID
}

// AccessPredicate renders the visibility rule for the principal in ctx.
func (h *DBHost) AccessPredicate(ctx context.Context) query.AccessFunc {
	return Predicate(PrincipalFrom(ctx))
}

// Predicate renders canSee as SQL against alias.access_id and
// alias.owner_guid.
func Predicate(p Principal) query.AccessFunc {
	if p.Admin {
		return query.AllowAll
	}
	return func(alias string, args *query.Args) string {
		if p.GUID == 0 {
			return fmt.Sprintf("%s.access_id = %s", alias, args.Add(model.AccessPublic))
		}
		return fmt.Sprintf("(%s.access_id IN (%s, %s) OR %s.owner_guid = %s)",
			alias, args.Add(model.AccessPublic), args.Add(model.AccessLoggedIn),
			alias, args.Add(p.GUID))
	}
}

func canSee(p Principal, accessID int, owner int64) bool {
	switch {
	case p.Admin, accessID == model.AccessPublic:
		return true
	case p.GUID == 0:
		return false
	}
	return accessID == model.AccessLoggedIn || owner == p.GUID
}
