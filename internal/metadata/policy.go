package metadata

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/hooks"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/store"
)

// AnySubtype registers every subtype of a type as independent.
const AnySubtype = "*"

func independentKey(typ, subtype string) string {
	return typ + ":" + subtype
}

// RegisterIndependent marks entities of (typ, subtype) as keeping their own
// metadata access levels when the entity's access changes. An empty subtype
// means AnySubtype.
func (s *Service) RegisterIndependent(typ, subtype string) {
	if subtype == "" {
		subtype = AnySubtype
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.independent[independentKey(typ, subtype)] = true
}

// IsIndependent reports whether (typ, subtype) was registered, directly or
// through AnySubtype.
func (s *Service) IsIndependent(typ, subtype string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.independent[independentKey(typ, AnySubtype)] || s.independent[independentKey(typ, subtype)]
}

// OnEntityUpdate copies the entity's access level onto all of its metadata in
// one statement, unless the entity type is independent. No per-record
// notifications fire. It returns the number of rows changed.
func (s *Service) OnEntityUpdate(ctx context.Context, e *model.Entity) (int64, error) {
	if s.IsIndependent(e.Type, e.Subtype) {
		return 0, nil
	}
	var n int64
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := s.evictEntity(ctx, tx, e.GUID); err != nil {
			return err
		}
		var err error
		n, err = tx.UpdateMetadataAccess(ctx, e.GUID, e.AccessID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cascade access to metadata of %d: %w", e.GUID, err)
	}
	s.logger.Debug("metadata: access cascaded", "entity_guid", e.GUID, "access_id", e.AccessID, "rows", n)
	return n, nil
}

// RegisterWith subscribes the access cascade to entity update notifications
// on d. A failed cascade is reported as a warning and never vetoes the
// entity update.
func (s *Service) RegisterWith(d *hooks.Dispatcher) {
	d.Register(string(model.EventUpdate), hooks.Wildcard, func(ctx context.Context, n model.Notification) hooks.Response {
		if n.Subject == model.SubjectMetadata || n.Entity == nil {
			return hooks.Response{}
		}
		if _, err := s.OnEntityUpdate(ctx, n.Entity); err != nil {
			s.logger.Error("metadata: access cascade failed", "entity_guid", n.Entity.GUID, "err", err)
			return hooks.Response{Warnings: []string{err.Error()}}
		}
		return hooks.Response{}
	})
}
