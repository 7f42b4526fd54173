package metadata

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
)

// EntityAlias is the alias the entity lister gives the entities table.
const EntityAlias = "e"

// BuildEntityFilter renders f into join and where clauses for an entity
// listing, restricted by the caller's access. The returned Args hold the
// clause parameters; later clauses must keep adding to it.
func (s *Service) BuildEntityFilter(ctx context.Context, f model.Filter) (query.Clauses, *query.Args, error) {
	args := query.NewArgs()
	c, err := query.Build(EntityAlias, f, s.host.AccessPredicate(ctx), args)
	if err != nil {
		return query.Clauses{}, nil, err
	}
	return c, args, nil
}

// ListEntities runs q with the metadata filter f merged in. With q.Count set
// it returns only the total; otherwise the page and its length.
func (s *Service) ListEntities(ctx context.Context, q query.EntityQuery, f model.Filter) ([]*model.Entity, int, error) {
	access := s.host.AccessPredicate(ctx)
	q.Args = q.Args.Clone()
	c, err := query.Build(EntityAlias, f, access, q.Args)
	if err != nil {
		return nil, 0, err
	}
	q.Joins = append([]string(nil), q.Joins...)
	q.Wheres = append([]string(nil), q.Wheres...)
	q.Apply(c)
	q.Access = access

	if q.Count {
		n, err := s.store.CountEntities(ctx, &q)
		if err != nil {
			return nil, 0, fmt.Errorf("count entities: %w", err)
		}
		return nil, n, nil
	}
	entities, err := s.store.ListEntities(ctx, &q)
	if err != nil {
		return nil, 0, fmt.Errorf("list entities: %w", err)
	}
	return entities, len(entities), nil
}
