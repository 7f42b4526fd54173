package metadata

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
)

func TestBuildEntityFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, args, err := f.svc.BuildEntityFilter(ctx, model.NewFilter())
	if err != nil {
		t.Fatal(err)
	}
	if !c.Empty() || args.Len() != 0 {
		t.Errorf("empty filter produced %+v %v", c, args.Values())
	}

	filter := model.NewFilter()
	filter.Pairs = []model.Pair{{Name: "status", Value: "published"}}
	c, args, err = f.svc.BuildEntityFilter(ctx, filter)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Joins) != 3 || !strings.Contains(c.Joins[0], "e.guid = md1.entity_guid") {
		t.Errorf("joins = %#v", c.Joins)
	}
	if !reflect.DeepEqual(args.Values(), []any{"status", "published"}) {
		t.Errorf("args = %#v", args.Values())
	}

	filter.Pairs[0].Operand = "between"
	if _, _, err := f.svc.BuildEntityFilter(ctx, filter); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestListEntities_MergesFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.entityResult = []*model.Entity{f.store.entities[42]}

	base := query.NewArgs()
	base.Add("seed")
	q := query.EntityQuery{
		Types:  []string{"object"},
		Wheres: []string{"e.container_guid = $1"},
		Args:   base,
		Limit:  10,
	}
	filter := model.NewFilter()
	filter.Names = []string{"color"}

	list, n, err := f.svc.ListEntities(ctx, q, filter)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(list) != 1 || list[0].GUID != 42 {
		t.Errorf("ListEntities = %v, %d", list, n)
	}

	got := f.store.lastQuery
	if got == nil {
		t.Fatal("store not queried")
	}
	if len(got.Wheres) != 2 || got.Wheres[0] != "e.container_guid = $1" {
		t.Errorf("wheres = %#v", got.Wheres)
	}
	if !strings.Contains(got.Wheres[1], "msn.string IN ($2)") {
		t.Errorf("metadata where not numbered after caller args: %q", got.Wheres[1])
	}
	if got.Access == nil {
		t.Error("entity access predicate not set")
	}
	if base.Len() != 1 || len(q.Wheres) != 1 {
		t.Error("caller's query was modified")
	}
}

func TestListEntities_Count(t *testing.T) {
	f := newFixture(t)
	f.store.entityResult = []*model.Entity{f.store.entities[42], f.store.entities[43]}

	list, n, err := f.svc.ListEntities(context.Background(), query.EntityQuery{Count: true}, model.NewFilter())
	if err != nil {
		t.Fatal(err)
	}
	if list != nil || n != 2 {
		t.Errorf("Count = %v, %d", list, n)
	}
	if !f.store.lastQuery.Count {
		t.Error("count flag not passed to store")
	}
}
