package host

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
)

type entityMap map[int64]*model.Entity

func (m entityMap) GetEntity(_ context.Context, guid int64) (*model.Entity, error) {
	e, ok := m[guid]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func testHost() *DBHost {
	return NewDBHost(entityMap{
		1: {GUID: 1, OwnerGUID: 10, AccessID: model.AccessPublic},
		2: {GUID: 2, OwnerGUID: 10, AccessID: model.AccessLoggedIn},
		3: {GUID: 3, OwnerGUID: 10, AccessID: model.AccessPrivate},
	})
}

func TestResolveEntity_Visibility(t *testing.T) {
	h := testHost()
	tests := []struct {
		name    string
		p       Principal
		visible []int64
	}{
		{"anonymous", Principal{}, []int64{1}},
		{"logged in", Principal{GUID: 20}, []int64{1, 2}},
		{"owner", Principal{GUID: 10}, []int64{1, 2, 3}},
		{"admin", Principal{GUID: 30, Admin: true}, []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithPrincipal(context.Background(), tt.p)
			var got []int64
			for _, guid := range []int64{1, 2, 3} {
				_, err := h.ResolveEntity(ctx, guid)
				switch {
				case err == nil:
					got = append(got, guid)
				case !errors.Is(err, model.ErrNotFound):
					t.Fatalf("ResolveEntity(%d): %v", guid, err)
				}
			}
			if !reflect.DeepEqual(got, tt.visible) {
				t.Errorf("visible = %v, want %v", got, tt.visible)
			}
		})
	}
}

func TestResolveEntity_Missing(t *testing.T) {
	_, err := testHost().ResolveEntity(context.Background(), 99)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCanEdit(t *testing.T) {
	h := testHost()
	e := &model.Entity{GUID: 1, OwnerGUID: 10}
	md := &model.Metadata{OwnerGUID: 20}

	owner := WithPrincipal(context.Background(), Principal{GUID: 10})
	mdOwner := WithPrincipal(context.Background(), Principal{GUID: 20})
	admin := WithPrincipal(context.Background(), Principal{GUID: 30, Admin: true})
	anon := context.Background()

	if !h.CanEdit(owner, e) || h.CanEdit(mdOwner, e) || !h.CanEdit(admin, e) || h.CanEdit(anon, e) {
		t.Error("CanEdit rules wrong")
	}
	if !h.CanEditMetadata(mdOwner, e, md) {
		t.Error("metadata owner should edit their record")
	}
	if h.CanEditMetadata(anon, e, &model.Metadata{}) {
		t.Error("anonymous must not match an unowned record")
	}
	if h.CurrentPrincipal(owner) != 10 || h.CurrentPrincipal(anon) != 0 {
		t.Error("CurrentPrincipal wrong")
	}
}

func TestPredicate(t *testing.T) {
	args := query.NewArgs()
	if got := Predicate(Principal{})("m", args); got != "m.access_id = $1" {
		t.Errorf("anonymous = %q", got)
	}

	args = query.NewArgs()
	got := Predicate(Principal{GUID: 5})("e", args)
	if got != "(e.access_id IN ($1, $2) OR e.owner_guid = $3)" {
		t.Errorf("user = %q", got)
	}
	if !reflect.DeepEqual(args.Values(), []any{model.AccessPublic, model.AccessLoggedIn, int64(5)}) {
		t.Errorf("args = %#v", args.Values())
	}

	args = query.NewArgs()
	if got := Predicate(Principal{Admin: true})("e", args); got != "TRUE" || args.Len() != 0 {
		t.Errorf("admin = %q", got)
	}
}

func TestCanSee(t *testing.T) {
	h := testHost()
	public := &model.Entity{GUID: 1, OwnerGUID: 10, AccessID: model.AccessPublic}
	private := &model.Entity{GUID: 3, OwnerGUID: 10, AccessID: model.AccessPrivate}
	mine := &model.Metadata{OwnerGUID: 20, AccessID: model.AccessPrivate}
	open := &model.Metadata{OwnerGUID: 20, AccessID: model.AccessPublic}

	tests := []struct {
		name string
		p    Principal
		e    *model.Entity
		md   *model.Metadata
		want bool
	}{
		{"record owner", Principal{GUID: 20}, public, mine, true},
		{"other user", Principal{GUID: 21}, public, mine, false},
		{"anonymous public", Principal{}, public, open, true},
		{"anonymous private entity", Principal{}, private, open, false},
		{"record owner private entity", Principal{GUID: 20}, private, mine, false},
		{"entity owner", Principal{GUID: 10}, private, open, true},
		{"admin", Principal{GUID: 30, Admin: true}, private, mine, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithPrincipal(context.Background(), tt.p)
			if got := h.CanSee(ctx, tt.e, tt.md); got != tt.want {
				t.Errorf("CanSee = %v, want %v", got, tt.want)
			}
		})
	}
}
