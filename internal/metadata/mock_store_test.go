package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/query"
	"github.com/alfredjeanlab/kmeta/internal/store"
)

// mockStore is a minimal in-memory store for service tests. Access
// predicates are evaluated by rendering them: "FALSE" hides a row.
type mockStore struct {
	mu sync.Mutex

	strings     map[string]int64
	stringsByID map[int64]string
	entities    map[int64]*model.Entity
	rows        map[int64]*model.Metadata
	nextID      int64

	listByNameCalls int
	lastQuery       *query.EntityQuery
	entityResult    []*model.Entity
}

func newMockStore() *mockStore {
	return &mockStore{
		strings:     make(map[string]int64),
		stringsByID: make(map[int64]string),
		entities:    make(map[int64]*model.Entity),
		rows:        make(map[int64]*model.Metadata),
	}
}

func visible(access query.AccessFunc, alias string) bool {
	return access == nil || access(alias, query.NewArgs()) != "FALSE"
}

// resolved returns a copy of a row with its strings filled in.
func (m *mockStore) resolved(r *model.Metadata) *model.Metadata {
	cp := *r
	cp.Name = m.stringsByID[r.NameID]
	cp.Value = m.stringsByID[r.ValueID]
	return &cp
}

func (m *mockStore) sortedRows(match func(*model.Metadata) bool) []*model.Metadata {
	var out []*model.Metadata
	for _, r := range m.rows {
		if match(r) {
			out = append(out, m.resolved(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockStore) InternString(_ context.Context, s string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.strings[s]; ok {
		return id, nil
	}
	id := int64(len(m.strings) + 1)
	m.strings[s] = id
	m.stringsByID[id] = s
	return id, nil
}

func (m *mockStore) LookupString(_ context.Context, s string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.strings[s]; ok {
		return id, nil
	}
	return 0, sql.ErrNoRows
}

func (m *mockStore) ResolveString(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stringsByID[id]; ok {
		return s, nil
	}
	return "", sql.ErrNoRows
}

func (m *mockStore) GetEntity(_ context.Context, guid int64) (*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[guid]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) PutEntity(_ context.Context, e *model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entities[e.GUID] = &cp
	return nil
}

func (m *mockStore) ListEntities(_ context.Context, q *query.EntityQuery) ([]*model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return m.entityResult, nil
}

func (m *mockStore) CountEntities(_ context.Context, q *query.EntityQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return len(m.entityResult), nil
}

func (m *mockStore) InsertMetadata(_ context.Context, md *model.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[md.EntityGUID]; !ok {
		return fmt.Errorf("insert metadata: entity %d: foreign key violation", md.EntityGUID)
	}
	m.nextID++
	md.ID = m.nextID
	cp := *md
	m.rows[md.ID] = &cp
	return nil
}

func (m *mockStore) UpdateMetadata(_ context.Context, md *model.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[md.ID]
	if !ok || r.NameID != md.NameID {
		return sql.ErrNoRows
	}
	r.ValueID = md.ValueID
	r.ValueType = md.ValueType
	r.OwnerGUID = md.OwnerGUID
	r.AccessID = md.AccessID
	return nil
}

func (m *mockStore) DeleteMetadata(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *mockStore) GetMetadata(_ context.Context, id int64, access query.AccessFunc) (*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !visible(access, "e") || !visible(access, "m") {
		return nil, sql.ErrNoRows
	}
	return m.resolved(r), nil
}

func (m *mockStore) FindExisting(_ context.Context, entityGUID, nameID int64) (*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sortedRows(func(r *model.Metadata) bool {
		return r.EntityGUID == entityGUID && r.NameID == nameID
	})
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return rows[0], nil
}

func (m *mockStore) ListMetadataByName(_ context.Context, entityGUID, nameID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listByNameCalls++
	if !visible(access, "m") {
		return nil, nil
	}
	return m.sortedRows(func(r *model.Metadata) bool {
		return r.EntityGUID == entityGUID && r.NameID == nameID
	}), nil
}

func (m *mockStore) ListMetadataForEntity(_ context.Context, entityGUID int64, access query.AccessFunc) ([]*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !visible(access, "m") {
		return nil, nil
	}
	return m.sortedRows(func(r *model.Metadata) bool { return r.EntityGUID == entityGUID }), nil
}

func (m *mockStore) FindMetadata(_ context.Context, p store.FindParams) ([]*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.sortedRows(func(r *model.Metadata) bool {
		e := m.entities[r.EntityGUID]
		return (p.NameID == 0 || r.NameID == p.NameID) &&
			(p.ValueID == 0 || r.ValueID == p.ValueID) &&
			(p.EntityType == "" || e.Type == p.EntityType) &&
			(p.EntitySubtype == "" || e.Subtype == p.EntitySubtype)
	})
	if p.Offset >= len(rows) {
		return nil, nil
	}
	rows = rows[p.Offset:]
	if p.Limit > 0 && len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}
	return rows, nil
}

func (m *mockStore) ListAllMetadata(_ context.Context) ([]*model.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedRows(func(*model.Metadata) bool { return true }), nil
}

func (m *mockStore) ListMetadataIDs(_ context.Context, entityGUID, nameID, valueID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ids(m.sortedRows(func(r *model.Metadata) bool {
		return r.EntityGUID == entityGUID && r.NameID == nameID && (valueID == 0 || r.ValueID == valueID)
	})), nil
}

func (m *mockStore) ListMetadataIDsByOwner(_ context.Context, ownerGUID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ids(m.sortedRows(func(r *model.Metadata) bool { return r.OwnerGUID == ownerGUID })), nil
}

func (m *mockStore) ListMetadataNameIDs(_ context.Context, entityGUID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, r := range m.sortedRows(func(r *model.Metadata) bool { return r.EntityGUID == entityGUID }) {
		if !seen[r.NameID] {
			seen[r.NameID] = true
			out = append(out, r.NameID)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteMetadataForEntity(_ context.Context, entityGUID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if r.EntityGUID == entityGUID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) UpdateMetadataAccess(_ context.Context, entityGUID int64, accessID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.EntityGUID == entityGUID {
			r.AccessID = accessID
			n++
		}
	}
	return n, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }

func ids(rows []*model.Metadata) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}
