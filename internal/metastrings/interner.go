// Package metastrings deduplicates metadata names and values into integer ids.
package metastrings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// Backend is the slice of store.Store the interner needs.
type Backend interface {
	InternString(ctx context.Context, s string) (int64, error)
	LookupString(ctx context.Context, s string) (int64, error)
	ResolveString(ctx context.Context, id int64) (string, error)
}

// DefaultMemoSize bounds each direction of the in-process memo. Past it the
// least recently used strings are evicted.
const DefaultMemoSize = 10000

// Interner maps strings to stable ids. Ids never change once assigned, so
// both directions are memoized in process.
type Interner struct {
	backend Backend
	byText  *lru.Cache[string, int64]
	byID    *lru.Cache[int64, string]
}

// New returns an Interner over backend.
func New(backend Backend) *Interner {
	return newWithSize(backend, DefaultMemoSize)
}

func newWithSize(backend Backend, size int) *Interner {
	size = max(size, 1)
	// lru.New only fails for a non-positive size.
	byText, _ := lru.New[string, int64](size)
	byID, _ := lru.New[int64, string](size)
	return &Interner{backend: backend, byText: byText, byID: byID}
}

// Intern returns the id for s, creating it if needed. Lookups are byte exact.
func (in *Interner) Intern(ctx context.Context, s string) (int64, error) {
	if id, ok := in.cached(s); ok {
		return id, nil
	}
	id, err := in.backend.InternString(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("intern %q: %w", s, err)
	}
	in.remember(id, s)
	return id, nil
}

// InternName interns a metadata name, mapping the empty name onto "0".
func (in *Interner) InternName(ctx context.Context, name string) (int64, error) {
	return in.Intern(ctx, model.NormalizeName(name))
}

// Lookup returns the id for s without creating it. It fails with
// model.ErrNotFound when s has never been interned.
func (in *Interner) Lookup(ctx context.Context, s string) (int64, error) {
	if id, ok := in.cached(s); ok {
		return id, nil
	}
	id, err := in.backend.LookupString(ctx, s)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("metastring %q: %w", s, model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %q: %w", s, err)
	}
	in.remember(id, s)
	return id, nil
}

// Resolve returns the string behind id, or model.ErrNotFound.
func (in *Interner) Resolve(ctx context.Context, id int64) (string, error) {
	if s, ok := in.byID.Get(id); ok {
		return s, nil
	}

	s, err := in.backend.ResolveString(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metastring %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %d: %w", id, err)
	}
	in.remember(id, s)
	return s, nil
}

func (in *Interner) cached(s string) (int64, bool) {
	return in.byText.Get(s)
}

func (in *Interner) remember(id int64, s string) {
	in.byText.Add(s, id)
	in.byID.Add(id, s)
}
