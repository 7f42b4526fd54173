// Package export writes metadata snapshots as JSONL and ships them to
// backup destinations on a schedule.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/kmeta/internal/model"
)

// FormatVersion is written in every header.
const FormatVersion = "1"

// Source lists every metadata row regardless of access.
type Source interface {
	ListAllMetadata(ctx context.Context) ([]*model.Metadata, error)
}

// EntitySource lists the metadata of one entity visible to the caller.
type EntitySource interface {
	GetForEntity(ctx context.Context, entityGUID int64) ([]*model.Metadata, error)
}

// header is the first JSONL record of an export.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	EntityGUID    int64     `json:"entity_guid,omitempty"`
	MetadataCount int       `json:"metadata_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every metadata row as JSONL to w, ordered by entity and
// then record id.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	rows, err := src.ListAllMetadata(ctx)
	if err != nil {
		return fmt.Errorf("list metadata: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntityGUID != rows[j].EntityGUID {
			return rows[i].EntityGUID < rows[j].EntityGUID
		}
		return rows[i].ID < rows[j].ID
	})
	return write(w, header{MetadataCount: len(rows)}, rows)
}

// ExportEntity writes the caller-visible metadata of one entity as JSONL.
func ExportEntity(ctx context.Context, src EntitySource, entityGUID int64, w io.Writer) error {
	rows, err := src.GetForEntity(ctx, entityGUID)
	if err != nil {
		return fmt.Errorf("get metadata for %d: %w", entityGUID, err)
	}
	return write(w, header{EntityGUID: entityGUID, MetadataCount: len(rows)}, rows)
}

func write(w io.Writer, h header, rows []*model.Metadata) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	h.Version = FormatVersion
	h.Type = "header"
	h.Timestamp = time.Now().UTC()
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, md := range rows {
		if err := enc.Encode(record{Type: "metadata", Data: md}); err != nil {
			return fmt.Errorf("encode metadata %d: %w", md.ID, err)
		}
	}
	return nil
}
