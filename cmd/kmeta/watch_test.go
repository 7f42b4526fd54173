package main

import (
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/model"
)

func TestFormatEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		env  events.Envelope
		want []string
	}{
		{
			name: "metadata",
			env: events.Envelope{Kind: model.EventCreate, Subject: model.SubjectMetadata, At: at,
				Metadata: &model.Metadata{ID: 5, EntityGUID: 42, Name: "color", Value: "blue"}},
			want: []string{"create", "metadata 5 on 42", "color = blue"},
		},
		{
			name: "entity",
			env: events.Envelope{Kind: model.EventUpdate, Subject: "object", At: at,
				Entity: &model.Entity{GUID: 42, Type: "object", Subtype: "blog", AccessID: model.AccessPrivate}},
			want: []string{"update", "object/blog 42", "access=private"},
		},
		{
			name: "bare",
			env:  events.Envelope{Kind: model.EventDelete, Subject: "group", At: at},
			want: []string{"delete", "group"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEnvelope(tt.env)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatEnvelope() = %q, missing %q", got, w)
				}
			}
		})
	}
}
