package model

// EventKind is the mutation a notification reports.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks whether the event kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCreate, EventUpdate, EventDelete:
		return true
	}
	return false
}

// SubjectMetadata is the subject of notifications fired by the metadata engine.
// Entity notifications use the entity type as subject.
const SubjectMetadata = "metadata"

// Notification is passed synchronously to hook listeners, which may veto it.
// Exactly one of Metadata or Entity is set.
type Notification struct {
	Kind     EventKind `json:"kind"`
	Subject  string    `json:"subject"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Entity   *Entity   `json:"entity,omitempty"`
}
