package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType records how a metadata value should be interpreted.
type ValueType string

const (
	ValueTypeText    ValueType = "text"
	ValueTypeInteger ValueType = "integer"
	ValueTypeBoolean ValueType = "boolean"
)

// String returns the string representation of the value type.
func (v ValueType) String() string {
	return string(v)
}

// IsValid checks whether the value type is a known value.
func (v ValueType) IsValid() bool {
	switch v {
	case ValueTypeText, ValueTypeInteger, ValueTypeBoolean:
		return true
	}
	return false
}

// DetectValueType returns hint when it is a known type. Otherwise values that
// parse as base-10 integers are integers and everything else is text.
func DetectValueType(value string, hint ValueType) ValueType {
	if hint.IsValid() {
		return hint
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return ValueTypeInteger
	}
	return ValueTypeText
}

// NormalizeValue canonicalizes value for storage under the given type.
// Booleans are stored as "1" or "0" and integers in plain base-10 form, so
// " +5" is stored as "5".
func NormalizeValue(value string, typ ValueType) (string, error) {
	switch typ {
	case ValueTypeBoolean:
		return normalizeBoolean(value)
	case ValueTypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an integer", ErrInvalidArgument, value)
		}
		return strconv.FormatInt(n, 10), nil
	}
	return value, nil
}

func normalizeBoolean(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return "1", nil
	case "0", "false", "no", "off", "":
		return "0", nil
	}
	return "", fmt.Errorf("%w: %q is not a boolean", ErrInvalidArgument, value)
}

// Access levels understood by the default host. Any other positive value is a
// host-defined access collection.
const (
	AccessFriends  = -2
	AccessPrivate  = 0
	AccessLoggedIn = 1
	AccessPublic   = 2
)

// Metadata is a typed name/value attribute attached to an entity.
// Name and Value are the resolved metastrings behind NameID and ValueID.
type Metadata struct {
	ID         int64     `json:"id"`
	EntityGUID int64     `json:"entity_guid"`
	NameID     int64     `json:"name_id"`
	ValueID    int64     `json:"value_id"`
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	ValueType  ValueType `json:"value_type"`
	OwnerGUID  int64     `json:"owner_guid"`
	AccessID   int       `json:"access_id"`
	CreatedAt  time.Time `json:"time_created"`
}

// Field returns the named attribute of the record. The boolean is false for
// names that are not metadata attributes.
func (m *Metadata) Field(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "entity_guid":
		return m.EntityGUID, true
	case "name_id":
		return m.NameID, true
	case "value_id":
		return m.ValueID, true
	case "name":
		return m.Name, true
	case "value":
		return m.Value, true
	case "value_type":
		return m.ValueType, true
	case "owner_guid":
		return m.OwnerGUID, true
	case "access_id":
		return m.AccessID, true
	case "time_created":
		return m.CreatedAt, true
	}
	return nil, false
}

// SetField assigns a writable attribute from its string form. Identity,
// interning and entity_guid columns are read-only; a record cannot be moved
// to another entity.
func (m *Metadata) SetField(name, value string) error {
	switch name {
	case "name":
		m.Name = value
	case "value":
		m.Value = value
	case "value_type":
		vt := ValueType(value)
		if !vt.IsValid() {
			return fmt.Errorf("%w: invalid value_type %q", ErrInvalidArgument, value)
		}
		m.ValueType = vt
	case "owner_guid":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: owner_guid: %v", ErrInvalidArgument, err)
		}
		m.OwnerGUID = n
	case "access_id":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: access_id: %v", ErrInvalidArgument, err)
		}
		m.AccessID = n
	default:
		return fmt.Errorf("%w: unknown or read-only field %q", ErrInvalidArgument, name)
	}
	return nil
}

// Values extracts the plain values from a list of records, in order.
func Values(records []*Metadata) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Value)
	}
	return out
}
