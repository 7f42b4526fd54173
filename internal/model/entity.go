package model

import "time"

// Entity is the host object metadata attaches to. The metadata engine only
// reads entities; their lifecycle belongs to the host.
type Entity struct {
	GUID          int64     `json:"guid"`
	Type          string    `json:"type"`
	Subtype       string    `json:"subtype,omitempty"`
	OwnerGUID     int64     `json:"owner_guid"`
	ContainerGUID int64     `json:"container_guid,omitempty"`
	SiteGUID      int64     `json:"site_guid,omitempty"`
	AccessID      int       `json:"access_id"`
	CreatedAt     time.Time `json:"time_created"`
}

// Metastring is a deduplicated string referenced by id.
type Metastring struct {
	ID     int64  `json:"id"`
	String string `json:"string"`
}

// NormalizeName maps the empty name onto "0" so that legacy zero-valued
// names keep resolving to the same metastring.
func NormalizeName(name string) string {
	if name == "" {
		return "0"
	}
	return name
}
