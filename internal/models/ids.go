package models

import "github.com/oklog/ulid/v2"

// NewID returns a lexically sortable unique id for users and sessions.
func NewID() string {
	return ulid.Make().String()
}
