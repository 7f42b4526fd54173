// Package idgen generates short, URL-safe identifiers for published events.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EventPrefix marks ids of event envelopes.
const EventPrefix = "ev-"

// alphabet excludes punctuation so ids can be used as NATS message ids and
// file names without escaping.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Size is the number of random characters after the prefix.
const Size = 12

// EventID returns a new event id.
func EventID() (string, error) {
	return New(EventPrefix)
}

// New returns prefix followed by Size random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
