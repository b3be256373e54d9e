package sequence

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewSortableID returns a lexicographically sortable identifier that embeds
// its own creation time, for callers that want roughly-ordered IDs without a
// round trip through a counter table.
func NewSortableID() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
