// Package sequence is a counter service built atop the request engine:
// Increment on a dedicated table yields monotonic integer identifiers for
// stores that don't offer autoincrement natively. It also offers a second,
// store-free ID strategy for callers who only need lexicographic
// sortability rather than strict monotonicity.
package sequence

import (
	"context"

	"github.com/pocodynamo/pocodynamo/pkg/client"
)

// Seq is the registered record backing the counter table: one row per
// sequence key, holding its current value.
type Seq struct {
	Key     string `pocodynamo:"hash"`
	Counter int64
}

// Source yields monotonic integer identifiers for named sequences.
type Source struct {
	client *client.Client
}

// NewSource registers the sequence table against c's registry and returns a
// Source. Call InitSchema (directly, or through the owning Client) before
// issuing Current/Next calls against a store that doesn't have the table yet.
func NewSource(c *client.Client) (*Source, error) {
	if _, err := c.Registry().Register(&Seq{}); err != nil {
		return nil, err
	}
	return &Source{client: c}, nil
}

// Current returns key's current value without advancing it, or 0 if key has
// never been incremented.
func (s *Source) Current(ctx context.Context, key string) (int64, error) {
	var row Seq
	if err := s.client.GetItem(ctx, &row, key); err != nil {
		return 0, err
	}
	return row.Counter, nil
}

// Next advances key by one and returns the new value.
func (s *Source) Next(ctx context.Context, key string) (int64, error) {
	return s.NextN(ctx, key, 1)
}

// NextN advances key by n and returns the new value, reserving a block of n
// identifiers in one round trip.
func (s *Source) NextN(ctx context.Context, key string, n int64) (int64, error) {
	return s.client.Increment(ctx, &Seq{}, key, "Counter", n)
}
