package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Member is a catalog row with list membership flags
type Member interface {
	Membership() (inCollection, inWishlist bool)
}

// AssertMembership checks both list flags of a catalog row
func AssertMembership(t *testing.T, row Member, inCollection, inWishlist bool) {
	t.Helper()

	gotCollection, gotWishlist := row.Membership()
	assert.Equal(t, inCollection, gotCollection, "in_collection should match")
	assert.Equal(t, inWishlist, gotWishlist, "in_wishlist should match")
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
// Useful for timestamp comparisons where exact equality isn't expected.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.LessOrEqual(t, diff, delta, "times should be within %v of each other", delta)
}
