package uploads

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKeyIsCollisionFree(t *testing.T) {
	a := objectKey("passport.png")
	b := objectKey("passport.png")
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "bookings/passport-"))
	require.True(t, strings.HasSuffix(a, ".png"))
}

func TestObjectKeySanitisesNames(t *testing.T) {
	key := objectKey("../..//Flight Ticket (final).PDF")
	require.True(t, strings.HasPrefix(key, "bookings/"))
	require.NotContains(t, key, "..")
	require.NotContains(t, key, " ")
	require.True(t, strings.HasSuffix(key, ".pdf"))
}

func TestObjectKeyEmptyBase(t *testing.T) {
	key := objectKey("???")
	require.True(t, strings.HasPrefix(key, "bookings/attachment-"))
}
