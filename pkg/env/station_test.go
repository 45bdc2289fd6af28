package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStationIDStable(t *testing.T) {
	id := StationID()
	require.NotEmpty(t, id)
	require.Equal(t, id, StationID())
}
