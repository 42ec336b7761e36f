package network

import (
	"testing"

	"github.com/flowstate-io/conode/pkg/od"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalNodeResetRestoresDefaults exercises the "reset node" testable
// property: after Reset, every object dictionary entry must read back at
// its DCF/EDS default, even if it was written to something else beforehand.
func TestLocalNodeResetRestoresDefaults(t *testing.T) {
	network := CreateNetworkEmptyTest()
	defer network.Disconnect()

	local, err := network.CreateLocalNode(NodeIdTest, od.Default())
	require.NoError(t, err)

	entry := local.GetOD().Index(od.EntryProducerHeartbeatTime)
	require.NoError(t, entry.PutUint16(0, 500, true))
	v, err := entry.Uint16(0)
	require.NoError(t, err)
	assert.EqualValues(t, 500, v)

	require.NoError(t, local.Reset())

	v, err = entry.Uint16(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v, "producer heartbeat time should be back at its EDS default after reset")
}
