package master_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/flowstate-io/conode/pkg/master"
	"github.com/flowstate-io/conode/pkg/network"
	"github.com/flowstate-io/conode/pkg/node"
	"github.com/flowstate-io/conode/pkg/od"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	masterNodeId uint8 = 0x01
	slaveNodeId  uint8 = 0x02
	busAddr            = "localhost:18891"
)

func newTestNetwork(t *testing.T) *network.Network {
	t.Helper()
	bus, err := network.NewBus("virtual", busAddr, 0)
	require.NoError(t, err)
	net := network.NewNetwork(bus)
	net.SetLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
	require.NoError(t, net.Connect())
	t.Cleanup(net.Disconnect)
	return &net
}

// recordingDriver captures every boot/heartbeat event so tests can assert on
// the full sequence without racing the background node goroutines.
type recordingDriver struct {
	mu       sync.Mutex
	statuses map[uint8]master.BootStatus
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{statuses: map[uint8]master.BootStatus{}}
}

func (d *recordingDriver) OnConfig(nodeId uint8, done func(abortCode uint32)) { done(0) }

func (d *recordingDriver) OnBoot(nodeId uint8, nmtState uint8, status master.BootStatus, description string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[nodeId] = status
}

func (d *recordingDriver) OnHeartbeat(nodeId uint8, occurred bool) {}

func (d *recordingDriver) status(nodeId uint8) (master.BootStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.statuses[nodeId]
	return s, ok
}

func markAssigned(t *testing.T, masterOd *od.ObjectDictionary, nodeId uint8, mandatory bool) {
	t.Helper()
	flags := uint32(0x01)
	if mandatory {
		flags |= 0x08
	}
	err := masterOd.Index(od.EntryNMTSlaveAssignment).PutUint32(nodeId, flags, true)
	require.NoError(t, err)
}

func TestBootSlaveSuccess(t *testing.T) {
	net := newTestNetwork(t)

	masterOd := od.Default()
	markAssigned(t, masterOd, slaveNodeId, true)
	localMaster, err := net.CreateLocalNode(masterNodeId, masterOd)
	require.NoError(t, err)

	slaveOd := od.Default()
	slaveOd.Index(od.EntryIdentityObject).PutUint32(1, 0xCAFE, true)
	_, err = net.CreateLocalNode(slaveNodeId, slaveOd)
	require.NoError(t, err)

	remote, err := net.AddRemoteNode(slaveNodeId, od.Default())
	require.NoError(t, err)

	driver := newRecordingDriver()
	m := master.NewMaster(localMaster, localMaster.HBConsumer, driver, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status := m.BootSlave(ctx, remote)

	assert.Equal(t, master.BootOK, status)
	recorded, ok := driver.status(slaveNodeId)
	assert.True(t, ok)
	assert.Equal(t, master.BootOK, recorded)
}

func TestBootSlaveNotPresent(t *testing.T) {
	net := newTestNetwork(t)

	// slaveNodeId is left unassigned in 0x1F81, so the procedure must fail at
	// the first step without talking to the bus at all.
	localMaster, err := net.CreateLocalNode(masterNodeId, od.Default())
	require.NoError(t, err)

	remote, err := net.AddRemoteNode(slaveNodeId, od.Default())
	require.NoError(t, err)

	driver := newRecordingDriver()
	m := master.NewMaster(localMaster, localMaster.HBConsumer, driver, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status := m.BootSlave(ctx, remote)

	assert.Equal(t, master.BootNotPresent, status)
}

func TestBootSlaveVendorMismatch(t *testing.T) {
	net := newTestNetwork(t)

	masterOd := od.Default()
	markAssigned(t, masterOd, slaveNodeId, true)
	masterOd.Index(od.EntryExpectedVendorId).PutUint32(slaveNodeId, 0xBEEF, true)
	localMaster, err := net.CreateLocalNode(masterNodeId, masterOd)
	require.NoError(t, err)

	slaveOd := od.Default()
	slaveOd.Index(od.EntryIdentityObject).PutUint32(1, 0xCAFE, true) // does not match 0xBEEF
	_, err = net.CreateLocalNode(slaveNodeId, slaveOd)
	require.NoError(t, err)

	remote, err := net.AddRemoteNode(slaveNodeId, od.Default())
	require.NoError(t, err)

	driver := newRecordingDriver()
	m := master.NewMaster(localMaster, localMaster.HBConsumer, driver, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status := m.BootSlave(ctx, remote)

	assert.Equal(t, master.BootVendorMismatch, status)
}

func TestBootSlaveWithHeartbeatMonitoring(t *testing.T) {
	net := newTestNetwork(t)

	masterOd := od.Default()
	markAssigned(t, masterOd, slaveNodeId, true)
	localMaster, err := net.CreateLocalNode(masterNodeId, masterOd)
	require.NoError(t, err)

	slaveOd := od.Default()
	slaveOd.Index(od.EntryIdentityObject).PutUint32(1, 0xCAFE, true)
	require.NoError(t, slaveOd.Index(od.EntryProducerHeartbeatTime).PutUint16(0, 100, true))
	_, err = net.CreateLocalNode(slaveNodeId, slaveOd)
	require.NoError(t, err)

	remote, err := net.AddRemoteNode(slaveNodeId, od.Default())
	require.NoError(t, err)

	driver := newRecordingDriver()
	m := master.NewMaster(localMaster, localMaster.HBConsumer, driver, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status := m.BootSlave(ctx, remote)

	// A real, nonzero 0x1017 on the slave plus a correctly-sized 0x1016 on
	// the master means boot steps 4 (heartbeat presence) and 6 (error
	// control registration) actually run here, unlike the other boot tests
	// above where 0x1017 defaults to 0 and both steps are skipped.
	assert.Equal(t, master.BootOK, status)

	monitored, err := localMaster.Configurator().ReadMonitoredNodes()
	require.NoError(t, err)
	require.Len(t, monitored, 4)
	assert.EqualValues(t, slaveNodeId, monitored[int(slaveNodeId)-1][0])
	assert.EqualValues(t, 100, monitored[int(slaveNodeId)-1][1])
}

func TestBootAllGatesGlobalStartOnMandatorySlaves(t *testing.T) {
	net := newTestNetwork(t)

	masterOd := od.Default()
	markAssigned(t, masterOd, slaveNodeId, true)
	masterOd.Index(od.EntryNMTStartup).PutUint32(0, 0x08, true) // wait for all mandatory slaves
	localMaster, err := net.CreateLocalNode(masterNodeId, masterOd)
	require.NoError(t, err)

	// No local node is created for slaveNodeId, so every identity/device-type
	// read made on its behalf times out and the mandatory gate stays closed.
	remote, err := net.AddRemoteNode(slaveNodeId, od.Default())
	require.NoError(t, err)

	driver := newRecordingDriver()
	m := master.NewMaster(localMaster, localMaster.HBConsumer, driver, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results := m.BootAll(ctx, map[uint8]*node.RemoteNode{slaveNodeId: remote})

	require.Contains(t, results, slaveNodeId)
	assert.NotEqual(t, master.BootOK, results[slaveNodeId])
}
