// Package master implements the NMT master boot-slave procedure (CiA 302-2):
// checking a remote node's identity, applying master-supplied configuration,
// enabling error control, and starting the node once it is ready.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	canopen "github.com/flowstate-io/conode"
	"github.com/flowstate-io/conode/pkg/heartbeat"
	"github.com/flowstate-io/conode/pkg/nmt"
	"github.com/flowstate-io/conode/pkg/node"
	"github.com/flowstate-io/conode/pkg/od"
)

// BootStatus is the single-letter error status reported through [Driver.OnBoot],
// matching the boot-slave taxonomy used across the CANopen ecosystem. Zero means
// the node booted without error.
type BootStatus byte

const (
	BootOK BootStatus = 0

	BootNotPresent         BootStatus = 'A' // slave not marked present in 0x1F81
	BootDeviceTypeReadFail BootStatus = 'B' // upload of 0x1000 failed
	BootDeviceTypeMismatch BootStatus = 'C' // 0x1000 does not match 0x1F84
	BootVendorMismatch     BootStatus = 'D' // 0x1018:01 does not match 0x1F85
	BootHeartbeatTimeout   BootStatus = 'E' // no heartbeat within one period + slack
	BootGuardTimeout       BootStatus = 'F' // reserved: life-guarding polling is not implemented, see DESIGN.md
	BootSoftwareMismatch   BootStatus = 'G' // application-specific, folded into OnConfig by default
	BootConfigRefused      BootStatus = 'H' // reserved, see DESIGN.md
	BootRestoreFailed      BootStatus = 'I' // reserved, see DESIGN.md
	BootConfigFailed       BootStatus = 'J' // OnConfig callback returned a nonzero abort code
	BootErrorControlFailed BootStatus = 'K' // could not start heartbeat consumption
	BootUnexpectedStop     BootStatus = 'L' // node produced a late, unexpected boot-up frame
	BootProductMismatch    BootStatus = 'M' // 0x1018:02 does not match 0x1F86
	BootRevisionMismatch   BootStatus = 'N' // 0x1018:03 does not match 0x1F87
	BootSerialMismatch     BootStatus = 'O' // 0x1018:04 does not match 0x1F88
)

func (s BootStatus) String() string {
	if s == BootOK {
		return "ok"
	}
	return string(rune(s))
}

// Driver is the set of callbacks the host supplies to steer a boot run.
// OnConfig MUST invoke done exactly once, with an SDO abort code (0 = accept).
type Driver interface {
	OnConfig(nodeId uint8, done func(abortCode uint32))
	OnBoot(nodeId uint8, nmtState uint8, status BootStatus, description string)
	OnHeartbeat(nodeId uint8, occurred bool)
}

// NopDriver accepts every configuration step and ignores boot/heartbeat events.
// Embed it to implement [Driver] without overriding every method.
type NopDriver struct{}

func (NopDriver) OnConfig(nodeId uint8, done func(abortCode uint32)) { done(0) }
func (NopDriver) OnBoot(nodeId uint8, nmtState uint8, status BootStatus, description string) {}
func (NopDriver) OnHeartbeat(nodeId uint8, occurred bool)                                    {}

// assignment mirrors the bit layout of object 0x1F81 (slave assignment).
type assignment struct {
	known     bool
	mandatory bool
}

func readAssignment(local *node.LocalNode, nodeId uint8) (assignment, error) {
	flags, err := local.ReadUint8(local.GetID(), od.EntryNMTSlaveAssignment, nodeId)
	if err != nil {
		return assignment{}, err
	}
	return assignment{known: flags&0x01 != 0, mandatory: flags&0x08 != 0}, nil
}

// Master drives the boot-slave procedure for remote nodes attached to one
// local CANopen node acting as NMT master.
type Master struct {
	logger      *slog.Logger
	local       *node.LocalNode
	hb          *heartbeat.HBConsumer
	driver      Driver
	stepTimeout time.Duration

	mu       sync.Mutex
	watchers map[uint8][]chan struct{}
}

// NewMaster creates a boot-slave driver bound to the local node's own object
// dictionary (0x1F80-0x1F89) and error-control consumer. driver may be nil,
// in which case [NopDriver] is used.
//
// hb.OnEvent keeps only a single registered callback, so NewMaster installs
// exactly one persistent dispatcher here rather than letting each boot wait
// register (and clobber) its own. That dispatcher both wakes in-flight boot
// waits and relays every post-boot heartbeat gain/loss to driver.OnHeartbeat.
func NewMaster(local *node.LocalNode, hb *heartbeat.HBConsumer, driver Driver, stepTimeout time.Duration) *Master {
	if driver == nil {
		driver = NopDriver{}
	}
	if stepTimeout <= 0 {
		stepTimeout = 1 * time.Second
	}
	m := &Master{
		logger:      slog.Default().With("service", "[MASTER]"),
		local:       local,
		hb:          hb,
		driver:      driver,
		stepTimeout: stepTimeout,
		watchers:    make(map[uint8][]chan struct{}),
	}
	if hb != nil {
		hb.OnEvent(m.onHeartbeatEvent)
	}
	return m
}

// onHeartbeatEvent is the heartbeat consumer's one and only registered
// callback. event/nodeId report whatever hbConsumerEntry last observed for
// one monitored node; EventTimeout is the only "heartbeat lost" case, every
// other event means a heartbeat (or boot-up) frame was just received.
func (m *Master) onHeartbeatEvent(event uint8, index uint8, nodeId uint8, nmtState uint8) {
	occurred := event != heartbeat.EventTimeout

	m.driver.OnHeartbeat(nodeId, occurred)

	if !occurred {
		return
	}
	m.mu.Lock()
	watchers := append([]chan struct{}(nil), m.watchers[nodeId]...)
	m.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// addWatcher registers a transient one-shot wait for nodeId's next "heartbeat
// observed" event. The returned cancel func must be called once the wait is
// over, whether it succeeded or not, so the watcher list doesn't grow unbounded.
func (m *Master) addWatcher(nodeId uint8) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers[nodeId] = append(m.watchers[nodeId], ch)
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[nodeId]
		for i, c := range list {
			if c == ch {
				m.watchers[nodeId] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

func (m *Master) fail(nodeId uint8, status BootStatus, err error) BootStatus {
	desc := status.String()
	if err != nil {
		desc = fmt.Sprintf("%s: %v", desc, err)
	}
	m.logger.Warn("boot failed", "id", nodeId, "status", desc)
	m.applyErrorBehaviour(nodeId)
	m.driver.OnBoot(nodeId, nmt.StatePreOperational, status, desc)
	return status
}

// applyErrorBehaviour transitions the LOCAL master node per object 0x1029:01
// ("error behaviour") when a boot or error-control failure occurs.
func (m *Master) applyErrorBehaviour(nodeId uint8) {
	behaviour, err := m.local.ReadUint8(m.local.GetID(), od.EntryErrorBehavior, 1)
	if err != nil {
		return
	}
	switch behaviour {
	case 0:
		m.local.NMT.SendInternalCommand(uint8(nmt.CommandEnterPreOperational))
	case 2:
		_ = m.sendCommand(m.local.GetID(), nmt.CommandEnterStopped)
	}
}

// sendCommand reproduces [network.Network.Command]'s frame layout so the
// master can start remote nodes without depending on the network package.
func (m *Master) sendCommand(nodeId uint8, cmd nmt.Command) error {
	frame := canopen.NewFrame(uint32(nmt.ServiceId), 0, 2)
	frame.Data[0] = uint8(cmd)
	frame.Data[1] = nodeId
	return m.local.Send(frame)
}

// BootSlave runs the boot-slave procedure (steps A-O) for one remote node,
// returning [BootOK] once the node has been configured, error control has
// started, and (if assigned) the node has been started.
func (m *Master) BootSlave(ctx context.Context, remote *node.RemoteNode) BootStatus {
	id := remote.GetID()

	asg, err := readAssignment(m.local, id)
	if err != nil || !asg.known {
		return m.fail(id, BootNotPresent, err)
	}

	// B/C: device type
	deviceType, err := remote.ReadUint32(id, od.EntryDeviceType, 0)
	if err != nil {
		return m.fail(id, BootDeviceTypeReadFail, err)
	}
	expectedDeviceType, _ := m.local.ReadUint32(m.local.GetID(), od.EntryExpectedDeviceType, id)
	if expectedDeviceType != 0 && expectedDeviceType != deviceType {
		return m.fail(id, BootDeviceTypeMismatch, fmt.Errorf("got 0x%08x, expected 0x%08x", deviceType, expectedDeviceType))
	}

	// D/M/N/O: identity
	cfg := remote.Configurator()
	identity, err := cfg.ReadIdentity()
	if err != nil {
		return m.fail(id, BootVendorMismatch, err)
	}
	if expected, _ := m.local.ReadUint32(m.local.GetID(), od.EntryExpectedVendorId, id); expected != 0 && expected != identity.VendorId {
		return m.fail(id, BootVendorMismatch, fmt.Errorf("got 0x%08x, expected 0x%08x", identity.VendorId, expected))
	}
	if expected, _ := m.local.ReadUint32(m.local.GetID(), od.EntryExpectedProductCode, id); expected != 0 && expected != identity.ProductCode {
		return m.fail(id, BootProductMismatch, fmt.Errorf("got 0x%08x, expected 0x%08x", identity.ProductCode, expected))
	}
	if expected, _ := m.local.ReadUint32(m.local.GetID(), od.EntryExpectedRevision, id); expected != 0 && expected != identity.RevisionNumber {
		return m.fail(id, BootRevisionMismatch, fmt.Errorf("got 0x%08x, expected 0x%08x", identity.RevisionNumber, expected))
	}
	if expected, _ := m.local.ReadUint32(m.local.GetID(), od.EntryExpectedSerial, id); expected != 0 && expected != identity.SerialNumber {
		return m.fail(id, BootSerialMismatch, fmt.Errorf("got 0x%08x, expected 0x%08x", identity.SerialNumber, expected))
	}

	// E: start error control, then check heartbeat presence. The consumer
	// only subscribes to 0x700+id once WriteMonitoredNode registers this
	// node, so that registration (step 6) must happen before the presence
	// wait (step 4) can possibly observe anything - waiting first would
	// always time out against an unsubscribed entry.
	period, _ := cfg.ReadHeartbeatPeriod()
	if period > 0 {
		maxMonitorable, err := m.local.Configurator().ReadMaxMonitorable()
		if err != nil || uint8(id) > maxMonitorable {
			return m.fail(id, BootErrorControlFailed, errors.New("no free heartbeat consumer entry for node"))
		}
		if err := m.local.Configurator().WriteMonitoredNode(id, id, period); err != nil {
			return m.fail(id, BootErrorControlFailed, err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(period)*time.Millisecond+m.stepTimeout)
		waited := m.waitHeartbeat(waitCtx, id)
		cancel()
		if !waited {
			return m.fail(id, BootHeartbeatTimeout, nil)
		}
	}

	// Step 5: hand off to host configuration callback.
	done := make(chan uint32, 1)
	m.driver.OnConfig(id, func(abortCode uint32) { done <- abortCode })
	select {
	case ec := <-done:
		if ec != 0 {
			return m.fail(id, BootConfigFailed, fmt.Errorf("config refused, abort 0x%08x", ec))
		}
	case <-ctx.Done():
		return m.fail(id, BootConfigFailed, ctx.Err())
	}

	// Step 7: start the remote node, per 0x1F80 bit 2 (individual start).
	startup, _ := m.local.ReadUint32(m.local.GetID(), od.EntryNMTStartup, 0)
	if startup&0x04 != 0 {
		if err := m.sendCommand(id, nmt.CommandEnterOperational); err != nil {
			return m.fail(id, BootErrorControlFailed, err)
		}
	}

	m.logger.Info("boot complete", "id", id)
	m.driver.OnBoot(id, nmt.StateOperational, BootOK, "")
	return BootOK
}

// waitHeartbeat blocks until a heartbeat/boot-up frame is observed for nodeId
// or the context expires. It rides the persistent dispatcher installed by
// NewMaster rather than registering its own hb.OnEvent callback, since the
// consumer only keeps one such callback at a time.
func (m *Master) waitHeartbeat(ctx context.Context, nodeId uint8) bool {
	ch, cancel := m.addWatcher(nodeId)
	defer cancel()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// BootAll runs [Master.BootSlave] for every known slave in 0x1F81, returning
// the per-node results. If 0x1F80 bit 3 is set, the network-wide NMT start is
// only emitted once every mandatory slave has reached [BootOK].
func (m *Master) BootAll(ctx context.Context, remotes map[uint8]*node.RemoteNode) map[uint8]BootStatus {
	results := make(map[uint8]BootStatus, len(remotes))
	allMandatoryOK := true
	for id, remote := range remotes {
		status := m.BootSlave(ctx, remote)
		results[id] = status
		if status != BootOK {
			if asg, err := readAssignment(m.local, id); err == nil && asg.mandatory {
				allMandatoryOK = false
			}
		}
	}

	startup, _ := m.local.ReadUint32(m.local.GetID(), od.EntryNMTStartup, 0)
	waitForAll := startup&0x08 != 0
	if !waitForAll || allMandatoryOK {
		_ = m.sendCommand(0, nmt.CommandEnterOperational)
	}
	return results
}
