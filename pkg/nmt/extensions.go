package nmt

import (
	"encoding/binary"
	"time"

	"github.com/flowstate-io/conode/pkg/od"
	log "github.com/sirupsen/logrus"
)

// [NMT] update heartbeat period
func writeEntry1017(stream *od.Stream, data []byte, countWritten *uint16) error {
	if stream.Subindex != 0 || data == nil || len(data) != 2 || countWritten == nil || stream == nil {
		return od.ErrDevIncompat
	}
	nmt, ok := stream.Object.(*NMT)
	if !ok {
		return od.ErrDevIncompat
	}
	nmt.mu.Lock()
	defer nmt.mu.Unlock()

	nmt.hearbeatProducerTimeUs = uint32(binary.LittleEndian.Uint16(data)) * 1000
	// Re-arm the producer timer with the new period, or stop it when disabled
	period := time.Duration(nmt.hearbeatProducerTimeUs) * time.Microsecond
	if nmt.timer != nil {
		nmt.timer.Stop()
	}
	if period > 0 {
		if nmt.timer == nil {
			nmt.timer = time.AfterFunc(period, nmt.heartbeatTimeout)
		} else {
			nmt.timer.Reset(period)
		}
	}
	log.Debugf("[OD][EXTENSION][NMT] updated heartbeat period to %v ms", nmt.hearbeatProducerTimeUs/1000)
	return od.WriteEntryDefault(stream, data, countWritten)
}
