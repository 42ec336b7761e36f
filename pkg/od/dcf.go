package od

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// DCFApplyError identifies the record that failed to apply from a concise-DCF
// block, so a caller can report exactly which (index, subIndex) was refused.
type DCFApplyError struct {
	Index    uint16
	SubIndex uint8
	Err      error
}

func (e *DCFApplyError) Error() string {
	return fmt.Sprintf("apply DCF x%x:%x: %v", e.Index, e.SubIndex, e.Err)
}

func (e *DCFApplyError) Unwrap() error {
	return e.Err
}

// ApplyDCF decodes a concise-DCF block (CiA 302-3) and writes each record
// through the entry's normal extension-aware write path, in order. The
// block is a little-endian uint32 record count followed by that many
// records of { index uint16, subIndex uint8, size uint32, data [size]byte }.
//
// Application stops at the first record that fails to decode or write, so
// any records already applied stay applied (concise DCF does not define a
// rollback). The returned error is a [*DCFApplyError] identifying that
// record, except when the record count or a record's index cannot be read,
// which return a plain wrapped error.
func (od *ObjectDictionary) ApplyDCF(data []byte) error {
	r := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("apply DCF: reading record count: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		var index uint16
		var subIndex uint8
		var size uint32

		if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
			return fmt.Errorf("apply DCF: record %d: reading index: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &subIndex); err != nil {
			return &DCFApplyError{Index: index, Err: fmt.Errorf("reading sub-index: %w", err)}
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return &DCFApplyError{Index: index, SubIndex: subIndex, Err: fmt.Errorf("reading size: %w", err)}
		}
		value := make([]byte, size)
		if _, err := io.ReadFull(r, value); err != nil {
			return &DCFApplyError{Index: index, SubIndex: subIndex, Err: fmt.Errorf("reading data: %w", err)}
		}

		entry := od.Index(index)
		if entry == nil {
			return &DCFApplyError{Index: index, SubIndex: subIndex, Err: ErrIdxNotExist}
		}
		if err := entry.WriteExactly(subIndex, value, false); err != nil {
			return &DCFApplyError{Index: index, SubIndex: subIndex, Err: err}
		}
	}

	return nil
}
