package od

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDCF assembles a concise-DCF byte block from a list of records, in the
// same layout ApplyDCF decodes: u32 count, then per record
// {u16 index, u8 subIndex, u32 size, data}.
func buildDCF(records [][3]uint32, data [][]byte) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(len(records)))
	for i, rec := range records {
		binary.Write(buf, binary.LittleEndian, uint16(rec[0]))
		binary.Write(buf, binary.LittleEndian, uint8(rec[1]))
		binary.Write(buf, binary.LittleEndian, uint32(len(data[i])))
		buf.Write(data[i])
	}
	return buf.Bytes()
}

func TestApplyDCF(t *testing.T) {
	od := createOD()

	dcf := buildDCF(
		[][3]uint32{{0x3016, 0, 0}, {0x3017, 0, 0}, {0x3030, 0, 0}},
		[][]byte{{0x42}, {0x34, 0x12}, {0x99}},
	)

	err := od.ApplyDCF(dcf)
	require.NoError(t, err)

	v, err := od.Index(0x3016).Uint8(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x42, v)

	v16, err := od.Index(0x3017).Uint16(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1234, v16)

	v8, err := od.Index(0x3030).Uint8(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x99, v8)
}

func TestApplyDCFUnknownIndex(t *testing.T) {
	od := createOD()

	dcf := buildDCF([][3]uint32{{0x9999, 0, 0}}, [][]byte{{0x01}})

	err := od.ApplyDCF(dcf)
	require.Error(t, err)
	dcfErr, ok := err.(*DCFApplyError)
	require.True(t, ok)
	assert.EqualValues(t, 0x9999, dcfErr.Index)
	assert.ErrorIs(t, dcfErr.Err, ErrIdxNotExist)
}

func TestApplyDCFStopsOnFirstError(t *testing.T) {
	od := createOD()

	// Second record has a size mismatch (entry3017 is UNSIGNED16, i.e. 2
	// bytes), so it must fail and the third record must never be applied.
	dcf := buildDCF(
		[][3]uint32{{0x3016, 0, 0}, {0x3017, 0, 0}, {0x3018, 0, 0}},
		[][]byte{{0x11}, {0xFF}, {0x01, 0x02, 0x03, 0x04}},
	)

	err := od.ApplyDCF(dcf)
	require.Error(t, err)
	dcfErr, ok := err.(*DCFApplyError)
	require.True(t, ok)
	assert.EqualValues(t, 0x3017, dcfErr.Index)

	v, err := od.Index(0x3016).Uint8(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x11, v, "record before the failure should still have applied")

	v32, err := od.Index(0x3018).Uint32(0)
	require.NoError(t, err)
	assert.NotEqualValues(t, 0x04030201, v32, "record after the failure must not have applied")
}
