package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRead(t *testing.T) {
	var buffer []byte
	buffer = AppendUint8(buffer, 0xab)
	buffer = AppendUint16(buffer, math.MaxUint16)
	buffer = AppendUint32(buffer, 0x01020304)
	buffer = AppendUint64(buffer, math.MaxUint64-1)
	buffer = AppendShortData(buffer, []byte("abc"))
	require.Len(t, buffer, 1+2+4+8+2+3)

	u8, rest, err := ReadUint8(buffer)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), u8)

	u16, rest, err := ReadUint16(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(math.MaxUint16), u16)

	u32, rest, err := ReadUint32(rest)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), u32)

	u64, rest, err := ReadUint64(rest)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-1), u64)

	data, rest, err := ReadShortData(rest)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Empty(t, rest)
}

func TestReadTooShort(t *testing.T) {
	_, _, err := ReadUint8(nil)
	assert.Error(t, err)

	_, _, err = ReadUint16([]byte{1})
	assert.Error(t, err)

	_, _, err = ReadUint32([]byte{1, 2, 3})
	assert.Error(t, err)

	_, _, err = ReadUint64([]byte{1, 2, 3, 4, 5, 6, 7})
	assert.Error(t, err)

	_, _, err = ReadSlice([]byte{1, 2}, 3)
	assert.Error(t, err)

	// length prefix larger than the data
	_, _, err = ReadShortData([]byte{0, 5, 1})
	assert.Error(t, err)
}

func TestKeyFixtures(t *testing.T) {
	k := KeyByUint16(0x0102)
	assert.Equal(t, byte(0x01), k[0])
	assert.Equal(t, byte(0x02), k[1])

	k = KeyByUint16LeftPadded(0x0102)
	assert.Equal(t, byte(0x01), k[30])
	assert.Equal(t, byte(0x02), k[31])

	balances := RandomBalances(10, 5)
	for _, b := range balances {
		assert.True(t, b >= 1 && b <= 5)
	}
}
