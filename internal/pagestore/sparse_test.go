package pagestore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func makePage(fill byte) Page {
	var p Page
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestSparseSetEncodeDecodeRoundTrip(t *testing.T) {
	set := NewSparseSet()
	set.Set(1, makePage(0xAA))
	set.Set(5, makePage(0xBB))
	set.Set(3, makePage(0xCC))

	data := set.Encode()
	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, set.Len(), decoded.Len())

	for _, idx := range []Index{1, 3, 5} {
		want, ok := set.Get(idx)
		require.True(t, ok)
		got, ok := decoded.Get(idx)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestSparseSetEncodeSortedOrder(t *testing.T) {
	set := NewSparseSet()
	set.Set(9, makePage(1))
	set.Set(2, makePage(2))
	set.Set(5, makePage(3))

	data := set.Encode()
	count, n := binary.Uvarint(data)
	require.EqualValues(t, 3, count)

	recordSize := 4 + PageSize
	var last int64 = -1
	for i := uint64(0); i < count; i++ {
		off := n + int(i)*recordSize
		idx := int64(binary.LittleEndian.Uint32(data[off : off+4]))
		require.Greater(t, idx, last)
		last = idx
	}
}

func TestDecodeRejectsDuplicateIndex(t *testing.T) {
	var buf []byte
	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], 2)
	buf = append(buf, varintBuf[:n]...)

	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], 7)
	page := makePage(1)
	buf = append(buf, idxBuf[:]...)
	buf = append(buf, page[:]...)
	// duplicate index 7 again
	buf = append(buf, idxBuf[:]...)
	buf = append(buf, page[:]...)

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrDuplicateIndex)
}

func TestPageAtExtractsSinglePageWithoutFullDecode(t *testing.T) {
	set := NewSparseSet()
	set.Set(1, makePage(0xAA))
	set.Set(2, makePage(0xBB))
	set.Set(4, makePage(0xCC))
	data := set.Encode()

	p, ok, err := PageAt(data, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, makePage(0xBB), p)

	_, ok, err = PageAt(data, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptySparseSetNeverAppended(t *testing.T) {
	set := NewSparseSet()
	require.Equal(t, 0, set.Len())
	data := set.Encode()
	count, _ := binary.Uvarint(data)
	require.EqualValues(t, 0, count)
}
