package reducer

import (
	"encoding/binary"
	"fmt"
)

// EncodeMutation frames a mutation's tag and argument bytes into the
// opaque payload the timeline journal stores. The journal and sync layers
// never parse this (spec §6 "Timeline-entry layout... Opaque to the
// engine"); only the reducer host, which must dispatch by tag, does.
func EncodeMutation(tag string, args []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(tag)))

	out := make([]byte, 0, n+len(tag)+len(args))
	out = append(out, lenBuf[:n]...)
	out = append(out, tag...)
	out = append(out, args...)
	return out
}

// DecodeMutation splits a mutation payload back into its tag and argument
// bytes.
func DecodeMutation(data []byte) (tag string, args []byte, err error) {
	tagLen, n := binary.Uvarint(data)
	if n <= 0 {
		return "", nil, fmt.Errorf("reducer: malformed mutation: missing tag length")
	}
	if uint64(n)+tagLen > uint64(len(data)) {
		return "", nil, fmt.Errorf("reducer: malformed mutation: truncated tag")
	}
	tag = string(data[n : n+int(tagLen)])
	args = data[n+int(tagLen):]
	return tag, args, nil
}
