package pagestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateIndex is returned by Decode when a storage-entry payload
// contains the same page index twice (spec §8 boundary behavior).
var ErrDuplicateIndex = errors.New("pagestore: duplicate page index in sparse page set")

// SparseSet is the payload of one storage-journal entry: the mapping from
// page index to page bytes produced between two commits, with no
// duplicates (spec §3).
type SparseSet struct {
	pages map[Index]*Page
}

// NewSparseSet returns an empty sparse page set.
func NewSparseSet() *SparseSet {
	return &SparseSet{pages: make(map[Index]*Page)}
}

// Set records page p at idx, replacing any existing entry for idx.
func (s *SparseSet) Set(idx Index, p Page) {
	cp := p
	s.pages[idx] = &cp
}

// Get returns the page at idx and whether it was present.
func (s *SparseSet) Get(idx Index) (Page, bool) {
	p, ok := s.pages[idx]
	if !ok {
		return Page{}, false
	}
	return *p, true
}

// Len returns the number of distinct pages in the set.
func (s *SparseSet) Len() int { return len(s.pages) }

// Indices returns the set's page indices in ascending order.
func (s *SparseSet) Indices() []Index {
	out := make([]Index, 0, len(s.pages))
	for idx := range s.pages {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encode serializes the set per spec §6's storage-entry layout:
// page_count(varint), then page_count records of
// (page_index: u32 LE, page_bytes[4096]) sorted by page_index. Sorted
// order is load-bearing: it lets a reader binary-search inside an entry
// handle without materializing the whole entry.
func (s *SparseSet) Encode() []byte {
	indices := s.Indices()

	var buf bytes.Buffer
	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], uint64(len(indices)))
	buf.Write(varintBuf[:n])

	var idxBuf [4]byte
	for _, idx := range indices {
		binary.LittleEndian.PutUint32(idxBuf[:], uint32(idx))
		buf.Write(idxBuf[:])
		page := s.pages[idx]
		buf.Write(page[:])
	}
	return buf.Bytes()
}

// Decode parses bytes produced by Encode. It rejects a payload whose
// records are not in strictly ascending page-index order (which implies
// duplicates) with ErrDuplicateIndex.
func Decode(data []byte) (*SparseSet, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode sparse page set: %w", err)
	}

	set := NewSparseSet()
	var lastIdx Index
	haveLast := false
	for i := uint64(0); i < count; i++ {
		var idxBuf [4]byte
		if _, err := readFull(r, idxBuf[:]); err != nil {
			return nil, fmt.Errorf("decode sparse page set: record %d: %w", i, err)
		}
		idx := Index(binary.LittleEndian.Uint32(idxBuf[:]))

		if haveLast && idx <= lastIdx {
			return nil, fmt.Errorf("decode sparse page set: record %d: %w", i, ErrDuplicateIndex)
		}
		haveLast = true
		lastIdx = idx

		var page Page
		if _, err := readFull(r, page[:]); err != nil {
			return nil, fmt.Errorf("decode sparse page set: record %d: %w", i, err)
		}
		set.pages[idx] = &page
	}
	return set, nil
}

// PageAt extracts a single page's bytes from an already-encoded entry
// payload without decoding the whole set, via binary search over the
// sorted records. Returns ok=false if idx is absent.
func PageAt(data []byte, idx Index) (Page, bool, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return Page{}, false, fmt.Errorf("pagestore: malformed sparse page set header")
	}
	recordSize := 4 + PageSize
	base := n
	lo, hi := 0, int(count)
	for lo < hi {
		mid := (lo + hi) / 2
		off := base + mid*recordSize
		if off+4 > len(data) {
			return Page{}, false, fmt.Errorf("pagestore: truncated sparse page set")
		}
		cur := Index(binary.LittleEndian.Uint32(data[off : off+4]))
		switch {
		case cur == idx:
			var p Page
			copy(p[:], data[off+4:off+4+PageSize])
			return p, true, nil
		case cur < idx:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return Page{}, false, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err == nil && n < len(buf) {
		// bytes.Reader.Read always fills buf when available; loop defensively.
		m, err2 := r.Read(buf[n:])
		n += m
		if err2 != nil {
			return n, err2
		}
	}
	if n < len(buf) {
		return n, fmt.Errorf("unexpected end of sparse page set")
	}
	return n, err
}
