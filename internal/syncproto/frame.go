// Package syncproto implements spec §4.5/§6: the length-framed binary wire
// protocol two Links speak to exchange storage and timeline state, plus
// the per-link connection state machine.
package syncproto

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// Tag identifies a frame's message type, the first byte of every frame's
// body.
type Tag byte

const (
	TagOpen             Tag = 0x01
	TagTimelineRangeAck Tag = 0x02
	TagTimelineSync     Tag = 0x03
	TagTimelineSyncAck  Tag = 0x04
	TagStorageRequest   Tag = 0x05
	TagStorageSync      Tag = 0x06
	TagChangeAvailable  Tag = 0x07
	TagError            Tag = 0x08
)

func (t Tag) String() string {
	switch t {
	case TagOpen:
		return "Open"
	case TagTimelineRangeAck:
		return "TimelineRangeAck"
	case TagTimelineSync:
		return "TimelineSync"
	case TagTimelineSyncAck:
		return "TimelineSyncAck"
	case TagStorageRequest:
		return "StorageRequest"
	case TagStorageSync:
		return "StorageSync"
	case TagChangeAvailable:
		return "ChangeAvailable"
	case TagError:
		return "Error"
	default:
		return fmt.Sprintf("Tag(%#02x)", byte(t))
	}
}

// Open is the first frame a client sends after connecting: it names the
// document and timeline it wants to sync.
type Open struct {
	DocumentID journal.ID
	TimelineID journal.ID
}

// TimelineRangeAck tells the peer the storage LSN up to which a timeline's
// mutations are known to have been durably applied — the coordinator's
// retention policy uses this per spec §9's Open Question resolution.
type TimelineRangeAck struct {
	TimelineID journal.ID
	StorageLSN lsn.LSN
}

// TimelineSync carries a timeline-journal partial, spec §4.1's
// sync_receive payload framed for the wire.
type TimelineSync struct {
	Partial journal.Partial
}

// TimelineSyncAck acknowledges a TimelineSync, reporting the timeline's
// range after merging.
type TimelineSyncAck struct {
	TimelineID journal.ID
	Range      lsn.Range
}

// StorageRequest asks the peer for a sync_prepare over the storage
// journal starting at First.
type StorageRequest struct {
	DocumentID journal.ID
	First      lsn.LSN
}

// StorageSync carries a storage-journal partial.
type StorageSync struct {
	Partial journal.Partial
}

// ChangeAvailable is an unsolicited notice that the storage journal now
// extends up to End (exclusive), prompting the receiver to issue a
// StorageRequest.
type ChangeAvailable struct {
	DocumentID journal.ID
	End        lsn.LSN
}

// ErrorFrame carries a fatal condition that tears down the link.
type ErrorFrame struct {
	Message string
}

// writeUint32 and readUint32 frame a byte string's length; writeLSN frames
// one LSN. All integers are little-endian per spec §6.

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeBytes(w io.Writer, p []byte) error {
	if err := writeUint32(w, uint32(len(p))); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeID(w io.Writer, id journal.ID) error {
	_, err := w.Write(id[:])
	return err
}

func readID(r io.Reader) (journal.ID, error) {
	var id journal.ID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return journal.ID{}, err
	}
	return id, nil
}

func writePartial(w io.Writer, p journal.Partial) error {
	if err := writeID(w, p.JournalID); err != nil {
		return err
	}
	if err := writeUint64(w, p.FirstLSN); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(p.Entries))); err != nil {
		return err
	}
	for _, e := range p.Entries {
		if err := writeBytes(w, e.Payload); err != nil {
			return err
		}
	}
	return nil
}

func readPartial(r io.Reader) (journal.Partial, error) {
	id, err := readID(r)
	if err != nil {
		return journal.Partial{}, err
	}
	first, err := readUint64(r)
	if err != nil {
		return journal.Partial{}, err
	}
	count, err := readUint32(r)
	if err != nil {
		return journal.Partial{}, err
	}
	entries := make([]journal.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		payload, err := readBytes(r)
		if err != nil {
			return journal.Partial{}, err
		}
		entries = append(entries, journal.Entry{LSN: first + lsn.LSN(i), Payload: payload})
	}
	return journal.Partial{JournalID: id, FirstLSN: first, Entries: entries}, nil
}
