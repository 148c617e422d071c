package syncproto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// Message is any frame body this protocol carries.
type Message interface {
	tag() Tag
}

func (Open) tag() Tag             { return TagOpen }
func (TimelineRangeAck) tag() Tag { return TagTimelineRangeAck }
func (TimelineSync) tag() Tag     { return TagTimelineSync }
func (TimelineSyncAck) tag() Tag  { return TagTimelineSyncAck }
func (StorageRequest) tag() Tag   { return TagStorageRequest }
func (StorageSync) tag() Tag      { return TagStorageSync }
func (ChangeAvailable) tag() Tag  { return TagChangeAvailable }
func (ErrorFrame) tag() Tag       { return TagError }

// MaxFrameLen bounds a single frame's body to guard against a
// misbehaving peer claiming an unbounded length prefix.
const MaxFrameLen = 64 << 20 // 64 MiB

// Framer reads and writes length-framed messages over rw: each frame is a
// uint32 LE body length, followed by that many bytes (tag byte + payload),
// matching spec §6's wire format.
type Framer struct {
	rw io.ReadWriter
}

// NewFramer wraps rw (a net.Conn in production, an io.Pipe end in tests).
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw}
}

// WriteMessage encodes and sends one message as a single length-prefixed
// frame.
func (f *Framer) WriteMessage(m Message) error {
	var body bytes.Buffer
	body.WriteByte(byte(m.tag()))
	if err := encodeBody(&body, m); err != nil {
		return fmt.Errorf("syncproto: encode %s: %w", m.tag(), err)
	}
	if err := writeUint32(f.rw, uint32(body.Len())); err != nil {
		return fmt.Errorf("syncproto: write frame length: %w", err)
	}
	if _, err := f.rw.Write(body.Bytes()); err != nil {
		return fmt.Errorf("syncproto: write frame body: %w", err)
	}
	return nil
}

// ReadMessage blocks until one complete frame arrives and decodes it.
func (f *Framer) ReadMessage() (Message, error) {
	n, err := readUint32(f.rw)
	if err != nil {
		return nil, err
	}
	if n > MaxFrameLen {
		return nil, fmt.Errorf("syncproto: frame length %d exceeds max %d", n, MaxFrameLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.rw, buf); err != nil {
		return nil, fmt.Errorf("syncproto: read frame body: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("syncproto: empty frame")
	}
	tag := Tag(buf[0])
	body := bytes.NewReader(buf[1:])
	msg, err := decodeBody(tag, body)
	if err != nil {
		return nil, fmt.Errorf("syncproto: decode %s: %w", tag, err)
	}
	return msg, nil
}

func encodeBody(w io.Writer, m Message) error {
	switch v := m.(type) {
	case Open:
		if err := writeID(w, v.DocumentID); err != nil {
			return err
		}
		return writeID(w, v.TimelineID)
	case TimelineRangeAck:
		if err := writeID(w, v.TimelineID); err != nil {
			return err
		}
		return writeUint64(w, v.StorageLSN)
	case TimelineSync:
		return writePartial(w, v.Partial)
	case TimelineSyncAck:
		if err := writeID(w, v.TimelineID); err != nil {
			return err
		}
		if err := writeUint64(w, v.Range.First); err != nil {
			return err
		}
		return writeUint64(w, v.Range.End)
	case StorageRequest:
		if err := writeID(w, v.DocumentID); err != nil {
			return err
		}
		return writeUint64(w, v.First)
	case StorageSync:
		return writePartial(w, v.Partial)
	case ChangeAvailable:
		if err := writeID(w, v.DocumentID); err != nil {
			return err
		}
		return writeUint64(w, v.End)
	case ErrorFrame:
		return writeBytes(w, []byte(v.Message))
	default:
		return fmt.Errorf("unknown message type %T", m)
	}
}

func decodeBody(tag Tag, r io.Reader) (Message, error) {
	switch tag {
	case TagOpen:
		docID, err := readID(r)
		if err != nil {
			return nil, err
		}
		timelineID, err := readID(r)
		if err != nil {
			return nil, err
		}
		return Open{DocumentID: docID, TimelineID: timelineID}, nil

	case TagTimelineRangeAck:
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		l, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return TimelineRangeAck{TimelineID: id, StorageLSN: l}, nil

	case TagTimelineSync:
		p, err := readPartial(r)
		if err != nil {
			return nil, err
		}
		return TimelineSync{Partial: p}, nil

	case TagTimelineSyncAck:
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		first, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		end, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return TimelineSyncAck{TimelineID: id, Range: lsn.Range{First: first, End: end}}, nil

	case TagStorageRequest:
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		first, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return StorageRequest{DocumentID: id, First: first}, nil

	case TagStorageSync:
		p, err := readPartial(r)
		if err != nil {
			return nil, err
		}
		return StorageSync{Partial: p}, nil

	case TagChangeAvailable:
		id, err := readID(r)
		if err != nil {
			return nil, err
		}
		end, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return ChangeAvailable{DocumentID: id, End: end}, nil

	case TagError:
		msg, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return ErrorFrame{Message: string(msg)}, nil

	default:
		return nil, fmt.Errorf("unknown tag %s", tag)
	}
}
