package journal

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hupe1980/refdb/internal/hash"
	"github.com/hupe1980/refdb/record"
)

// RecordType identifies the type of a journal entry.
type RecordType uint8

const (
	// RecordTypeSave stores a full record.
	RecordTypeSave RecordType = 1
	// RecordTypeDelete removes a record by identifier.
	RecordTypeDelete RecordType = 2
)

const (
	headerSize = 4 + 1 + 8 + 4
	maxPayload = 64 << 20
)

var (
	ErrInvalidCRC     = errors.New("journal: invalid record checksum")
	ErrInvalidType    = errors.New("journal: invalid record type")
	ErrShortRead      = errors.New("journal: short read in record")
	ErrRecordTooLarge = errors.New("journal: record too large")
)

// Record is one journal entry.
type Record struct {
	LSN        uint64
	Type       RecordType
	EntityType string

	// Data is the encoded record of a save.
	Data record.Record

	// Identifier and PartitionValue locate the record of a delete.
	Identifier     record.Value
	PartitionValue record.Value
}

func (r *Record) payload() ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(r.EntityType)))
	buf = append(buf, r.EntityType...)

	switch r.Type {
	case RecordTypeSave:
		data, err := r.Data.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return append(buf, data...), nil
	case RecordTypeDelete:
		buf, err := record.AppendValue(buf, r.Identifier)
		if err != nil {
			return nil, err
		}
		return record.AppendValue(buf, r.PartitionValue)
	default:
		return nil, ErrInvalidType
	}
}

// Encode writes the record to w.
func (r *Record) Encode(w io.Writer) error {
	payload, err := r.payload()
	if err != nil {
		return err
	}
	if len(payload) > maxPayload {
		return ErrRecordTooLarge
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	buf[4] = byte(r.Type)
	binary.LittleEndian.PutUint64(buf[5:], r.LSN)
	binary.LittleEndian.PutUint32(buf[13:], uint32(len(payload)))
	buf = append(buf, payload...)
	binary.LittleEndian.PutUint32(buf[0:4], hash.CRC32C(buf[4:]))

	_, err = w.Write(buf)
	return err
}

// Decode reads a record from r and returns it with the number of bytes
// consumed. A clean end of input returns io.EOF; a partial entry returns
// io.ErrUnexpectedEOF.
func Decode(r io.Reader) (*Record, int64, error) {
	header := make([]byte, headerSize)
	if n, err := io.ReadFull(r, header); err != nil {
		return nil, int64(n), err
	}

	length := binary.LittleEndian.Uint32(header[13:])
	if length > maxPayload {
		return nil, headerSize, ErrRecordTooLarge
	}
	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, headerSize + int64(n), err
	}
	size := headerSize + int64(length)

	crc := hash.NewCRC32C()
	crc.Write(header[4:])
	crc.Write(payload)
	if crc.Sum32() != binary.LittleEndian.Uint32(header[0:4]) {
		return nil, size, ErrInvalidCRC
	}

	rec := &Record{Type: RecordType(header[4]), LSN: binary.LittleEndian.Uint64(header[5:])}
	if err := rec.parse(payload); err != nil {
		return nil, size, err
	}
	return rec, size, nil
}

func (r *Record) parse(payload []byte) error {
	l, n := binary.Uvarint(payload)
	if n <= 0 || uint64(len(payload)-n) < l {
		return ErrShortRead
	}
	payload = payload[n:]
	r.EntityType = string(payload[:l])
	payload = payload[l:]

	switch r.Type {
	case RecordTypeSave:
		return r.Data.UnmarshalBinary(payload)
	case RecordTypeDelete:
		id, rest, err := record.ParseValue(payload)
		if err != nil {
			return errors.Join(ErrShortRead, err)
		}
		pv, _, err := record.ParseValue(rest)
		if err != nil {
			return errors.Join(ErrShortRead, err)
		}
		r.Identifier, r.PartitionValue = id, pv
		return nil
	default:
		return ErrInvalidType
	}
}
