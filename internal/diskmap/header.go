package diskmap

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/refdb/internal/hash"
	"github.com/hupe1980/refdb/internal/store"
)

type structureID uint8

const (
	structureHashMap  structureID = 1
	structureSkipList structureID = 2
)

const (
	headerMagic   = "DMAP"
	headerCRCAt   = 48
	headerEncoded = 52
)

// header anchors one map inside a volume root slot.
//
//	[0:4]   magic
//	[4]     structure id
//	[5]     load factor
//	[8:16]  root offset (bucket array or skip-list head)
//	[16:24] record count
//	[24:32] iteration count (populated buckets)
//	[32:40] first iteration chunk
//	[40:48] last iteration chunk
//	[48:52] CRC32C over [0:48]
type header struct {
	structure      structureID
	loadFactor     uint8
	rootOffset     int64
	recordCount    uint64
	iterationCount uint64
	iterationHead  int64
	iterationTail  int64
}

// loadHeader returns (nil, nil) for a freshly created, all-zero slot.
func loadHeader(st *store.Store, off int64) (*header, error) {
	buf := make([]byte, headerEncoded)
	if err := st.ReadAt(buf, off); err != nil {
		return nil, err
	}
	if isZero(buf) {
		return nil, nil
	}
	if string(buf[0:4]) != headerMagic {
		return nil, fmt.Errorf("%w: header magic %q at %d", ErrCorrupt, buf[0:4], off)
	}
	if crc := binary.LittleEndian.Uint32(buf[headerCRCAt:]); crc != hash.CRC32C(buf[:headerCRCAt]) {
		return nil, fmt.Errorf("%w: header checksum at %d", ErrCorrupt, off)
	}
	return &header{
		structure:      structureID(buf[4]),
		loadFactor:     buf[5],
		rootOffset:     int64(binary.LittleEndian.Uint64(buf[8:16])),
		recordCount:    binary.LittleEndian.Uint64(buf[16:24]),
		iterationCount: binary.LittleEndian.Uint64(buf[24:32]),
		iterationHead:  int64(binary.LittleEndian.Uint64(buf[32:40])),
		iterationTail:  int64(binary.LittleEndian.Uint64(buf[40:48])),
	}, nil
}

func (h *header) save(st *store.Store, off int64) error {
	buf := make([]byte, headerEncoded)
	copy(buf[0:4], headerMagic)
	buf[4] = byte(h.structure)
	buf[5] = h.loadFactor
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.rootOffset))
	binary.LittleEndian.PutUint64(buf[16:24], h.recordCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.iterationCount)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.iterationHead))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.iterationTail))
	binary.LittleEndian.PutUint32(buf[headerCRCAt:], hash.CRC32C(buf[:headerCRCAt]))
	return st.WriteAt(buf, off)
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
