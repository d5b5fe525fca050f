package diskmap

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/refdb/internal/store"
)

const iterationChunk = 256

// Directory resolves buckets of a hash map to their on-disk references and
// records the order in which buckets were first populated.
//
// A reference is the offset of either a single data node or a skip-list head
// node; 0 means the bucket was never populated.
type Directory interface {
	// InsertReference sets the reference of a previously empty bucket.
	InsertReference(bucket uint64, ref int64) error
	// UpdateReference replaces the reference of a populated bucket.
	UpdateReference(bucket uint64, ref int64) error
	// GetReference returns the bucket reference, 0 if empty.
	GetReference(bucket uint64) (int64, error)
	// AddIterationList appends bucket to the iteration list.
	AddIterationList(bucket uint64) error
	// GetMapIdentifier returns the bucket stored at position index of the iteration list.
	GetMapIdentifier(index uint64) (uint64, error)
	// IterationCount returns the length of the iteration list.
	IterationCount() uint64
	// Clear empties every bucket and the iteration list.
	Clear() error
}

// DiskDirectory is the authoritative Directory stored in the volume.
// It is not synchronized; the owning map serializes access.
type DiskDirectory struct {
	st     *store.Store
	hdr    *header
	hdrOff int64
	chunks []int64
}

func newDiskDirectory(st *store.Store, hdr *header, hdrOff int64) (*DiskDirectory, error) {
	d := &DiskDirectory{st: st, hdr: hdr, hdrOff: hdrOff}

	var next [8]byte
	for off := hdr.iterationHead; off != 0; {
		d.chunks = append(d.chunks, off)
		if err := st.ReadAt(next[:], off); err != nil {
			return nil, err
		}
		off = int64(binary.LittleEndian.Uint64(next[:]))
	}
	if want := (hdr.iterationCount + iterationChunk - 1) / iterationChunk; uint64(len(d.chunks)) != want {
		return nil, fmt.Errorf("%w: iteration list has %d chunks, want %d", ErrCorrupt, len(d.chunks), want)
	}
	return d, nil
}

func (d *DiskDirectory) slot(bucket uint64) (int64, error) {
	if bucket >= uint64(1)<<d.hdr.loadFactor {
		return 0, fmt.Errorf("diskmap: bucket %d out of range for load factor %d", bucket, d.hdr.loadFactor)
	}
	return d.hdr.rootOffset + int64(bucket)*8, nil
}

func (d *DiskDirectory) putReference(bucket uint64, ref int64) error {
	off, err := d.slot(bucket)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ref))
	return d.st.WriteAt(buf[:], off)
}

func (d *DiskDirectory) InsertReference(bucket uint64, ref int64) error {
	return d.putReference(bucket, ref)
}

func (d *DiskDirectory) UpdateReference(bucket uint64, ref int64) error {
	return d.putReference(bucket, ref)
}

func (d *DiskDirectory) GetReference(bucket uint64) (int64, error) {
	off, err := d.slot(bucket)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if err := d.st.ReadAt(buf[:], off); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (d *DiskDirectory) AddIterationList(bucket uint64) error {
	index := d.hdr.iterationCount
	if index%iterationChunk == 0 {
		chunk, err := d.st.AllocateZeroed(8 + iterationChunk*8)
		if err != nil {
			return err
		}
		if n := len(d.chunks); n > 0 {
			var next [8]byte
			binary.LittleEndian.PutUint64(next[:], uint64(chunk))
			if err := d.st.WriteAt(next[:], d.chunks[n-1]); err != nil {
				return err
			}
		} else {
			d.hdr.iterationHead = chunk
		}
		d.hdr.iterationTail = chunk
		d.chunks = append(d.chunks, chunk)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bucket)
	if err := d.st.WriteAt(buf[:], d.chunks[index/iterationChunk]+8+int64(index%iterationChunk)*8); err != nil {
		return err
	}
	d.hdr.iterationCount++
	return d.hdr.save(d.st, d.hdrOff)
}

func (d *DiskDirectory) GetMapIdentifier(index uint64) (uint64, error) {
	if index >= d.hdr.iterationCount {
		return 0, fmt.Errorf("%w: iteration index %d of %d", ErrNotFound, index, d.hdr.iterationCount)
	}
	var buf [8]byte
	if err := d.st.ReadAt(buf[:], d.chunks[index/iterationChunk]+8+int64(index%iterationChunk)*8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (d *DiskDirectory) IterationCount() uint64 {
	return d.hdr.iterationCount
}

func (d *DiskDirectory) Clear() error {
	if err := d.st.WriteAt(make([]byte, 8<<d.hdr.loadFactor), d.hdr.rootOffset); err != nil {
		return err
	}
	for _, chunk := range d.chunks {
		d.st.Free(chunk, 8+iterationChunk*8)
	}
	d.chunks = nil
	d.hdr.iterationCount = 0
	d.hdr.iterationHead = 0
	d.hdr.iterationTail = 0
	return d.hdr.save(d.st, d.hdrOff)
}
