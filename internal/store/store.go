package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/hupe1980/refdb/internal/fs"
	"github.com/hupe1980/refdb/internal/hash"
)

// Superblock layout, little endian:
//
//	[0:8)   logical size
//	[8:16)  magic
//	[16:20) format version
//	[20:36) volume id
//	[36:44) first directory block
//	[44:52) free list block, 0 when none
//	[52:56) CRC32C of [0:52)
const (
	magic          = "REFDBVOL"
	formatVersion  = 2
	superblockSize = 64
	sbCRCOffset    = 52

	freeHeaderSize = 16
	freeEntrySize  = 16

	// HeaderSize is the size of a root header slot.
	HeaderSize = 128

	// MaxNameLen is the longest name accepted by Root.
	MaxNameLen = 55

	dirEntrySize = 64
	dirCapacity  = 63
	dirBlockSize = 16 + dirCapacity*dirEntrySize

	alignment = 8
	minSplit  = 32
)

type extent struct {
	size int64
	off  int64
}

func extentLess(a, b extent) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.off < b.off
}

// Store is a volume file. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	path   string
	file   fs.File
	logger *slog.Logger

	id      uuid.UUID
	size    atomic.Int64
	free    *btree.BTreeG[extent]
	roots   map[string]int64
	dirs    []int64 // directory block offsets, chain order
	dirUsed int     // entries used in the last directory block
	freeOff int64   // persisted free list, set only while closing
	closed  bool
}

// Open opens or creates the volume at path and takes an exclusive lock on it.
func Open(path string, optFns ...Option) (*Store, error) {
	opts := applyOptions(optFns)

	f, err := opts.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := fs.Lock(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	s := &Store{
		path:   path,
		file:   f,
		logger: opts.logger,
		free:   btree.NewG(16, extentLess),
		roots:  make(map[string]int64),
	}

	if err := s.init(); err != nil {
		_ = fs.Unlock(f)
		_ = f.Close()
		return nil, err
	}

	s.logger.Info("volume opened", "path", path, "id", s.id.String(), "size", s.size.Load(), "roots", len(s.roots))
	return s, nil
}

func (s *Store) init() error {
	stat, err := s.file.Stat()
	if err != nil {
		return err
	}

	if stat.Size() == 0 {
		s.id = uuid.New()
		s.size.Store(superblockSize)
		return s.writeSuperblock()
	}

	if stat.Size() < superblockSize {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrCorrupt, stat.Size())
	}

	sb := make([]byte, superblockSize)
	if _, err := s.file.ReadAt(sb, 0); err != nil {
		return err
	}
	if string(sb[8:16]) != magic {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, sb[8:16])
	}
	if crc := binary.LittleEndian.Uint32(sb[sbCRCOffset:]); crc != hash.CRC32C(sb[:sbCRCOffset]) {
		return fmt.Errorf("%w: superblock checksum mismatch", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(sb[16:20]); v != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	s.size.Store(int64(binary.LittleEndian.Uint64(sb[0:8])))
	copy(s.id[:], sb[20:36])

	if err := s.loadDirectory(int64(binary.LittleEndian.Uint64(sb[36:44]))); err != nil {
		return err
	}
	if off := int64(binary.LittleEndian.Uint64(sb[44:52])); off != 0 {
		return s.loadFreeList(off)
	}
	return nil
}

// loadFreeList reads the free list written by Close and detaches it from the
// superblock, so a crash before the next Close leaks the listed extents
// instead of handing them out twice. A damaged list is dropped.
func (s *Store) loadFreeList(off int64) error {
	if err := s.readFreeList(off); err != nil {
		s.logger.Warn("free list dropped", "path", s.path, "offset", off, "error", err)
		s.free.Clear(false)
	}
	if err := s.writeSuperblock(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *Store) readFreeList(off int64) error {
	header := make([]byte, freeHeaderSize)
	if err := s.readAt(header, off); err != nil {
		return err
	}
	blockSize := int64(binary.LittleEndian.Uint64(header[0:8]))
	count := int64(binary.LittleEndian.Uint32(header[8:12]))
	if freeHeaderSize+count*freeEntrySize > blockSize {
		return fmt.Errorf("%w: free list of %d entries in %d bytes", ErrCorrupt, count, blockSize)
	}
	block := make([]byte, freeHeaderSize+count*freeEntrySize)
	if err := s.readAt(block, off); err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(block[12:16]) != freeListCRC(block) {
		return fmt.Errorf("%w: free list checksum mismatch", ErrCorrupt)
	}
	for i := range count {
		e := block[freeHeaderSize+i*freeEntrySize:]
		ext := extent{size: int64(binary.LittleEndian.Uint64(e[0:8])), off: int64(binary.LittleEndian.Uint64(e[8:16]))}
		if ext.off < superblockSize || ext.size <= 0 || ext.off+ext.size > s.size.Load() {
			return fmt.Errorf("%w: free extent %+v", ErrCorrupt, ext)
		}
		s.free.ReplaceOrInsert(ext)
	}
	s.free.ReplaceOrInsert(extent{size: blockSize, off: off})
	return nil
}

// storeFreeList writes the free extents into a block and points the
// superblock at it. Must be called with s.mu held, before the final
// superblock write.
func (s *Store) storeFreeList() error {
	s.freeOff = 0
	if s.free.Len() == 0 {
		return nil
	}
	// The block may come from the list itself, which only shrinks it.
	blockSize := align(int64(freeHeaderSize + s.free.Len()*freeEntrySize))
	off, ok := s.takeFree(blockSize)
	if !ok {
		off = s.size.Load()
		s.size.Store(off + blockSize)
	}

	block := make([]byte, freeHeaderSize, freeHeaderSize+s.free.Len()*freeEntrySize)
	binary.LittleEndian.PutUint64(block[0:8], uint64(blockSize))
	binary.LittleEndian.PutUint32(block[8:12], uint32(s.free.Len()))
	s.free.Ascend(func(e extent) bool {
		block = binary.LittleEndian.AppendUint64(block, uint64(e.size))
		block = binary.LittleEndian.AppendUint64(block, uint64(e.off))
		return true
	})
	binary.LittleEndian.PutUint32(block[12:16], freeListCRC(block))
	if err := s.writeAtLocked(block, off); err != nil {
		return err
	}
	s.freeOff = off
	return nil
}

func freeListCRC(block []byte) uint32 {
	return hash.CRC32C(append(block[:12:12], block[freeHeaderSize:]...))
}

func (s *Store) loadDirectory(off int64) error {
	block := make([]byte, dirBlockSize)
	for off != 0 {
		if err := s.readAt(block, off); err != nil {
			return err
		}
		count := int(binary.LittleEndian.Uint32(block[8:12]))
		if count > dirCapacity {
			return fmt.Errorf("%w: directory block at %d has %d entries", ErrCorrupt, off, count)
		}
		for i := range count {
			e := block[16+i*dirEntrySize:]
			n := int(e[0])
			if n == 0 || n > MaxNameLen {
				return fmt.Errorf("%w: directory entry %d at %d", ErrCorrupt, i, off)
			}
			s.roots[string(e[1:1+n])] = int64(binary.LittleEndian.Uint64(e[56:64]))
		}
		s.dirs = append(s.dirs, off)
		s.dirUsed = count
		off = int64(binary.LittleEndian.Uint64(block[0:8]))
	}
	return nil
}

// writeSuperblock must be called with s.mu held or before s is shared.
func (s *Store) writeSuperblock() error {
	sb := make([]byte, superblockSize)
	binary.LittleEndian.PutUint64(sb[0:8], uint64(s.size.Load()))
	copy(sb[8:16], magic)
	binary.LittleEndian.PutUint32(sb[16:20], formatVersion)
	copy(sb[20:36], s.id[:])
	if len(s.dirs) > 0 {
		binary.LittleEndian.PutUint64(sb[36:44], uint64(s.dirs[0]))
	}
	binary.LittleEndian.PutUint64(sb[44:52], uint64(s.freeOff))
	binary.LittleEndian.PutUint32(sb[sbCRCOffset:], hash.CRC32C(sb[:sbCRCOffset]))
	_, err := s.file.WriteAt(sb, 0)
	return err
}

// ID returns the volume id assigned at creation.
func (s *Store) ID() uuid.UUID { return s.id }

// Path returns the volume file path.
func (s *Store) Path() string { return s.path }

// Size returns the logical size of the volume in bytes.
func (s *Store) Size() int64 { return s.size.Load() }

func align(n int64) int64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Allocate reserves a block of at least size bytes and returns its offset.
// The block contents are unspecified; use AllocateZeroed for a cleared block.
func (s *Store) Allocate(size int) (int64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("store: invalid allocation size %d", size)
	}
	n := align(int64(size))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if off, ok := s.takeFree(n); ok {
		return off, nil
	}

	off := s.size.Load()
	s.size.Store(off + n)
	if err := s.writeSuperblock(); err != nil {
		s.size.Store(off)
		return 0, err
	}
	return off, nil
}

// AllocateZeroed reserves a block and fills it with zeros.
func (s *Store) AllocateZeroed(size int) (int64, error) {
	off, err := s.Allocate(size)
	if err != nil {
		return 0, err
	}
	if err := s.WriteAt(make([]byte, size), off); err != nil {
		return 0, err
	}
	return off, nil
}

func (s *Store) takeFree(n int64) (int64, bool) {
	var found extent
	ok := false
	s.free.AscendGreaterOrEqual(extent{size: n}, func(e extent) bool {
		found, ok = e, true
		return false
	})
	if !ok {
		return 0, false
	}
	s.free.Delete(found)
	if rem := found.size - n; rem >= minSplit {
		s.free.ReplaceOrInsert(extent{size: rem, off: found.off + n})
	}
	return found.off, true
}

// Free returns a block of the given size to the free index.
func (s *Store) Free(off int64, size int) {
	if off < superblockSize || size <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.free.ReplaceOrInsert(extent{size: align(int64(size)), off: off})
}

// FreeBytes returns the number of bytes available for reuse.
func (s *Store) FreeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	s.free.Ascend(func(e extent) bool {
		total += e.size
		return true
	})
	return total
}

// ReadAt fills p from offset off.
func (s *Store) ReadAt(p []byte, off int64) error {
	return s.readAt(p, off)
}

func (s *Store) readAt(p []byte, off int64) error {
	if off < superblockSize || off+int64(len(p)) > s.size.Load() {
		return fmt.Errorf("%w: read [%d, %d) of %d", ErrOutOfBounds, off, off+int64(len(p)), s.size.Load())
	}
	n, err := s.file.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		// Allocated but never written tail.
		clear(p[n:])
		return nil
	}
	return err
}

// WriteAt writes p at offset off, which must lie inside an allocated block.
func (s *Store) WriteAt(p []byte, off int64) error {
	if off < superblockSize || off+int64(len(p)) > s.size.Load() {
		return fmt.Errorf("%w: write [%d, %d) of %d", ErrOutOfBounds, off, off+int64(len(p)), s.size.Load())
	}
	_, err := s.file.WriteAt(p, off)
	return err
}

// Root returns the offset of the header slot registered under name,
// creating a zeroed slot on first use. The second result reports creation.
func (s *Store) Root(name string) (int64, bool, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return 0, false, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, false, ErrClosed
	}
	if off, ok := s.roots[name]; ok {
		s.mu.Unlock()
		return off, false, nil
	}
	s.mu.Unlock()

	// Allocate outside the lock, then re-check under it.
	slot, err := s.AllocateZeroed(HeaderSize)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if off, ok := s.roots[name]; ok {
		s.free.ReplaceOrInsert(extent{size: HeaderSize, off: slot})
		return off, false, nil
	}
	if err := s.appendDirEntry(name, slot); err != nil {
		return 0, false, err
	}
	s.roots[name] = slot
	return slot, true, nil
}

// Roots returns the names of all registered root slots.
func (s *Store) Roots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.roots))
	for name := range s.roots {
		names = append(names, name)
	}
	return names
}

// appendDirEntry must be called with s.mu held.
func (s *Store) appendDirEntry(name string, slot int64) error {
	if len(s.dirs) == 0 || s.dirUsed == dirCapacity {
		off := s.size.Load()
		s.size.Store(off + align(dirBlockSize))
		if err := s.writeAtLocked(make([]byte, dirBlockSize), off); err != nil {
			return err
		}
		if len(s.dirs) > 0 {
			var next [8]byte
			binary.LittleEndian.PutUint64(next[:], uint64(off))
			if err := s.writeAtLocked(next[:], s.dirs[len(s.dirs)-1]); err != nil {
				return err
			}
		}
		s.dirs = append(s.dirs, off)
		s.dirUsed = 0
		if err := s.writeSuperblock(); err != nil {
			return err
		}
	}

	block := s.dirs[len(s.dirs)-1]
	entry := make([]byte, dirEntrySize)
	entry[0] = byte(len(name))
	copy(entry[1:], name)
	binary.LittleEndian.PutUint64(entry[56:64], uint64(slot))
	if err := s.writeAtLocked(entry, block+16+int64(s.dirUsed)*dirEntrySize); err != nil {
		return err
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(s.dirUsed+1))
	if err := s.writeAtLocked(count[:], block+8); err != nil {
		return err
	}
	s.dirUsed++
	return nil
}

func (s *Store) writeAtLocked(p []byte, off int64) error {
	_, err := s.file.WriteAt(p, off)
	return err
}

// Sync persists the superblock and flushes the file to stable storage.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.writeSuperblock(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Close writes the free list, syncs, unlocks and closes the volume file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var errs []error
	if err := s.storeFreeList(); err != nil {
		errs = append(errs, fmt.Errorf("store free list: %w", err))
	}
	if err := s.writeSuperblock(); err != nil {
		errs = append(errs, err)
	}
	if err := s.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.Unlock(s.file); err != nil {
		errs = append(errs, err)
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("volume closed", "path", s.path, "size", s.size.Load())
	return errors.Join(errs...)
}

// RootName joins parts with '/' into a root name. Names longer than
// MaxNameLen keep a readable prefix and end in a hash of the full name.
func RootName(parts ...string) string {
	name := strings.Join(parts, "/")
	if len(name) <= MaxNameLen {
		return name
	}
	sum := strconv.FormatUint(hash.Key([]byte(name)), 16)
	return name[:MaxNameLen-len(sum)-1] + "~" + sum
}
