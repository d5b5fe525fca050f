package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/refdb/internal/fs"
)

// Durability controls the durability guarantees of the journal.
type Durability int

const (
	// DurabilityAsync relies on OS page cache. Fast but risky.
	DurabilityAsync Durability = iota
	// DurabilitySync fsyncs before Append returns.
	DurabilitySync
)

const (
	journalMagic      = "REFDBJNL"
	journalVersion    = 1
	journalHeaderSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("journal: incompatible version")
	ErrInvalidHeader       = errors.New("journal: invalid header")
)

// Options configures a Journal.
type Options struct {
	Durability Durability
}

// DefaultOptions returns synchronous durability.
func DefaultOptions() Options {
	return Options{Durability: DurabilitySync}
}

// Journal manages the journal file.
type Journal struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	file fs.File
	cw   *countingWriter
	path string
	opts Options
	lsn  uint64

	// Group commit state
	syncedOffset int64
	syncCond     *sync.Cond // wakes the syncer
	doneCond     *sync.Cond // wakes waiters after a sync
	closed       bool
	lastErr      error // terminal syncer error
	wg           sync.WaitGroup
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error {
	return cw.w.Flush()
}

// Open opens or creates the journal at path. Entries after the last valid
// one are truncated.
func Open(fsys fs.FileSystem, path string, opts Options) (*Journal, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	end, lsn, err := scanTail(fsys, path)
	if err != nil {
		return nil, err
	}

	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if end == 0 {
		header := make([]byte, journalHeaderSize)
		copy(header[0:8], journalMagic)
		binary.LittleEndian.PutUint32(header[8:12], journalVersion)
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		end = journalHeaderSize
	}

	j := &Journal{
		fs:           fsys,
		file:         f,
		cw:           &countingWriter{w: bufio.NewWriter(f), n: end},
		path:         path,
		opts:         opts,
		lsn:          lsn,
		syncedOffset: end,
	}
	j.syncCond = sync.NewCond(&j.mu)
	j.doneCond = sync.NewCond(&j.mu)

	if opts.Durability == DurabilitySync {
		j.wg.Add(1)
		go j.runSyncer()
	}
	return j, nil
}

// scanTail validates an existing journal, truncates a torn tail and returns
// the end of the last valid entry and its LSN. A missing file returns 0.
func scanTail(fsys fs.FileSystem, path string) (int64, uint64, error) {
	st, err := fsys.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if st.Size() == 0 {
		return 0, 0, nil
	}

	r, err := openReader(fsys, path)
	if err != nil {
		return 0, 0, err
	}
	var lsn uint64
	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		lsn = rec.LSN
	}
	end := r.Offset()
	if err := r.Close(); err != nil {
		return 0, 0, err
	}

	if end < st.Size() {
		if err := fsys.Truncate(path, end); err != nil {
			return 0, 0, fmt.Errorf("journal: truncate torn tail: %w", err)
		}
	}
	return end, lsn, nil
}

// Size returns the current size of the journal in bytes.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cw.n
}

// LSN returns the sequence number of the last appended entry.
func (j *Journal) LSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lsn
}

func (j *Journal) runSyncer() {
	defer j.wg.Done()
	j.mu.Lock()
	defer j.mu.Unlock()

	for {
		for j.cw.n <= j.syncedOffset && !j.closed {
			j.syncCond.Wait()
		}
		if j.closed && j.cw.n <= j.syncedOffset {
			return
		}

		target := j.cw.n

		j.mu.Unlock()
		err := j.file.Sync()
		j.mu.Lock()

		if err != nil {
			j.lastErr = fmt.Errorf("journal: sync failed: %w", err)
			j.doneCond.Broadcast()
			return
		}
		if target > j.syncedOffset {
			j.syncedOffset = target
		}
		j.doneCond.Broadcast()
	}
}

// Append assigns the next LSN to rec and writes it, honouring the
// configured durability.
func (j *Journal) Append(rec *Record) error {
	offset, err := j.AppendAsync(rec)
	if err != nil {
		return err
	}
	if j.opts.Durability == DurabilitySync {
		return j.WaitFor(offset)
	}
	return nil
}

// AppendAsync writes rec without waiting for sync and returns the file
// offset of the end of the entry.
func (j *Journal) AppendAsync(rec *Record) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, os.ErrClosed
	}
	if j.lastErr != nil {
		return 0, j.lastErr
	}

	rec.LSN = j.lsn + 1
	if err := rec.Encode(j.cw); err != nil {
		return 0, err
	}
	if err := j.cw.Flush(); err != nil {
		return 0, err
	}
	j.lsn = rec.LSN

	if j.opts.Durability == DurabilitySync {
		j.syncCond.Signal()
	}
	return j.cw.n, nil
}

// WaitFor waits until the journal is synced up to offset.
func (j *Journal) WaitFor(offset int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.syncedOffset < offset && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	if j.lastErr != nil {
		return j.lastErr
	}
	if j.closed && j.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// Sync commits all buffered entries to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return os.ErrClosed
	}
	if j.lastErr != nil {
		return j.lastErr
	}
	if err := j.cw.Flush(); err != nil {
		return err
	}
	if j.opts.Durability == DurabilityAsync {
		return j.file.Sync()
	}

	target := j.cw.n
	j.syncCond.Signal()
	for j.syncedOffset < target && !j.closed && j.lastErr == nil {
		j.doneCond.Wait()
	}
	return j.lastErr
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}
	if err := j.cw.Flush(); err != nil {
		j.mu.Unlock()
		j.file.Close()
		return err
	}
	j.closed = true
	j.syncCond.Signal()
	j.mu.Unlock()

	j.wg.Wait()
	return j.file.Close()
}

// Reader returns a reader over the entries written so far.
func (j *Journal) Reader() (*Reader, error) {
	if err := j.Sync(); err != nil {
		return nil, err
	}
	return openReader(j.fs, j.path)
}

func openReader(fsys fs.FileSystem, path string) (*Reader, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	header := make([]byte, journalHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if string(header[0:8]) != journalMagic {
		f.Close()
		return nil, fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[0:8])
	}
	if ver := binary.LittleEndian.Uint32(header[8:12]); ver != journalVersion {
		f.Close()
		return nil, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, journalVersion)
	}
	return &Reader{f: f, r: bufio.NewReader(f), offset: journalHeaderSize}, nil
}

// Reader iterates over journal entries.
type Reader struct {
	f      fs.File
	r      *bufio.Reader
	offset int64
}

// Next reads the next entry. It returns io.EOF at the end of the journal.
func (r *Reader) Next() (*Record, error) {
	rec, n, err := Decode(r.r)
	if err == nil {
		r.offset += n
	}
	return rec, err
}

// Offset returns the end of the last entry read successfully.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Replay calls fn for every valid entry of the journal at path, stopping
// silently at a torn tail.
func Replay(fsys fs.FileSystem, path string, fn func(*Record) error) (int, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	r, err := openReader(fsys, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for {
		rec, err := r.Next()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrInvalidCRC):
			return n, nil
		case err != nil:
			return n, err
		}
		if err := fn(rec); err != nil {
			return n, fmt.Errorf("journal: replay lsn %d: %w", rec.LSN, err)
		}
		n++
	}
}
