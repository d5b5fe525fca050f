// Package store implements the volume: a single byte-addressable file that
// hands out blocks by offset.
//
// # Layout
//
//	offset 0   superblock (64 bytes)
//	           [0:8]   logical size (next free byte)
//	           [8:16]  magic "REFDBVOL"
//	           [16:20] format version
//	           [20:36] volume id (UUID)
//	           [36:44] offset of the first root directory block
//	           [44:48] CRC32C over [0:44]
//	offset 64+ blocks returned by Allocate
//
// Offsets are stable for the lifetime of a block, which makes them usable as
// references by higher layers. Offset 0 is never a valid block and is used as
// the nil reference.
//
// # Root directory
//
// Every top-level structure (one per named map) owns one fixed-size header
// slot of [HeaderSize] bytes. [Store.Root] resolves a name to its slot,
// creating it on first use. The name to slot mapping is persisted in a chain
// of directory blocks and survives reopening the volume.
//
// # Free space
//
// Freed blocks are indexed in a B-tree ordered by (size, offset) and reused
// best-fit by Allocate. The free index lives in memory only: space freed in
// one session and not reused before Close is not reclaimed after reopening.
package store
