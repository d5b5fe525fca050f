// Package journal implements an append-only log of record writes.
//
// Each entry is framed as [CRC32C][type][LSN][length][payload]. With
// DurabilitySync, Append returns once the entry is fsync'd; concurrent
// appenders share one fsync (group commit). A torn tail left by a crash is
// truncated on Open.
//
// The journal records logical writes only. It does not make the disk maps
// crash-consistent; it allows re-applying writes into a fresh database.
package journal
