// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [UserRepository] : song owners, soft deleted
//   - [SongRepository] : saved songs, their legacy lyrics mirror and fetch state
//   - [LyricsRepository] : lyrics documents, lines and the bounded snapshot history
//   - [AnnotationRepository] : per-user line annotations
//
// Songs and users carry sequence numbers for stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
//
// Every repository accepts a [shared.DBTX], so multi-step writes can share one transaction.
package repositories
