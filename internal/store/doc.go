// Package store provides SQLite-backed storage for finalized types.
//
// A build step records each type it finalizes so later tools can inspect
// the emitted members without rebuilding them:
//   - Builds: one row per build, ordered by seq
//   - Types: name, base and a fingerprint over the member fingerprints
//   - Members: listing, canonical JSON and fingerprint of each implemented
//     member
//
// # Critical Patterns
//
// Logical Time
//   - Builds are ordered by seq INTEGER, never by timestamps
//   - Build ids are UUIDv7 and sort by creation
//
// Deterministic Query Results
//   - Types and members are read ORDER BY name/key COLLATE BINARY
//
// Content Addressing
//   - Member fingerprints are SHA-256 over the canonical form with the
//     ir.DomainMember prefix, identical to lower.EmittedMember.Fingerprint
//   - Verify recomputes every fingerprint from stored content
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
