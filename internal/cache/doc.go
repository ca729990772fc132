// Package cache provides a SQLite-backed store of compiled kernels.
//
// A kernel is keyed by its request ID: the content hash of the concrete
// index statement, the target and the lowering options. The same request
// always lowers to the same loop IR, so a hit returns the stored IR
// without lowering again. Each entry also records the kernel ID (hash of
// the IR itself), the printed and JSON-encoded IR, lowering diagnostics and
// the run that produced it.
//
// # Ordering
//
//   - Every write is stamped with seq from a logical clock, never a
//     timestamp.
//   - Listing queries order by seq ASC, request_id ASC COLLATE BINARY.
//   - Run IDs are UUIDv7 and only identify the process that compiled a
//     kernel; they take no part in ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package cache
