// Package ir is the imperative loop IR produced by the lowering engine.
//
// The node set is fixed and backend agnostic: functions, blocks, variable
// declarations, assignments, loads and stores, for and while loops,
// conditionals, allocation and deallocation, and stage boundaries (Yield).
// Backends interpret the MemoryLocation tags carried by declarations and
// allocations; this package only preserves them.
//
// ir imports nothing internal except the scalar helper, so every other
// package can depend on it.
package ir
