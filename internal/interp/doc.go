// Package interp executes loop IR kernels directly.
//
// The interpreter is the reference backend: it runs a lowered *ir.Function
// against packed tensors, honouring every statement of the IR including
// allocation growth, atomic stores, assertions and probes. Tests use it to
// check lowered kernels against dense ground truth and to count how often
// each merge case fires.
//
// Execution is single threaded and deterministic. Parallel loops run their
// iterations in order, or in reverse with WithReversedParallel, which
// exposes kernels that depend on the order of parallel iterations.
package interp
