// Package lower translates concrete index notation into loop IR.
//
// Lower walks a statement outside in. Every forall picks one of three
// strategies:
//
//   - dimension: every operand level over the variable is dense, so the
//     loop counts through the extent;
//   - position: a single sparse operand drives the loop over its position
//     segment;
//   - lattice: the variable's merge lattice is built and every live point
//     becomes a while loop whose body is an if-else cascade over the point's
//     sub-lattice.
//
// Case bodies specialize operator calls to the operands present in the case,
// so region overrides registered with notation.DefineOperator decide what
// each case computes. Sparse results are assembled by appending coordinates
// and recording segment sizes, which a prefix sum in the epilogue turns into
// position arrays. Where statements get dense or sparse workspaces whose
// lifetime is managed by the lowerer.
//
// The target profile decides memory locations, how parallel reductions are
// resolved and whether sequenced statements are separated by stage
// boundaries.
package lower
