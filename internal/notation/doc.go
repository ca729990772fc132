// Package notation is the index-notation front end of the compiler.
//
// Statements are trees of Assignment, Forall, Where, Sequence and Multi
// nodes over expressions built from tensor Accesses, Literals and operator
// Calls. Operators are registered with DefineOperator and carry the
// iteration algebra that describes which coordinates of their operands they
// must visit.
//
// Typical use:
//
//	env := notation.NewEnv(a, b, c)
//	assign, err := env.Parse("a(i) = b(i) + c(i)")
//	stmt, err := notation.Concretize(assign)
//
// Concretize turns an assignment into a forall nest whose loop order agrees
// with every operand's storage order; Reorder, Parallelize and Precompute
// rewrite concrete statements. Validate checks a concrete statement and
// returns every schema error it finds.
//
// All nodes are immutable once built; transforms return new trees.
package notation
