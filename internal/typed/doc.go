// Package typed is the dynamically typed scalar helper used for constant
// folding during lowering and for arithmetic in the reference interpreter.
//
// A Value is a tagged union over the component kinds a tensor may hold. All
// arithmetic goes through a single switch on the Kind tag: Add, Multiply and
// Compare take the kind to compute in, cast both operands to it, and return a
// Value of that kind. Integer results wrap to the width of their kind.
package typed
