package ir

// Version constants for the loop IR and the compiler.
const (
	// IRVersion is bumped whenever node shapes or printing change in a way
	// that invalidates cached kernels.
	IRVersion = "1"

	// CompilerVersion is the tensorc compiler version.
	CompilerVersion = "0.1.0"
)
