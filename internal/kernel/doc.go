// Package kernel reads kernel definitions written in CUE.
//
// A kernel file declares tensors with their component type, shape and
// storage format, an index-notation statement and an ordered schedule:
//
//	kernel: spmv: {
//		expr: "y(i) = A(i,j) * x(j)"
//		tensor: {
//			y: {shape: [4]}
//			A: {shape: [4, 5], format: "ds"}
//			x: {shape: [5]}
//		}
//		schedule: [{parallelize: {index: "i", kind: "parallel_static"}}]
//	}
//
// Compile reads the CUE value, Validate collects schema problems, and
// Build turns the kernel into concrete index notation ready for lowering.
package kernel
