package ir

import (
	"github.com/roach88/tensorc/internal/typed"
)

// Node is any loop IR node.
//
// This is a sealed interface: only types in this package implement it, so
// backends can switch exhaustively over the node set.
type Node interface {
	irNode()
}

// Expr is a value-producing node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is an effectful node.
type Stmt interface {
	Node
	stmtNode()
}

// MemoryLocation tags where a backend should place a buffer or variable.
// The set is open: backends may define their own values.
type MemoryLocation string

const (
	LocDefault     MemoryLocation = ""
	LocHeap        MemoryLocation = "heap"
	LocStack       MemoryLocation = "stack"
	LocRegister    MemoryLocation = "register"
	LocThreadLocal MemoryLocation = "thread_local"
	LocShared      MemoryLocation = "shared"
)

// VarKind distinguishes scalars, arrays and tensor parameters.
type VarKind uint8

const (
	Scalar VarKind = iota
	Array
	Tensor
)

// Var is a named variable. Vars are compared by pointer identity; two Vars
// with the same name are different variables to the IR (the lowering engine
// keeps names unique per function).
type Var struct {
	Name string
	Type typed.Kind
	Kind VarKind
}

// Literal is a constant scalar.
type Literal struct {
	Value typed.Value
}

// BinaryOp enumerates the binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpMin
	OpMax
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
)

var binaryOpSymbols = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpRem: "%",
	OpMin: "min", OpMax: "max",
	OpEq: "==", OpNeq: "!=", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
	OpAnd: "&&", OpOr: "||",
}

func (op BinaryOp) String() string { return binaryOpSymbols[op] }

// IsComparison reports whether op yields a bool.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpOr
}

// Binary applies a binary operator. Min and Max print as calls.
type Binary struct {
	Op   BinaryOp
	A, B Expr
}

// UnaryOp enumerates the unary operators.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Unary applies a unary operator.
type Unary struct {
	Op UnaryOp
	A  Expr
}

// Load reads Array[Index].
type Load struct {
	Array Expr
	Index Expr
}

// PropertyKind names a tensor storage property.
type PropertyKind uint8

const (
	PropDimension PropertyKind = iota
	PropPos
	PropCrd
	PropVals
	PropValsCapacity
)

var propertySuffix = map[PropertyKind]string{
	PropDimension:    "dimension",
	PropPos:          "pos",
	PropCrd:          "crd",
	PropVals:         "vals",
	PropValsCapacity: "vals_capacity",
}

func (p PropertyKind) String() string { return propertySuffix[p] }

// Property reads a storage property of a tensor parameter: the dimension,
// pos or crd array of a level (Level is 1-based in names), or the values.
type Property struct {
	Tensor *Var
	Kind   PropertyKind
	// Level is the 0-based storage level; ignored for vals.
	Level int
	// Dim is the tensor dimension a PropDimension reads.
	Dim int
}

// Call invokes a builtin function by name.
type Call struct {
	Func string
	Args []Expr
	Type typed.Kind
}

// Cast converts A to Type.
type Cast struct {
	Type typed.Kind
	A    Expr
}

func (*Var) irNode()      {}
func (*Literal) irNode()  {}
func (*Binary) irNode()   {}
func (*Unary) irNode()    {}
func (*Load) irNode()     {}
func (*Property) irNode() {}
func (*Call) irNode()     {}
func (*Cast) irNode()     {}

func (*Var) exprNode()      {}
func (*Literal) exprNode()  {}
func (*Binary) exprNode()   {}
func (*Unary) exprNode()    {}
func (*Load) exprNode()     {}
func (*Property) exprNode() {}
func (*Call) exprNode()     {}
func (*Cast) exprNode()     {}

// Block is a statement sequence.
type Block struct {
	Stmts []Stmt
}

// VarDecl declares and initializes a scalar.
type VarDecl struct {
	Var  *Var
	Init Expr
	Loc  MemoryLocation
}

// Assign sets a scalar. With Accumulate the value is added (Var += Value).
type Assign struct {
	Var        *Var
	Value      Expr
	Accumulate bool
}

// Store writes Array[Index] = Value, or += when Accumulate is set. Atomic
// stores must be performed indivisibly by the backend.
type Store struct {
	Array      Expr
	Index      Expr
	Value      Expr
	Accumulate bool
	Atomic     bool
}

// LoopKind is the execution annotation of a For loop.
type LoopKind uint8

const (
	Serial LoopKind = iota
	ParallelStatic
	ParallelDynamic
	ParallelChunked
	Vectorized
)

var loopKindNames = map[LoopKind]string{
	Serial:          "serial",
	ParallelStatic:  "parallel_static",
	ParallelDynamic: "parallel_dynamic",
	ParallelChunked: "parallel_chunked",
	Vectorized:      "vectorized",
}

func (k LoopKind) String() string { return loopKindNames[k] }

// IsParallel reports whether iterations may run concurrently.
func (k LoopKind) IsParallel() bool {
	return k == ParallelStatic || k == ParallelDynamic || k == ParallelChunked
}

// Reduction is a loop reduction clause: each thread accumulates Var locally
// with Op and the partial results are merged after the loop.
type Reduction struct {
	Op  BinaryOp
	Var *Var
}

// For iterates Var from Start (inclusive) to End (exclusive) by Step.
type For struct {
	Var       *Var
	Start     Expr
	End       Expr
	Step      Expr
	Kind      LoopKind
	Chunk     int
	Reduction *Reduction
	Body      Stmt
}

// While repeats Body while Cond holds.
type While struct {
	Cond Expr
	Body Stmt
}

// If branches on Cond. Else may be nil.
type If struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// Allocate allocates (or with Realloc, grows) an array to Size elements.
// Array is a *Var or a *Property of an output tensor. Clear zero-initializes
// new memory.
type Allocate struct {
	Array   Expr
	Size    Expr
	Realloc bool
	Clear   bool
	Loc     MemoryLocation
}

// Free releases memory allocated by Allocate.
type Free struct {
	Array Expr
}

// Yield marks a stage boundary. Sequential backends ignore it; staged
// backends turn it into their own suspension point.
type Yield struct {
	Stage string
}

// Comment is carried through to printed output.
type Comment struct {
	Text string
}

// Assert aborts execution with Message when Cond is false.
type Assert struct {
	Cond    Expr
	Message string
}

// Probe records that Label fired at Coord. Instrumented kernels use probes
// to count merge point visits.
type Probe struct {
	Label string
	Coord Expr
}

// Break exits the innermost loop.
type Break struct{}

// Evaluate evaluates an expression for its side effects.
type Evaluate struct {
	Expr Expr
}

func (*Block) irNode()    {}
func (*VarDecl) irNode()  {}
func (*Assign) irNode()   {}
func (*Store) irNode()    {}
func (*For) irNode()      {}
func (*While) irNode()    {}
func (*If) irNode()       {}
func (*Allocate) irNode() {}
func (*Free) irNode()     {}
func (*Yield) irNode()    {}
func (*Comment) irNode()  {}
func (*Assert) irNode()   {}
func (*Probe) irNode()    {}
func (*Break) irNode()    {}
func (*Evaluate) irNode() {}

func (*Block) stmtNode()    {}
func (*VarDecl) stmtNode()  {}
func (*Assign) stmtNode()   {}
func (*Store) stmtNode()    {}
func (*For) stmtNode()      {}
func (*While) stmtNode()    {}
func (*If) stmtNode()       {}
func (*Allocate) stmtNode() {}
func (*Free) stmtNode()     {}
func (*Yield) stmtNode()    {}
func (*Comment) stmtNode()  {}
func (*Assert) stmtNode()   {}
func (*Probe) stmtNode()    {}
func (*Break) stmtNode()    {}
func (*Evaluate) stmtNode() {}

// Function is a compiled kernel. Outputs and Inputs are tensor parameters.
type Function struct {
	Name    string
	Outputs []*Var
	Inputs  []*Var
	Body    *Block
}

func (*Function) irNode() {}

// Params returns outputs followed by inputs.
func (f *Function) Params() []*Var {
	out := make([]*Var, 0, len(f.Outputs)+len(f.Inputs))
	out = append(out, f.Outputs...)
	return append(out, f.Inputs...)
}
