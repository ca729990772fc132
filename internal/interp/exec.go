package interp

import (
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/typed"
)

func (m *machine) exec(s ir.Stmt) error {
	switch n := s.(type) {
	case nil:
		return nil
	case *ir.Block:
		if n == nil {
			return nil
		}
		for _, c := range n.Stmts {
			if err := m.exec(c); err != nil {
				return err
			}
		}
		return nil
	case *ir.VarDecl:
		v, err := m.eval(n.Init)
		if err != nil {
			return err
		}
		m.scalars[n.Var] = typed.Cast(n.Var.Type, v)
		return nil
	case *ir.Assign:
		return m.assign(n)
	case *ir.Store:
		return m.store(n)
	case *ir.For:
		return m.forLoop(n)
	case *ir.While:
		return m.whileLoop(n)
	case *ir.If:
		c, err := m.eval(n.Cond)
		if err != nil {
			return err
		}
		if c.Bool() {
			return m.exec(n.Then)
		}
		return m.exec(n.Else)
	case *ir.Allocate:
		return m.allocate(n)
	case *ir.Free:
		return m.free(n)
	case *ir.Yield:
		m.stats.Stages = append(m.stats.Stages, n.Stage)
		return nil
	case *ir.Comment:
		return nil
	case *ir.Assert:
		c, err := m.eval(n.Cond)
		if err != nil {
			return err
		}
		if !c.Bool() {
			return &AssertError{Message: n.Message}
		}
		return nil
	case *ir.Probe:
		c, err := m.eval(n.Coord)
		if err != nil {
			return err
		}
		m.stats.Visits[n.Label]++
		m.stats.Probes = append(m.stats.Probes, ProbeHit{Label: n.Label, Coord: c.Int64()})
		return nil
	case *ir.Break:
		return errBreak
	case *ir.Evaluate:
		_, err := m.eval(n.Expr)
		return err
	default:
		return fmt.Errorf("unknown statement %T", s)
	}
}

func (m *machine) assign(n *ir.Assign) error {
	v, err := m.eval(n.Value)
	if err != nil {
		return err
	}
	if n.Accumulate {
		cur, ok := m.scalars[n.Var]
		if !ok {
			return runtimeError(ErrCodeUndefined, "variable %s updated before declaration", n.Var.Name)
		}
		if v, err = typed.Add(n.Var.Type, cur, v); err != nil {
			return runtimeError(ErrCodeArithmetic, "%s += %s: %v", n.Var.Name, v, err)
		}
	}
	m.scalars[n.Var] = typed.Cast(n.Var.Type, v)
	return nil
}

func (m *machine) store(n *ir.Store) error {
	arr, err := m.arrayRef(n.Array, false)
	if err != nil {
		return err
	}
	i, err := m.index(arr, n.Index)
	if err != nil {
		return err
	}
	v, err := m.eval(n.Value)
	if err != nil {
		return err
	}
	if n.Accumulate {
		if v, err = typed.Add(arr.kind, arr.data[i], v); err != nil {
			return runtimeError(ErrCodeArithmetic, "%s[%d] += %s: %v", arr.name, i, v, err)
		}
	}
	if n.Atomic {
		m.stats.AtomicStores++
	}
	arr.data[i] = typed.Cast(arr.kind, v)
	return nil
}

func (m *machine) forLoop(n *ir.For) error {
	start, err := m.evalInt(n.Start)
	if err != nil {
		return err
	}
	end, err := m.evalInt(n.End)
	if err != nil {
		return err
	}
	step := int64(1)
	if n.Step != nil {
		if step, err = m.evalInt(n.Step); err != nil {
			return err
		}
	}
	if step <= 0 {
		return runtimeError(ErrCodeArithmetic, "loop over %s has step %d", n.Var.Name, step)
	}
	var iters []int64
	for i := start; i < end; i += step {
		iters = append(iters, i)
	}
	if n.Kind.IsParallel() && m.cfg.reverseParallel {
		for a, b := 0, len(iters)-1; a < b; a, b = a+1, b-1 {
			iters[a], iters[b] = iters[b], iters[a]
		}
	}
	for _, i := range iters {
		if err := m.step(); err != nil {
			return err
		}
		m.scalars[n.Var] = typed.Int(n.Var.Type, i)
		if err := m.exec(n.Body); err != nil {
			if err == errBreak {
				return nil
			}
			return err
		}
	}
	return nil
}

func (m *machine) whileLoop(n *ir.While) error {
	for {
		c, err := m.eval(n.Cond)
		if err != nil {
			return err
		}
		if !c.Bool() {
			return nil
		}
		if err := m.step(); err != nil {
			return err
		}
		if err := m.exec(n.Body); err != nil {
			if err == errBreak {
				return nil
			}
			return err
		}
	}
}

// allocate creates or resizes an array. New elements are always zero, so
// Clear only matters to backends with uninitialized memory.
func (m *machine) allocate(n *ir.Allocate) error {
	size, err := m.evalInt(n.Size)
	if err != nil {
		return err
	}
	if size < 0 {
		return runtimeError(ErrCodeOutOfBounds, "allocation of %d elements", size)
	}
	m.stats.Allocations++
	if n.Realloc {
		arr, err := m.arrayRef(n.Array, false)
		if err != nil {
			return err
		}
		if int(size) < len(arr.data) {
			arr.data = arr.data[:size]
			return nil
		}
		for len(arr.data) < int(size) {
			arr.data = append(arr.data, typed.Zero(arr.kind))
		}
		return nil
	}
	arr, err := m.arrayRef(n.Array, true)
	if err != nil {
		return err
	}
	arr.data = make([]typed.Value, size)
	for i := range arr.data {
		arr.data[i] = typed.Zero(arr.kind)
	}
	return nil
}

func (m *machine) free(n *ir.Free) error {
	switch a := n.Array.(type) {
	case *ir.Var:
		if _, ok := m.arrays[a]; !ok {
			return runtimeError(ErrCodeUndefined, "free of unallocated array %s", a.Name)
		}
		delete(m.arrays, a)
	case *ir.Property:
		s, ok := m.tensors[a.Tensor]
		if !ok {
			return runtimeError(ErrCodeUndefined, "free of unallocated %s", ir.PropertyName(a))
		}
		switch a.Kind {
		case ir.PropPos:
			delete(s.pos, a.Level)
		case ir.PropCrd:
			delete(s.crd, a.Level)
		case ir.PropVals:
			s.vals = nil
		}
	default:
		return fmt.Errorf("free of %T", n.Array)
	}
	return nil
}

// arrayRef resolves an array expression. With create, a missing array is
// made (empty) so an allocation can size it.
func (m *machine) arrayRef(e ir.Expr, create bool) (*array, error) {
	switch a := e.(type) {
	case *ir.Var:
		arr, ok := m.arrays[a]
		if !ok {
			if !create {
				return nil, runtimeError(ErrCodeUndefined, "array %s used before allocation", a.Name)
			}
			arr = &array{name: a.Name, kind: a.Type}
			m.arrays[a] = arr
		}
		return arr, nil
	case *ir.Property:
		s, ok := m.tensors[a.Tensor]
		if !ok {
			if !create {
				return nil, runtimeError(ErrCodeUndefined, "%s used before allocation", ir.PropertyName(a))
			}
			s = newStorage(nil)
			m.tensors[a.Tensor] = s
		}
		name := ir.PropertyName(a)
		switch a.Kind {
		case ir.PropPos:
			return levelArray(s.pos, a.Level, name, create)
		case ir.PropCrd:
			return levelArray(s.crd, a.Level, name, create)
		case ir.PropVals:
			if s.vals == nil {
				if !create {
					return nil, runtimeError(ErrCodeUndefined, "%s used before allocation", name)
				}
				s.vals = &array{name: name, kind: a.Tensor.Type}
			}
			return s.vals, nil
		default:
			return nil, runtimeError(ErrCodeUndefined, "%s is not an array", name)
		}
	default:
		return nil, fmt.Errorf("%T is not an array", e)
	}
}

func levelArray(arrays map[int]*array, level int, name string, create bool) (*array, error) {
	arr, ok := arrays[level]
	if !ok {
		if !create {
			return nil, runtimeError(ErrCodeUndefined, "%s used before allocation", name)
		}
		arr = &array{name: name, kind: ir.IndexType}
		arrays[level] = arr
	}
	return arr, nil
}

func (m *machine) index(arr *array, e ir.Expr) (int, error) {
	i, err := m.evalInt(e)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= int64(len(arr.data)) {
		return 0, runtimeError(ErrCodeOutOfBounds, "%s[%d] outside [0, %d)", arr.name, i, len(arr.data))
	}
	return int(i), nil
}
