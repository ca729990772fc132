package notation

import (
	"fmt"
	"strings"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/typed"
)

// IndexVar is a named loop dimension. Index variables are compared by
// identity: two IndexVars named "i" are different variables.
type IndexVar struct {
	name string
}

// NewIndexVar returns a fresh index variable.
func NewIndexVar(name string) *IndexVar {
	return &IndexVar{name: name}
}

// NewIndexVars returns one fresh variable per name.
func NewIndexVars(names ...string) []*IndexVar {
	out := make([]*IndexVar, len(names))
	for i, n := range names {
		out[i] = NewIndexVar(n)
	}
	return out
}

// Name returns the variable's name.
func (v *IndexVar) Name() string { return v.name }

func (v *IndexVar) String() string { return v.name }

// TensorVar is a tensor operand or result: a name, a component kind, a
// shape and a storage format with one level per dimension.
type TensorVar struct {
	Name   string
	Type   typed.Kind
	Shape  []int
	Format format.Format
}

// NewTensor declares a tensor. A zero format for a non-scalar shape means
// all-dense storage.
func NewTensor(name string, kind typed.Kind, shape []int, f format.Format) *TensorVar {
	if f.Order() == 0 && len(shape) > 0 {
		modes := make([]format.ModeFormat, len(shape))
		for i := range modes {
			modes[i] = format.DenseMode
		}
		f = format.New(modes...)
	}
	return &TensorVar{
		Name:   name,
		Type:   kind,
		Shape:  append([]int(nil), shape...),
		Format: f,
	}
}

// NewScalar declares an order-0 tensor.
func NewScalar(name string, kind typed.Kind) *TensorVar {
	return NewTensor(name, kind, nil, format.Scalar)
}

// Order returns the number of dimensions.
func (t *TensorVar) Order() int { return len(t.Shape) }

// At builds an access of t indexed by vars.
func (t *TensorVar) At(vars ...*IndexVar) *Access {
	return &Access{Tensor: t, Indices: append([]*IndexVar(nil), vars...)}
}

func (t *TensorVar) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s: %s[%s] %s", t.Name, t.Type, strings.Join(dims, ","), t.Format)
}
