// Package tensor holds concrete tensor data laid out in the level arrays of
// a storage format. It packs coordinate lists into those arrays, unpacks
// them again and computes dense ground truth for tests.
package tensor

import (
	"fmt"
	"sort"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/typed"
)

// Entry is one stored component: its coordinates in tensor dimension order
// and its value.
type Entry struct {
	Coords []int
	Value  typed.Value
}

// Tensor is a tensor stored in a format. Pos and Crd hold one array per
// storage level; Pos is nil for dense and singleton levels, Crd is nil for
// dense levels. Vals holds one value per position of the last level.
type Tensor struct {
	Name   string
	Kind   typed.Kind
	Shape  []int
	Format format.Format

	Pos  [][]int64
	Crd  [][]int64
	Vals []typed.Value
}

// New returns an empty tensor. Kernels fill result tensors in place.
func New(name string, kind typed.Kind, shape []int, f format.Format) *Tensor {
	return &Tensor{
		Name:   name,
		Kind:   kind,
		Shape:  append([]int(nil), shape...),
		Format: f,
		Pos:    make([][]int64, f.Order()),
		Crd:    make([][]int64, f.Order()),
	}
}

// Order returns the number of dimensions.
func (t *Tensor) Order() int { return len(t.Shape) }

// Size returns the number of components of the dense tensor.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v %s (%d stored)", t.Name, t.Shape, t.Format, len(t.Vals))
}

// Pack stores entries in format f. Entries are sorted into storage order;
// entries with equal coordinates are summed unless the level holding them
// admits repeated coordinates.
func Pack(name string, kind typed.Kind, shape []int, f format.Format, entries []Entry) (*Tensor, error) {
	if f.Order() != len(shape) {
		return nil, fmt.Errorf("pack %s: format %s has %d levels for %d dimensions", name, f, f.Order(), len(shape))
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	t := New(name, kind, shape, f)
	p := &packer{t: t}
	for i, e := range entries {
		if len(e.Coords) != len(shape) {
			return nil, fmt.Errorf("pack %s: entry %d has %d coordinates, want %d", name, i, len(e.Coords), len(shape))
		}
		key := make([]int, len(shape))
		for l := range key {
			d := f.Dimension(l)
			c := e.Coords[d]
			if c < 0 || c >= shape[d] {
				return nil, fmt.Errorf("pack %s: entry %d coordinate %d out of range [0, %d)", name, i, c, shape[d])
			}
			key[l] = c
		}
		p.keys = append(p.keys, key)
		p.vals = append(p.vals, typed.Cast(kind, e.Value))
	}
	idx := make([]int, len(p.keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return lessKey(p.keys[idx[a]], p.keys[idx[b]]) })
	keys := make([][]int, len(idx))
	vals := make([]typed.Value, len(idx))
	for i, j := range idx {
		keys[i], vals[i] = p.keys[j], p.vals[j]
	}
	p.keys, p.vals = keys, vals

	for l, m := range f.Modes {
		if m.Kind == format.Compressed {
			t.Pos[l] = []int64{0}
		}
	}
	if err := p.level(0, 0, len(keys)); err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return t, nil
}

// MustPack is like Pack but panics on error.
// Use only in tests.
func MustPack(name string, kind typed.Kind, shape []int, f format.Format, entries []Entry) *Tensor {
	t, err := Pack(name, kind, shape, f, entries)
	if err != nil {
		panic(err)
	}
	return t
}

func lessKey(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type packer struct {
	t    *Tensor
	keys [][]int
	vals []typed.Value
}

// level stores the sorted entries [lo, hi), which share their first l
// coordinates, under one position of level l-1.
func (p *packer) level(l, lo, hi int) error {
	t := p.t
	if l == t.Format.Order() {
		v := typed.Zero(t.Kind)
		for e := lo; e < hi; e++ {
			sum, err := typed.Add(t.Kind, v, p.vals[e])
			if err != nil {
				return err
			}
			v = sum
		}
		t.Vals = append(t.Vals, v)
		return nil
	}

	m := t.Format.Modes[l]
	switch m.Kind {
	case format.Dense:
		n := t.Shape[t.Format.Dimension(l)]
		e := lo
		for c := 0; c < n; c++ {
			end := e
			for end < hi && p.keys[end][l] == c {
				end++
			}
			if err := p.level(l+1, e, end); err != nil {
				return err
			}
			e = end
		}
	case format.Compressed:
		for e := lo; e < hi; {
			end := e + 1
			if m.Unique {
				for end < hi && p.keys[end][l] == p.keys[e][l] {
					end++
				}
			}
			t.Crd[l] = append(t.Crd[l], int64(p.keys[e][l]))
			if err := p.level(l+1, e, end); err != nil {
				return err
			}
			e = end
		}
		t.Pos[l] = append(t.Pos[l], int64(len(t.Crd[l])))
	case format.Singleton:
		if hi-lo != 1 {
			return fmt.Errorf("singleton level %d needs exactly one coordinate per parent position, got %d", l+1, hi-lo)
		}
		t.Crd[l] = append(t.Crd[l], int64(p.keys[lo][l]))
		return p.level(l+1, lo, hi)
	default:
		return fmt.Errorf("level %d: unknown mode %s", l+1, m.Kind)
	}
	return nil
}

// Entries returns every stored component in storage order, explicit zeros
// included.
func (t *Tensor) Entries() ([]Entry, error) {
	var out []Entry
	key := make([]int, t.Format.Order())
	err := t.walk(0, 0, key, func(pos int) error {
		if pos >= len(t.Vals) {
			return fmt.Errorf("%s: position %d past %d values", t.Name, pos, len(t.Vals))
		}
		coords := make([]int, len(key))
		for l, c := range key {
			coords[t.Format.Dimension(l)] = c
		}
		out = append(out, Entry{Coords: coords, Value: t.Vals[pos]})
		return nil
	})
	return out, err
}

func (t *Tensor) walk(l, pos int, key []int, leaf func(pos int) error) error {
	if l == t.Format.Order() {
		return leaf(pos)
	}
	switch t.Format.Modes[l].Kind {
	case format.Dense:
		n := t.Shape[t.Format.Dimension(l)]
		for c := 0; c < n; c++ {
			key[l] = c
			if err := t.walk(l+1, pos*n+c, key, leaf); err != nil {
				return err
			}
		}
	case format.Compressed:
		pos0, pos1, err := t.segment(l, pos)
		if err != nil {
			return err
		}
		for p := pos0; p < pos1; p++ {
			key[l] = int(t.Crd[l][p])
			if err := t.walk(l+1, p, key, leaf); err != nil {
				return err
			}
		}
	case format.Singleton:
		if pos >= len(t.Crd[l]) {
			return fmt.Errorf("%s level %d: position %d past %d coordinates", t.Name, l+1, pos, len(t.Crd[l]))
		}
		key[l] = int(t.Crd[l][pos])
		return t.walk(l+1, pos, key, leaf)
	}
	return nil
}

func (t *Tensor) segment(l, pos int) (int, int, error) {
	pa := t.Pos[l]
	if pos+1 >= len(pa) {
		return 0, 0, fmt.Errorf("%s level %d: segment %d past %d pos entries", t.Name, l+1, pos, len(pa))
	}
	lo, hi := int(pa[pos]), int(pa[pos+1])
	if lo > hi || hi > len(t.Crd[l]) {
		return 0, 0, fmt.Errorf("%s level %d: bad segment [%d, %d) over %d coordinates", t.Name, l+1, lo, hi, len(t.Crd[l]))
	}
	return lo, hi, nil
}

// Dense returns the components in row-major order over Shape. Repeated
// coordinates are summed.
func (t *Tensor) Dense() ([]typed.Value, error) {
	entries, err := t.Entries()
	if err != nil {
		return nil, err
	}
	out := make([]typed.Value, t.Size())
	for i := range out {
		out[i] = typed.Zero(t.Kind)
	}
	for _, e := range entries {
		i := Index(t.Shape, e.Coords)
		sum, err := typed.Add(t.Kind, out[i], e.Value)
		if err != nil {
			return nil, err
		}
		out[i] = sum
	}
	return out, nil
}

// NonZeros returns the stored entries whose value is not zero.
func (t *Tensor) NonZeros() ([]Entry, error) {
	entries, err := t.Entries()
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.Value.IsZero() {
			out = append(out, e)
		}
	}
	return out, nil
}

// Index returns the row-major offset of coords in a tensor of the given
// shape.
func Index(shape, coords []int) int {
	i := 0
	for d, n := range shape {
		i = i*n + coords[d]
	}
	return i
}

// Coords is the inverse of Index.
func Coords(shape []int, i int) []int {
	out := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = i % shape[d]
		i /= shape[d]
	}
	return out
}
