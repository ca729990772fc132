// Package format describes tensor storage formats: an ordered list of
// per-level mode formats plus the dimension each level stores.
package format

import (
	"fmt"
	"strconv"
	"strings"
)

// ModeKind is the storage kind of one level.
type ModeKind uint8

const (
	// Dense stores every coordinate of its dimension.
	Dense ModeKind = iota
	// Compressed stores a pos segment per parent position and a crd array.
	Compressed
	// Singleton stores exactly one coordinate per parent position.
	Singleton
)

func (k ModeKind) String() string {
	switch k {
	case Dense:
		return "dense"
	case Compressed:
		return "compressed"
	case Singleton:
		return "singleton"
	default:
		return fmt.Sprintf("mode(%d)", uint8(k))
	}
}

// Letter returns the one-letter abbreviation used in format strings.
func (k ModeKind) Letter() byte {
	switch k {
	case Compressed:
		return 's'
	case Singleton:
		return 'q'
	default:
		return 'd'
	}
}

// Capability is a bit set of operations a level supports.
type Capability uint8

const (
	CoordIter Capability = 1 << iota
	PosIter
	Locate
	Insert
	Append
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CoordIter, "coord_iter"},
	{PosIter, "pos_iter"},
	{Locate, "locate"},
	{Insert, "insert"},
	{Append, "append"},
}

// Has reports whether all bits of want are set.
func (c Capability) Has(want Capability) bool { return c&want == want }

func (c Capability) String() string {
	var parts []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			parts = append(parts, cn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ModeFormat is the format of one storage level.
type ModeFormat struct {
	Kind    ModeKind
	Ordered bool
	Unique  bool
}

// Common mode formats.
var (
	DenseMode      = ModeFormat{Kind: Dense, Ordered: true, Unique: true}
	CompressedMode = ModeFormat{Kind: Compressed, Ordered: true, Unique: true}
	// CompressedNonUnique is the top level of a COO tensor.
	CompressedNonUnique = ModeFormat{Kind: Compressed, Ordered: true, Unique: false}
	SingletonMode       = ModeFormat{Kind: Singleton, Ordered: true, Unique: true}
)

// Capabilities returns what a level of this format supports.
func (m ModeFormat) Capabilities() Capability {
	switch m.Kind {
	case Dense:
		return CoordIter | Locate | Insert
	case Compressed, Singleton:
		return PosIter | Append
	default:
		return 0
	}
}

// IsFull reports whether the level stores every coordinate of its dimension.
func (m ModeFormat) IsFull() bool { return m.Kind == Dense }

func (m ModeFormat) String() string {
	s := m.Kind.String()
	if !m.Ordered {
		s += ",unordered"
	}
	if !m.Unique {
		s += ",nonunique"
	}
	return s
}

// Format is an ordered list of level formats. Ordering[l] is the tensor
// dimension stored at level l; a nil Ordering is the identity.
type Format struct {
	Modes    []ModeFormat
	Ordering []int
}

// New returns a format with identity mode ordering.
func New(modes ...ModeFormat) Format {
	return Format{Modes: modes}
}

// WithOrdering returns a copy of f that stores dimension ordering[l] at
// level l.
func (f Format) WithOrdering(ordering ...int) Format {
	out := Format{Modes: append([]ModeFormat(nil), f.Modes...)}
	out.Ordering = append([]int(nil), ordering...)
	return out
}

// Order returns the number of levels.
func (f Format) Order() int { return len(f.Modes) }

// Dimension returns the tensor dimension stored at level l.
func (f Format) Dimension(level int) int {
	if f.Ordering == nil {
		return level
	}
	return f.Ordering[level]
}

// Level returns the storage level holding dimension d, or -1.
func (f Format) Level(dim int) int {
	for l := range f.Modes {
		if f.Dimension(l) == dim {
			return l
		}
	}
	return -1
}

// IsDense reports whether every level is dense.
func (f Format) IsDense() bool {
	for _, m := range f.Modes {
		if m.Kind != Dense {
			return false
		}
	}
	return true
}

// Validate checks the ordering is a permutation and singleton levels have a
// parent.
func (f Format) Validate() error {
	if f.Ordering != nil {
		if len(f.Ordering) != len(f.Modes) {
			return fmt.Errorf("ordering has %d entries for %d levels", len(f.Ordering), len(f.Modes))
		}
		seen := make([]bool, len(f.Modes))
		for _, d := range f.Ordering {
			if d < 0 || d >= len(f.Modes) || seen[d] {
				return fmt.Errorf("ordering %v is not a permutation", f.Ordering)
			}
			seen[d] = true
		}
	}
	for l, m := range f.Modes {
		if m.Kind == Singleton && l == 0 {
			return fmt.Errorf("singleton level 0 has no parent level")
		}
	}
	return nil
}

// Equal reports whether f and g describe the same storage.
func (f Format) Equal(g Format) bool {
	if len(f.Modes) != len(g.Modes) {
		return false
	}
	for l := range f.Modes {
		if f.Modes[l] != g.Modes[l] || f.Dimension(l) != g.Dimension(l) {
			return false
		}
	}
	return true
}

// String renders f in the form accepted by Parse, e.g. "ds" or "ds:1,0".
func (f Format) String() string {
	var b strings.Builder
	for _, m := range f.Modes {
		b.WriteByte(m.Kind.Letter())
		if m.Kind == Compressed && !m.Unique {
			b.WriteByte('u')
		}
	}
	if f.Ordering != nil && !isIdentity(f.Ordering) {
		b.WriteByte(':')
		for i, d := range f.Ordering {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(d))
		}
	}
	return b.String()
}

func isIdentity(ordering []int) bool {
	for i, d := range ordering {
		if i != d {
			return false
		}
	}
	return true
}

// Parse reads a format string: one letter per level ('d' dense, 's'
// compressed, 'u' after 's' for non-unique, 'q' singleton) optionally
// followed by ':' and a comma separated mode ordering.
func Parse(s string) (Format, error) {
	s = strings.TrimSpace(s)
	spec, order, hasOrder := strings.Cut(s, ":")
	var f Format
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case 'd':
			f.Modes = append(f.Modes, DenseMode)
		case 's':
			f.Modes = append(f.Modes, CompressedMode)
		case 'u':
			if len(f.Modes) == 0 || f.Modes[len(f.Modes)-1].Kind != Compressed {
				return Format{}, fmt.Errorf("format %q: 'u' must follow 's'", s)
			}
			f.Modes[len(f.Modes)-1].Unique = false
		case 'q':
			f.Modes = append(f.Modes, SingletonMode)
		default:
			return Format{}, fmt.Errorf("format %q: unknown level letter %q", s, spec[i])
		}
	}
	if hasOrder {
		for _, part := range strings.Split(order, ",") {
			d, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Format{}, fmt.Errorf("format %q: bad ordering entry %q", s, part)
			}
			f.Ordering = append(f.Ordering, d)
		}
	}
	if err := f.Validate(); err != nil {
		return Format{}, fmt.Errorf("format %q: %w", s, err)
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for literal format strings.
func MustParse(s string) Format {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Presets.
var (
	Scalar       = New()
	DenseVector  = New(DenseMode)
	SparseVector = New(CompressedMode)
	DenseMatrix  = New(DenseMode, DenseMode)
	CSR          = New(DenseMode, CompressedMode)
	CSC          = New(DenseMode, CompressedMode).WithOrdering(1, 0)
	DCSR         = New(CompressedMode, CompressedMode)
	COO          = New(CompressedNonUnique, SingletonMode)
)
