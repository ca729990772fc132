package lower

import "fmt"

// NameGen hands out variable names that are unique within one kernel. The
// first request for a base name returns it unchanged; later requests get a
// numeric suffix.
type NameGen struct {
	used map[string]bool
	next map[string]int
}

// NewNameGen returns an empty generator.
func NewNameGen() *NameGen {
	g := &NameGen{}
	g.Reset()
	return g
}

// Fresh returns an unused name derived from base.
func (g *NameGen) Fresh(base string) string {
	name := base
	for g.used[name] {
		g.next[base]++
		name = fmt.Sprintf("%s_%d", base, g.next[base])
	}
	g.used[name] = true
	return name
}

// Reset forgets every name handed out.
func (g *NameGen) Reset() {
	g.used = make(map[string]bool)
	g.next = make(map[string]int)
}
