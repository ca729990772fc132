package lower

import (
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/lattice"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

// plan is the lowering decision for one forall.
type plan struct {
	strategy StrategyKind
	lattice  lattice.Lattice
	kind     ir.LoopKind
}

type forallEmitter func(l *lowerer, f *notation.Forall, p *plan, sc *scope) (ir.Stmt, error)

var forallEmitters map[StrategyKind]forallEmitter

func init() {
	forallEmitters = map[StrategyKind]forallEmitter{
		StrategyDimension: (*lowerer).emitDimension,
		StrategyPosition:  (*lowerer).emitPosition,
		StrategyLattice:   (*lowerer).emitLattice,
	}
}

// reduceMode is how a parallel loop resolves writes to a shared element.
type reduceMode uint8

const (
	reduceAtomic reduceMode = iota
	reduceClause
	reducePlain
)

// reductionByAtomics picks the reduction pattern when the schedule leaves
// the choice to the target.
var reductionByAtomics = map[bool]reduceMode{
	true:  reduceAtomic,
	false: reduceClause,
}

func (l *lowerer) reduction(f *notation.Forall) reduceMode {
	switch f.Race {
	case notation.Atomics:
		return reduceAtomic
	case notation.Temporary:
		return reduceClause
	case notation.IgnoreRaces:
		return reducePlain
	default:
		return reductionByAtomics[l.cfg.target.NativeAtomics]
	}
}

func (l *lowerer) forall(f *notation.Forall, sc *scope) (ir.Stmt, error) {
	p, err := l.planForall(f, sc)
	if err != nil {
		return nil, err
	}
	if p.kind == ir.Vectorized && !l.cfg.target.VectorLoads {
		l.diagnose(WarnNoVectorLoads, "target %s has no vector loads; forall over %s lowered serially",
			l.cfg.target.Name, f.Var)
		p.kind = ir.Serial
	}
	if p.kind.IsParallel() {
		if reason := l.parallelObstacle(f, p, sc); reason != "" {
			if !l.cfg.serialFallback {
				return nil, unsupported("parallel "+p.strategy.String()+" loop", "forall over %s: %s", f.Var, reason)
			}
			l.diagnose(WarnSerialFallback, "forall over %s lowered serially: %s", f.Var, reason)
			p.kind = ir.Serial
		}
	}
	l.record(f, p)
	if p.strategy != StrategyDimension && p.lattice.Empty() {
		return nil, nil
	}

	inner := sc.child()
	if p.kind.IsParallel() {
		inner.parallel = append(inner.parallel, f)
	}
	emit := forallEmitters[p.strategy]

	a, clause := l.hoistTarget(f, p, sc)
	if a == nil {
		return emit(l, f, p, inner)
	}
	acc, decls := l.newAccumulator(a, sc)
	inner.accum[a] = acc
	loop, err := emit(l, f, p, inner)
	if err != nil {
		return nil, err
	}
	if clause {
		fl, ok := loop.(*ir.For)
		if !ok {
			invariant("reduction clause", "parallel forall over %s lowered to %T", f.Var, loop)
		}
		fl.Reduction = &ir.Reduction{Op: ir.OpAdd, Var: acc.v}
	}
	store, err := l.store(a, acc.v, true, sc)
	if err != nil {
		return nil, err
	}
	if acc.set != nil {
		store = ir.IfThen(acc.set, store)
	}
	return ir.Seq(decls, loop, store), nil
}

func (l *lowerer) record(f *notation.Forall, p *plan) {
	d := Decision{Var: f.Var.Name(), Strategy: p.strategy, Kind: p.kind}
	if p.strategy != StrategyDimension {
		lat := p.lattice
		d.Lattice = &lat
	}
	l.result.Decisions = append(l.result.Decisions, d)
	l.log.Debug("forall lowered",
		"var", d.Var,
		"strategy", p.strategy.String(),
		"points", len(p.lattice.Points()),
		"kind", p.kind.String(),
	)
}

// planForall picks the strategy for f. Operand levels that are all dense
// need no lattice; a lattice with a single case driven by one unique sparse
// level becomes a position loop.
func (l *lowerer) planForall(f *notation.Forall, sc *scope) (*plan, error) {
	p := &plan{strategy: StrategyDimension, kind: f.Kind}
	dense := true
	for _, acc := range l.operands(f, sc) {
		if it := l.its.For(acc, f.Var); it != nil && !it.IsFull() {
			dense = false
		}
	}
	if dense {
		return p, nil
	}

	absent := lattice.Absent(func(acc *notation.Access) bool { return sc.absent[acc] })
	lat, err := lattice.Build(bodyAlgebra(f.Body), f.Var, l.its, absent)
	if err != nil {
		return nil, fmt.Errorf("forall over %s: %w", f.Var, err)
	}
	p.lattice = lat
	p.strategy = StrategyLattice
	if pts := lat.Points(); len(pts) == 1 && pts[0].SparseDriven() && !pts[0].Omitted() {
		if m := pts[0].Mergers(); len(m) == 1 && m[0].IsUnique() {
			p.strategy = StrategyPosition
		}
	}
	return p, nil
}

// operands returns the accesses read in f's body that the loop over f.Var
// must drive: absent accesses and workspaces produced inside the body are
// left out.
func (l *lowerer) operands(f *notation.Forall, sc *scope) []*notation.Access {
	inside := make(map[*notation.TensorVar]bool)
	for _, t := range iterator.Temporaries(f.Body) {
		inside[t] = true
	}
	var out []*notation.Access
	for _, a := range notation.Assignments(f.Body) {
		for _, acc := range notation.Accesses(a.Rhs) {
			if sc.absent[acc] || inside[acc.Tensor] {
				continue
			}
			out = append(out, acc)
		}
	}
	return out
}

// bodyAlgebra is the algebra of everything a statement computes. A
// workspace produced inside the statement stands for the algebra of its
// producer.
func bodyAlgebra(s notation.IndexStmt) notation.Algebra {
	produced := make(map[*notation.TensorVar]notation.Algebra)
	var walk func(notation.IndexStmt) notation.Algebra
	walkAll := func(stmts []notation.IndexStmt) notation.Algebra {
		var out notation.Algebra
		for _, c := range stmts {
			out = unionAlgebra(out, walk(c))
		}
		return out
	}
	walk = func(s notation.IndexStmt) notation.Algebra {
		switch n := s.(type) {
		case *notation.Assignment:
			return substitute(notation.ExprAlgebra(n.Rhs), produced)
		case *notation.Forall:
			return walk(n.Body)
		case *notation.Where:
			prod := walk(n.Producer)
			nested := make(map[*notation.TensorVar]bool)
			for _, t := range iterator.Temporaries(n.Producer) {
				nested[t] = true
			}
			for _, a := range notation.Assignments(n.Producer) {
				t := a.Lhs.Tensor
				if nested[t] {
					continue
				}
				produced[t] = unionAlgebra(produced[t], substitute(notation.ExprAlgebra(a.Rhs), produced))
			}
			return unionAlgebra(prod, walk(n.Consumer))
		case *notation.Sequence:
			return walkAll(n.Stmts)
		case *notation.Multi:
			return walkAll(n.Stmts)
		default:
			return nil
		}
	}
	if alg := walk(s); alg != nil {
		return alg
	}
	return &notation.Background{}
}

func unionAlgebra(a, b notation.Algebra) notation.Algebra {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return &notation.Union{L: a, R: b}
	}
}

func substitute(alg notation.Algebra, produced map[*notation.TensorVar]notation.Algebra) notation.Algebra {
	switch n := alg.(type) {
	case *notation.Region:
		if acc, ok := n.Expr.(*notation.Access); ok {
			if sub, ok := produced[acc.Tensor]; ok {
				return sub
			}
		}
		return n
	case *notation.Union:
		return &notation.Union{L: substitute(n.L, produced), R: substitute(n.R, produced)}
	case *notation.Intersect:
		return &notation.Intersect{L: substitute(n.L, produced), R: substitute(n.R, produced)}
	case *notation.Complement:
		return &notation.Complement{X: substitute(n.X, produced)}
	default:
		return alg
	}
}

// parallelObstacle explains why f cannot run in parallel, or returns "".
func (l *lowerer) parallelObstacle(f *notation.Forall, p *plan, sc *scope) string {
	if p.strategy == StrategyLattice {
		return "a merge loop over several operands cannot be partitioned"
	}
	if len(iterator.Temporaries(f.Body)) > 0 {
		return "its workspaces would be shared between iterations"
	}
	for _, a := range notation.Assignments(f.Body) {
		t := a.Lhs.Tensor
		ws := l.its.Workspace(t)
		if ws != nil && !ws.Sparse {
			continue
		}
		for lvl, m := range t.Format.Modes {
			if m.IsFull() {
				continue
			}
			v := a.Lhs.Indices[t.Format.Dimension(lvl)]
			if v == f.Var || !sc.isBound(v) {
				return fmt.Sprintf("%s is assembled by appending coordinates inside the loop", t.Name)
			}
		}
	}
	return ""
}

// hoistTarget returns the reduction assignment whose accumulator can live
// in a scalar around f: the body is a chain of serial foralls ending in an
// accumulation whose left-hand side is fixed while f runs. Clause reports
// that f itself is parallel and merges per-thread partial sums.
func (l *lowerer) hoistTarget(f *notation.Forall, p *plan, sc *scope) (*notation.Assignment, bool) {
	cur := f.Body
	for {
		g, ok := cur.(*notation.Forall)
		if !ok {
			break
		}
		if g.Kind.IsParallel() {
			return nil, false
		}
		cur = g.Body
	}
	a, ok := cur.(*notation.Assignment)
	if !ok || !a.Accumulate || sc.accum[a] != nil {
		return nil, false
	}
	for _, v := range a.Lhs.Indices {
		if !sc.isBound(v) {
			return nil, false
		}
	}
	if p.kind.IsParallel() {
		if l.reduction(f) != reduceClause {
			return nil, false
		}
		return a, true
	}
	return a, false
}

func (l *lowerer) newAccumulator(a *notation.Assignment, sc *scope) (*accumulator, ir.Stmt) {
	t := a.Lhs.Tensor
	role := RoleAccumulator
	if len(sc.parallel) > 0 {
		role = RoleThreadLocal
	}
	loc := l.cfg.target.Location(role)
	acc := &accumulator{v: ir.NewVar(l.names.Fresh("t"+t.Name), t.Type)}
	decls := ir.Seq(&ir.VarDecl{Var: acc.v, Init: ir.Zero(t.Type), Loc: loc})
	if l.sparseTarget(t) {
		acc.set = ir.NewVar(l.names.Fresh("t"+t.Name+"_set"), typed.Bool)
		decls.Append(&ir.VarDecl{Var: acc.set, Init: ir.Bool(false), Loc: loc})
	}
	return acc, decls
}

// sparseTarget reports whether writes to t create entries, so a reduction
// that accumulated nothing must not be stored.
func (l *lowerer) sparseTarget(t *notation.TensorVar) bool {
	if ws := l.its.Workspace(t); ws != nil {
		return ws.Sparse
	}
	return !t.Format.IsDense()
}

func (l *lowerer) emitDimension(f *notation.Forall, p *plan, sc *scope) (ir.Stmt, error) {
	dim := l.its.Dim(f.Var)
	begin, end := dim.CoordBounds()
	body, err := l.caseBody(f, nil, nil, f.Var.Name(), sc)
	if err != nil {
		return nil, err
	}
	return &ir.For{
		Var:   dim.Coord(),
		Start: begin,
		End:   end,
		Step:  ir.Int(1),
		Kind:  p.kind,
		Chunk: chunkOf(f, p),
		Body:  body,
	}, nil
}

func (l *lowerer) emitPosition(f *notation.Forall, p *plan, sc *scope) (ir.Stmt, error) {
	pt := p.lattice.Points()[0]
	it := pt.Mergers()[0]
	begin, end, err := l.posBounds(it, sc)
	if err != nil {
		return nil, err
	}
	body, err := l.caseBody(f, pt.Iterators(), p.lattice.Iterators(), caseLabel(f.Var, pt), sc)
	if err != nil {
		return nil, err
	}
	coord := l.its.Dim(f.Var).Coord()
	return &ir.For{
		Var:   it.Pos(),
		Start: begin,
		End:   end,
		Step:  ir.Int(1),
		Kind:  p.kind,
		Chunk: chunkOf(f, p),
		Body:  ir.Seq(ir.Decl(coord, it.CoordAtPos(it.Pos())), body),
	}, nil
}

func (l *lowerer) emitLattice(f *notation.Forall, p *plan, sc *scope) (ir.Stmt, error) {
	lat := p.lattice
	out := &ir.Block{}
	for _, it := range lat.Iterators() {
		if it.IsFull() {
			continue
		}
		begin, end, err := l.posBounds(it, sc)
		if err != nil {
			return nil, err
		}
		out.Append(ir.Decl(it.Pos(), begin), ir.Decl(it.End(), end))
	}
	countDriven := !lat.SparseDriven()
	if countDriven {
		out.Append(ir.Decl(l.its.Dim(f.Var).Coord(), ir.Int(0)))
	}
	for _, pt := range lat.Points() {
		if !lat.Live(pt) {
			continue
		}
		loop, err := l.mergeLoop(f, p, pt, countDriven, sc)
		if err != nil {
			return nil, err
		}
		out.Append(loop)
	}
	return out, nil
}

// mergeLoop emits the while loop of one lattice point. It runs until one of
// the point's sparse iterators is exhausted, or, when the lattice counts
// through the dimension, until the extent is reached.
func (l *lowerer) mergeLoop(f *notation.Forall, p *plan, pt lattice.Point, countDriven bool, sc *scope) (ir.Stmt, error) {
	dim := l.its.Dim(f.Var)
	coord := dim.Coord()
	mergers := pt.Mergers()

	var conds []ir.Expr
	for _, it := range mergers {
		conds = append(conds, ir.Lt(it.Pos(), it.End()))
	}
	if countDriven {
		conds = append(conds, ir.Lt(coord, dim.Dim()))
	}

	body := &ir.Block{}
	for _, it := range mergers {
		body.Append(ir.Decl(it.Coord(), it.CoordAtPos(it.Pos())))
		if !it.IsUnique() {
			body.Append(it.ScanSegment())
		}
	}
	if !countDriven {
		var least ir.Expr
		for _, it := range mergers {
			if least == nil {
				least = it.Coord()
				continue
			}
			least = ir.Min(least, it.Coord())
		}
		body.Append(ir.Decl(coord, least))
	}
	if l.cfg.checks {
		for _, it := range mergers {
			body.Append(it.CheckNotBehind(coord))
		}
	}
	cascade, err := l.cascade(f, p, pt, countDriven, sc)
	if err != nil {
		return nil, err
	}
	body.Append(cascade)
	for _, it := range mergers {
		body.Append(it.AdvanceTo(coord))
	}
	if countDriven {
		body.Append(ir.Incr(coord))
	}
	return &ir.While{Cond: ir.And(conds...), Body: body}, nil
}

// cascade emits the if-else chain over pt's sub-lattice, most specific case
// first. Omitted cases get an empty branch so they still shadow the cases
// after them.
func (l *lowerer) cascade(f *notation.Forall, p *plan, pt lattice.Point, countDriven bool, sc *scope) (ir.Stmt, error) {
	coord := l.its.Dim(f.Var).Coord()
	sub := p.lattice.SubLattice(pt).Points()
	merged := p.lattice.Iterators()
	single := !countDriven && len(pt.Mergers()) == 1

	var chain ir.Stmt
	for k := len(sub) - 1; k >= 0; k-- {
		q := sub[k]
		var then ir.Stmt = &ir.Block{}
		if !q.Omitted() {
			b, err := l.caseBody(f, q.Iterators(), merged, caseLabel(f.Var, q), sc)
			if err != nil {
				return nil, err
			}
			if b != nil {
				then = b
			}
		}
		var conds []ir.Expr
		for _, it := range q.Mergers() {
			conds = append(conds, ir.Eq(it.Coord(), coord))
		}
		cond := ir.And(conds...)
		if single || ir.IsTrue(cond) {
			chain = then
			continue
		}
		chain = &ir.If{Cond: cond, Then: then, Else: chain}
	}
	return chain, nil
}

// caseBody lowers f's body for one case: present iterators are positioned,
// lattice iterators missing from the case mark their accesses absent and
// every other level over f.Var is located or written.
func (l *lowerer) caseBody(f *notation.Forall, present, merged []*iterator.Iterator, label string, sc *scope) (ir.Stmt, error) {
	v := f.Var
	inner := sc.child()
	inner.bound = append(inner.bound, v)
	inner.loops++

	for _, it := range present {
		switch {
		case it.IsDimension():
		case it.IsFull():
			if err := l.locate(it, inner); err != nil {
				return nil, err
			}
		default:
			inner.pos[it] = it.Pos()
			if !it.IsUnique() {
				inner.seg[it] = it.Seg()
			}
		}
	}
	for _, it := range merged {
		if !it.IsDimension() && !containsIterator(present, it) {
			inner.absent[it.Access()] = true
		}
	}
	for _, acc := range l.operands(f, inner) {
		it := l.its.For(acc, v)
		if it == nil {
			continue
		}
		if _, ok := inner.pos[it]; ok {
			continue
		}
		if !it.IsFull() {
			return nil, unsupported("operand outside merge lattice",
				"%s is sparse over %s but no case of the lattice iterates it", it.Describe(), v)
		}
		if err := l.locate(it, inner); err != nil {
			return nil, err
		}
	}
	for _, a := range notation.Assignments(f.Body) {
		if it := l.its.For(a.Lhs, v); it != nil {
			if err := l.positionWrite(it, inner); err != nil {
				return nil, err
			}
		}
	}

	body, err := l.lowerStmt(f.Body, inner)
	if err != nil {
		return nil, err
	}
	body, err = l.wrapAppends(f, body, inner)
	if err != nil {
		return nil, err
	}
	var probe ir.Stmt
	if l.cfg.instrument {
		probe = &ir.Probe{Label: label, Coord: l.its.Dim(v).Coord()}
	}
	return ir.Seq(probe, body), nil
}

func caseLabel(v *notation.IndexVar, p lattice.Point) string {
	return v.Name() + ":" + p.String()
}

func chunkOf(f *notation.Forall, p *plan) int {
	if p.kind == ir.ParallelChunked {
		return f.Chunk
	}
	return 0
}

func containsIterator(its []*iterator.Iterator, it *iterator.Iterator) bool {
	for _, x := range its {
		if x == it {
			return true
		}
	}
	return false
}

func (l *lowerer) parentPos(it *iterator.Iterator, sc *scope) (ir.Expr, error) {
	p := it.Parent()
	if p == nil {
		return nil, nil
	}
	if pos, ok := sc.pos[p]; ok {
		return pos, nil
	}
	return nil, unsupported("iteration order", "%s is iterated before its parent %s", it.Describe(), p.Describe())
}

// posBounds returns the position segment of a sparse level. The child of a
// non-unique level spans the whole run of its parent's coordinate.
func (l *lowerer) posBounds(it *iterator.Iterator, sc *scope) (ir.Expr, ir.Expr, error) {
	if p := it.Parent(); p != nil {
		if seg, ok := sc.seg[p]; ok {
			return sc.pos[p], seg, nil
		}
	}
	parent, err := l.parentPos(it, sc)
	if err != nil {
		return nil, nil, err
	}
	if parent == nil {
		parent = ir.Int(0)
	}
	begin, end, err := it.PosBounds(parent)
	if err != nil {
		return nil, nil, &UnsupportedError{Combination: "iterate", Detail: err.Error()}
	}
	return begin, end, nil
}

func (l *lowerer) locate(it *iterator.Iterator, sc *scope) error {
	parent, err := l.parentPos(it, sc)
	if err != nil {
		return err
	}
	pos, _, err := it.Locate(parent, it.Coord())
	if err != nil {
		return &UnsupportedError{Combination: "locate", Detail: err.Error()}
	}
	sc.pos[it] = pos
	return nil
}

// positionWrite positions a level of a left-hand side. Dense levels insert
// at the coordinate, compressed result levels write at their next free
// position and sparse workspaces are addressed by coordinate.
func (l *lowerer) positionWrite(it *iterator.Iterator, sc *scope) error {
	if _, ok := sc.pos[it]; ok {
		return nil
	}
	coord := l.its.Dim(it.IndexVar()).Coord()
	switch {
	case it.IsTemporary() && !it.IsFull():
		sc.pos[it] = coord
	case it.IsFull():
		parent, err := l.parentPos(it, sc)
		if err != nil {
			return err
		}
		pos, err := it.InsertAt(parent, coord)
		if err != nil {
			return &UnsupportedError{Combination: "insert", Detail: err.Error()}
		}
		sc.pos[it] = pos
	default:
		sc.pos[it] = it.Pos()
	}
	return nil
}
