package ast

// Pool is the per-AST node arena. Nodes are handed out from geometrically
// growing slabs and never returned individually; dropping the pool drops
// the whole tree in one go. Failed subtrees are only marked destroyed so
// later stages can tell them apart from live nodes.
const firstSlabSize = 64

type Pool struct {
	slabs [][]Expression
	used  int // slots handed out from the newest slab
	total int
}

// NewPool returns an empty node pool.
func NewPool() *Pool {
	return &Pool{}
}

// NewExpr hands out a zeroed node owned by the pool.
func (p *Pool) NewExpr() *Expression {
	if len(p.slabs) == 0 || p.used >= len(p.slabs[len(p.slabs)-1]) {
		size := firstSlabSize
		if len(p.slabs) > 0 {
			size = len(p.slabs[len(p.slabs)-1]) * 2
		}
		p.slabs = append(p.slabs, make([]Expression, size))
		p.used = 0
	}
	slab := p.slabs[len(p.slabs)-1]
	expr := &slab[p.used]
	p.used++
	p.total++
	expr.Storage.EvalTempID = -1
	expr.TokenIndex = -1
	return expr
}

// Allocated returns how many nodes the pool has handed out, including
// destroyed ones.
func (p *Pool) Allocated() int {
	return p.total
}

// Release drops every slab. Nodes obtained from the pool must not be used
// afterwards.
func (p *Pool) Release() {
	p.slabs = nil
	p.used = 0
	p.total = 0
}
