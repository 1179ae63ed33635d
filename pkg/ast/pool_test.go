package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_NodesSurviveSlabGrowth(t *testing.T) {
	p := NewPool()
	var nodes []*Expression
	for i := 0; i < firstSlabSize*5; i++ {
		n := p.NewExpr()
		require.NotNil(t, n)
		n.Line = int64(i)
		nodes = append(nodes, n)
	}
	for i, n := range nodes {
		assert.Equal(t, int64(i), n.Line)
	}
	assert.Equal(t, firstSlabSize*5, p.Allocated())
}

func TestPool_NewExprInitializesStorage(t *testing.T) {
	p := NewPool()
	n := p.NewExpr()
	assert.Equal(t, -1, n.Storage.EvalTempID)
	assert.Equal(t, -1, n.TokenIndex)
}

func TestMarkDestroyed_MarksWholeSubtree(t *testing.T) {
	p := NewPool()
	parent := p.NewExpr()
	left := p.NewExpr()
	right := p.NewExpr()
	parent.Type = ExprBinaryOp
	parent.Op = &OpInfo{Value1: left, Value2: right}
	left.Type = ExprLiteral
	left.Literal = &LiteralInfo{}
	right.Type = ExprLiteral
	right.Literal = &LiteralInfo{}

	MarkDestroyed(parent)
	assert.True(t, parent.Destroyed)
	assert.True(t, left.Destroyed)
	assert.True(t, right.Destroyed)
}

func TestScope_ImportStackingAndReservedNames(t *testing.T) {
	sc := NewScope(nil)
	sc.IsGlobal = true

	decl := &Expression{Type: ExprVarDefStmt,
		VarDef: &VarDefInfo{Identifier: "a"}}
	def := sc.AddItem("a", decl)
	require.NotNil(t, def)
	assert.Nil(t, sc.AddItem("a", decl), "duplicate add must fail")

	child := NewScope(sc)
	assert.Same(t, def, child.QueryItem("a", true))
	assert.Nil(t, child.QueryItem("a", false))

	assert.True(t, IdentifierIsReserved("self"))
	assert.True(t, IdentifierIsReserved("base"))
	assert.False(t, IdentifierIsReserved("selfish"))
}
